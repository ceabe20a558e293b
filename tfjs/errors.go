package tfjs

import (
	"github.com/gomlx/tfjs-onnx/internal/opregistry"
	"github.com/pkg/errors"
)

// Error kinds returned (wrapped, test with errors.Is) by the model loading functions.
// Any of them aborts the graph (or function) being built: there are no partially built graphs.
var (
	// ErrFormat is returned for malformed model.json files, missing manifest fields, missing constant values
	// or a weights buffer whose size doesn't match the manifest.
	ErrFormat = errors.New("invalid tfjs model format")

	// ErrUnsupportedAttr is returned when an attribute uses an unknown type tag.
	ErrUnsupportedAttr = errors.New("unsupported tfjs attribute type")

	// ErrReference is returned when an input or output reference can't be resolved to a "node:port" name.
	ErrReference = errors.New("unresolved tensor reference")

	// ErrUnsupportedOp is returned for op types unknown to the operator registry.
	ErrUnsupportedOp = opregistry.ErrUnknownOp

	// ErrSchema is returned when an attribute referenced by an op schema (type, type list or count) is missing
	// from the node or has the wrong type.
	ErrSchema = errors.New("node attributes don't match op schema")

	// ErrInference is returned when the shape inference engine fails for a node.
	ErrInference = errors.New("shape inference failed")

	// ErrCycle is returned when the functions of a model depend on each other cyclically.
	ErrCycle = errors.New("cyclic dependency among functions")

	// ErrUnknownFunction is returned when a function references another function that is not in the model library.
	ErrUnknownFunction = errors.New("reference to unknown function")
)
