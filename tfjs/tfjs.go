// Package tfjs reconstructs TensorFlow.js graph models (a model.json topology plus binary weight shards) as a graph
// with ONNX dtypes, ready to be emitted by an ONNX writer.
//
//   - Parse: converts the contents of a model.json file (optionally gzip compressed) to a Model.
//   - ReadFile: reads a model.json file and calls Parse.
//   - Model.LoadWeights: reads the weight shards next to the model.json and decodes all weights.
//   - GraphsFromModel / GraphsFromFile: build the main Graph and the (topologically sorted) function subgraphs.
//
// Shapes and dtypes are propagated node by node: output arity and dtypes come from the operator registry
// (see internal/opregistry) and shapes from a ShapeInferer (StaticInferer by default).
package tfjs

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RawNode is one node of the model topology, as found in the model.json file.
type RawNode struct {
	Name   string          `json:"name"`
	Op     string          `json:"op"`
	Input  []string        `json:"input,omitempty"`
	Attr   map[string]Attr `json:"attr,omitempty"`
	Device string          `json:"device,omitempty"`
}

// SignatureArg is an input or output argument of a function signature.
type SignatureArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// FunctionSignature holds the name and arguments of a function.
type FunctionSignature struct {
	Name      string         `json:"name"`
	InputArg  []SignatureArg `json:"inputArg,omitempty"`
	OutputArg []SignatureArg `json:"outputArg,omitempty"`
}

// ArgAttrs holds the attributes of a function argument.
type ArgAttrs struct {
	Attr map[string]Attr `json:"attr,omitempty"`
}

// FunctionDef is a function (subgraph) of the model library.
type FunctionDef struct {
	Signature FunctionSignature `json:"signature"`
	NodeDef   []RawNode         `json:"nodeDef,omitempty"`

	// Ret maps the output argument names to the tensor (within the function) returned.
	Ret map[string]string `json:"ret,omitempty"`

	// ArgAttr holds the attributes of the input arguments, indexed by the argument position (as a string).
	ArgAttr map[string]ArgAttrs `json:"argAttr,omitempty"`
}

// Name of the function.
func (f *FunctionDef) Name() string {
	return f.Signature.Name
}

// Topology is the graph definition of the model.
type Topology struct {
	Node    []RawNode `json:"node"`
	Library struct {
		Function []*FunctionDef `json:"function,omitempty"`
	} `json:"library"`
	Versions map[string]any `json:"versions,omitempty"`
}

// TensorInfo describes an input or output of the model signature.
type TensorInfo struct {
	Name  string `json:"name"`
	DType string `json:"dtype"`
}

// Signature of the model: named inputs and outputs.
type Signature struct {
	Inputs  map[string]TensorInfo `json:"inputs,omitempty"`
	Outputs map[string]TensorInfo `json:"outputs,omitempty"`

	// outputNames preserves the order in which outputs appear in the file.
	outputNames []string
}

// OutputNames returns the keys of the signature outputs, in the order they appear in the model file.
func (s *Signature) OutputNames() []string {
	if s == nil {
		return nil
	}
	return s.outputNames
}

// UnmarshalJSON implements json.Unmarshaler, keeping track of the outputs order.
func (s *Signature) UnmarshalJSON(data []byte) error {
	type plainSignature Signature
	var plain plainSignature
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	*s = Signature(plain)
	var raw struct {
		Outputs json.RawMessage `json:"outputs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	names, err := objectKeys(raw.Outputs)
	if err != nil {
		return errors.WithMessage(err, "signature outputs")
	}
	s.outputNames = names
	return nil
}

// objectKeys returns the keys of a JSON object in the order they appear.
func objectKeys(raw json.RawMessage) ([]string, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}

// Model represents a parsed tfjs model.json file.
type Model struct {
	Format          string         `json:"format,omitempty"`
	GeneratedBy     string         `json:"generatedBy,omitempty"`
	ConvertedBy     string         `json:"convertedBy,omitempty"`
	Topology        Topology       `json:"modelTopology"`
	WeightsManifest []WeightsGroup `json:"weightsManifest"`
	Signature       *Signature     `json:"signature,omitempty"`

	// Compressed is set if the model.json file was gzip compressed, in which case the weight shards are too.
	Compressed bool `json:"-"`

	// Dir is the directory where the weight shards are read from. It's set by ReadFile.
	Dir string `json:"-"`
}

// Parse parses the contents of a model.json file. Gzip compressed contents are detected and decompressed.
func Parse(contents []byte) (*Model, error) {
	compressed := isGzipped(contents)
	if compressed {
		// Models from tfhub are sometimes gzip compressed without any other indication.
		var err error
		contents, err = gunzip(bytes.NewReader(contents))
		if err != nil {
			return nil, errors.Wrapf(ErrFormat, "compressed model: %v", err)
		}
	}
	m := &Model{Compressed: compressed}
	if err := json.Unmarshal(contents, m); err != nil {
		if errors.Is(err, ErrFormat) {
			return nil, errors.WithMessage(err, "failed to parse tfjs model")
		}
		return nil, errors.Wrapf(ErrFormat, "failed to parse tfjs model: %v", err)
	}
	if len(m.WeightsManifest) == 0 {
		return nil, errors.Wrap(ErrFormat, "tfjs model has no weightsManifest")
	}
	return m, nil
}

// ReadFile parses a model.json file. The weight shards are later read from the same directory.
func ReadFile(filePath string) (*Model, error) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tfjs model file in %s", filePath)
	}
	m, err := Parse(contents)
	if err != nil {
		return nil, errors.WithMessagef(err, "model file %s", filePath)
	}
	m.Dir = filepath.Dir(filePath)
	klog.V(1).Infof("read tfjs model %s: %d nodes, %d functions, compressed=%v", filePath, len(m.Topology.Node),
		len(m.Topology.Library.Function), m.Compressed)
	return m, nil
}

// Manifest returns the weights group used by the model: only the first group of the manifest is used.
func (m *Model) Manifest() *WeightsGroup {
	return &m.WeightsManifest[0]
}

// LoadWeights reads the weight shards from the model directory and decodes every weight of the manifest.
func (m *Model) LoadWeights() (map[string]*Tensor, error) {
	manifest := m.Manifest()
	data, err := ReadShards(m.Dir, manifest.Paths, m.Compressed)
	if err != nil {
		return nil, err
	}
	return ReadWeights(manifest.Weights, data)
}
