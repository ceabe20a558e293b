package tfjs

import (
	"io"

	"github.com/gomlx/tfjs-onnx/internal/opregistry"
	"github.com/pkg/errors"
)

// OpRegistry holds the operator schemas used to determine the outputs of each node.
type OpRegistry = opregistry.Registry

// OpDef is the schema of an operator, see OpRegistry.
type OpDef = opregistry.OpDef

// DefaultOpRegistry returns the registry with the built-in TensorFlow operator schemas.
func DefaultOpRegistry() *OpRegistry {
	return opregistry.Default()
}

// LoadOpRegistry reads extra operator schemas (a YAML list of OpDef) and returns them merged over the
// default registry.
func LoadOpRegistry(r io.Reader) (*OpRegistry, error) {
	extra, err := opregistry.Load(r)
	if err != nil {
		return nil, err
	}
	return opregistry.Default().Merge(extra), nil
}

// OpInfo is the op type and the attributes (decoded with TensorFlow dtypes) of a node already processed.
type OpInfo struct {
	OpType string
	Attrs  map[string]any
}

// OutputNamesAndDTypes returns the output argument name and the TensorFlow dtype of each output of a node,
// given its op type and attributes (decoded with TensorFlow dtypes, keyed as in the op schema).
//
// Arguments with a type list attribute have one output per entry of the list, arguments with a number attribute
// are repeated that many times. The returned names repeat the argument name for each of its outputs.
func OutputNamesAndDTypes(reg *OpRegistry, opType string, attrs map[string]any) (names []string, dtypes []DataType, err error) {
	def, err := reg.OpDef(opType)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "failed to determine dtypes for op type %q, may be an unsupported op type", opType)
	}
	for _, arg := range def.OutputArg {
		numCopies := 1
		if arg.TypeListAttr != "" {
			list, err := attrDTypeList(attrs, arg.TypeListAttr)
			if err != nil {
				return nil, nil, errors.WithMessagef(err, "op %q output %q", opType, arg.Name)
			}
			dtypes = append(dtypes, list...)
			numCopies = len(list)
		} else {
			var dtype DataType
			if arg.TypeAttr != "" {
				dtype, err = attrDType(attrs, arg.TypeAttr)
			} else {
				dtype, err = ParseDataType(arg.Type)
				if err != nil {
					err = errors.Wrapf(ErrSchema, "%v", err)
				}
			}
			if err != nil {
				return nil, nil, errors.WithMessagef(err, "op %q output %q", opType, arg.Name)
			}
			if arg.NumberAttr != "" {
				numCopies, err = attrCount(attrs, arg.NumberAttr)
				if err != nil {
					return nil, nil, errors.WithMessagef(err, "op %q output %q", opType, arg.Name)
				}
			}
			for range numCopies {
				dtypes = append(dtypes, dtype)
			}
		}
		for range numCopies {
			names = append(names, arg.Name)
		}
	}
	return names, dtypes, nil
}

// OutputDTypes returns the TensorFlow dtypes of the outputs of a node, see OutputNamesAndDTypes.
func OutputDTypes(reg *OpRegistry, opType string, attrs map[string]any) ([]DataType, error) {
	_, dtypes, err := OutputNamesAndDTypes(reg, opType, attrs)
	return dtypes, err
}

func attrDType(attrs map[string]any, name string) (DataType, error) {
	v, found := attrs[name]
	if !found {
		return DTInvalid, errors.Wrapf(ErrSchema, "type attribute %q not present on node", name)
	}
	dt, ok := v.(DataType)
	if !ok {
		return DTInvalid, errors.Wrapf(ErrSchema, "attribute %q should be a type, got %T", name, v)
	}
	return dt, nil
}

func attrDTypeList(attrs map[string]any, name string) ([]DataType, error) {
	v, found := attrs[name]
	if !found {
		return nil, errors.Wrapf(ErrSchema, "type list attribute %q not present on node", name)
	}
	switch list := v.(type) {
	case []DataType:
		return list, nil
	case []any:
		if len(list) == 0 {
			return nil, nil
		}
	}
	return nil, errors.Wrapf(ErrSchema, "attribute %q should be a list of types, got %T", name, v)
}

func attrCount(attrs map[string]any, name string) (int, error) {
	v, found := attrs[name]
	if !found {
		return 0, errors.Wrapf(ErrSchema, "number attribute %q not present on node", name)
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return 0, errors.Wrapf(ErrSchema, "attribute %q should be a non-negative int, got %v", name, v)
	}
	return int(n), nil
}
