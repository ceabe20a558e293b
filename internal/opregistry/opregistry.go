// Package opregistry holds the argument schemas of TensorFlow operators, as needed to figure out the number,
// names and dtypes of the outputs of a node.
//
// The schemas mirror the fields of TensorFlow's OpDef.ArgDef that matter for output arity: a fixed type, a
// type attribute, a type-list attribute and a number (count) attribute.
// The default registry is embedded in the binary (see ops.yaml), and extra operators can be loaded with Load and
// merged with Registry.Merge.
package opregistry

import (
	_ "embed"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownOp is returned (wrapped) when an operator type is not in the registry.
var ErrUnknownOp = errors.New("unknown operator type")

// ArgDef describes one input or output argument of an operator.
//
// At most one of Type, TypeAttr and TypeListAttr is set. NumberAttr can only be combined with Type or TypeAttr.
type ArgDef struct {
	Name string `yaml:"name"`

	// Type is a fixed dtype, given by its TensorFlow name (e.g.: "DT_INT32").
	Type string `yaml:"type,omitempty"`

	// TypeAttr names the node attribute that holds the dtype of this argument.
	TypeAttr string `yaml:"type_attr,omitempty"`

	// TypeListAttr names the node attribute holding a list of dtypes: one tensor per entry.
	TypeListAttr string `yaml:"type_list_attr,omitempty"`

	// NumberAttr names the node attribute holding the number of tensors of this argument.
	NumberAttr string `yaml:"number_attr,omitempty"`
}

// OpDef is the schema of one operator type.
type OpDef struct {
	Name      string   `yaml:"name"`
	InputArg  []ArgDef `yaml:"input_arg,omitempty"`
	OutputArg []ArgDef `yaml:"output_arg,omitempty"`
}

// Validate checks that each argument uses a consistent combination of type fields.
func (op *OpDef) Validate() error {
	if op.Name == "" {
		return errors.New("operator definition without a name")
	}
	check := func(kind string, args []ArgDef) error {
		for _, arg := range args {
			numTypes := 0
			for _, s := range []string{arg.Type, arg.TypeAttr, arg.TypeListAttr} {
				if s != "" {
					numTypes++
				}
			}
			if numTypes != 1 {
				return errors.Errorf("operator %q %s argument %q must define exactly one of type, type_attr or type_list_attr",
					op.Name, kind, arg.Name)
			}
			if arg.TypeListAttr != "" && arg.NumberAttr != "" {
				return errors.Errorf("operator %q %s argument %q cannot combine type_list_attr and number_attr",
					op.Name, kind, arg.Name)
			}
		}
		return nil
	}
	if err := check("input", op.InputArg); err != nil {
		return err
	}
	return check("output", op.OutputArg)
}

// Registry maps operator types to their schemas.
type Registry struct {
	ops map[string]*OpDef
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{ops: make(map[string]*OpDef)}
}

// Load parses a YAML list of operator definitions.
func Load(r io.Reader) (*Registry, error) {
	var defs []*OpDef
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&defs); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to parse operator registry")
	}
	reg := New()
	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Register adds (or replaces) an operator definition.
func (r *Registry) Register(def *OpDef) error {
	if def == nil {
		return errors.New("nil operator definition")
	}
	if err := def.Validate(); err != nil {
		return err
	}
	r.ops[def.Name] = def
	return nil
}

// Merge returns a new registry with the definitions of r overridden by the ones in other.
func (r *Registry) Merge(other *Registry) *Registry {
	merged := New()
	for name, def := range r.ops {
		merged.ops[name] = def
	}
	if other != nil {
		for name, def := range other.ops {
			merged.ops[name] = def
		}
	}
	return merged
}

// OpDef returns the schema for opType, or an error wrapping ErrUnknownOp.
func (r *Registry) OpDef(opType string) (*OpDef, error) {
	def, found := r.ops[opType]
	if !found {
		return nil, errors.Wrapf(ErrUnknownOp, "op type %q", opType)
	}
	return def, nil
}

// Names returns the sorted list of registered operator types.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

//go:embed ops.yaml
var defaultOpsYAML string

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry built from the embedded operator definitions.
//
// It panics if the embedded definitions are invalid, which can only happen with a broken build.
func Default() *Registry {
	defaultOnce.Do(func() {
		reg, err := Load(strings.NewReader(defaultOpsYAML))
		if err != nil {
			panic(errors.WithMessage(err, "embedded ops.yaml"))
		}
		defaultRegistry = reg
	})
	return defaultRegistry
}
