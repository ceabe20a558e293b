package tfjs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// MainGraphName is the name given to the graph built from the model topology.
const MainGraphName = "tfjs_model"

// kerasLearningPhaseSuffix identifies PlaceholderWithDefault nodes that are almost never meant to be fed.
const kerasLearningPhaseSuffix = "keras_learning_phase"

var (
	// placeholderOps are the op types that become graph inputs by default.
	placeholderOps = sets.Make[string]()

	// ignoredAttrs are TensorFlow attributes that have no meaning once converted: they are kept for the
	// dtype and shape propagation, but not copied to the converted nodes.
	ignoredAttrs = sets.Make[string]()
)

func init() {
	placeholderOps.Insert("Placeholder", "PlaceholderWithDefault", "PlaceholderV2")
	ignoredAttrs.Insert("T", "unknown_rank", "_class", "Tshape", "use_cudnn_on_gpu", "Index", "Tpaddings", "TI",
		"Tparams", "Tindices", "Tlen", "Tdim", "Tin", "dynamic_size", "Tmultiples", "Tblock_shape", "Tcrops",
		"index_type", "Taxis", "U", "maxval", "Tout", "Tlabels", "Tindex", "element_shape", "Targmax", "Tperm",
		"Tcond", "T_threshold", "shape_type", "_lower_using_switch_merge", "parallel_iterations",
		"_num_original_outputs", "output_types", "output_shapes", "key_dtype", "value_dtype", "capacity",
		"component_types", "shapes", "Toutput_types", "dense_shapes", "Tdense", "Tsegmentids", "Tshift",
		"Tnumsegments", "SrcT", "Tcomplex", "Treal", "Tidx", "_output_shapes", "_read_only_resource_inputs",
		"_XlaMustCompile", "_noinline", "Tsplits")
}

// graphBuilder holds the state accumulated while converting the nodes of one graph (or function), in order.
type graphBuilder struct {
	opts     *Options
	weights  map[string]*Tensor
	funcName string

	opInfo   map[string]OpInfo
	shapes   map[string]Shape
	tfDTypes map[string]DataType

	// consts holds the (cast) value of the Const nodes outputs.
	consts map[string]*Tensor

	// produced lists the outputs of the converted nodes in order, and consumed the ones used as inputs since.
	produced []string
	consumed sets.Set[string]

	nodes  []*Node
	inputs []string
}

func newGraphBuilder(weights map[string]*Tensor, opts *Options) *graphBuilder {
	return &graphBuilder{
		opts:     opts,
		weights:  weights,
		opInfo:   make(map[string]OpInfo),
		shapes:   make(map[string]Shape),
		tfDTypes: make(map[string]DataType),
		consts:   make(map[string]*Tensor),
		consumed: sets.Make[string](),
	}
}

// buildGraph converts the nodes of the model topology (fn == nil) or of the function fn to a Graph.
//
// For the main graph, inputNames and outputNames can be nil, in which case the placeholders become the inputs,
// and the outputs not consumed by any node become the outputs. For functions, they are taken from the signature.
func buildGraph(nodes []RawNode, weights map[string]*Tensor, fn *FunctionDef, inputNames, outputNames []string,
	opts *Options) (*Graph, error) {
	b := newGraphBuilder(weights, opts)
	graphName := MainGraphName
	if fn != nil {
		var err error
		inputNames, outputNames, err = b.functionArgs(fn)
		if err != nil {
			return nil, errors.WithMessagef(err, "function %q", fn.Name())
		}
		graphName = fn.Name()
		b.funcName = fn.Name()
	}
	if inputNames == nil {
		inputNames = []string{}
		for _, node := range nodes {
			if placeholderOps.Has(node.Op) {
				inputNames = append(inputNames, node.Name+":0")
			}
		}
	}
	b.inputs = slices.Clone(inputNames)

	for ii := range nodes {
		if err := b.convertNode(&nodes[ii]); err != nil {
			return nil, errors.WithMessagef(err, "graph %q", graphName)
		}
	}

	if outputNames == nil {
		outputNames = []string{}
		for _, name := range b.produced {
			if !b.consumed.Has(name) {
				outputNames = append(outputNames, name)
			}
		}
	}
	resolved := make([]string, len(outputNames))
	rename := make(map[string]string, len(outputNames))
	for ii, name := range outputNames {
		var err error
		resolved[ii], err = ResolveOutput(name, b.opInfo, b.funcName, b.opts.Registry)
		if err != nil {
			return nil, errors.WithMessagef(err, "graph %q output #%d", graphName, ii)
		}
		rename[resolved[ii]] = name
	}

	g := &Graph{
		Name:       graphName,
		IsSubgraph: fn != nil,
		Nodes:      b.nodes,
		Inputs:     b.inputs,
		Outputs:    resolved,
		Shapes:     b.shapes,
		DTypes:     make(map[string]ONNXDataType, len(b.tfDTypes)),
	}
	for name, dtype := range b.tfDTypes {
		g.DTypes[name] = dtype.ONNX()
	}
	g.RenameTensors(rename)
	klog.V(1).Infof("built graph %q: %d nodes, inputs=%q, outputs=%q", g.Name, len(g.Nodes), g.Inputs, g.Outputs)
	return g, nil
}

// functionArgs creates one Placeholder node per function input, and returns the inputs and outputs of the function.
func (b *graphBuilder) functionArgs(fn *FunctionDef) (inputNames, outputNames []string, err error) {
	inputNames = make([]string, 0, len(fn.Signature.InputArg))
	for ii, arg := range fn.Signature.InputArg {
		dtype, err := ParseDataType(arg.Type)
		if err != nil {
			return nil, nil, errors.Wrapf(ErrFormat, "input argument %q: %v", arg.Name, err)
		}
		b.tfDTypes[arg.Name] = dtype
		b.shapes[arg.Name] = nil
		if argAttrs, found := fn.ArgAttr[fmt.Sprint(ii)]; found {
			if attr, found := argAttrs.Attr["_output_shapes"]; found {
				shapes, err := DecodeAttr(attr.Value, true)
				if err != nil {
					return nil, nil, errors.WithMessagef(err, "input argument %q _output_shapes", arg.Name)
				}
				if list, ok := shapes.([]Shape); ok && len(list) > 0 {
					b.shapes[arg.Name] = list[0]
				}
			}
		}
		inputNames = append(inputNames, arg.Name)
		b.nodes = append(b.nodes, &Node{
			Name:    arg.Name,
			OpType:  "Placeholder",
			Outputs: []string{arg.Name},
			Attrs:   map[string]any{},
		})
	}
	outputNames = make([]string, 0, len(fn.Signature.OutputArg))
	for _, arg := range fn.Signature.OutputArg {
		ret, found := fn.Ret[arg.Name]
		if !found {
			return nil, nil, errors.Wrapf(ErrFormat, "output argument %q not found in ret", arg.Name)
		}
		outputNames = append(outputNames, ret)
	}
	return inputNames, outputNames, nil
}

// convertNode converts one node, registering its outputs (dtypes and shapes) for the following nodes.
func (b *graphBuilder) convertNode(raw *RawNode) error {
	if raw.Op == "Const" {
		return b.convertConst(raw)
	}
	name, opType := raw.Name, raw.Op
	tfAttrs := make(map[string]any, len(raw.Attr))
	onnxAttrs := make(map[string]any, len(raw.Attr))
	for key, attr := range raw.Attr {
		v, err := DecodeAttr(attr.Value, true)
		if err != nil {
			return errors.WithMessagef(err, "node %q (%s) attribute %q", name, opType, key)
		}
		tfAttrs[key] = v
		if ignoredAttrs.Has(key) {
			continue
		}
		if key == "DstT" {
			key = "to"
		}
		if onnxAttrs[key], err = DecodeAttr(attr.Value, false); err != nil {
			return errors.WithMessagef(err, "node %q (%s) attribute %q", name, opType, key)
		}
	}
	b.opInfo[name] = OpInfo{OpType: opType, Attrs: tfAttrs}

	inputs := make([]string, 0, len(raw.Input))
	for _, ref := range raw.Input {
		if strings.HasPrefix(ref, "^") {
			// Control dependency.
			continue
		}
		input, err := ResolveOutput(ref, b.opInfo, b.funcName, b.opts.Registry)
		if err != nil {
			return errors.WithMessagef(err, "node %q (%s)", name, opType)
		}
		if _, found := b.tfDTypes[input]; !found {
			return errors.Wrapf(ErrReference, "node %q (%s) input %q refers to unknown tensor %q", name, opType, ref, input)
		}
		inputs = append(inputs, input)
		b.consumed.Insert(input)
	}
	bindings := make([]InputBinding, len(inputs))
	for ii, input := range inputs {
		bindings[ii] = InputBinding{
			Name:  fmt.Sprintf("input%d", ii),
			DType: b.tfDTypes[input],
			Shape: b.shapes[input],
			Const: b.consts[input],
		}
	}

	outDTypes, err := OutputDTypes(b.opts.Registry, opType, tfAttrs)
	if err != nil {
		return errors.WithMessagef(err, "node %q", name)
	}
	outShapes, err := b.inferShapes(name, opType, tfAttrs, bindings, len(outDTypes))
	if err != nil {
		return err
	}
	outputs := make([]string, len(outDTypes))
	for ii := range outputs {
		outputs[ii] = fmt.Sprintf("%s:%d", name, ii)
		b.tfDTypes[outputs[ii]] = outDTypes[ii]
		b.shapes[outputs[ii]] = outShapes[ii]
		delete(b.consumed, outputs[ii])
	}
	b.produced = append(b.produced, outputs...)

	if opType == "PlaceholderWithDefault" {
		opType, inputs = b.placeholderWithDefault(name, inputs)
	}
	if klog.V(2).Enabled() {
		klog.Infof("node %q (%s): inputs=%q, outputs=%q, dtypes=%v", name, opType, inputs, outputs, outDTypes)
	}
	b.nodes = append(b.nodes, &Node{
		Name:    name,
		OpType:  opType,
		Inputs:  inputs,
		Outputs: outputs,
		Attrs:   onnxAttrs,
	})
	return nil
}

// placeholderWithDefault returns the op type and inputs of a PlaceholderWithDefault node, according to the
// options and its name.
func (b *graphBuilder) placeholderWithDefault(name string, inputs []string) (string, []string) {
	var remove bool
	switch {
	case slices.Contains(b.opts.IgnoreDefault, name):
		return "Placeholder", []string{}
	case slices.Contains(b.opts.UseDefault, name):
		remove = true
	case strings.HasSuffix(name, kerasLearningPhaseSuffix):
		klog.Warningf("Removing optional input %q that appears to be a keras learning phase parameter: "+
			"list it in Options.IgnoreDefault to force it into an input.", name)
		remove = true
	}
	if !remove {
		return "PlaceholderWithDefault", inputs
	}
	output := name + ":0"
	b.inputs = slices.DeleteFunc(b.inputs, func(input string) bool { return input == output })
	return "Identity", inputs
}

// convertConst converts a Const node: its value comes from the weights, cast to the node's dtype.
func (b *graphBuilder) convertConst(raw *RawNode) error {
	name := raw.Name
	weight, found := b.weights[name]
	if !found {
		return errors.Wrapf(ErrFormat, "Const node %q has no corresponding weight", name)
	}
	dtype := weight.DType
	if attr, found := raw.Attr["dtype"]; found {
		v, err := DecodeAttr(attr.Value, true)
		if err != nil {
			return errors.WithMessagef(err, "Const node %q attribute \"dtype\"", name)
		}
		var ok bool
		if dtype, ok = v.(DataType); !ok {
			return errors.Wrapf(ErrFormat, "Const node %q attribute \"dtype\" is not a type", name)
		}
	}
	value, err := weight.CastTo(dtype)
	if err != nil {
		return errors.WithMessagef(err, "Const node %q", name)
	}
	output := name + ":0"
	b.shapes[output] = slices.Clone(weight.Shape)
	b.tfDTypes[output] = dtype
	b.consts[output] = value
	b.opInfo[name] = OpInfo{OpType: "Const", Attrs: map[string]any{"dtype": dtype}}
	b.nodes = append(b.nodes, &Node{
		Name:    name,
		OpType:  "Const",
		Outputs: []string{output},
		Attrs:   map[string]any{},
		Value:   value,
	})
	return nil
}

// inferShapes calls the configured ShapeInferer, and returns exactly numOutputs shapes.
// Errors and panics of the inferer are returned wrapping ErrInference.
func (b *graphBuilder) inferShapes(name, opType string, attrs map[string]any, inputs []InputBinding, numOutputs int) ([]Shape, error) {
	var shapes []Shape
	var inferErr error
	panicked := exceptions.Try(func() {
		shapes, inferErr = b.opts.Inferer.InferOutputShapes(opType, attrs, inputs)
	})
	if panicked != nil {
		if err, ok := panicked.(error); ok {
			inferErr = err
		} else {
			inferErr = errors.Errorf("panic: %v", panicked)
		}
	}
	if inferErr != nil {
		return nil, errors.Wrapf(ErrInference, "node %q (%s): %v", name, opType, inferErr)
	}
	if len(shapes) > numOutputs {
		return nil, errors.Wrapf(ErrInference, "node %q (%s): %d shapes inferred for %d outputs",
			name, opType, len(shapes), numOutputs)
	}
	for len(shapes) < numOutputs {
		shapes = append(shapes, nil)
	}
	return shapes, nil
}

// GraphsFromModel builds the main graph of the model, and one graph per function of its library, sorted such
// that each function comes after the functions it calls.
//
// The weights are usually read with Model.LoadWeights. Options can be nil, see Options for the defaults.
func GraphsFromModel(m *Model, weights map[string]*Tensor, opts *Options) (main *Graph, subgraphs []*Graph, err error) {
	opts = opts.withDefaults()
	outputNames := opts.OutputNames
	if outputNames == nil && m.Signature != nil && len(m.Signature.Outputs) > 0 {
		outputNames = m.Signature.OutputNames()
	}
	main, err = buildGraph(m.Topology.Node, weights, nil, opts.InputNames, outputNames, opts)
	if err != nil {
		return nil, nil, err
	}
	funcs, err := SortFunctions(m.Topology.Library.Function)
	if err != nil {
		return nil, nil, err
	}
	subgraphs = make([]*Graph, 0, len(funcs))
	for _, fn := range funcs {
		g, err := buildGraph(fn.NodeDef, weights, fn, nil, nil, opts)
		if err != nil {
			return nil, nil, err
		}
		subgraphs = append(subgraphs, g)
	}
	return main, subgraphs, nil
}

// GraphsFromFile reads the model.json file and its weights, and builds its graphs. See GraphsFromModel.
func GraphsFromFile(filePath string, opts *Options) (main *Graph, subgraphs []*Graph, err error) {
	m, err := ReadFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	weights, err := m.LoadWeights()
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "weights of model %s", filePath)
	}
	return GraphsFromModel(m, weights, opts)
}
