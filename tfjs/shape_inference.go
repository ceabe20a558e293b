package tfjs

import (
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// InputBinding describes one input of the single-node computation given to a ShapeInferer.
type InputBinding struct {
	// Name of the input within the query: "input0", "input1", ...
	Name string

	DType DataType

	// Shape is nil if the rank is unknown. Unknown dimensions are -1.
	Shape Shape

	// Const holds the value of the input, if it's a known constant.
	Const *Tensor
}

// ShapeInferer infers the output shapes of a node given its op type, its attributes (decoded with TensorFlow
// dtypes) and its inputs.
//
// It may return fewer shapes than the node has outputs, in which case the missing ones are unknown.
// An error aborts the construction of the graph.
type ShapeInferer interface {
	InferOutputShapes(opType string, attrs map[string]any, inputs []InputBinding) ([]Shape, error)
}

// ShapeInfererFunc adapts a function to the ShapeInferer interface.
type ShapeInfererFunc func(opType string, attrs map[string]any, inputs []InputBinding) ([]Shape, error)

// InferOutputShapes implements ShapeInferer.
func (fn ShapeInfererFunc) InferOutputShapes(opType string, attrs map[string]any, inputs []InputBinding) ([]Shape, error) {
	return fn(opType, attrs, inputs)
}

// StaticInferer is the default ShapeInferer: it implements the shape rules of the most common TensorFlow ops.
//
// Ops without a rule get unknown shapes. Inconsistent inputs (e.g. shapes that can't be broadcast) return an error.
type StaticInferer struct{}

var (
	// elementwiseOps output the shape of their first input.
	elementwiseOps = sets.Make[string]()

	// broadcastOps output the broadcast of the shapes of their inputs.
	broadcastOps = sets.Make[string]()

	// reduceOps reduce their first input over the axes given by the second.
	reduceOps = sets.Make[string]()
)

func init() {
	elementwiseOps.Insert("Identity", "StopGradient", "PreventGradient", "Snapshot", "Abs", "Neg", "Exp", "Log",
		"Log1p", "Sqrt", "Rsqrt", "Square", "Reciprocal", "Sigmoid", "Tanh", "Floor", "Ceil", "Round", "Sign", "Sin",
		"Cos", "Erf", "Softplus", "ZerosLike", "OnesLike", "IsNan", "Relu", "Relu6", "Elu", "Selu", "LeakyRelu",
		"Softmax", "LogSoftmax", "Cast", "BiasAdd", "LogicalNot", "Cumsum", "StringLower", "StringUpper",
		"StaticRegexReplace", "StringToHashBucketFast")
	broadcastOps.Insert("Add", "AddV2", "Sub", "Mul", "RealDiv", "Div", "FloorDiv", "FloorMod", "Maximum", "Minimum",
		"Pow", "SquaredDifference", "DivNoNan", "MulNoNan", "Greater", "GreaterEqual", "Less", "LessEqual", "Equal",
		"NotEqual", "LogicalAnd", "LogicalOr", "AddN", "SelectV2")
	reduceOps.Insert("Mean", "Sum", "Max", "Min", "Prod", "All", "Any")
}

// InferOutputShapes implements ShapeInferer.
func (StaticInferer) InferOutputShapes(opType string, attrs map[string]any, inputs []InputBinding) ([]Shape, error) {
	in := func(ii int) Shape {
		if ii >= len(inputs) {
			return nil
		}
		return inputs[ii].Shape
	}
	one := func(s Shape, err error) ([]Shape, error) {
		if err != nil {
			return nil, err
		}
		return []Shape{s}, nil
	}
	switch {
	case elementwiseOps.Has(opType):
		return []Shape{slices.Clone(in(0))}, nil
	case broadcastOps.Has(opType):
		shapes := make([]Shape, len(inputs))
		for ii := range inputs {
			shapes[ii] = inputs[ii].Shape
		}
		return one(broadcastShapes(shapes...))
	case reduceOps.Has(opType):
		return one(inferReduce(in(0), inputs, attrBool(attrs, "keep_dims", false)))
	}

	switch opType {
	case "NoOp":
		return []Shape{}, nil
	case "Placeholder", "PlaceholderV2":
		return []Shape{attrShape(attrs, "shape", nil)}, nil
	case "PlaceholderWithDefault":
		return []Shape{attrShape(attrs, "shape", in(0))}, nil
	case "Const":
		if len(inputs) == 0 {
			return []Shape{nil}, nil
		}
		return []Shape{slices.Clone(in(0))}, nil
	case "IdentityN":
		shapes := make([]Shape, len(inputs))
		for ii := range inputs {
			shapes[ii] = slices.Clone(inputs[ii].Shape)
		}
		return shapes, nil
	case "Shape":
		if in(0) == nil {
			return []Shape{{-1}}, nil
		}
		return []Shape{{len(in(0))}}, nil
	case "Size", "Rank":
		return []Shape{{}}, nil
	case "Select":
		return []Shape{slices.Clone(in(1))}, nil
	case "MatMul", "_FusedMatMul":
		return one(inferMatMul(in(0), in(1), attrBool(attrs, "transpose_a", false), attrBool(attrs, "transpose_b", false)))
	case "BatchMatMul", "BatchMatMulV2":
		return one(inferBatchMatMul(in(0), in(1), attrBool(attrs, "adj_x", false), attrBool(attrs, "adj_y", false)))
	case "Reshape":
		return one(inferReshape(in(0), inputs))
	case "ExpandDims":
		return one(inferExpandDims(in(0), inputs))
	case "Squeeze":
		return one(inferSqueeze(in(0), attrInts(attrs, "squeeze_dims")))
	case "Transpose":
		return one(inferTranspose(in(0), inputs))
	case "ConcatV2":
		return one(inferConcat(inputs))
	case "Pack":
		return one(inferPack(inputs, int(attrInt(attrs, "axis", 0))))
	case "Unpack":
		return inferUnpack(in(0), int(attrInt(attrs, "num", 0)), int(attrInt(attrs, "axis", 0)))
	case "Split":
		return inferSplit(in(1), constInts(inputs, 0), nil, int(attrInt(attrs, "num_split", 1)))
	case "SplitV":
		return inferSplit(in(0), constInts(inputs, 2), constInts(inputs, 1), int(attrInt(attrs, "num_split", 1)))
	case "ArgMax", "ArgMin":
		return one(inferArgMax(in(0), constInts(inputs, 1)))
	case "GatherV2":
		return one(inferGather(in(0), in(1), constInts(inputs, 2), int(attrInt(attrs, "batch_dims", 0))))
	case "Gather":
		return one(inferGather(in(0), in(1), []int{0}, 0))
	case "Tile":
		return one(inferTile(in(0), constInts(inputs, 1)))
	case "Fill":
		if dims := constInts(inputs, 0); dims != nil {
			return []Shape{Shape(dims)}, nil
		}
		return []Shape{unknownOfRank(in(0), 0)}, nil
	case "Pad", "PadV2", "MirrorPad":
		return one(inferPad(in(0), constInts(inputs, 1)))
	case "Slice":
		return one(inferSlice(in(0), constInts(inputs, 1), constInts(inputs, 2)))
	case "TopKV2":
		return inferTopK(in(0), constInts(inputs, 1))
	case "Range":
		return []Shape{inferRange(inputs)}, nil
	case "OneHot":
		return one(inferOneHot(in(0), constInts(inputs, 1), int(attrInt(attrs, "axis", -1))))
	case "Conv2D", "_FusedConv2D", "DepthwiseConv2dNative":
		return one(inferConv(opType, in(0), in(1), attrs))
	case "MaxPool", "AvgPool":
		return one(inferPool(in(0), attrs))
	case "FusedBatchNorm", "FusedBatchNormV3":
		channels := Shape(nil)
		if scale := in(1); scale != nil {
			channels = slices.Clone(scale)
		}
		shapes := []Shape{slices.Clone(in(0)), channels, channels, channels, channels}
		if opType == "FusedBatchNormV3" {
			shapes = append(shapes, nil)
		}
		return shapes, nil
	case "ResizeBilinear", "ResizeNearestNeighbor":
		return one(inferResize(in(0), constInts(inputs, 1)))
	}
	// No rule: unknown shapes.
	return nil, nil
}

// Attribute helpers: attributes are decoded with TensorFlow dtypes, see DecodeAttr.

func attrBool(attrs map[string]any, name string, defaultValue bool) bool {
	if v, ok := attrs[name].(bool); ok {
		return v
	}
	return defaultValue
}

func attrInt(attrs map[string]any, name string, defaultValue int64) int64 {
	if v, ok := attrs[name].(int64); ok {
		return v
	}
	return defaultValue
}

func attrInts(attrs map[string]any, name string) []int {
	v, ok := attrs[name].([]int64)
	if !ok {
		return nil
	}
	ints := make([]int, len(v))
	for ii, x := range v {
		ints[ii] = int(x)
	}
	return ints
}

func attrString(attrs map[string]any, name, defaultValue string) string {
	if v, ok := attrs[name].([]byte); ok {
		return string(v)
	}
	return defaultValue
}

func attrShape(attrs map[string]any, name string, defaultValue Shape) Shape {
	if unknown, _ := attrs["unknown_rank"].(bool); unknown {
		return nil
	}
	if v, ok := attrs[name].(Shape); ok {
		return slices.Clone(v)
	}
	return slices.Clone(defaultValue)
}

// constInts returns the values of input ii if it's a constant integer tensor, or nil otherwise.
func constInts(inputs []InputBinding, ii int) []int {
	if ii >= len(inputs) || inputs[ii].Const == nil {
		return nil
	}
	values, err := inputs[ii].Const.Ints()
	if err != nil {
		return nil
	}
	return values
}

// unknownOfRank returns a shape with unknown dimensions whose rank is the size of the 1D shape `of`, or nil.
func unknownOfRank(of Shape, axis int) Shape {
	if len(of) <= axis || of[axis] < 0 {
		return nil
	}
	s := make(Shape, of[axis])
	for ii := range s {
		s[ii] = -1
	}
	return s
}

func normalizeAxis(axis, rank int) (int, error) {
	if axis < -rank || axis >= rank {
		return 0, errors.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	if axis < 0 {
		axis += rank
	}
	return axis, nil
}

// broadcastShapes implements NumPy broadcasting rules, with -1 for unknown dimensions.
func broadcastShapes(shapes ...Shape) (Shape, error) {
	if len(shapes) == 0 {
		return nil, nil
	}
	rank := 0
	for _, s := range shapes {
		if s == nil {
			return nil, nil
		}
		rank = max(rank, len(s))
	}
	result := make(Shape, rank)
	for ii := range result {
		result[ii] = 1
	}
	for _, s := range shapes {
		offset := rank - len(s)
		for axis, d := range s {
			r := result[offset+axis]
			switch {
			case d == 1:
			case r == 1:
				result[offset+axis] = d
			case d == -1:
				// Keep r: it's either known and > 1, or unknown.
			case r == -1:
				result[offset+axis] = d
			case r != d:
				return nil, errors.Errorf("shapes %v can't be broadcast: dimension %d vs %d", shapes, r, d)
			}
		}
	}
	return result, nil
}

func inferMatMul(a, b Shape, transposeA, transposeB bool) (Shape, error) {
	if a == nil || b == nil {
		return Shape{-1, -1}, nil
	}
	if len(a) != 2 || len(b) != 2 {
		return nil, errors.Errorf("MatMul requires rank 2 operands, got %s and %s", a, b)
	}
	m, ka := a[0], a[1]
	if transposeA {
		m, ka = ka, m
	}
	kb, n := b[0], b[1]
	if transposeB {
		kb, n = n, kb
	}
	if ka >= 0 && kb >= 0 && ka != kb {
		return nil, errors.Errorf("MatMul inner dimensions don't match: %s x %s", a, b)
	}
	return Shape{m, n}, nil
}

func inferBatchMatMul(x, y Shape, adjX, adjY bool) (Shape, error) {
	if x == nil || y == nil {
		return nil, nil
	}
	if len(x) < 2 || len(y) < 2 {
		return nil, errors.Errorf("BatchMatMul requires operands of rank >= 2, got %s and %s", x, y)
	}
	batch, err := broadcastShapes(x[:len(x)-2], y[:len(y)-2])
	if err != nil {
		return nil, errors.WithMessage(err, "BatchMatMul batch dimensions")
	}
	matrix, err := inferMatMul(x[len(x)-2:], y[len(y)-2:], adjX, adjY)
	if err != nil {
		return nil, err
	}
	return append(batch, matrix...), nil
}

func inferReshape(input Shape, inputs []InputBinding) (Shape, error) {
	target := constInts(inputs, 1)
	if target == nil {
		if len(inputs) > 1 {
			return unknownOfRank(inputs[1].Shape, 0), nil
		}
		return nil, nil
	}
	result := Shape(slices.Clone(target))
	unknownAxis := -1
	known := 1
	for axis, d := range result {
		switch {
		case d == -1 && unknownAxis >= 0:
			return nil, errors.Errorf("Reshape to %v has more than one -1 dimension", target)
		case d == -1:
			unknownAxis = axis
		case d < 0:
			return nil, errors.Errorf("Reshape to invalid shape %v", target)
		default:
			known *= d
		}
	}
	size := input.Size()
	if size < 0 {
		return result, nil
	}
	if unknownAxis >= 0 {
		if known == 0 || size%known != 0 {
			return nil, errors.Errorf("cannot reshape %s (%d elements) to %v", input, size, target)
		}
		result[unknownAxis] = size / known
	} else if known != size {
		return nil, errors.Errorf("cannot reshape %s (%d elements) to %v", input, size, target)
	}
	return result, nil
}

func inferExpandDims(input Shape, inputs []InputBinding) (Shape, error) {
	axes := constInts(inputs, 1)
	if input == nil || len(axes) != 1 {
		return nil, nil
	}
	axis, err := normalizeAxis(axes[0], len(input)+1)
	if err != nil {
		return nil, err
	}
	return slices.Insert(slices.Clone(input), axis, 1), nil
}

func inferSqueeze(input Shape, squeezeDims []int) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	remove := sets.Make[int]()
	if len(squeezeDims) == 0 {
		for axis, d := range input {
			if d == -1 {
				return nil, nil
			}
			if d == 1 {
				remove.Insert(axis)
			}
		}
	}
	for _, axis := range squeezeDims {
		axis, err := normalizeAxis(axis, len(input))
		if err != nil {
			return nil, err
		}
		if input[axis] != 1 && input[axis] != -1 {
			return nil, errors.Errorf("can't squeeze dimension %d of shape %s", axis, input)
		}
		remove.Insert(axis)
	}
	result := Shape{}
	for axis, d := range input {
		if !remove.Has(axis) {
			result = append(result, d)
		}
	}
	return result, nil
}

func inferTranspose(input Shape, inputs []InputBinding) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	perm := constInts(inputs, 1)
	if perm == nil {
		return unknownOfRank(Shape{len(input)}, 0), nil
	}
	if len(perm) != len(input) {
		return nil, errors.Errorf("Transpose permutation %v doesn't match rank of %s", perm, input)
	}
	result := make(Shape, len(perm))
	for ii, p := range perm {
		p, err := normalizeAxis(p, len(input))
		if err != nil {
			return nil, err
		}
		result[ii] = input[p]
	}
	return result, nil
}

// inferConcat: the last input is the axis.
func inferConcat(inputs []InputBinding) (Shape, error) {
	if len(inputs) < 2 {
		return nil, errors.New("ConcatV2 requires at least one value and the axis")
	}
	values := inputs[:len(inputs)-1]
	axisValues := constInts(inputs, len(inputs)-1)
	var rank = -1
	for _, v := range values {
		if v.Shape != nil {
			rank = len(v.Shape)
			break
		}
	}
	if rank < 0 {
		return nil, nil
	}
	if len(axisValues) != 1 {
		return unknownOfRank(Shape{rank}, 0), nil
	}
	axis, err := normalizeAxis(axisValues[0], rank)
	if err != nil {
		return nil, err
	}
	result := make(Shape, rank)
	for ii := range result {
		result[ii] = -1
	}
	result[axis] = 0
	for _, v := range values {
		if v.Shape == nil {
			result[axis] = -1
			continue
		}
		if len(v.Shape) != rank {
			return nil, errors.Errorf("ConcatV2 of values with different ranks (%d and %d)", rank, len(v.Shape))
		}
		for ii, d := range v.Shape {
			if ii == axis {
				if d < 0 || result[axis] < 0 {
					result[axis] = -1
				} else {
					result[axis] += d
				}
				continue
			}
			switch {
			case d < 0:
			case result[ii] < 0:
				result[ii] = d
			case result[ii] != d:
				return nil, errors.Errorf("ConcatV2 values differ in dimension %d: %d vs %d", ii, result[ii], d)
			}
		}
	}
	return result, nil
}

func inferPack(inputs []InputBinding, axis int) (Shape, error) {
	shapes := make([]Shape, len(inputs))
	for ii := range inputs {
		shapes[ii] = inputs[ii].Shape
	}
	var element Shape
	for _, s := range shapes {
		if s == nil {
			return nil, nil
		}
		if element == nil {
			element = slices.Clone(s)
			continue
		}
		if len(s) != len(element) {
			return nil, errors.Errorf("Pack of values with different ranks: %v", shapes)
		}
		for ii, d := range s {
			if element[ii] < 0 {
				element[ii] = d
			}
		}
	}
	if element == nil {
		return nil, nil
	}
	axis, err := normalizeAxis(axis, len(element)+1)
	if err != nil {
		return nil, err
	}
	return slices.Insert(element, axis, len(inputs)), nil
}

func inferUnpack(input Shape, num, axis int) ([]Shape, error) {
	shapes := make([]Shape, num)
	if input == nil {
		return shapes, nil
	}
	axis, err := normalizeAxis(axis, len(input))
	if err != nil {
		return nil, err
	}
	if input[axis] >= 0 && input[axis] != num {
		return nil, errors.Errorf("Unpack of %d values from dimension of size %d", num, input[axis])
	}
	for ii := range shapes {
		shapes[ii] = slices.Delete(slices.Clone(input), axis, axis+1)
	}
	return shapes, nil
}

func inferSplit(input Shape, axisValues, sizes []int, numSplit int) ([]Shape, error) {
	shapes := make([]Shape, numSplit)
	if input == nil {
		return shapes, nil
	}
	if len(axisValues) != 1 {
		for ii := range shapes {
			shapes[ii] = unknownOfRank(Shape{len(input)}, 0)
		}
		return shapes, nil
	}
	axis, err := normalizeAxis(axisValues[0], len(input))
	if err != nil {
		return nil, err
	}
	dim := input[axis]
	if sizes == nil && dim >= 0 && numSplit > 0 && dim%numSplit != 0 {
		return nil, errors.Errorf("Split dimension of size %d into %d parts", dim, numSplit)
	}
	if sizes != nil && len(sizes) != numSplit {
		return nil, errors.Errorf("SplitV with %d sizes for %d splits", len(sizes), numSplit)
	}
	for ii := range shapes {
		s := slices.Clone(input)
		switch {
		case sizes != nil && sizes[ii] >= 0:
			s[axis] = sizes[ii]
		case sizes != nil:
			// -1 takes the remainder.
			s[axis] = -1
			if dim >= 0 {
				rest := dim
				for jj, size := range sizes {
					if jj != ii {
						rest -= size
					}
				}
				s[axis] = rest
			}
		case dim >= 0:
			s[axis] = dim / numSplit
		}
		shapes[ii] = s
	}
	return shapes, nil
}

func inferReduce(input Shape, inputs []InputBinding, keepDims bool) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	axes := constInts(inputs, 1)
	if axes == nil {
		if keepDims {
			return unknownOfRank(Shape{len(input)}, 0), nil
		}
		return nil, nil
	}
	reduce := sets.Make[int]()
	for _, axis := range axes {
		axis, err := normalizeAxis(axis, len(input))
		if err != nil {
			return nil, err
		}
		reduce.Insert(axis)
	}
	result := Shape{}
	for axis, d := range input {
		switch {
		case !reduce.Has(axis):
			result = append(result, d)
		case keepDims:
			result = append(result, 1)
		}
	}
	return result, nil
}

func inferArgMax(input Shape, axisValues []int) (Shape, error) {
	if input == nil || len(axisValues) != 1 {
		return nil, nil
	}
	axis, err := normalizeAxis(axisValues[0], len(input))
	if err != nil {
		return nil, err
	}
	return slices.Delete(slices.Clone(input), axis, axis+1), nil
}

func inferGather(params, indices Shape, axisValues []int, batchDims int) (Shape, error) {
	if params == nil || indices == nil || len(axisValues) != 1 {
		return nil, nil
	}
	axis, err := normalizeAxis(axisValues[0], len(params))
	if err != nil {
		return nil, err
	}
	if batchDims < 0 {
		batchDims += len(indices)
	}
	if batchDims < 0 || batchDims > len(indices) || batchDims > axis {
		return nil, errors.Errorf("invalid batch_dims %d for Gather", batchDims)
	}
	result := slices.Clone(params[:axis])
	result = append(result, indices[batchDims:]...)
	return append(result, params[axis+1:]...), nil
}

func inferTile(input Shape, multiples []int) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	if multiples == nil {
		return unknownOfRank(Shape{len(input)}, 0), nil
	}
	if len(multiples) != len(input) {
		return nil, errors.Errorf("Tile multiples %v don't match rank of %s", multiples, input)
	}
	result := slices.Clone(input)
	for ii, m := range multiples {
		if result[ii] >= 0 {
			result[ii] *= m
		}
	}
	return result, nil
}

func inferPad(input Shape, paddings []int) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	if paddings == nil {
		return unknownOfRank(Shape{len(input)}, 0), nil
	}
	if len(paddings) != 2*len(input) {
		return nil, errors.Errorf("paddings %v don't match rank of %s", paddings, input)
	}
	result := slices.Clone(input)
	for ii := range result {
		if result[ii] >= 0 {
			result[ii] += paddings[2*ii] + paddings[2*ii+1]
		}
	}
	return result, nil
}

func inferSlice(input Shape, begin, size []int) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	if size == nil {
		return unknownOfRank(Shape{len(input)}, 0), nil
	}
	if len(size) != len(input) {
		return nil, errors.Errorf("Slice size %v doesn't match rank of %s", size, input)
	}
	result := make(Shape, len(size))
	for ii, s := range size {
		switch {
		case s >= 0:
			result[ii] = s
		case begin != nil && input[ii] >= 0:
			result[ii] = input[ii] - begin[ii]
		default:
			result[ii] = -1
		}
	}
	return result, nil
}

func inferTopK(input Shape, k []int) ([]Shape, error) {
	if input == nil {
		return []Shape{nil, nil}, nil
	}
	if len(input) == 0 {
		return nil, errors.New("TopKV2 input must have rank >= 1")
	}
	result := slices.Clone(input)
	result[len(result)-1] = -1
	if len(k) == 1 {
		result[len(result)-1] = k[0]
	}
	return []Shape{result, slices.Clone(result)}, nil
}

func inferRange(inputs []InputBinding) Shape {
	values := make([]float64, 3)
	for ii := range values {
		if ii >= len(inputs) || inputs[ii].Const == nil {
			return Shape{-1}
		}
		v, err := inputs[ii].Const.Floats()
		if err != nil || len(v) != 1 {
			return Shape{-1}
		}
		values[ii] = v[0]
	}
	start, limit, delta := values[0], values[1], values[2]
	if delta == 0 {
		return Shape{-1}
	}
	return Shape{max(0, int(math.Ceil((limit-start)/delta)))}
}

func inferOneHot(indices Shape, depth []int, axis int) (Shape, error) {
	if indices == nil {
		return nil, nil
	}
	d := -1
	if len(depth) == 1 {
		d = depth[0]
	}
	if axis == -1 {
		return append(slices.Clone(indices), d), nil
	}
	axis, err := normalizeAxis(axis, len(indices)+1)
	if err != nil {
		return nil, err
	}
	return slices.Insert(slices.Clone(indices), axis, d), nil
}

// spatialOutput returns the output size of a convolution/pooling window along one axis.
func spatialOutput(size, window, stride, dilation int, padding string) int {
	if size < 0 || window < 0 {
		return -1
	}
	effective := (window-1)*dilation + 1
	if padding == "VALID" {
		return (size - effective + stride) / stride
	}
	// SAME (and EXPLICIT, approximated as SAME).
	return (size + stride - 1) / stride
}

// spatialAxes returns the batch, height, width and channels axes for the data_format attribute.
func spatialAxes(attrs map[string]any) (batch, height, width, channels int) {
	if attrString(attrs, "data_format", "NHWC") == "NCHW" {
		return 0, 2, 3, 1
	}
	return 0, 1, 2, 3
}

func fourInts(attrs map[string]any, name string) []int {
	v := attrInts(attrs, name)
	if len(v) != 4 {
		return []int{1, 1, 1, 1}
	}
	return v
}

func inferConv(opType string, input, filter Shape, attrs map[string]any) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	if len(input) != 4 {
		return nil, errors.Errorf("%s requires a rank 4 input, got %s", opType, input)
	}
	if filter != nil && len(filter) != 4 {
		return nil, errors.Errorf("%s requires a rank 4 filter, got %s", opType, filter)
	}
	b, h, w, c := spatialAxes(attrs)
	strides := fourInts(attrs, "strides")
	dilations := fourInts(attrs, "dilations")
	padding := attrString(attrs, "padding", "VALID")
	kh, kw, outChannels := -1, -1, -1
	if filter != nil {
		kh, kw = filter[0], filter[1]
		if filter[2] >= 0 && input[c] >= 0 && filter[2] != input[c] && opType != "DepthwiseConv2dNative" {
			return nil, errors.Errorf("%s filter %s doesn't match input channels of %s", opType, filter, input)
		}
		outChannels = filter[3]
		if opType == "DepthwiseConv2dNative" {
			if filter[2] >= 0 && filter[3] >= 0 {
				outChannels = filter[2] * filter[3]
			} else {
				outChannels = -1
			}
		}
	}
	result := make(Shape, 4)
	result[b] = input[b]
	result[h] = spatialOutput(input[h], kh, strides[h], dilations[h], padding)
	result[w] = spatialOutput(input[w], kw, strides[w], dilations[w], padding)
	result[c] = outChannels
	return result, nil
}

func inferPool(input Shape, attrs map[string]any) (Shape, error) {
	if input == nil {
		return nil, nil
	}
	if len(input) != 4 {
		return nil, errors.Errorf("pooling requires a rank 4 input, got %s", input)
	}
	b, h, w, c := spatialAxes(attrs)
	ksize := fourInts(attrs, "ksize")
	strides := fourInts(attrs, "strides")
	padding := attrString(attrs, "padding", "VALID")
	result := make(Shape, 4)
	result[b] = input[b]
	result[c] = input[c]
	result[h] = spatialOutput(input[h], ksize[h], strides[h], 1, padding)
	result[w] = spatialOutput(input[w], ksize[w], strides[w], 1, padding)
	return result, nil
}

func inferResize(images Shape, size []int) (Shape, error) {
	if images == nil {
		return nil, nil
	}
	if len(images) != 4 {
		return nil, errors.Errorf("resize requires rank 4 images, got %s", images)
	}
	result := slices.Clone(images)
	if len(size) == 2 {
		result[1], result[2] = size[0], size[1]
	} else {
		result[1], result[2] = -1, -1
	}
	return result, nil
}
