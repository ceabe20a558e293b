package tfjs

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	assert.Equal(t, -1, Shape(nil).Size())
	assert.Equal(t, 1, Shape{}.Size())
	assert.Equal(t, 6, Shape{2, 3}.Size())
	assert.Equal(t, -1, Shape{2, -1}.Size())
	assert.False(t, Shape{2, -1}.Known())
	assert.Equal(t, "(2, ?)", Shape{2, -1}.String())
	assert.Equal(t, "(?)", Shape(nil).String())
}

func TestTensorCastTo(t *testing.T) {
	floats := must.M1(NewTensor(Shape{2, 2}, []float32{1.5, -2.7, 3, 255.9}))
	assert.Equal(t, 4, floats.Size())
	assert.Equal(t, ONNXFloat, floats.ONNXDType())
	assert.Same(t, floats, must.M1(floats.CastTo(DTFloat)))

	ints := must.M1(floats.CastTo(DTInt32))
	assert.Equal(t, DTInt32, ints.DType)
	assert.Equal(t, Shape{2, 2}, ints.Shape)
	assert.Equal(t, []int{1, -2, 3, 255}, must.M1(ints.Ints()))

	bytes := must.M1(ints.CastTo(DTUint8))
	assert.Equal(t, []int{1, 254, 3, 255}, must.M1(bytes.Ints()))

	for _, dtype := range []DataType{DTDouble, DTHalf, DTBFloat16} {
		casted := must.M1(floats.CastTo(dtype))
		back := must.M1(casted.Floats())
		require.Len(t, back, 4)
		assert.InDeltaf(t, 1.5, back[0], 0.01, "dtype %s", dtype)
		assert.InDeltaf(t, 3.0, back[2], 0.01, "dtype %s", dtype)
	}

	bools := must.M1(NewTensor(Shape{3}, []int64{0, 5, -1}))
	asBool := must.M1(bools.CastTo(DTBool))
	assert.Equal(t, []int{0, 1, 1}, must.M1(asBool.Ints()))

	strs := &Tensor{DType: DTString, Shape: Shape{1}, Strings: [][]byte{[]byte("x")}}
	_, err := strs.CastTo(DTFloat)
	assert.Error(t, err)
	_, err = floats.CastTo(DTString)
	assert.Error(t, err)
	_, err = floats.Ints()
	assert.Error(t, err)
}

func TestNewTensor(t *testing.T) {
	_, err := NewTensor(Shape{3}, []int32{1, 2})
	assert.Error(t, err)

	scalar := must.M1(NewTensor(Shape{}, []float64{2}))
	assert.Equal(t, DTDouble, scalar.DType)
	assert.Equal(t, []float64{2}, must.M1(scalar.Floats()))
}

func TestDataTypes(t *testing.T) {
	dt := must.M1(ParseDataType("DT_HALF"))
	assert.Equal(t, DTHalf, dt)
	assert.Equal(t, "DT_HALF", dt.String())
	assert.Equal(t, ONNXFloat16, dt.ONNX())
	assert.Equal(t, ONNXInt64, DTResource.ONNX())
	assert.Equal(t, "FLOAT16", ONNXFloat16.String())
	_, err := ParseDataType("half")
	assert.Error(t, err)
}
