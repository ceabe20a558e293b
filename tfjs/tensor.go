package tfjs

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"strings"

	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Shape of a tensor: nil means unknown rank, a -1 dimension means unknown size and an empty (non-nil) Shape
// is a scalar.
type Shape []int

// Size returns the number of elements, or -1 if not known.
func (s Shape) Size() int {
	if s == nil {
		return -1
	}
	size := 1
	for _, d := range s {
		if d < 0 {
			return -1
		}
		size *= d
	}
	return size
}

// Known returns whether rank and all dimensions are known.
func (s Shape) Known() bool {
	return s.Size() >= 0
}

// String implements fmt.Stringer.
func (s Shape) String() string {
	if s == nil {
		return "(?)"
	}
	parts := make([]string, len(s))
	for ii, d := range s {
		if d < 0 {
			parts[ii] = "?"
		} else {
			parts[ii] = fmt.Sprint(d)
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// Tensor holds the value of a weight or constant.
//
// Numeric values are stored packed in little-endian order in Data, which may be a view over the weights buffer
// (it's not copied). String tensors store their values in Strings instead.
type Tensor struct {
	DType   DataType
	Shape   Shape
	Data    []byte
	Strings [][]byte
}

// Size returns the number of elements of the tensor.
func (t *Tensor) Size() int {
	return t.Shape.Size()
}

// ONNXDType returns the ONNX dtype of the tensor.
func (t *Tensor) ONNXDType() ONNXDataType {
	return t.DType.ONNX()
}

// String implements fmt.Stringer.
func (t *Tensor) String() string {
	return fmt.Sprintf("%s%s", t.DType, t.Shape)
}

// CastTo returns the tensor converted to dtype. It returns the tensor itself if it already has the requested dtype.
//
// Numeric tensors can be converted to any other numeric dtype (following Go's conversion rules), string
// tensors can't be converted.
func (t *Tensor) CastTo(dtype DataType) (*Tensor, error) {
	if t.DType == dtype {
		return t, nil
	}
	if t.DType == DTString || dtype == DTString {
		return nil, errors.Errorf("cannot cast tensor of dtype %s to %s", t.DType, dtype)
	}
	fromSize, err := elementSize(t.DType)
	if err != nil {
		return nil, err
	}
	toSize, err := elementSize(dtype)
	if err != nil {
		return nil, err
	}
	if isComplex(t.DType) || isComplex(dtype) {
		return nil, errors.Errorf("cannot cast tensor of dtype %s to %s: complex casts are not supported", t.DType, dtype)
	}
	n := len(t.Data) / fromSize
	out := &Tensor{DType: dtype, Shape: slices.Clone(t.Shape), Data: make([]byte, n*toSize)}
	for ii := range n {
		src := t.Data[ii*fromSize : (ii+1)*fromSize]
		dst := out.Data[ii*toSize : (ii+1)*toSize]
		if isFloat(t.DType) {
			putFloat(dtype, dst, readFloat(t.DType, src))
		} else {
			putInt(dtype, dst, readInt(t.DType, src))
		}
	}
	return out, nil
}

// Floats returns the values of a numeric tensor converted to float64.
func (t *Tensor) Floats() ([]float64, error) {
	size, err := elementSize(t.DType)
	if err != nil {
		return nil, err
	}
	if isComplex(t.DType) {
		return nil, errors.Errorf("cannot convert tensor of dtype %s to floats", t.DType)
	}
	values := make([]float64, len(t.Data)/size)
	for ii := range values {
		values[ii] = readFloat(t.DType, t.Data[ii*size:(ii+1)*size])
	}
	return values, nil
}

// Ints returns the values of an integer (or bool) tensor converted to int.
func (t *Tensor) Ints() ([]int, error) {
	if isFloat(t.DType) || isComplex(t.DType) || t.DType == DTString {
		return nil, errors.Errorf("tensor of dtype %s is not an integer tensor", t.DType)
	}
	size, err := elementSize(t.DType)
	if err != nil {
		return nil, err
	}
	values := make([]int, len(t.Data)/size)
	for ii := range values {
		values[ii] = int(readInt(t.DType, t.Data[ii*size:(ii+1)*size]))
	}
	return values, nil
}

func isFloat(dt DataType) bool {
	switch dt {
	case DTFloat, DTDouble, DTHalf, DTBFloat16:
		return true
	}
	return false
}

func isComplex(dt DataType) bool {
	return dt == DTComplex64 || dt == DTComplex128
}

func isUnsigned(dt DataType) bool {
	switch dt {
	case DTUint8, DTQUint8, DTUint16, DTQUint16, DTUint32, DTUint64, DTBool:
		return true
	}
	return false
}

// readFloat reads one element of any real dtype as a float64.
func readFloat(dt DataType, b []byte) float64 {
	switch dt {
	case DTFloat:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case DTDouble:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	case DTHalf:
		return float64(float16.Frombits(binary.LittleEndian.Uint16(b)).Float32())
	case DTBFloat16:
		return float64(bfloat16.DecodeFloat32(b[:2])[0])
	}
	if isUnsigned(dt) {
		return float64(uint64(readInt(dt, b)))
	}
	return float64(readInt(dt, b))
}

// readInt reads one element of any integer or bool dtype, sign-extended to int64.
// Float dtypes are truncated towards zero.
func readInt(dt DataType, b []byte) int64 {
	switch dt {
	case DTInt8, DTQInt8:
		return int64(int8(b[0]))
	case DTUint8, DTQUint8, DTBool:
		return int64(b[0])
	case DTInt16, DTQInt16:
		return int64(int16(binary.LittleEndian.Uint16(b)))
	case DTUint16, DTQUint16:
		return int64(binary.LittleEndian.Uint16(b))
	case DTInt32, DTQInt32:
		return int64(int32(binary.LittleEndian.Uint32(b)))
	case DTUint32:
		return int64(binary.LittleEndian.Uint32(b))
	case DTInt64, DTUint64:
		return int64(binary.LittleEndian.Uint64(b))
	default:
		return int64(readFloat(dt, b))
	}
}

// putFloat writes v as one element of dtype dt. Integer dtypes are truncated towards zero, bool is v != 0.
func putFloat(dt DataType, b []byte, v float64) {
	switch dt {
	case DTFloat:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case DTDouble:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	case DTHalf:
		binary.LittleEndian.PutUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case DTBFloat16:
		copy(b, bfloat16.EncodeFloat32([]float32{float32(v)}))
	case DTBool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	default:
		if isUnsigned(dt) && v >= 0 {
			putInt(dt, b, int64(uint64(v)))
		} else {
			putInt(dt, b, int64(v))
		}
	}
}

// putInt writes v as one element of dtype dt.
func putInt(dt DataType, b []byte, v int64) {
	switch dt {
	case DTInt8, DTQInt8, DTUint8, DTQUint8:
		b[0] = byte(v)
	case DTBool:
		if v != 0 {
			b[0] = 1
		} else {
			b[0] = 0
		}
	case DTInt16, DTQInt16, DTUint16, DTQUint16:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case DTInt32, DTQInt32, DTUint32:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case DTInt64, DTUint64:
		binary.LittleEndian.PutUint64(b, uint64(v))
	default:
		putFloat(dt, b, float64(v))
	}
}

// NewTensor creates a numeric tensor from a flat slice of values.
func NewTensor[T interface {
	float32 | float64 | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | bool
}](shape Shape, values []T) (*Tensor, error) {
	if shape.Size() != len(values) {
		return nil, errors.Errorf("shape %s has %d elements, but %d values were given", shape, shape.Size(), len(values))
	}
	var dt DataType
	switch any(values).(type) {
	case []float32:
		dt = DTFloat
	case []float64:
		dt = DTDouble
	case []int8:
		dt = DTInt8
	case []int16:
		dt = DTInt16
	case []int32:
		dt = DTInt32
	case []int64:
		dt = DTInt64
	case []uint8:
		dt = DTUint8
	case []uint16:
		dt = DTUint16
	case []uint32:
		dt = DTUint32
	case []uint64:
		dt = DTUint64
	case []bool:
		dt = DTBool
	}
	size, err := elementSize(dt)
	if err != nil {
		return nil, err
	}
	t := &Tensor{DType: dt, Shape: slices.Clone(shape), Data: make([]byte, len(values)*size)}
	for ii, v := range values {
		dst := t.Data[ii*size : (ii+1)*size]
		switch v := any(v).(type) {
		case float32:
			putFloat(dt, dst, float64(v))
		case float64:
			putFloat(dt, dst, v)
		case bool:
			if v {
				dst[0] = 1
			}
		case uint64:
			binary.LittleEndian.PutUint64(dst, v)
		case int8:
			putInt(dt, dst, int64(v))
		case int16:
			putInt(dt, dst, int64(v))
		case int32:
			putInt(dt, dst, int64(v))
		case int64:
			putInt(dt, dst, v)
		case uint8:
			putInt(dt, dst, int64(v))
		case uint16:
			putInt(dt, dst, int64(v))
		case uint32:
			putInt(dt, dst, int64(v))
		}
	}
	return t, nil
}
