package tfjs

import (
	"encoding/binary"
	"math"
	"math/bits"
	"slices"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// WeightEntry describes one weight in the weights manifest.
type WeightEntry struct {
	Name         string        `json:"name"`
	Shape        []int         `json:"shape"`
	DType        string        `json:"dtype"`
	Quantization *Quantization `json:"quantization,omitempty"`
}

// Quantization describes how a weight is stored when quantized: value = stored * Scale + Min.
//
// For "float16" quantization Scale and Min are not used: values are stored as half precision floats.
type Quantization struct {
	DType string   `json:"dtype"`
	Scale *float64 `json:"scale,omitempty"`
	Min   *float64 `json:"min,omitempty"`
}

// WeightsGroup is one entry of the weights manifest: the shard files and the weights they hold, in order.
type WeightsGroup struct {
	Paths   []string      `json:"paths"`
	Weights []WeightEntry `json:"weights"`
}

// ReadWeights decodes the weights in manifest order from the concatenated shards buffer.
//
// Each weight starts where the previous one ended, so the buffer must be scanned sequentially: string weights
// have data-dependent lengths. The total number of bytes consumed must match len(data) exactly, otherwise an
// error wrapping ErrFormat is returned.
//
// Numeric weights that are not quantized are views over data (they are not copied).
func ReadWeights(manifest []WeightEntry, data []byte) (map[string]*Tensor, error) {
	weights := make(map[string]*Tensor, len(manifest))
	offset := 0
	for ii := range manifest {
		entry := &manifest[ii]
		tensor, numBytes, err := readWeight(entry, data, offset)
		if err != nil {
			return nil, errors.WithMessagef(err, "while reading weight #%d %q at offset %d", ii, entry.Name, offset)
		}
		if _, found := weights[entry.Name]; found {
			klog.Warningf("weight %q defined more than once in the manifest, using the last one", entry.Name)
		}
		weights[entry.Name] = tensor
		offset += numBytes
	}
	if offset != len(data) {
		return nil, errors.Wrapf(ErrFormat, "total weight bytes %d doesn't match read bytes %d", len(data), offset)
	}
	klog.V(1).Infof("read %d weights (%d bytes)", len(weights), offset)
	return weights, nil
}

// readWeight decodes one weight starting at offset, and returns the number of bytes consumed.
func readWeight(entry *WeightEntry, data []byte, offset int) (*Tensor, int, error) {
	shape := Shape(slices.Clone(entry.Shape))
	if shape == nil {
		shape = Shape{}
	}
	for _, d := range shape {
		if d < 0 {
			return nil, 0, errors.Wrapf(ErrFormat, "invalid weight shape %v", entry.Shape)
		}
	}
	count, err := elementCount(shape)
	if err != nil {
		return nil, 0, err
	}
	dtype, err := manifestDataType(entry.DType)
	if err != nil {
		return nil, 0, err
	}
	if dtype == DTString {
		values, numBytes, err := readStrings(data, offset, count)
		if err != nil {
			return nil, 0, err
		}
		return &Tensor{DType: DTString, Shape: shape, Strings: values}, numBytes, nil
	}

	storageDType := dtype
	if entry.Quantization != nil {
		storageDType, err = manifestDataType(entry.Quantization.DType)
		if err != nil {
			return nil, 0, errors.WithMessage(err, "quantization dtype")
		}
	}
	size, err := elementSize(storageDType)
	if err != nil {
		return nil, 0, errors.Wrapf(ErrFormat, "%v", err)
	}
	hi, lo := bits.Mul64(uint64(count), uint64(size))
	if hi != 0 || lo > uint64(len(data)-offset) {
		return nil, 0, errors.Wrapf(ErrFormat, "weight of shape %v needs %d elements of %d bytes but only %d bytes are "+
			"left in the weights buffer", shape, count, size, len(data)-offset)
	}
	numBytes := int(lo)
	raw := data[offset : offset+numBytes : offset+numBytes]
	if entry.Quantization == nil {
		return &Tensor{DType: dtype, Shape: shape, Data: raw}, numBytes, nil
	}
	tensor, err := dequantize(entry.Quantization, storageDType, dtype, shape, raw)
	if err != nil {
		return nil, 0, err
	}
	return tensor, numBytes, nil
}

// elementCount returns the number of elements of a weight shape, or an error wrapping ErrFormat if it doesn't fit
// in an int.
func elementCount(shape Shape) (int, error) {
	count := uint64(1)
	for _, d := range shape {
		hi, lo := bits.Mul64(count, uint64(d))
		if hi != 0 || lo > math.MaxInt {
			return 0, errors.Wrapf(ErrFormat, "weight shape %v has too many elements", shape)
		}
		count = lo
	}
	return int(count), nil
}

// dequantize converts the stored values to dtype, applying value = stored * scale + min in float32.
// Integer target dtypes are rounded to the nearest integer.
func dequantize(q *Quantization, storageDType, dtype DataType, shape Shape, raw []byte) (*Tensor, error) {
	stored := &Tensor{DType: storageDType, Shape: shape, Data: raw}
	if storageDType == DTHalf && q.Scale == nil {
		// float16 quantization: plain conversion.
		return stored.CastTo(dtype)
	}
	if q.Scale == nil || q.Min == nil {
		return nil, errors.Wrapf(ErrFormat, "quantization with dtype %q requires scale and min", q.DType)
	}
	values, err := stored.Floats()
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "%v", err)
	}
	size, err := elementSize(dtype)
	if err != nil {
		return nil, errors.Wrapf(ErrFormat, "%v", err)
	}
	scale, minValue := float32(*q.Scale), float32(*q.Min)
	tensor := &Tensor{DType: dtype, Shape: shape, Data: make([]byte, len(values)*size)}
	for ii, v := range values {
		v32 := float32(v)*scale + minValue
		if !isFloat(dtype) {
			v32 = math32.Round(v32)
		}
		putFloat(dtype, tensor.Data[ii*size:(ii+1)*size], float64(v32))
	}
	return tensor, nil
}

// readStrings decodes count strings, each framed as a 4-byte little-endian length followed by its bytes.
// It returns the strings (views over data) and the number of bytes consumed.
func readStrings(data []byte, offset, count int) ([][]byte, int, error) {
	if count > (len(data)-offset)/4 {
		return nil, 0, errors.Wrapf(ErrFormat, "%d strings need at least %d bytes but only %d are left in the weights "+
			"buffer", count, 4*uint64(count), len(data)-offset)
	}
	values := make([][]byte, 0, count)
	pos := offset
	for ii := range count {
		if pos+4 > len(data) {
			return nil, 0, errors.Wrapf(ErrFormat, "string #%d: length prefix past the end of the weights buffer", ii)
		}
		length := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if length > len(data)-pos {
			return nil, 0, errors.Wrapf(ErrFormat, "string #%d: length %d past the end of the weights buffer", ii, length)
		}
		values = append(values, data[pos:pos+length:pos+length])
		pos += length
	}
	return values, pos - offset, nil
}

// EncodeStrings packs values with the framing used by string weights: each value is preceded by its length as a
// 4-byte little-endian unsigned integer, with no padding.
func EncodeStrings(values [][]byte) []byte {
	total := 0
	for _, v := range values {
		total += 4 + len(v)
	}
	buf := make([]byte, 0, total)
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}
	return buf
}
