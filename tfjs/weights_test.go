package tfjs

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func float32Bytes(values ...float32) []byte {
	buf := &bytes.Buffer{}
	must.M(binary.Write(buf, binary.LittleEndian, values))
	return buf.Bytes()
}

func TestReadWeights(t *testing.T) {
	strs := [][]byte{[]byte("hello"), {}, []byte("tfjs")}
	var data []byte
	data = append(data, float32Bytes(1, 2, 3, 4, 5, 6)...)
	data = append(data, EncodeStrings(strs)...)
	data = append(data, 7, 0, 0, 0) // int32 scalar.
	manifest := []WeightEntry{
		{Name: "w", Shape: []int{2, 3}, DType: "float32"},
		{Name: "vocab", Shape: []int{3}, DType: "string"},
		{Name: "count", Shape: []int{}, DType: "int32"},
	}
	weights := must.M1(ReadWeights(manifest, data))
	require.Len(t, weights, 3)

	w := weights["w"]
	assert.Equal(t, DTFloat, w.DType)
	assert.Equal(t, Shape{2, 3}, w.Shape)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, must.M1(w.Floats()))

	vocab := weights["vocab"]
	assert.Equal(t, DTString, vocab.DType)
	assert.Equal(t, strs, vocab.Strings)

	count := weights["count"]
	assert.Equal(t, Shape{}, count.Shape)
	assert.Equal(t, []int{7}, must.M1(count.Ints()))
}

func TestReadWeightsByteAccounting(t *testing.T) {
	manifest := []WeightEntry{
		{Name: "a", Shape: []int{3}, DType: "float32"},
		{Name: "b", Shape: []int{2, 2}, DType: "int32"},
	}
	exact := make([]byte, 3*4+4*4)
	_, err := ReadWeights(manifest, exact)
	require.NoError(t, err)

	_, err = ReadWeights(manifest, exact[:len(exact)-1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))

	_, err = ReadWeights(manifest, append(exact, 0))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat))
	assert.Contains(t, err.Error(), "doesn't match read bytes")
}

func TestStringRoundTrip(t *testing.T) {
	values := [][]byte{[]byte("a"), []byte("longer string"), {}, {0xff, 0x00, 0x10}}
	encoded := EncodeStrings(values)
	wantBytes := 4 * len(values)
	for _, v := range values {
		wantBytes += len(v)
	}
	require.Len(t, encoded, wantBytes)

	decoded, numBytes, err := readStrings(encoded, 0, len(values))
	require.NoError(t, err)
	assert.Equal(t, wantBytes, numBytes)
	assert.Equal(t, values, decoded)

	// Truncated buffers.
	_, _, err = readStrings(encoded[:len(encoded)-1], 0, len(values))
	assert.True(t, errors.Is(err, ErrFormat))
	_, _, err = readStrings(encoded[:2], 0, 1)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestReadWeightsQuantized(t *testing.T) {
	scale, minValue := 0.5, -1.0
	manifest := []WeightEntry{
		{Name: "skip", Shape: []int{1}, DType: "float32"},
		{Name: "q", Shape: []int{4}, DType: "float32",
			Quantization: &Quantization{DType: "uint8", Scale: &scale, Min: &minValue}},
		{Name: "qi", Shape: []int{2}, DType: "int32",
			Quantization: &Quantization{DType: "uint8", Scale: &scale, Min: &minValue}},
	}
	data := float32Bytes(42)
	data = append(data, 0, 2, 4, 255)
	data = append(data, 3, 10)
	weights := must.M1(ReadWeights(manifest, data))

	q := weights["q"]
	assert.Equal(t, DTFloat, q.DType)
	assert.Equal(t, []float64{-1, 0, 1, 126.5}, must.M1(q.Floats()))

	// Integer dtypes are rounded: 3*0.5-1 = 0.5 -> 1 (away from zero), 10*0.5-1 = 4.
	qi := weights["qi"]
	assert.Equal(t, DTInt32, qi.DType)
	assert.Equal(t, []int{1, 4}, must.M1(qi.Ints()))
}

func TestReadWeightsFloat16(t *testing.T) {
	var data []byte
	for _, v := range []float32{1.5, -2, 0.25} {
		data = binary.LittleEndian.AppendUint16(data, float16.Fromfloat32(v).Bits())
	}
	manifest := []WeightEntry{
		{Name: "h", Shape: []int{3}, DType: "float32", Quantization: &Quantization{DType: "float16"}},
	}
	weights := must.M1(ReadWeights(manifest, data))
	h := weights["h"]
	assert.Equal(t, DTFloat, h.DType)
	assert.Equal(t, []float64{1.5, -2, 0.25}, must.M1(h.Floats()))
}

func TestReadWeightsErrors(t *testing.T) {
	_, err := ReadWeights([]WeightEntry{{Name: "x", Shape: []int{1}, DType: "float128"}}, make([]byte, 16))
	assert.True(t, errors.Is(err, ErrFormat))

	_, err = ReadWeights([]WeightEntry{{Name: "x", Shape: []int{-1}, DType: "float32"}}, nil)
	assert.True(t, errors.Is(err, ErrFormat))

	_, err = ReadWeights([]WeightEntry{{Name: "x", Shape: []int{1}, DType: "float32",
		Quantization: &Quantization{DType: "uint8"}}}, []byte{1})
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestReadWeightsCorruptSizes(t *testing.T) {
	testCases := []struct {
		name  string
		entry WeightEntry
		data  []byte
	}{
		{"negative-byte-length", WeightEntry{Name: "x", Shape: []int{1 << 61}, DType: "float32"}, make([]byte, 8)},
		{"wrapped-byte-length", WeightEntry{Name: "x", Shape: []int{1 << 62, 4}, DType: "float32"}, nil},
		{"element-count-overflow", WeightEntry{Name: "x", Shape: []int{1 << 40, 1 << 40}, DType: "int8"}, nil},
		{"quantized-byte-length", WeightEntry{Name: "x", Shape: []int{1 << 62}, DType: "float32",
			Quantization: &Quantization{DType: "uint16"}}, make([]byte, 4)},
		{"strings-count", WeightEntry{Name: "x", Shape: []int{1 << 50}, DType: "string"}, []byte{0, 0, 0, 0}},
		{"strings-count-overflow", WeightEntry{Name: "x", Shape: []int{1 << 62, 4}, DType: "string"}, nil},
		{"strings-short", WeightEntry{Name: "x", Shape: []int{3}, DType: "string"}, EncodeStrings([][]byte{{}, {}})},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, err = ReadWeights([]WeightEntry{tc.entry}, tc.data) })
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFormat))
		})
	}
}
