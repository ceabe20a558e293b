package tfjs

import (
	"math"
	"testing"

	"github.com/goccy/go-json"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeJSONAttr parses the tfjs JSON representation of an attribute and decodes it.
func decodeJSONAttr(t *testing.T, jsonValue string, tfDTypes bool) (any, error) {
	t.Helper()
	var attr Attr
	if err := json.Unmarshal([]byte(jsonValue), &attr); err != nil {
		return nil, err
	}
	return DecodeAttr(attr.Value, tfDTypes)
}

func TestDecodeAttr(t *testing.T) {
	testCases := []struct {
		name     string
		json     string
		tfDTypes bool
		want     any
	}{
		{"int", `{"i": "-7"}`, true, int64(-7)},
		{"int-as-number", `{"i": 3}`, true, int64(3)},
		{"float", `{"f": 0.5}`, true, 0.5},
		{"bool", `{"b": true}`, true, true},
		{"string", `{"s": "U0FNRQ=="}`, true, []byte("SAME")},
		{"func", `{"func": {"name": "body_fn"}}`, true, "body_fn"},
		{"type-tf", `{"type": "DT_INT32"}`, true, DTInt32},
		{"type-onnx", `{"type": "DT_INT32"}`, false, ONNXInt32},
		{"shape", `{"shape": {"dim": [{"size": "-1"}, {"size": "3"}]}}`, true, Shape{-1, 3}},
		{"scalar-shape", `{"shape": {}}`, true, Shape{}},
		{"unknown-rank", `{"shape": {"unknownRank": true}}`, true, Shape(nil)},
		{"list-int", `{"list": {"i": ["1", "2", "3"]}}`, true, []int64{1, 2, 3}},
		{"list-float", `{"list": {"f": [1.5, -2]}}`, true, []float64{1.5, -2}},
		{"list-string", `{"list": {"s": ["YQ==", "YmM="]}}`, true, [][]byte{[]byte("a"), []byte("bc")}},
		{"list-type-onnx", `{"list": {"type": ["DT_FLOAT", "DT_BOOL"]}}`, false, []ONNXDataType{ONNXFloat, ONNXBool}},
		{"list-func", `{"list": {"func": [{"name": "f"}, {"name": "g"}]}}`, true, []string{"f", "g"}},
		{"list-shape", `{"list": {"shape": [{"dim": [{"size": "2"}]}]}}`, true, []Shape{{2}}},
		{"empty-list", `{"list": {}}`, true, []any{}},
		{"list-with-empty-tags", `{"list": {"s": [], "i": ["4"]}}`, true, []int64{4}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeJSONAttr(t, tc.json, tc.tfDTypes)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeAttrListLength(t *testing.T) {
	got := must.M1(decodeJSONAttr(t, `{"list": {"i": ["10", "-20", "30", "0"]}}`, true))
	ints, ok := got.([]int64)
	require.True(t, ok, "got %T", got)
	assert.Len(t, ints, 4)
	assert.Equal(t, []int64{10, -20, 30, 0}, ints)
}

func TestDecodeAttrSpecialFloats(t *testing.T) {
	v := must.M1(decodeJSONAttr(t, `{"f": "NaN"}`, true))
	assert.True(t, math.IsNaN(v.(float64)))
	v = must.M1(decodeJSONAttr(t, `{"f": "-Infinity"}`, true))
	assert.True(t, math.IsInf(v.(float64), -1))
}

func TestDecodeAttrErrors(t *testing.T) {
	// Unsupported tags parse, but can't be decoded.
	_, err := decodeJSONAttr(t, `{"tensor": {"dtype": "DT_FLOAT"}}`, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedAttr), "got %v", err)

	_, err = DecodeAttr(nil, true)
	assert.True(t, errors.Is(err, ErrUnsupportedAttr))

	for _, jsonValue := range []string{
		`{}`,
		`{"i": "1", "f": 1.0}`,
		`{"list": {"i": ["1"], "f": [2.0]}}`,
		`["i"]`,
	} {
		var attr Attr
		err := json.Unmarshal([]byte(jsonValue), &attr)
		require.Errorf(t, err, "parsing %s should have failed", jsonValue)
		assert.True(t, errors.Is(err, ErrFormat), "parsing %s: %v", jsonValue, err)
	}

	_, err = decodeJSONAttr(t, `{"i": "abc"}`, true)
	assert.True(t, errors.Is(err, ErrFormat))
	_, err = decodeJSONAttr(t, `{"type": "DT_NOT_A_TYPE"}`, true)
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestAttrMarshalJSON(t *testing.T) {
	for _, jsonValue := range []string{
		`{"i": "5"}`,
		`{"list": {"i": ["1", "2"]}}`,
		`{"shape": {"dim": [{"size": "4"}]}}`,
		`{"func": {"name": "fn"}}`,
	} {
		var attr Attr
		require.NoError(t, json.Unmarshal([]byte(jsonValue), &attr))
		encoded := must.M1(json.Marshal(attr))
		var again Attr
		require.NoError(t, json.Unmarshal(encoded, &again))
		assert.Equal(t, attr, again, "round trip of %s", jsonValue)
	}
}

func TestDecodeAttrs(t *testing.T) {
	attrs := map[string]Attr{
		"T":         {Value: TypeAttr("DT_FLOAT")},
		"keep_dims": {Value: BoolAttr(true)},
	}
	decoded := must.M1(DecodeAttrs(attrs, true))
	assert.Equal(t, map[string]any{"T": DTFloat, "keep_dims": true}, decoded)

	attrs["bad"] = Attr{Value: UnknownAttr{TagName: "tensor"}}
	_, err := DecodeAttrs(attrs, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}
