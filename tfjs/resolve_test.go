package tfjs

import (
	"strings"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRegistry returns the default registry extended with "XYY", an op with outputs x, y, y.
func testRegistry(t *testing.T) *OpRegistry {
	t.Helper()
	return must.M1(LoadOpRegistry(strings.NewReader(`
- name: XYY
  input_arg:
    - {name: input, type_attr: T}
  output_arg:
    - {name: x, type_attr: T}
    - {name: y, type_attr: T, number_attr: N}
`)))
}

func TestResolveOutput(t *testing.T) {
	reg := testRegistry(t)
	ops := map[string]OpInfo{
		"nodeA":      {OpType: "XYY", Attrs: map[string]any{"T": DTFloat, "N": int64(2)}},
		"relu":       {OpType: "Relu", Attrs: map[string]any{"T": DTFloat}},
		"fn/inner":   {OpType: "TopKV2", Attrs: map[string]any{"T": DTFloat}},
		"split":      {OpType: "Split", Attrs: map[string]any{"T": DTFloat, "num_split": int64(3)}},
		"identity_n": {OpType: "IdentityN", Attrs: map[string]any{"T": []DataType{DTFloat, DTInt32}}},
	}
	testCases := []struct {
		ref, funcName, want string
	}{
		{"nodeA", "", "nodeA:0"},
		{"nodeA:0", "", "nodeA:0"},
		{"nodeA:y:1", "", "nodeA:2"},
		{"nodeA:y:0", "", "nodeA:1"},
		{"nodeA:x:0", "", "nodeA:0"},
		{"relu:activations:0", "", "relu:0"},
		{"split:output:2", "", "split:2"},
		{"identity_n:output:1", "", "identity_n:1"},
		{"inner:indices:0", "fn", "fn/inner:1"},
		{"fn/inner:values:0", "fn", "fn/inner:0"},
		// Not a node (e.g. a function argument): unchanged.
		{"arg_0", "fn", "arg_0"},
	}
	for _, tc := range testCases {
		got, err := ResolveOutput(tc.ref, ops, tc.funcName, reg)
		require.NoErrorf(t, err, "resolving %q", tc.ref)
		assert.Equalf(t, tc.want, got, "resolving %q", tc.ref)
	}

	for _, ref := range []string{"nodeA:z:0", "missing:y:0", "nodeA:y:x", "a:b:c:d", "inner:indices:0"} {
		_, err := ResolveOutput(ref, ops, "", reg)
		require.Errorf(t, err, "resolving %q", ref)
		assert.Truef(t, errors.Is(err, ErrReference), "resolving %q: %v", ref, err)
	}
}

func TestOutputNamesAndDTypes(t *testing.T) {
	reg := testRegistry(t)
	names, dtypes, err := OutputNamesAndDTypes(reg, "XYY", map[string]any{"T": DTHalf, "N": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y", "y"}, names)
	assert.Equal(t, []DataType{DTHalf, DTHalf, DTHalf}, dtypes)

	// Type list attribute.
	dtypes = must.M1(OutputDTypes(reg, "StatefulPartitionedCall", map[string]any{"Tout": []DataType{DTFloat, DTBool}}))
	assert.Equal(t, []DataType{DTFloat, DTBool}, dtypes)
	dtypes = must.M1(OutputDTypes(reg, "StatefulPartitionedCall", map[string]any{"Tout": []any{}}))
	assert.Empty(t, dtypes)

	// Fixed type.
	names, dtypes, err = OutputNamesAndDTypes(reg, "TopKV2", map[string]any{"T": DTFloat})
	require.NoError(t, err)
	assert.Equal(t, []string{"values", "indices"}, names)
	assert.Equal(t, []DataType{DTFloat, DTInt32}, dtypes)

	// Comparison ops output booleans.
	dtypes = must.M1(OutputDTypes(reg, "Greater", map[string]any{"T": DTFloat}))
	assert.Equal(t, []DataType{DTBool}, dtypes)

	dtypes = must.M1(OutputDTypes(reg, "NoOp", nil))
	assert.Empty(t, dtypes)

	_, err = OutputDTypes(reg, "NotAnOp", nil)
	assert.True(t, errors.Is(err, ErrUnsupportedOp))
	_, err = OutputDTypes(reg, "Relu", map[string]any{})
	assert.True(t, errors.Is(err, ErrSchema))
	_, err = OutputDTypes(reg, "Relu", map[string]any{"T": int64(1)})
	assert.True(t, errors.Is(err, ErrSchema))
	_, err = OutputDTypes(reg, "XYY", map[string]any{"T": DTFloat})
	assert.True(t, errors.Is(err, ErrSchema))
}
