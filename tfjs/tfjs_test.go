package tfjs

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addModelJSON is a model with one placeholder "x", a scalar constant "c" and their sum.
const addModelJSON = `{
  "format": "graph-model",
  "generatedBy": "2.15.0",
  "convertedBy": "TensorFlow.js Converter v4.17.0",
  "modelTopology": {
    "node": [
      {"name": "x", "op": "Placeholder", "attr": {
        "dtype": {"type": "DT_FLOAT"},
        "shape": {"shape": {"dim": [{"size": "-1"}, {"size": "3"}]}}}},
      {"name": "c", "op": "Const", "attr": {
        "dtype": {"type": "DT_FLOAT"},
        "value": {"tensor": {"dtype": "DT_FLOAT", "tensorShape": {}}}}},
      {"name": "add", "op": "AddV2", "input": ["x", "c"], "attr": {"T": {"type": "DT_FLOAT"}}}
    ],
    "library": {},
    "versions": {"producer": 1482}
  },
  "weightsManifest": [{"paths": ["group1-shard1of2.bin", "group1-shard2of2.bin"], "weights": [
    {"name": "c", "shape": [], "dtype": "float32"},
    {"name": "unused", "shape": [2], "dtype": "int32"}
  ]}]
}`

// addModelShards are the two shards of addModelJSON: c = 2.0 and unused = [1, 2].
func addModelShards() [][]byte {
	return [][]byte{
		float32Bytes(2),
		{1, 0, 0, 0, 2, 0, 0, 0},
	}
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	must.M1(w.Write(data))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// writeModel writes the model.json and its shards to a temporary directory, and returns the model path.
func writeModel(t *testing.T, modelJSON string, shards [][]byte, compressed bool) string {
	t.Helper()
	dir := t.TempDir()
	contents := []byte(modelJSON)
	if compressed {
		contents = gzipBytes(t, contents)
	}
	modelPath := filepath.Join(dir, "model.json")
	require.NoError(t, os.WriteFile(modelPath, contents, 0o644))
	m := must.M1(Parse([]byte(modelJSON)))
	paths := m.Manifest().Paths
	require.Len(t, paths, len(shards))
	for ii, shard := range shards {
		if compressed {
			shard = gzipBytes(t, shard)
		}
		require.NoError(t, os.WriteFile(filepath.Join(dir, paths[ii]), shard, 0o644))
	}
	return modelPath
}

func TestParse(t *testing.T) {
	m := must.M1(Parse([]byte(addModelJSON)))
	assert.Equal(t, "graph-model", m.Format)
	assert.False(t, m.Compressed)
	require.Len(t, m.Topology.Node, 3)
	assert.Equal(t, []string{"x", "c"}, m.Topology.Node[2].Input)
	assert.Equal(t, TypeAttr("DT_FLOAT"), m.Topology.Node[2].Attr["T"].Value)
	assert.Equal(t, "tensor", m.Topology.Node[1].Attr["value"].Value.Tag())
	assert.Len(t, m.Manifest().Weights, 2)
	assert.Nil(t, m.Signature.OutputNames())

	_, err := Parse([]byte(`{"modelTopology": {"node": []}}`))
	assert.True(t, errors.Is(err, ErrFormat), "missing weightsManifest: %v", err)
	_, err = Parse([]byte(`{"modelTopology": `))
	assert.True(t, errors.Is(err, ErrFormat))
	_, err = Parse([]byte{0x1f, 0x8b, 0x00})
	assert.True(t, errors.Is(err, ErrFormat))
}

func TestSignatureOutputsOrder(t *testing.T) {
	m := must.M1(Parse([]byte(`{
      "modelTopology": {"node": []},
      "weightsManifest": [{"paths": [], "weights": []}],
      "signature": {
        "inputs": {"x:0": {"name": "x:0", "dtype": "DT_FLOAT"}},
        "outputs": {
          "zeta:0": {"name": "zeta:0", "dtype": "DT_FLOAT"},
          "alpha:0": {"name": "alpha:0", "dtype": "DT_FLOAT"},
          "mid:1": {"name": "mid:1", "dtype": "DT_INT32"}
        }
      }}`)))
	assert.Equal(t, []string{"zeta:0", "alpha:0", "mid:1"}, m.Signature.OutputNames())
	assert.Equal(t, "DT_INT32", m.Signature.Outputs["mid:1"].DType)
	assert.Len(t, m.Signature.Inputs, 1)
}

func TestReadFileAndLoadWeights(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		modelPath := writeModel(t, addModelJSON, addModelShards(), compressed)
		m := must.M1(ReadFile(modelPath))
		assert.Equal(t, compressed, m.Compressed)
		assert.Equal(t, filepath.Dir(modelPath), m.Dir)

		weights := must.M1(m.LoadWeights())
		require.Len(t, weights, 2)
		assert.Equal(t, []float64{2}, must.M1(weights["c"].Floats()))
		assert.Equal(t, []int{1, 2}, must.M1(weights["unused"].Ints()))
	}
}

func TestReadShards(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.bin"), []byte{1, 2, 3}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.bin"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte{4, 5}, 0o644))
	data := must.M1(ReadShards(dir, []string{"a.bin", "empty.bin", "b.bin"}, false))
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, data)

	_, err := ReadShards(dir, []string{"missing.bin"}, false)
	assert.Error(t, err)
	_, err = ReadShards(dir, []string{"a.bin"}, true)
	assert.Error(t, err, "a.bin is not gzip compressed")
}
