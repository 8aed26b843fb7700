package optimizer

import (
	"testing"

	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesShape(t *testing.T) {
	partial := &onnx.ValueInfo{Name: "x", Shape: onnx.NewShape(onnx.Dim(3), onnx.SymbolicDim("seq"), onnx.UnknownDim())}
	assert.True(t, MatchesShape(partial, 3, -1, -1))
	assert.True(t, MatchesShape(partial, 3, 0, 0))
	assert.False(t, MatchesShape(partial, 3, 5, -1), "unknown dimension never matches a positive value")
	assert.False(t, MatchesShape(partial, 3, -1), "rank mismatch")
	assert.False(t, MatchesShape(partial, 3, -1, -1, -1), "rank mismatch")

	known := onnx.NewValueInfo("y", onnx.Float32, 4, 5, 6)
	assert.False(t, MatchesShape(known, 3, -1, -1))
	assert.True(t, MatchesShape(known, 4, 5, 6))
	assert.True(t, MatchesShape(known, -1, 0, 6), "wildcards ignore known dimensions")
	assert.False(t, MatchesShape(known, 4, 5, 7))

	scalar := onnx.NewValueInfo("s", onnx.Float32)
	assert.True(t, MatchesShape(scalar))
	assert.False(t, MatchesShape(scalar, 1))

	assert.False(t, MatchesShape(&onnx.ValueInfo{Name: "unknown"}))
	assert.False(t, MatchesShape(nil))
}

func TestAllDimsKnown(t *testing.T) {
	assert.True(t, AllDimsKnown(onnx.NewValueInfo("x", onnx.Float32, 2, 3), 2))
	assert.False(t, AllDimsKnown(onnx.NewValueInfo("x", onnx.Float32, 2, 3), 3))
	assert.False(t, AllDimsKnown(onnx.NewValueInfo("x", onnx.Float32, 2, -1), 2))
	assert.True(t, AllDimsKnown(onnx.NewValueInfo("x", onnx.Float32), 0))
	assert.False(t, AllDimsKnown(&onnx.ValueInfo{Name: "x"}, 0), "unknown shape")
	assert.False(t, AllDimsKnown(nil, 0))

	dims, found := KnownDims(onnx.NewValueInfo("x", onnx.Int64, 1, 128, 768))
	require.True(t, found)
	assert.Equal(t, []int64{1, 128, 768}, dims)
	_, found = KnownDims(onnx.NewValueInfo("x", onnx.Int64, -1, 128))
	assert.False(t, found)
	_, found = KnownDims(nil)
	assert.False(t, found)
}

func TestExtractIntSequence(t *testing.T) {
	g := onnx.NewGraph("extract")
	int32s := addInitializer(t, g, onnx.NewTensor("int32s", []int64{3}, []int32{1, 2, 3}))
	int64s := addInitializer(t, g, onnx.NewTensor("int64s", []int64{2, 2}, []int64{4, -1, 0, 8}))
	raw := addInitializer(t, g, onnx.NewRawTensor("raw", onnx.Int64, []int64{2}, onnx.EncodeRawData([]int64{-7, 1 << 40})))
	empty := addInitializer(t, g, onnx.NewTensor("empty", []int64{0}, []int64{}))
	floats := addInitializer(t, g, onnx.NewTensor("floats", []int64{2}, []float32{1, 2}))
	malformed := addInitializer(t, g, onnx.NewTensor("malformed", []int64{4}, []int32{1, 2}))
	overridable := addInitializer(t, g, onnx.NewTensor("overridable", []int64{1}, []int32{9}))
	require.NoError(t, g.AddInput(&onnx.ValueInfo{Name: "overridable"}))

	values, found := ExtractIntSequence(g, int32s)
	require.True(t, found)
	assert.Equal(t, []int64{1, 2, 3}, values)

	values, found = ExtractIntSequence(g, int64s)
	require.True(t, found)
	assert.Equal(t, []int64{4, -1, 0, 8}, values)

	// The result is a copy: changing it doesn't affect the graph.
	values[0] = 100
	tensor, _ := g.Initializer("int64s")
	assert.Equal(t, int64(4), tensor.Int64Data[0])

	values, found = ExtractIntSequence(g, raw)
	require.True(t, found)
	assert.Equal(t, []int64{-7, 1 << 40}, values)

	values, found = ExtractIntSequence(g, empty)
	require.True(t, found)
	assert.NotNil(t, values)
	assert.Empty(t, values)

	// Initializers that are also graph inputs are accepted.
	values, found = ExtractIntSequence(g, overridable)
	require.True(t, found)
	assert.Equal(t, []int64{9}, values)

	_, found = ExtractIntSequence(g, floats)
	assert.False(t, found)
	_, found = ExtractIntSequence(g, malformed)
	assert.False(t, found)
	_, found = ExtractIntSequence(g, onnx.NewValueInfo("missing", onnx.Int64, 2))
	assert.False(t, found)
	_, found = ExtractIntSequence(g, nil)
	assert.False(t, found)

	// Element counts or byte lengths that overflow never match.
	wrapped := addInitializer(t, g, &onnx.Tensor{Name: "wrapped", DataType: onnx.Int64, Dims: []int64{1 << 32, 1 << 32}})
	_, found = ExtractIntSequence(g, wrapped)
	assert.False(t, found)
	huge := addInitializer(t, g, onnx.NewRawTensor("huge", onnx.Int64, []int64{1<<61 + 1}, onnx.EncodeRawData([]int64{7})))
	require.NotPanics(t, func() { _, found = ExtractIntSequence(g, huge) })
	assert.False(t, found)
}

func TestAppendIntSequence(t *testing.T) {
	g := onnx.NewGraph("append")
	int32s := addInitializer(t, g, onnx.NewTensor("int32s", []int64{3}, []int32{1, 2, 3}))
	floats := addInitializer(t, g, onnx.NewTensor("floats", []int64{1}, []float32{1}))

	dst := []int64{9}
	dst, found := AppendIntSequence(dst, g, int32s)
	require.True(t, found)
	assert.Equal(t, []int64{9, 1, 2, 3}, dst)

	dst, found = AppendIntSequence(dst, g, floats)
	assert.False(t, found)
	assert.Equal(t, []int64{9, 1, 2, 3}, dst, "dst is unchanged on failure")
}
