package onnx

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

// TestShape tests the conversion of the tensor element type and dimensions to a GoMLX shapes.Shape.
func TestShape(t *testing.T) {
	t.Run("NilTensor", func(t *testing.T) {
		var tensor *Tensor
		_, err := tensor.Shape()
		require.Error(t, err)
		require.Contains(t, err.Error(), "nil")
	})

	t.Run("Float32Scalar", func(t *testing.T) {
		shape, err := NewScalar("x", float32(1)).Shape()
		require.NoError(t, err)
		require.Equal(t, dtypes.Float32, shape.DType)
		require.Equal(t, 0, shape.Rank())
	})

	t.Run("Int32_2D", func(t *testing.T) {
		shape, err := NewTensor("x", []int64{3, 4}, make([]int32, 12)).Shape()
		require.NoError(t, err)
		require.Equal(t, dtypes.Int32, shape.DType)
		require.Equal(t, []int{3, 4}, shape.Dimensions)
	})

	t.Run("Float16", func(t *testing.T) {
		shape, err := NewRawTensor("x", Float16, []int64{2}, make([]byte, 4)).Shape()
		require.NoError(t, err)
		require.Equal(t, dtypes.Float16, shape.DType)
	})

	t.Run("Undefined", func(t *testing.T) {
		_, err := (&Tensor{Name: "x"}).Shape()
		require.Error(t, err)
	})

	t.Run("NegativeDimension", func(t *testing.T) {
		_, err := (&Tensor{Name: "x", DataType: Int64, Dims: []int64{2, -1}}).Shape()
		require.Error(t, err)
		require.Contains(t, err.Error(), "negative")
	})
}

func TestElementType(t *testing.T) {
	for _, et := range ElementTypes {
		dtype := et.DType()
		require.NotEqual(t, dtypes.InvalidDType, dtype, "element type %d", int(et))
		back, err := ElementTypeFromDType(dtype)
		require.NoError(t, err)
		require.Equal(t, et, back)
		require.NotEmpty(t, et.TypeName())
		require.Equal(t, dtype.Size(), et.Size())
	}
	assert.Equal(t, "tensor(float)", Float32.TypeName())
	assert.Equal(t, "tensor(double)", Float64.TypeName())
	assert.Equal(t, "tensor(float16)", Float16.TypeName())
	assert.Equal(t, "", Undefined.TypeName())
	assert.Equal(t, "Undefined", Undefined.String())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 0, Undefined.Size())
	assert.True(t, Float16.IsFloat())
	assert.False(t, Int32.IsFloat())
	assert.True(t, Int64.IsInt())

	_, err := ElementTypeFromDType(dtypes.Bool)
	require.Error(t, err)
}

func TestFlatData(t *testing.T) {
	t.Run("Typed", func(t *testing.T) {
		data := []float32{1, 2, 3, 4, 5, 6}
		tensor := NewTensor("x", []int64{2, 3}, data)
		values, err := FlatData[float32](tensor)
		require.NoError(t, err)
		require.Equal(t, data, values)
		require.Equal(t, 6, tensor.Size())
		require.Equal(t, 2, tensor.Rank())
	})

	t.Run("WrongType", func(t *testing.T) {
		tensor := NewTensor("x", []int64{2}, []int32{1, 2})
		_, err := FlatData[int64](tensor)
		require.Error(t, err)
	})

	t.Run("WrongSize", func(t *testing.T) {
		tensor := NewTensor("x", []int64{3}, []int64{1, 2})
		_, err := FlatData[int64](tensor)
		require.Error(t, err)
		require.NoError(t, NewTensor("y", []int64{2}, []int64{1, 2}).Validate())
		require.Error(t, tensor.Validate())
	})

	t.Run("NegativeDims", func(t *testing.T) {
		tensor := &Tensor{Name: "x", DataType: Int64, Dims: []int64{-2}, Int64Data: []int64{1, 2}}
		require.Equal(t, -1, tensor.Size())
		_, err := FlatData[int64](tensor)
		require.Error(t, err)
	})

	t.Run("Overflow", func(t *testing.T) {
		wrapped := &Tensor{Name: "wrapped", DataType: Int64, Dims: []int64{1 << 32, 1 << 32}}
		require.Equal(t, -1, wrapped.Size())
		_, err := FlatData[int64](wrapped)
		require.Error(t, err)

		// The byte length of the raw data would wrap around to 8.
		huge := NewRawTensor("huge", Int64, []int64{1<<61 + 1}, EncodeRawData([]int64{7}))
		require.Equal(t, 1<<61+1, huge.Size())
		_, err = FlatData[int64](huge)
		require.Error(t, err)
		require.Error(t, huge.Validate())

		empty := &Tensor{Name: "empty", DataType: Int64, Dims: []int64{1 << 40, 1 << 40, 0}, Int64Data: []int64{}}
		require.Equal(t, 0, empty.Size())
	})

	t.Run("Nil", func(t *testing.T) {
		_, err := FlatData[float32](nil)
		require.Error(t, err)
	})
}

// TestRawData checks the little-endian decoding of raw data for every element type.
func TestRawData(t *testing.T) {
	t.Run("Float32", func(t *testing.T) {
		want := []float32{1.5, -2, float32(math.Inf(1))}
		got, err := FlatData[float32](NewRawTensor("x", Float32, []int64{3}, EncodeRawData(want)))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
	t.Run("Float64", func(t *testing.T) {
		want := []float64{math.Pi, -1e300}
		got, err := FlatData[float64](NewRawTensor("x", Float64, []int64{2, 1}, EncodeRawData(want)))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
	t.Run("Float16", func(t *testing.T) {
		// 1.0 in half precision is 0x3C00, stored little-endian.
		got, err := FlatData[float16.Float16](NewRawTensor("x", Float16, []int64{1}, []byte{0x00, 0x3c}))
		require.NoError(t, err)
		require.Equal(t, float32(1), got[0].Float32())
	})
	t.Run("Int32", func(t *testing.T) {
		got, err := FlatData[int32](NewRawTensor("x", Int32, []int64{2}, []byte{0xff, 0xff, 0xff, 0xff, 0x02, 0, 0, 0}))
		require.NoError(t, err)
		require.Equal(t, []int32{-1, 2}, got)
	})
	t.Run("Int64", func(t *testing.T) {
		want := []int64{math.MinInt64, 0, math.MaxInt64}
		got, err := FlatData[int64](NewRawTensor("x", Int64, []int64{3}, EncodeRawData(want)))
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
	t.Run("Truncated", func(t *testing.T) {
		tensor := NewRawTensor("x", Int64, []int64{2}, make([]byte, 12))
		_, err := FlatData[int64](tensor)
		require.Error(t, err)
		require.Contains(t, err.Error(), "raw data")
		require.Error(t, tensor.Validate())
	})
	t.Run("RawDataTakesPrecedence", func(t *testing.T) {
		tensor := NewRawTensor("x", Int32, []int64{1}, EncodeRawData([]int32{7}))
		tensor.Int32Data = []int32{8}
		got, err := FlatData[int32](tensor)
		require.NoError(t, err)
		require.Equal(t, []int32{7}, got)
	})
}
