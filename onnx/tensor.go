package onnx

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Tensor holds the data of an initializer.
//
// Values are stored row-major, either in the typed buffer matching DataType or packed little-endian
// in RawData (the ONNX raw_data convention). If RawData is not nil it takes precedence.
//
// Tensors stored outside the model file have External set and no values until they are loaded with
// an ExternalDataReader.
type Tensor struct {
	Name     string
	DataType ElementType
	Dims     []int64

	FloatData   []float32
	DoubleData  []float64
	Float16Data []float16.Float16
	Int32Data   []int32
	Int64Data   []int64

	RawData []byte

	External *ExternalData
}

// NewTensor creates a tensor with the given dimensions backed by data (not copied).
func NewTensor[T Element](name string, dims []int64, data []T) *Tensor {
	t := &Tensor{Name: name, DataType: elementTypeOf[T](), Dims: dims}
	switch buf := any(data).(type) {
	case []float32:
		t.FloatData = buf
	case []float64:
		t.DoubleData = buf
	case []float16.Float16:
		t.Float16Data = buf
	case []int32:
		t.Int32Data = buf
	case []int64:
		t.Int64Data = buf
	}
	return t
}

// NewScalar creates a rank-0 tensor holding value.
func NewScalar[T Element](name string, value T) *Tensor {
	return NewTensor(name, []int64{}, []T{value})
}

// NewRawTensor creates a tensor whose values are packed little-endian in raw (not copied).
func NewRawTensor(name string, dataType ElementType, dims []int64, raw []byte) *Tensor {
	return &Tensor{Name: name, DataType: dataType, Dims: dims, RawData: raw}
}

// Shape converts the tensor's element type and dimensions to a GoMLX shapes.Shape (it includes the dtype).
func (t *Tensor) Shape() (shape shapes.Shape, err error) {
	if t == nil {
		err = errors.New("tensor is nil")
		return
	}
	dtype := t.DataType.DType()
	if dtype == dtypes.InvalidDType {
		err = errors.Errorf("tensor %q has unsupported element type %s", t.Name, t.DataType)
		return
	}
	dims := make([]int, len(t.Dims))
	for axis, dim := range t.Dims {
		if dim < 0 {
			err = errors.Errorf("tensor %q has negative dimension %d on axis %d", t.Name, dim, axis)
			return
		}
		dims[axis] = int(dim)
	}
	err = exceptions.TryCatch[error](func() { shape = shapes.Make(dtype, dims...) })
	if err != nil {
		err = errors.WithMessagef(err, "while building shape of tensor %q", t.Name)
	}
	return
}

// Rank returns the number of dimensions of the tensor.
func (t *Tensor) Rank() int {
	return len(t.Dims)
}

// Size returns the number of elements of the tensor, or -1 if any dimension is negative or if the
// number of elements overflows an int.
func (t *Tensor) Size() int {
	for _, dim := range t.Dims {
		if dim < 0 {
			return -1
		}
	}
	if slices.Contains(t.Dims, 0) {
		return 0
	}
	size := 1
	for _, dim := range t.Dims {
		if dim > int64(math.MaxInt/size) {
			return -1
		}
		size *= int(dim)
	}
	return size
}

// typedBuffer returns the typed buffer matching the tensor's DataType, as an any.
func (t *Tensor) typedBuffer() any {
	switch t.DataType {
	case Float32:
		return t.FloatData
	case Float64:
		return t.DoubleData
	case Float16:
		return t.Float16Data
	case Int32:
		return t.Int32Data
	case Int64:
		return t.Int64Data
	case Undefined:
		return nil
	}
	return nil
}

// FlatData returns the flat values of the tensor, in row-major order.
//
// The returned slice aliases the tensor's typed buffer when there is one, so it must not be modified or
// retained. Values stored in RawData are decoded into a new slice.
//
// It returns an error if T doesn't match the tensor's DataType, or if the number of values stored
// doesn't match the tensor's dimensions.
func FlatData[T Element](t *Tensor) ([]T, error) {
	if t == nil {
		return nil, errors.New("tensor is nil")
	}
	if want := elementTypeOf[T](); t.DataType != want {
		return nil, errors.Errorf("tensor %q holds %s values, cannot read them as %s", t.Name, t.DataType, want)
	}
	size := t.Size()
	if size < 0 {
		return nil, errors.Errorf("tensor %q has invalid dimensions %v", t.Name, t.Dims)
	}
	if t.RawData != nil {
		return decodeRawData[T](t, size)
	}
	if t.External != nil {
		return nil, errors.Errorf("tensor %q is stored in external file %q and was not loaded", t.Name, t.External.Location)
	}
	data, _ := t.typedBuffer().([]T)
	if len(data) != size {
		return nil, errors.Errorf("tensor %q with dimensions %v has %d elements, but %d values were provided",
			t.Name, t.Dims, size, len(data))
	}
	return data, nil
}

// decodeRawData unpacks the little-endian RawData of the tensor into a new slice.
func decodeRawData[T Element](t *Tensor, size int) ([]T, error) {
	width := t.DataType.Size()
	if size > math.MaxInt/width {
		return nil, errors.Errorf("tensor %q with dimensions %v is too large", t.Name, t.Dims)
	}
	if len(t.RawData) != size*width {
		return nil, errors.Errorf("tensor %q with dimensions %v uses %d bytes, but %d bytes of raw data were provided",
			t.Name, t.Dims, size*width, len(t.RawData))
	}
	raw := t.RawData
	values := make([]T, size)
	switch out := any(values).(type) {
	case []float32:
		for ii := range out {
			out[ii] = math.Float32frombits(binary.LittleEndian.Uint32(raw[ii*4:]))
		}
	case []float64:
		for ii := range out {
			out[ii] = math.Float64frombits(binary.LittleEndian.Uint64(raw[ii*8:]))
		}
	case []float16.Float16:
		for ii := range out {
			out[ii] = float16.Frombits(binary.LittleEndian.Uint16(raw[ii*2:]))
		}
	case []int32:
		for ii := range out {
			out[ii] = int32(binary.LittleEndian.Uint32(raw[ii*4:]))
		}
	case []int64:
		for ii := range out {
			out[ii] = int64(binary.LittleEndian.Uint64(raw[ii*8:]))
		}
	}
	return values, nil
}

// EncodeRawData packs values little-endian, as expected in Tensor.RawData.
func EncodeRawData[T Element](values []T) []byte {
	width := elementTypeOf[T]().Size()
	raw := make([]byte, len(values)*width)
	switch in := any(values).(type) {
	case []float32:
		for ii, v := range in {
			binary.LittleEndian.PutUint32(raw[ii*4:], math.Float32bits(v))
		}
	case []float64:
		for ii, v := range in {
			binary.LittleEndian.PutUint64(raw[ii*8:], math.Float64bits(v))
		}
	case []float16.Float16:
		for ii, v := range in {
			binary.LittleEndian.PutUint16(raw[ii*2:], v.Bits())
		}
	case []int32:
		for ii, v := range in {
			binary.LittleEndian.PutUint32(raw[ii*4:], uint32(v))
		}
	case []int64:
		for ii, v := range in {
			binary.LittleEndian.PutUint64(raw[ii*8:], uint64(v))
		}
	}
	return raw
}

// Validate checks that the tensor has a supported element type, valid dimensions and as many values
// as its dimensions require.
func (t *Tensor) Validate() error {
	if _, err := t.Shape(); err != nil {
		return err
	}
	var err error
	switch t.DataType {
	case Float32:
		_, err = FlatData[float32](t)
	case Float64:
		_, err = FlatData[float64](t)
	case Float16:
		_, err = FlatData[float16.Float16](t)
	case Int32:
		_, err = FlatData[int32](t)
	case Int64:
		_, err = FlatData[int64](t)
	case Undefined:
		err = errors.Errorf("tensor %q has undefined element type", t.Name)
	}
	return err
}
