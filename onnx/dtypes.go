package onnx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// ElementType is the encoding of the elements of a Tensor.
//
// The set is closed: code switching over it should list every value explicitly.
type ElementType int

const (
	Undefined ElementType = iota
	Float32
	Float64
	Float16
	Int32
	Int64
)

// Element is the constraint of the Go types that hold the values of the supported element types.
type Element interface {
	float32 | float64 | float16.Float16 | int32 | int64
}

// ElementTypes lists all defined element types, in declaration order.
var ElementTypes = []ElementType{Float32, Float64, Float16, Int32, Int64}

// DType converts the element type to the corresponding GoMLX dtype.
// It returns dtypes.InvalidDType for Undefined or unknown values.
func (et ElementType) DType() dtypes.DType {
	switch et {
	case Float32:
		return dtypes.Float32
	case Float64:
		return dtypes.Float64
	case Float16:
		return dtypes.Float16
	case Int32:
		return dtypes.Int32
	case Int64:
		return dtypes.Int64
	case Undefined:
		return dtypes.InvalidDType
	}
	return dtypes.InvalidDType
}

// ElementTypeFromDType converts a GoMLX dtype to an ElementType.
func ElementTypeFromDType(dtype dtypes.DType) (ElementType, error) {
	switch dtype {
	case dtypes.Float32:
		return Float32, nil
	case dtypes.Float64:
		return Float64, nil
	case dtypes.Float16:
		return Float16, nil
	case dtypes.Int32:
		return Int32, nil
	case dtypes.Int64:
		return Int64, nil
	default:
		return Undefined, errors.Errorf("dtype %s has no corresponding ONNX element type", dtype)
	}
}

// String implements fmt.Stringer.
func (et ElementType) String() string {
	if et == Undefined {
		return "Undefined"
	}
	dtype := et.DType()
	if dtype == dtypes.InvalidDType {
		return "ElementType(?)"
	}
	return dtype.String()
}

// TypeName returns the ONNX type string of a tensor of this element type, e.g.: "tensor(float)".
// It returns "" for Undefined.
func (et ElementType) TypeName() string {
	switch et {
	case Float32:
		return "tensor(float)"
	case Float64:
		return "tensor(double)"
	case Float16:
		return "tensor(float16)"
	case Int32:
		return "tensor(int32)"
	case Int64:
		return "tensor(int64)"
	case Undefined:
		return ""
	}
	return ""
}

// Size returns the number of bytes used by one element in raw (packed) storage.
func (et ElementType) Size() int {
	if et.DType() == dtypes.InvalidDType {
		return 0
	}
	return et.DType().Size()
}

// IsFloat returns whether the element type is one of the floating point encodings.
func (et ElementType) IsFloat() bool {
	return et == Float32 || et == Float64 || et == Float16
}

// IsInt returns whether the element type is one of the signed integer encodings.
func (et ElementType) IsInt() bool {
	return et == Int32 || et == Int64
}

// elementTypeOf returns the ElementType stored in the Go type T.
func elementTypeOf[T Element]() ElementType {
	var t T
	switch (any(t)).(type) {
	case float32:
		return Float32
	case float64:
		return Float64
	case float16.Float16:
		return Float16
	case int32:
		return Int32
	case int64:
		return Int64
	}
	return Undefined
}
