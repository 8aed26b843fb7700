package onnx

import (
	"fmt"
	"strconv"
	"strings"
)

// Dimension of a Shape: either a known non-negative value, or unknown (optionally named by a symbolic parameter,
// like "batch_size").
type Dimension struct {
	value int64
	param string
	known bool
}

// Dim returns a known dimension. Negative values are taken as unknown.
func Dim(value int64) Dimension {
	if value < 0 {
		return Dimension{}
	}
	return Dimension{value: value, known: true}
}

// SymbolicDim returns an unknown dimension named by param.
func SymbolicDim(param string) Dimension {
	return Dimension{param: param}
}

// UnknownDim returns an unknown, unnamed dimension.
func UnknownDim() Dimension {
	return Dimension{}
}

// HasValue returns whether the dimension is statically known.
func (d Dimension) HasValue() bool { return d.known }

// Value returns the dimension value, or -1 if it is not known.
func (d Dimension) Value() int64 {
	if !d.known {
		return -1
	}
	return d.value
}

// Param returns the symbolic name of an unknown dimension, if any.
func (d Dimension) Param() string { return d.param }

// String implements fmt.Stringer.
func (d Dimension) String() string {
	if d.known {
		return strconv.FormatInt(d.value, 10)
	}
	if d.param != "" {
		return d.param
	}
	return "?"
}

// Shape is the ordered list of dimensions of an edge.
type Shape struct {
	Dims []Dimension
}

// MakeShape creates a shape from dimension values: negative values are unknown dimensions.
func MakeShape(dims ...int64) *Shape {
	return &Shape{Dims: sliceMap(dims, Dim)}
}

// NewShape creates a shape from the given dimensions.
func NewShape(dims ...Dimension) *Shape {
	return &Shape{Dims: dims}
}

// Rank returns the number of dimensions.
func (s *Shape) Rank() int {
	if s == nil {
		return 0
	}
	return len(s.Dims)
}

// String implements fmt.Stringer.
func (s *Shape) String() string {
	if s == nil {
		return "<unknown>"
	}
	parts := sliceMap(s.Dims, Dimension.String)
	return "[" + strings.Join(parts, ", ") + "]"
}

// ValueInfo describes an edge of the graph: its name, its declared type and its shape.
//
// Type is the ONNX type string (e.g. "tensor(float)"), empty if not declared.
// Shape is nil if the shape is unknown, which is different from a rank-0 (scalar) shape.
type ValueInfo struct {
	Name  string
	Type  string
	Shape *Shape
}

// NewValueInfo creates a typed edge with the given dimensions. Negative dimensions are unknown.
func NewValueInfo(name string, elementType ElementType, dims ...int64) *ValueInfo {
	return &ValueInfo{Name: name, Type: elementType.TypeName(), Shape: MakeShape(dims...)}
}

// HasShape returns whether the edge has shape information.
func (vi *ValueInfo) HasShape() bool {
	return vi != nil && vi.Shape != nil
}

// ShapeOf returns the shape of the edge, if known.
func (vi *ValueInfo) ShapeOf() (*Shape, bool) {
	if !vi.HasShape() {
		return nil, false
	}
	return vi.Shape, true
}

// TypeName returns the declared type of the edge, if any.
func (vi *ValueInfo) TypeName() (string, bool) {
	if vi == nil || vi.Type == "" {
		return "", false
	}
	return vi.Type, true
}

// String implements fmt.Stringer.
func (vi *ValueInfo) String() string {
	if vi == nil {
		return "<nil>"
	}
	typeName := vi.Type
	if typeName == "" {
		typeName = "?"
	}
	return fmt.Sprintf("%q: %s%s", vi.Name, typeName, vi.Shape)
}

// merge fills in the type and shape of vi from other, where vi doesn't have them.
func (vi *ValueInfo) merge(other *ValueInfo) {
	if vi.Type == "" {
		vi.Type = other.Type
	}
	if vi.Shape == nil {
		vi.Shape = other.Shape
	}
}
