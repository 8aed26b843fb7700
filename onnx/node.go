package onnx

import (
	"fmt"
	"strings"
)

// AttributeType is the kind of value held by an Attribute.
type AttributeType int

const (
	AttributeUndefined AttributeType = iota
	AttributeFloat
	AttributeInt
	AttributeString
	AttributeTensor
	AttributeFloats
	AttributeInts
)

var attributeTypeNames = map[AttributeType]string{
	AttributeUndefined: "UNDEFINED",
	AttributeFloat:     "FLOAT",
	AttributeInt:       "INT",
	AttributeString:    "STRING",
	AttributeTensor:    "TENSOR",
	AttributeFloats:    "FLOATS",
	AttributeInts:      "INTS",
}

// String implements fmt.Stringer.
func (at AttributeType) String() string {
	if name, found := attributeTypeNames[at]; found {
		return name
	}
	return fmt.Sprintf("AttributeType(%d)", int(at))
}

// Attribute is a named node attribute. Only the field matching Type is meaningful.
type Attribute struct {
	Name   string
	Type   AttributeType
	F      float32
	I      int64
	S      string
	T      *Tensor
	Floats []float32
	Ints   []int64
}

// IntAttr creates an integer attribute.
func IntAttr(name string, value int64) *Attribute {
	return &Attribute{Name: name, Type: AttributeInt, I: value}
}

// FloatAttr creates a float attribute.
func FloatAttr(name string, value float32) *Attribute {
	return &Attribute{Name: name, Type: AttributeFloat, F: value}
}

// IntsAttr creates a list of integers attribute.
func IntsAttr(name string, values ...int64) *Attribute {
	return &Attribute{Name: name, Type: AttributeInts, Ints: values}
}

// StringAttr creates a string attribute.
func StringAttr(name, value string) *Attribute {
	return &Attribute{Name: name, Type: AttributeString, S: value}
}

// TensorAttr creates a tensor attribute, as used by "Constant" nodes.
func TensorAttr(name string, value *Tensor) *Attribute {
	return &Attribute{Name: name, Type: AttributeTensor, T: value}
}

// Node is one operation of the graph.
//
// Inputs are positional, in the order defined by the operator. An omitted optional input is
// represented by an edge with an empty name.
type Node struct {
	Name       string
	OpType     string
	Inputs     []*ValueInfo
	Outputs    []*ValueInfo
	Attributes []*Attribute
}

// InputEdges returns the ordered input edges of the node.
func (n *Node) InputEdges() []*ValueInfo {
	if n == nil {
		return nil
	}
	return n.Inputs
}

// Attribute returns the attribute with the given name.
func (n *Node) Attribute(name string) (*Attribute, bool) {
	if n == nil {
		return nil, false
	}
	for _, attr := range n.Attributes {
		if attr != nil && attr.Name == name {
			return attr, true
		}
	}
	return nil, false
}

// InputNames returns the names of the input edges.
func (n *Node) InputNames() []string {
	return sliceMap(n.InputEdges(), edgeName)
}

// OutputNames returns the names of the output edges.
func (n *Node) OutputNames() []string {
	if n == nil {
		return nil
	}
	return sliceMap(n.Outputs, edgeName)
}

// Output returns the name of the first output, or "" if the node has no outputs.
func (n *Node) Output() string {
	if n == nil || len(n.Outputs) == 0 || n.Outputs[0] == nil {
		return ""
	}
	return n.Outputs[0].Name
}

func edgeName(vi *ValueInfo) string {
	if vi == nil {
		return ""
	}
	return vi.Name
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "<nil node>"
	}
	var attrs []string
	for _, attr := range n.Attributes {
		if attr == nil {
			continue
		}
		var value any
		switch attr.Type {
		case AttributeFloat:
			value = attr.F
		case AttributeInt:
			value = attr.I
		case AttributeString:
			value = attr.S
		case AttributeFloats:
			value = attr.Floats
		case AttributeInts:
			value = attr.Ints
		case AttributeTensor:
			if attr.T != nil {
				value = fmt.Sprintf("%s%v", attr.T.DataType, attr.T.Dims)
			}
		case AttributeUndefined:
		}
		attrs = append(attrs, fmt.Sprintf("%s=%v", attr.Name, value))
	}
	return fmt.Sprintf("Node(%q, %s: [%s] -> [%s] {%s})", n.Name, n.OpType,
		strings.Join(n.InputNames(), ", "), strings.Join(n.OutputNames(), ", "), strings.Join(attrs, ", "))
}
