package optimizer

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-rewrite/onnx"
)

// IndexOfInput returns the position of edge (compared by name) in the node's inputs, or -1 if it is
// not one of them. If the edge appears more than once, the first position is returned.
func IndexOfInput(node NodeView, edge *onnx.ValueInfo) int32 {
	if isNilNode(node) || edge == nil {
		return -1
	}
	for index, input := range node.InputEdges() {
		if input != nil && input.Name == edge.Name {
			return int32(index)
		}
	}
	return -1
}

// AllInputsHaveType returns whether the declared type of every input edge of the node is in allowed.
// An input without a declared type fails the check. A node without inputs passes it, but a nil node,
// including a nil *onnx.Node, doesn't.
func AllInputsHaveType(node NodeView, allowed sets.Set[string]) bool {
	if isNilNode(node) {
		return false
	}
	for _, input := range node.InputEdges() {
		typeName, found := input.TypeName()
		if !found || !allowed.Has(typeName) {
			return false
		}
	}
	return true
}

// FloatTypeNames returns a new set with the type names of the floating point tensors.
func FloatTypeNames() sets.Set[string] {
	return typeNames(onnx.ElementType.IsFloat)
}

// IntTypeNames returns a new set with the type names of the integer tensors.
func IntTypeNames() sets.Set[string] {
	return typeNames(onnx.ElementType.IsInt)
}

func typeNames(filter func(onnx.ElementType) bool) sets.Set[string] {
	names := sets.Make[string]()
	for _, et := range onnx.ElementTypes {
		if filter(et) {
			names.Insert(et.TypeName())
		}
	}
	return names
}

// isNilNode returns whether node is nil, or holds a nil *onnx.Node.
func isNilNode(node NodeView) bool {
	if node == nil {
		return true
	}
	n, ok := node.(*onnx.Node)
	return ok && n == nil
}
