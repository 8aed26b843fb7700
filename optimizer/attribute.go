package optimizer

import "github.com/gomlx/onnx-rewrite/onnx"

// MatchesIntAttribute returns whether the node has an integer attribute attrName equal to expected.
func MatchesIntAttribute(node NodeView, attrName string, expected int64) bool {
	value, found := IntAttribute(node, attrName)
	return found && value == expected
}

// IntAttribute returns the value of the integer attribute attrName of the node.
// It returns false if the attribute is absent or holds another kind of value.
func IntAttribute(node NodeView, attrName string) (int64, bool) {
	if isNilNode(node) {
		return 0, false
	}
	attr, found := node.Attribute(attrName)
	if !found || attr == nil || attr.Type != onnx.AttributeInt {
		return 0, false
	}
	return attr.I, true
}
