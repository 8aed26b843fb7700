// Package optimizer implements the precondition checks used by graph rewrite rules before they
// replace a subgraph: constant scalar values, constant initializer resolution, integer tensor
// extraction, shape and attribute validation, input lookups and input type compatibility.
//
// All functions are pure reads of the graph. None of them panics or returns an error: malformed or
// missing information is reported as a non-match (false, not found or -1), so rules can treat it the
// same way as an actual mismatch.
package optimizer

import (
	"github.com/gomlx/onnx-rewrite/onnx"
)

// InitializerSource is the part of the graph used to resolve initializers. *onnx.Graph implements it.
type InitializerSource interface {
	// Initializer returns any initializer with the given name.
	Initializer(name string) (*onnx.Tensor, bool)

	// ConstantInitializer returns the initializer with the given name only if it is not also
	// declared as a graph input.
	ConstantInitializer(name string) (*onnx.Tensor, bool)
}

// NodeView is the part of a node inspected by the predicates. *onnx.Node implements it.
type NodeView interface {
	InputEdges() []*onnx.ValueInfo
	Attribute(name string) (*onnx.Attribute, bool)
}
