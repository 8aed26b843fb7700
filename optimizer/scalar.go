package optimizer

import "github.com/gomlx/onnx-rewrite/onnx"

// IsScalar returns whether the edge is a scalar: rank 0, or rank 1 with a single dimension known to be 1.
// An edge without shape information is not a scalar.
func IsScalar(edge *onnx.ValueInfo) bool {
	if !edge.HasShape() {
		return false
	}
	dims := edge.Shape.Dims
	switch len(dims) {
	case 0:
		return true
	case 1:
		return dims[0].HasValue() && dims[0].Value() == 1
	default:
		return false
	}
}
