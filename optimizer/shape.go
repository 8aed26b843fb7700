package optimizer

import "github.com/gomlx/onnx-rewrite/onnx"

// MatchesShape returns whether the shape of edge has the rank len(expectedDims) and, for every positive
// expected value, the dimension at the same position is known and equal to it.
//
// Expected values <= 0 are wildcards: that dimension is not checked, known or not.
func MatchesShape(edge *onnx.ValueInfo, expectedDims ...int64) bool {
	if !edge.HasShape() || edge.Shape.Rank() != len(expectedDims) {
		return false
	}
	for axis, expected := range expectedDims {
		if expected <= 0 {
			continue
		}
		dim := edge.Shape.Dims[axis]
		if !dim.HasValue() || dim.Value() != expected {
			return false
		}
	}
	return true
}

// AllDimsKnown returns whether the shape of edge has rank expectedRank and all its dimensions are known.
func AllDimsKnown(edge *onnx.ValueInfo, expectedRank int) bool {
	if !edge.HasShape() || edge.Shape.Rank() != expectedRank {
		return false
	}
	for _, dim := range edge.Shape.Dims {
		if !dim.HasValue() {
			return false
		}
	}
	return true
}

// KnownDims returns the dimensions of edge if its shape is fully known.
func KnownDims(edge *onnx.ValueInfo) ([]int64, bool) {
	if !edge.HasShape() || !AllDimsKnown(edge, edge.Shape.Rank()) {
		return nil, false
	}
	dims := make([]int64, edge.Shape.Rank())
	for axis, dim := range edge.Shape.Dims {
		dims[axis] = dim.Value()
	}
	return dims, true
}
