package optimizer

import (
	"slices"

	"github.com/gomlx/onnx-rewrite/onnx"
	"k8s.io/klog/v2"
)

// ExtractIntSequence returns a copy of the values of the Int64 or Int32 initializer backing edge, widened
// to int64, in flat (row-major) order. The initializer may also be a graph input.
//
// It returns false if there is no such initializer, or if it holds another element type.
func ExtractIntSequence(g InitializerSource, edge *onnx.ValueInfo) ([]int64, bool) {
	values, ok := AppendIntSequence(nil, g, edge)
	if !ok {
		return nil, false
	}
	if values == nil {
		values = []int64{}
	}
	return values, true
}

// AppendIntSequence is like ExtractIntSequence, but appends the values to dst.
// On failure dst is returned unchanged.
func AppendIntSequence(dst []int64, g InitializerSource, edge *onnx.ValueInfo) ([]int64, bool) {
	if edge == nil {
		return dst, false
	}
	t, found := ResolveConstant(g, edge.Name, AnyInitializer)
	if !found {
		return dst, false
	}
	switch t.DataType {
	case onnx.Int64:
		values, err := onnx.FlatData[int64](t)
		if err != nil {
			klog.V(2).Infof("optimizer: cannot extract values of %q: %v", edge.Name, err)
			return dst, false
		}
		return append(dst, values...), true
	case onnx.Int32:
		values, err := onnx.FlatData[int32](t)
		if err != nil {
			klog.V(2).Infof("optimizer: cannot extract values of %q: %v", edge.Name, err)
			return dst, false
		}
		dst = slices.Grow(dst, len(values))
		for _, v := range values {
			dst = append(dst, int64(v))
		}
		return dst, true
	case onnx.Float32, onnx.Float64, onnx.Float16, onnx.Undefined:
	}
	return dst, false
}
