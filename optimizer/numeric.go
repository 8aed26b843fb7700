package optimizer

import (
	"math"

	"github.com/chewxy/math32"
	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/x448/float16"
	"k8s.io/klog/v2"
)

// Tolerance of the comparison of floating point constants: a decoded value v matches an expected
// value e if |v - e| <= Abs + Rel * |e|.
//
// The relative term uses the expected value only, so the comparison is not symmetric.
type Tolerance struct {
	Abs float64
	Rel float64
}

// DefaultTolerance is used by MatchesFloatValue.
var DefaultTolerance = Tolerance{Abs: 1e-8, Rel: 1e-5}

// MatchesFloatValue returns whether edge is a scalar initializer (selected by lookup) whose value is
// within DefaultTolerance of expected.
//
// Float32 values are compared in single precision and Float64 values in double precision. Float16 values
// are expanded to single precision, and compared to the expected value rounded through half precision,
// so the precision lost when storing the value doesn't prevent a match.
// NaN and infinite values never match, nor do integer initializers. An infinite expected value never
// matches either, even an infinite initializer, and neither does an expected value that overflows the
// precision of the initializer.
func MatchesFloatValue(g InitializerSource, edge *onnx.ValueInfo, expected float64, lookup Lookup) bool {
	return MatchesFloatValueWithTolerance(g, edge, expected, lookup, DefaultTolerance)
}

// MatchesFloatValueWithTolerance is like MatchesFloatValue, but with a custom tolerance.
func MatchesFloatValueWithTolerance(g InitializerSource, edge *onnx.ValueInfo, expected float64, lookup Lookup, tol Tolerance) bool {
	if math.IsNaN(expected) || math.IsInf(expected, 0) {
		return false
	}
	t, found := scalarConstant(g, edge, lookup)
	if !found {
		return false
	}
	switch t.DataType {
	case onnx.Float32:
		value, ok := firstValue[float32](t)
		narrowed := float32(expected)
		return ok && !math32.IsInf(narrowed, 0) && tol.matchFloat32(value, narrowed, narrowed)
	case onnx.Float64:
		value, ok := firstValue[float64](t)
		return ok && tol.matchFloat64(value, expected)
	case onnx.Float16:
		value, ok := firstValue[float16.Float16](t)
		if !ok {
			return false
		}
		narrowed := float32(expected)
		expectedAsHalf := float16.Fromfloat32(narrowed).Float32()
		if math32.IsInf(expectedAsHalf, 0) {
			return false
		}
		return tol.matchFloat32(value.Float32(), expectedAsHalf, narrowed)
	case onnx.Int32, onnx.Int64, onnx.Undefined:
	}
	klog.V(3).Infof("optimizer: initializer %q of type %s is not a floating point constant", t.Name, t.DataType)
	return false
}

// matchFloat32 compares in single precision. The relative tolerance is taken from reference, which
// may differ from expected when the latter was rounded through a narrower encoding.
func (tol Tolerance) matchFloat32(value, expected, reference float32) bool {
	if math32.IsNaN(value) || math32.IsInf(value, 0) {
		return false
	}
	return math32.Abs(value-expected) <= float32(tol.Abs)+float32(tol.Rel)*math32.Abs(reference)
}

// matchFloat64 compares in double precision.
func (tol Tolerance) matchFloat64(value, expected float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	return math.Abs(value-expected) <= tol.Abs+tol.Rel*math.Abs(expected)
}

// MatchesIntValue returns whether edge is a scalar Int64 or Int32 initializer (selected by lookup)
// whose value is exactly expected.
func MatchesIntValue(g InitializerSource, edge *onnx.ValueInfo, expected int64, lookup Lookup) bool {
	value, found := ScalarIntValue(g, edge, lookup)
	return found && value == expected
}

// ScalarIntValue returns the value of edge, if it is a scalar Int64 or Int32 initializer selected by lookup.
func ScalarIntValue(g InitializerSource, edge *onnx.ValueInfo, lookup Lookup) (int64, bool) {
	t, found := scalarConstant(g, edge, lookup)
	if !found {
		return 0, false
	}
	switch t.DataType {
	case onnx.Int64:
		return firstValue[int64](t)
	case onnx.Int32:
		value, ok := firstValue[int32](t)
		return int64(value), ok
	case onnx.Float32, onnx.Float64, onnx.Float16, onnx.Undefined:
	}
	klog.V(3).Infof("optimizer: initializer %q of type %s is not an integer constant", t.Name, t.DataType)
	return 0, false
}

// ScalarFloatValue returns the value of edge, if it is a finite scalar floating point initializer
// selected by lookup.
func ScalarFloatValue(g InitializerSource, edge *onnx.ValueInfo, lookup Lookup) (float64, bool) {
	t, found := scalarConstant(g, edge, lookup)
	if !found {
		return 0, false
	}
	var (
		value float64
		ok    bool
	)
	switch t.DataType {
	case onnx.Float32:
		var v float32
		v, ok = firstValue[float32](t)
		value = float64(v)
	case onnx.Float64:
		value, ok = firstValue[float64](t)
	case onnx.Float16:
		var v float16.Float16
		v, ok = firstValue[float16.Float16](t)
		value = float64(v.Float32())
	case onnx.Int32, onnx.Int64, onnx.Undefined:
	}
	if !ok || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// IsFloatingPointType returns whether the tensor holds Float32, Float64 or Float16 values.
func IsFloatingPointType(t *onnx.Tensor) bool {
	return t != nil && t.DataType.IsFloat()
}

// scalarConstant resolves the initializer of a scalar edge.
func scalarConstant(g InitializerSource, edge *onnx.ValueInfo, lookup Lookup) (*onnx.Tensor, bool) {
	if !IsScalar(edge) {
		return nil, false
	}
	return ResolveConstant(g, edge.Name, lookup)
}

// firstValue decodes the first element of the tensor.
func firstValue[T onnx.Element](t *onnx.Tensor) (value T, ok bool) {
	values, err := onnx.FlatData[T](t)
	if err != nil {
		klog.V(2).Infof("optimizer: ignoring malformed initializer: %v", err)
		return
	}
	if len(values) == 0 {
		return
	}
	return values[0], true
}
