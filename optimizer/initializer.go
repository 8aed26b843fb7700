package optimizer

import (
	"fmt"

	"github.com/gomlx/onnx-rewrite/onnx"
)

// Lookup selects which initializers ResolveConstant may return.
type Lookup int

const (
	// ConstantOnly resolves only provable constants: initializers that are not also graph inputs,
	// since those can be overridden by the caller of the graph.
	ConstantOnly Lookup = iota

	// AnyInitializer resolves any initializer, including the ones that are also graph inputs.
	AnyInitializer
)

// String implements fmt.Stringer.
func (l Lookup) String() string {
	switch l {
	case ConstantOnly:
		return "ConstantOnly"
	case AnyInitializer:
		return "AnyInitializer"
	}
	return fmt.Sprintf("Lookup(%d)", int(l))
}

// ResolveConstant returns the tensor of the initializer with the given name, as selected by lookup.
//
// The returned tensor is owned by the graph: it must not be modified, nor retained beyond the
// evaluation of the current rewrite precondition.
func ResolveConstant(g InitializerSource, name string, lookup Lookup) (*onnx.Tensor, bool) {
	if g == nil || name == "" {
		return nil, false
	}
	var (
		t     *onnx.Tensor
		found bool
	)
	switch lookup {
	case ConstantOnly:
		t, found = g.ConstantInitializer(name)
	case AnyInitializer:
		t, found = g.Initializer(name)
	}
	if !found || t == nil {
		return nil, false
	}
	return t, true
}
