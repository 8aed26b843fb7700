package onnx

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// String implements fmt.Stringer, and pretty prints graph information.
func (g *Graph) String() string {
	if g == nil {
		return "<nil graph>"
	}
	var buf bytes.Buffer
	// w writes formatted text to buf.
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("ONNX Graph %q:\n", g.Name)
	w("\t# nodes:\t%d\n", len(g.nodes))
	opTypesSet := sets.Make[string]()
	for _, n := range g.nodes {
		opTypesSet.Insert(n.OpType)
	}
	w("\tOp types:\t%#v\n", slices.Sorted(maps.Keys(opTypesSet)))

	w("\tInputs:\t[")
	for ii, input := range g.inputs {
		if ii > 0 {
			w(", ")
		}
		w("%s", input)
	}
	w("]\n")

	w("\tOutputs:\t[")
	for ii, output := range g.outputs {
		if ii > 0 {
			w(", ")
		}
		w("%s", output)
	}
	w("]\n")

	if len(g.initializerNames) > 0 {
		w("\tInitializers:\n")
		for _, name := range g.initializerNames {
			t := g.initializers[name]
			suffix := ""
			if g.inputNames.Has(name) {
				suffix = " (overridable input)"
			}
			w("\t\t%q: %s%v%s\n", name, t.DataType, t.Dims, suffix)
		}
	}
	return buf.String()
}
