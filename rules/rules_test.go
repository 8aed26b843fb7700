package rules

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCandidate struct {
	name      string
	score     float32
	outputs   []string
	internals sets.Set[string]
}

func (c *fakeCandidate) Name() string                      { return c.name }
func (c *fakeCandidate) Score() float32                    { return c.score }
func (c *fakeCandidate) OutputNames() []string             { return c.outputs }
func (c *fakeCandidate) InternalOutputs() sets.Set[string] { return c.internals }
func (c *fakeCandidate) ExternalInputs() []string          { return nil }

// withDetectors replaces the registered detectors for the duration of the test.
func withDetectors(t *testing.T, detectors ...namedDetector) {
	muDetectors.Lock()
	saved := registeredDetectors
	registeredDetectors = detectors
	muDetectors.Unlock()
	t.Cleanup(func() {
		muDetectors.Lock()
		registeredDetectors = saved
		muDetectors.Unlock()
	})
}

func returning(candidates ...Candidate) Detector {
	return func(*onnx.Graph, map[string][]*onnx.Node) []Candidate { return candidates }
}

func TestRegistry(t *testing.T) {
	assert.ElementsMatch(t, []string{"DenseGelu", "DecomposedGelu", "ScaledSoftmax", "StaticReshape"}, Detectors())

	withDetectors(t)
	Register("first", returning())
	Register("second", returning())
	Register("first", returning(&fakeCandidate{name: "replaced", outputs: []string{"y"}}))
	assert.Equal(t, []string{"first", "second"}, Detectors())
	selected, err := Detect(onnx.NewGraph("empty"))
	require.NoError(t, err)
	require.Contains(t, selected, "y")
	assert.Equal(t, "replaced", selected["y"].Name())
}

func TestDetectSelection(t *testing.T) {
	low := &fakeCandidate{name: "low", score: 10, outputs: []string{"y"}, internals: sets.MakeWith("a")}
	high := &fakeCandidate{name: "high", score: 20, outputs: []string{"z"}, internals: sets.MakeWith("a", "b")}
	unrelated := &fakeCandidate{name: "unrelated", score: 5, outputs: []string{"w", "v"}, internals: sets.Make[string]()}
	sameOutput := &fakeCandidate{name: "sameOutput", score: 20, outputs: []string{"z"}, internals: sets.Make[string]()}
	withDetectors(t,
		namedDetector{"low", returning(low, unrelated)},
		namedDetector{"high", returning(high)},
		namedDetector{"sameOutput", returning(sameOutput)},
	)

	selected, err := Detect(onnx.NewGraph("selection"))
	require.NoError(t, err)
	assert.Len(t, selected, 3)
	assert.Same(t, high, selected["z"], "ties are broken by registration order")
	assert.Same(t, unrelated, selected["w"])
	assert.Same(t, unrelated, selected["v"])
	assert.NotContains(t, selected, "y", "overlaps high on internal output \"a\"")
}

func TestDetectFailures(t *testing.T) {
	found := &fakeCandidate{name: "found", score: 1, outputs: []string{"y"}}
	withDetectors(t,
		namedDetector{"panics", func(*onnx.Graph, map[string][]*onnx.Node) []Candidate {
			exceptions.Panicf("unexpected node")
			return nil
		}},
		namedDetector{"works", returning(found)},
	)
	selected, err := Detect(onnx.NewGraph("failures"))
	require.NoError(t, err)
	assert.Equal(t, map[string]Candidate{"y": found}, selected)

	_, err = Detect(nil)
	require.Error(t, err)

	cyclic := onnx.NewGraph("cyclic")
	must.M1(cyclic.AddNode("Neg", "n1", []string{"q"}, []string{"p"}))
	must.M1(cyclic.AddNode("Neg", "n2", []string{"p"}, []string{"q"}))
	_, err = Detect(cyclic)
	require.Error(t, err)
}

func TestHelpers(t *testing.T) {
	g := onnx.NewGraph("helpers")
	add := must.M1(g.AddNode("Add", "add", []string{"a", "b"}, []string{"c"}))
	unary := must.M1(g.AddNode("Neg", "neg", []string{"c"}, []string{"d"}))
	must.M1(g.AddNode("Relu", "relu1", []string{"d"}, []string{"e"}))
	must.M1(g.AddNode("Relu", "relu2", []string{"d"}, []string{"f"}))
	consumers := g.Consumers()

	assert.Equal(t, "b", otherInput(add, "a").Name)
	assert.Equal(t, "a", otherInput(add, "b").Name)
	assert.Nil(t, otherInput(add, "x"))
	assert.Nil(t, otherInput(unary, "c"))

	assert.Same(t, unary, soleConsumer(consumers, "c"))
	assert.Nil(t, soleConsumer(consumers, "d"))
	assert.Nil(t, soleConsumer(consumers, "f"))
	assert.Same(t, unary, soleConsumerOfType(consumers, "c", "Neg"))
	assert.Nil(t, soleConsumerOfType(consumers, "c", "Abs"))

	grp := newGroup(add)
	grp.add(unary, "c")
	assert.False(t, grp.escapes(g, consumers))
	grp.internals.Insert("d")
	assert.True(t, grp.escapes(g, consumers), "d is consumed by relu1 and relu2")

	require.NoError(t, g.AddOutput(onnx.NewValueInfo("c", onnx.Float32)))
	grp = newGroup(add)
	grp.add(unary, "c")
	assert.True(t, grp.escapes(g, consumers), "c is a graph output")
}
