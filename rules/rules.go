// Package rules detects rewrite opportunities in an ONNX graph: subgraphs matching a known pattern whose
// preconditions (constant weights, exact constant values, attributes, shapes and types) are verified with
// the optimizer predicates.
//
// Detection never changes the graph. Each detected Candidate describes which edges would be replaced
// (its outputs and internal outputs) and what it would read from the rest of the graph (its external inputs).
package rules

import (
	"cmp"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Candidate is a detected pattern that could replace a group of nodes.
type Candidate interface {
	// Name returns the rule name (e.g. "DenseGelu", "ScaledSoftmax").
	Name() string

	// Score returns the priority of the candidate. Higher scores are preferred when candidates overlap.
	Score() float32

	// OutputNames returns the edges produced by the group and visible outside of it.
	OutputNames() []string

	// InternalOutputs returns the intermediary edges produced and consumed only inside the group.
	InternalOutputs() sets.Set[string]

	// ExternalInputs returns the edges from outside the group that it reads.
	ExternalInputs() []string
}

// Detector scans the graph and returns the candidates it finds.
// consumers maps each edge name to the nodes using it as input, as returned by onnx.Graph.Consumers.
//
// A detector that hits an unexpected condition may panic with an error (e.g. exceptions.Panicf): Detect logs
// it and skips the detector.
type Detector func(g *onnx.Graph, consumers map[string][]*onnx.Node) []Candidate

type namedDetector struct {
	name   string
	detect Detector
}

var (
	muDetectors         sync.Mutex
	registeredDetectors []namedDetector
)

// Register adds a detector to the global registry, used by Detect.
// Registering a name twice replaces the previous detector.
func Register(name string, d Detector) {
	muDetectors.Lock()
	defer muDetectors.Unlock()
	for ii := range registeredDetectors {
		if registeredDetectors[ii].name == name {
			registeredDetectors[ii].detect = d
			return
		}
	}
	registeredDetectors = append(registeredDetectors, namedDetector{name: name, detect: d})
}

// Detectors returns the names of the registered detectors, in registration order.
func Detectors() []string {
	muDetectors.Lock()
	defer muDetectors.Unlock()
	names := make([]string, len(registeredDetectors))
	for ii, nd := range registeredDetectors {
		names[ii] = nd.name
	}
	return names
}

// Detect runs all registered detectors over the graph, sorts the candidates by score (descending) and
// greedily selects non-overlapping ones.
//
// It returns a map from each output name of the selected candidates to its candidate.
// The graph must be sortable (no cycles or dangling inputs), and it is only read.
func Detect(g *onnx.Graph) (map[string]Candidate, error) {
	if g == nil {
		return nil, errors.New("rules.Detect: nil graph")
	}
	if _, err := g.SortedNodes(); err != nil {
		return nil, errors.WithMessage(err, "rules.Detect")
	}
	consumers := g.Consumers()

	muDetectors.Lock()
	detectors := slices.Clone(registeredDetectors)
	muDetectors.Unlock()

	// Collect all candidates from all detectors.
	var allCandidates []Candidate
	for _, nd := range detectors {
		var found []Candidate
		err := exceptions.TryCatch[error](func() { found = nd.detect(g, consumers) })
		if err != nil {
			klog.Warningf("rules: detector %q failed on graph %q, skipping it: %+v", nd.name, g.Name, err)
			continue
		}
		klog.V(2).Infof("rules: detector %q found %d candidates in graph %q", nd.name, len(found), g.Name)
		allCandidates = append(allCandidates, found...)
	}

	// Stable sort keeps the registration order among candidates with the same score.
	slices.SortStableFunc(allCandidates, func(a, b Candidate) int {
		return cmp.Compare(b.Score(), a.Score())
	})

	// Greedily select non-overlapping candidates.
	selected := make(map[string]Candidate)
	claimed := sets.Make[string]()
	for _, cand := range allCandidates {
		if overlaps(claimed, cand) {
			klog.V(3).Infof("rules: dropping %s candidate for %v: overlaps a higher scored one", cand.Name(), cand.OutputNames())
			continue
		}
		for _, name := range cand.OutputNames() {
			claimed.Insert(name)
			selected[name] = cand
		}
		for name := range cand.InternalOutputs() {
			claimed.Insert(name)
		}
	}
	return selected, nil
}

// overlaps checks if any output or internal output of the candidate is already claimed.
func overlaps(claimed sets.Set[string], cand Candidate) bool {
	for _, name := range cand.OutputNames() {
		if claimed.Has(name) {
			return true
		}
	}
	for name := range cand.InternalOutputs() {
		if claimed.Has(name) {
			return true
		}
	}
	return false
}

// group tracks the nodes and intermediary edges of a candidate while it is being matched.
type group struct {
	nodes     sets.Set[*onnx.Node]
	internals sets.Set[string]
}

func newGroup(root *onnx.Node) *group {
	grp := &group{nodes: sets.Make[*onnx.Node](), internals: sets.Make[string]()}
	grp.nodes.Insert(root)
	return grp
}

// add node to the group, making the edge linking it to the group internal.
func (grp *group) add(node *onnx.Node, internalOutput string) {
	grp.nodes.Insert(node)
	grp.internals.Insert(internalOutput)
}

// InternalOutputs implements Candidate.
func (grp *group) InternalOutputs() sets.Set[string] {
	return grp.internals
}

// escapes checks whether any of the internal outputs is a graph output or is consumed by a node outside
// the group.
func (grp *group) escapes(g *onnx.Graph, consumers map[string][]*onnx.Node) bool {
	for _, output := range g.Outputs() {
		if grp.internals.Has(output.Name) {
			return true
		}
	}
	for outputName := range grp.internals {
		for _, consumer := range consumers[outputName] {
			if !grp.nodes.Has(consumer) {
				return true
			}
		}
	}
	return false
}

// soleConsumer returns the single consumer of outputName, or nil if there are 0 or 2+ consumers.
func soleConsumer(consumers map[string][]*onnx.Node, outputName string) *onnx.Node {
	list := consumers[outputName]
	if len(list) == 1 {
		return list[0]
	}
	return nil
}

// soleConsumerOfType is like soleConsumer, but also requires the consumer to have the given op type
// and at least one output.
func soleConsumerOfType(consumers map[string][]*onnx.Node, outputName, opType string) *onnx.Node {
	node := soleConsumer(consumers, outputName)
	if node == nil || node.OpType != opType || node.Output() == "" {
		return nil
	}
	return node
}

// otherInput returns the input of a binary node that is not knownInput.
// Returns nil if the node doesn't have exactly 2 inputs or knownInput isn't one of them.
func otherInput(node *onnx.Node, knownInput string) *onnx.ValueInfo {
	if len(node.Inputs) != 2 {
		return nil
	}
	if node.Inputs[0].Name == knownInput {
		return node.Inputs[1]
	}
	if node.Inputs[1].Name == knownInput {
		return node.Inputs[0]
	}
	return nil
}
