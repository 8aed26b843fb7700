package onnx

import (
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// Graph is an ONNX graph: initializers, declared inputs and outputs, edges and nodes.
//
// Build it with NewGraph and the Add* methods. After that it is only read, and its read methods are
// safe for concurrent use.
type Graph struct {
	Name string

	initializers     map[string]*Tensor
	initializerNames []string
	inputs           []*ValueInfo
	inputNames       sets.Set[string]
	outputs          []*ValueInfo
	valueInfos       map[string]*ValueInfo
	nodes            []*Node
	producers        map[string]*Node
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:         name,
		initializers: make(map[string]*Tensor),
		inputNames:   sets.Make[string](),
		valueInfos:   make(map[string]*ValueInfo),
		producers:    make(map[string]*Node),
	}
}

// AddInitializer adds a constant tensor to the graph. Initializer names must be unique.
//
// The tensor contents are not validated here (see Tensor.Validate and Graph.Validate): readers
// of the graph must cope with malformed tensors.
func (g *Graph) AddInitializer(t *Tensor) error {
	if t == nil {
		return errors.Errorf("graph %q: nil initializer", g.Name)
	}
	if t.Name == "" {
		return errors.Errorf("graph %q: initializer with empty name", g.Name)
	}
	if _, found := g.initializers[t.Name]; found {
		return errors.Errorf("graph %q: initializer %q defined more than once", g.Name, t.Name)
	}
	g.initializers[t.Name] = t
	g.initializerNames = append(g.initializerNames, t.Name)
	// Information derived from the tensor never overrides declared information.
	derived := &ValueInfo{Name: t.Name, Type: t.DataType.TypeName(), Shape: MakeShape(t.Dims...)}
	if existing, found := g.valueInfos[t.Name]; found {
		existing.merge(derived)
	} else {
		g.registerValueInfo(derived)
	}
	return nil
}

// AddInput declares a graph input. If an initializer with the same name exists (or is added later), it
// becomes a default value that callers of the graph may override.
func (g *Graph) AddInput(vi *ValueInfo) error {
	if vi == nil || vi.Name == "" {
		return errors.Errorf("graph %q: input must have a name", g.Name)
	}
	if g.inputNames.Has(vi.Name) {
		return errors.Errorf("graph %q: input %q declared more than once", g.Name, vi.Name)
	}
	g.inputNames.Insert(vi.Name)
	g.inputs = append(g.inputs, g.registerValueInfo(vi))
	return nil
}

// AddOutput declares a graph output.
func (g *Graph) AddOutput(vi *ValueInfo) error {
	if vi == nil || vi.Name == "" {
		return errors.Errorf("graph %q: output must have a name", g.Name)
	}
	g.outputs = append(g.outputs, g.registerValueInfo(vi))
	return nil
}

// AddValueInfo registers type and shape information for an intermediary edge.
func (g *Graph) AddValueInfo(vi *ValueInfo) error {
	if vi == nil || vi.Name == "" {
		return errors.Errorf("graph %q: value info must have a name", g.Name)
	}
	g.registerValueInfo(vi)
	return nil
}

// AddNode appends a node to the graph. Inputs and outputs are edge names: edges not yet known are
// created without type or shape. Use "" for an omitted optional input.
//
// Each output can only be produced by one node.
func (g *Graph) AddNode(opType, name string, inputs, outputs []string, attrs ...*Attribute) (*Node, error) {
	if opType == "" {
		return nil, errors.Errorf("graph %q: node %q has no op type", g.Name, name)
	}
	for _, output := range outputs {
		if output == "" {
			continue
		}
		if other, found := g.producers[output]; found {
			return nil, errors.Errorf("graph %q: output %q of node %q is already produced by %s",
				g.Name, output, name, other)
		}
		if g.inputNames.Has(output) {
			return nil, errors.Errorf("graph %q: output %q of node %q is a graph input", g.Name, output, name)
		}
	}
	node := &Node{
		Name:       name,
		OpType:     opType,
		Inputs:     sliceMap(inputs, g.edge),
		Outputs:    sliceMap(outputs, g.edge),
		Attributes: attrs,
	}
	for _, output := range outputs {
		if output != "" {
			g.producers[output] = node
		}
	}
	g.nodes = append(g.nodes, node)
	return node, nil
}

// edge returns the registered edge with the given name, creating it if needed.
// The empty name (omitted optional input) is never registered.
func (g *Graph) edge(name string) *ValueInfo {
	if name == "" {
		return &ValueInfo{}
	}
	return g.registerValueInfo(&ValueInfo{Name: name})
}

// registerValueInfo returns the registered edge for vi.Name, merging vi's type and shape into it.
// Edges are shared by pointer, so nodes already referencing it see the updated information.
func (g *Graph) registerValueInfo(vi *ValueInfo) *ValueInfo {
	if existing, found := g.valueInfos[vi.Name]; found {
		if existing != vi {
			// Declared information (inputs, value infos) overrides what was derived so far.
			if vi.Type != "" {
				existing.Type = vi.Type
			}
			if vi.Shape != nil {
				existing.Shape = vi.Shape
			}
		}
		return existing
	}
	registered := &ValueInfo{Name: vi.Name}
	registered.merge(vi)
	g.valueInfos[vi.Name] = registered
	return registered
}

// Initializer returns the initializer with the given name, whether or not it is also a graph input.
func (g *Graph) Initializer(name string) (*Tensor, bool) {
	if g == nil {
		return nil, false
	}
	t, found := g.initializers[name]
	return t, found
}

// ConstantInitializer returns the initializer with the given name, only if it is not also declared as
// a graph input: graph inputs can be overridden by the caller, so they are not constants.
func (g *Graph) ConstantInitializer(name string) (*Tensor, bool) {
	if g == nil || g.inputNames.Has(name) {
		return nil, false
	}
	return g.Initializer(name)
}

// IsInput returns whether name is declared as a graph input.
func (g *Graph) IsInput(name string) bool {
	return g != nil && g.inputNames.Has(name)
}

// ValueInfo returns the edge with the given name.
func (g *Graph) ValueInfo(name string) (*ValueInfo, bool) {
	if g == nil {
		return nil, false
	}
	vi, found := g.valueInfos[name]
	return vi, found
}

// Edge returns the edge with the given name. Unknown names return a fresh edge without type or shape,
// which is not registered in the graph.
func (g *Graph) Edge(name string) *ValueInfo {
	if vi, found := g.ValueInfo(name); found {
		return vi
	}
	return &ValueInfo{Name: name}
}

// InitializerNames returns the names of the initializers, in the order they were added.
func (g *Graph) InitializerNames() []string {
	return g.initializerNames
}

// Inputs returns the declared graph inputs.
func (g *Graph) Inputs() []*ValueInfo { return g.inputs }

// Outputs returns the declared graph outputs.
func (g *Graph) Outputs() []*ValueInfo { return g.outputs }

// Nodes returns the nodes in the order they were added.
func (g *Graph) Nodes() []*Node { return g.nodes }

// Producer returns the node that outputs the edge name, or nil if it is an input, an initializer or unknown.
func (g *Graph) Producer(name string) *Node {
	return g.producers[name]
}

// Consumers builds a map from edge name to all nodes that take it as input.
func (g *Graph) Consumers() map[string][]*Node {
	consumers := make(map[string][]*Node)
	for _, node := range g.nodes {
		for _, input := range node.Inputs {
			if input == nil || input.Name == "" {
				continue
			}
			consumers[input.Name] = append(consumers[input.Name], node)
		}
	}
	return consumers
}

// SoleConsumer returns the only node consuming the edge name, or nil if it has 0 or 2+ consumers.
// A node taking the edge in more than one input counts once.
func (g *Graph) SoleConsumer(name string) *Node {
	var sole *Node
	for _, node := range g.nodes {
		for _, input := range node.Inputs {
			if input == nil || input.Name != name || name == "" {
				continue
			}
			if sole != nil && sole != node {
				return nil
			}
			sole = node
		}
	}
	return sole
}

// Validate checks that all initializers hold valid tensors.
func (g *Graph) Validate() error {
	for _, name := range g.initializerNames {
		if err := g.initializers[name].Validate(); err != nil {
			return errors.WithMessagef(err, "graph %q", g.Name)
		}
	}
	return nil
}

// SortedNodes returns a DAG sorting of the graph: every node comes after the producers of its inputs.
//
// It returns an error if some node is not reachable from the inputs and initializers: either because
// of a cycle, or because one of its inputs is not produced anywhere.
func (g *Graph) SortedNodes() ([]*Node, error) {
	sortedNodes := make([]*Node, 0, len(g.nodes))

	// Reverse dependency map.
	outputToDependants := make(map[string]sets.Set[*Node])
	for _, node := range g.nodes {
		for _, input := range node.InputNames() {
			if input == "" {
				continue
			}
			deps, found := outputToDependants[input]
			if !found {
				deps = sets.Make[*Node]()
				outputToDependants[input] = deps
			}
			deps.Insert(node)
		}
	}

	doneOutputs := sets.Make[string]()
	doneNodes := sets.Make[*Node]()
	isReady := func(node *Node) bool {
		for _, input := range node.InputNames() {
			if input != "" && !doneOutputs.Has(input) {
				return false
			}
		}
		return true
	}

	nextDoneScan := sets.Make[string]()
	markNodeDone := func(node *Node) {
		sortedNodes = append(sortedNodes, node)
		doneNodes.Insert(node)
		for _, output := range node.OutputNames() {
			if output == "" {
				continue
			}
			doneOutputs.Insert(output)
			nextDoneScan.Insert(output)
		}
	}

	// Inputs, initializers and nodes without inputs are ready from the start.
	for _, input := range g.inputs {
		doneOutputs.Insert(input.Name)
		nextDoneScan.Insert(input.Name)
	}
	for _, name := range g.initializerNames {
		doneOutputs.Insert(name)
		nextDoneScan.Insert(name)
	}
	for _, node := range g.nodes {
		if isReady(node) {
			markNodeDone(node)
		}
	}

	for len(nextDoneScan) > 0 {
		scan := slices.Sorted(maps.Keys(nextDoneScan))
		clear(nextDoneScan)
		for _, outputName := range scan {
			for dep := range outputToDependants[outputName] {
				if doneNodes.Has(dep) || !isReady(dep) {
					continue
				}
				markNodeDone(dep)
			}
			delete(outputToDependants, outputName)
		}
	}
	if len(sortedNodes) != len(g.nodes) {
		return nil, errors.Errorf("sorting graph %q failed: only %d out of %d nodes are reachable from inputs and initializers",
			g.Name, len(sortedNodes), len(g.nodes))
	}
	return sortedNodes, nil
}
