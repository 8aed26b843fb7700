package rules

import (
	"slices"

	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/gomlx/onnx-rewrite/optimizer"
	"k8s.io/klog/v2"
)

// StaticReshape is a Reshape whose target shape is a constant, with the 0 (copy) and -1 (infer) entries
// resolved, so it can be replaced by a reshape to fixed dimensions.
type StaticReshape struct {
	*group

	XInputName string
	ShapeName  string
	OutputName string

	// Dims is the resolved target shape.
	Dims []int64
}

// Name implements Candidate.
func (c *StaticReshape) Name() string { return "StaticReshape" }

// Score implements Candidate.
func (c *StaticReshape) Score() float32 { return 10 }

// OutputNames implements Candidate.
func (c *StaticReshape) OutputNames() []string { return []string{c.OutputName} }

// ExternalInputs implements Candidate.
func (c *StaticReshape) ExternalInputs() []string { return []string{c.XInputName} }

func init() {
	Register("StaticReshape", detectStaticReshape)
}

func detectStaticReshape(g *onnx.Graph, _ map[string][]*onnx.Node) []Candidate {
	var candidates []Candidate
	for _, node := range g.Nodes() {
		if node.OpType != "Reshape" || len(node.Inputs) != 2 || node.Output() == "" {
			continue
		}
		if cand := matchStaticReshape(g, node); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

func matchStaticReshape(g *onnx.Graph, reshapeNode *onnx.Node) *StaticReshape {
	x, shapeEdge := reshapeNode.Inputs[0], reshapeNode.Inputs[1]
	if _, found := optimizer.ResolveConstant(g, shapeEdge.Name, optimizer.ConstantOnly); !found {
		return nil
	}
	target, found := optimizer.ExtractIntSequence(g, shapeEdge)
	if !found {
		return nil
	}
	allowZero, _ := optimizer.IntAttribute(reshapeNode, "allowzero")
	inputDims, inputKnown := optimizer.KnownDims(x)
	dims, ok := resolveReshapeDims(inputDims, inputKnown, target, allowZero == 1)
	if !ok {
		klog.V(3).Infof("rules: Reshape %q to %v of input %s can't be resolved statically", reshapeNode.Name, target, x)
		return nil
	}

	// A fully declared output shape must agree with the resolved one.
	output := reshapeNode.Outputs[0]
	if _, known := optimizer.KnownDims(output); known && !optimizer.MatchesShape(output, dims...) {
		klog.V(2).Infof("rules: Reshape %q resolves to %v, but its output is declared as %s", reshapeNode.Name, dims, output)
		return nil
	}
	return &StaticReshape{
		group:      newGroup(reshapeNode),
		XInputName: x.Name,
		ShapeName:  shapeEdge.Name,
		OutputName: output.Name,
		Dims:       dims,
	}
}

// resolveReshapeDims replaces the 0 (copy the input dimension, unless allowZero) and -1 (inferred from the
// total size) entries of target. The input dimensions are only used if inputKnown.
func resolveReshapeDims(inputDims []int64, inputKnown bool, target []int64, allowZero bool) ([]int64, bool) {
	dims := slices.Clone(target)
	inferAxis := -1
	product := int64(1)
	for axis, dim := range target {
		switch {
		case dim == -1:
			if inferAxis >= 0 {
				return nil, false
			}
			inferAxis = axis
			continue
		case dim < -1:
			return nil, false
		case dim == 0 && !allowZero:
			if !inputKnown || axis >= len(inputDims) {
				return nil, false
			}
			dims[axis] = inputDims[axis]
		}
		product *= dims[axis]
	}
	if !inputKnown {
		// Without the input size, only fully specified targets can be checked.
		return dims, inferAxis < 0
	}

	total := int64(1)
	for _, dim := range inputDims {
		total *= dim
	}
	if inferAxis >= 0 {
		if product == 0 || total%product != 0 {
			return nil, false
		}
		dims[inferAxis] = total / product
		product = total
	}
	if product != total {
		return nil, false
	}
	return dims, true
}
