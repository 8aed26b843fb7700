package rules

import (
	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/gomlx/onnx-rewrite/optimizer"
)

// ScaledSoftmax is a Softmax over the last axis of x multiplied (or divided) by a constant scalar,
// as in attention scores: Softmax(x * Scale).
type ScaledSoftmax struct {
	*group

	XInputName string
	ScaleName  string
	OutputName string

	// Scale is the multiplier applied to x: for a Div node it is the inverse of the divisor.
	Scale float64

	// StaticShape is set if all dimensions of x are known.
	StaticShape bool
}

// Name implements Candidate.
func (c *ScaledSoftmax) Name() string { return "ScaledSoftmax" }

// Score implements Candidate.
func (c *ScaledSoftmax) Score() float32 { return 40 }

// OutputNames implements Candidate.
func (c *ScaledSoftmax) OutputNames() []string { return []string{c.OutputName} }

// ExternalInputs implements Candidate.
func (c *ScaledSoftmax) ExternalInputs() []string { return []string{c.XInputName} }

func init() {
	Register("ScaledSoftmax", detectScaledSoftmax)
}

func detectScaledSoftmax(g *onnx.Graph, consumers map[string][]*onnx.Node) []Candidate {
	var candidates []Candidate
	for _, node := range g.Nodes() {
		if node.OpType != "Softmax" || len(node.Inputs) != 1 || node.Output() == "" {
			continue
		}
		if cand := matchScaledSoftmax(g, consumers, node); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

// matchScaledSoftmax matches backwards from the Softmax node to the Mul or Div producing its input.
func matchScaledSoftmax(g *onnx.Graph, consumers map[string][]*onnx.Node, softmaxNode *onnx.Node) *ScaledSoftmax {
	scaled := softmaxNode.Inputs[0]
	scaleNode := g.Producer(scaled.Name)
	if scaleNode == nil || len(scaleNode.Inputs) != 2 || soleConsumer(consumers, scaled.Name) != softmaxNode {
		return nil
	}

	var x, scaleEdge *onnx.ValueInfo
	var scale float64
	switch scaleNode.OpType {
	case "Mul":
		// The constant may be either operand.
		for _, edge := range scaleNode.Inputs {
			if value, found := optimizer.ScalarFloatValue(g, edge, optimizer.ConstantOnly); found {
				scaleEdge, scale = edge, value
				break
			}
		}
		if scaleEdge == nil {
			return nil
		}
		x = scaleNode.Inputs[1-optimizer.IndexOfInput(scaleNode, scaleEdge)]
	case "Div":
		divisor, found := optimizer.ScalarFloatValue(g, scaleNode.Inputs[1], optimizer.ConstantOnly)
		if !found || divisor == 0 {
			return nil
		}
		x, scaleEdge, scale = scaleNode.Inputs[0], scaleNode.Inputs[1], 1/divisor
	default:
		return nil
	}
	if x.Name == "" || x.Name == scaleEdge.Name {
		return nil
	}

	// Softmax defaults to the last axis since opset 13.
	if _, found := optimizer.IntAttribute(softmaxNode, "axis"); found && !optimizer.MatchesIntAttribute(softmaxNode, "axis", -1) {
		shape, hasShape := scaled.ShapeOf()
		if !hasShape {
			shape, hasShape = x.ShapeOf()
		}
		if !hasShape || !optimizer.MatchesIntAttribute(softmaxNode, "axis", int64(shape.Rank()-1)) {
			return nil
		}
	}

	cand := &ScaledSoftmax{
		group:      newGroup(scaleNode),
		XInputName: x.Name,
		ScaleName:  scaleEdge.Name,
		OutputName: softmaxNode.Output(),
		Scale:      scale,
	}
	if x.HasShape() {
		cand.StaticShape = optimizer.AllDimsKnown(x, x.Shape.Rank())
	}
	cand.add(softmaxNode, scaled.Name)
	if cand.escapes(g, consumers) {
		return nil
	}
	return cand
}
