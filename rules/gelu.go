package rules

import (
	"math"

	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/gomlx/onnx-rewrite/optimizer"
)

// DecomposedGelu is an exact Gelu written with elementary ops, as exported by PyTorch:
//
//	Mul(Mul(x, Add(Erf(Div(x, √2)), 1)), 0.5)
type DecomposedGelu struct {
	*group

	XInputName string
	OutputName string
}

// Name implements Candidate.
func (c *DecomposedGelu) Name() string { return "DecomposedGelu" }

// Score implements Candidate.
func (c *DecomposedGelu) Score() float32 { return 50 }

// OutputNames implements Candidate.
func (c *DecomposedGelu) OutputNames() []string { return []string{c.OutputName} }

// ExternalInputs implements Candidate.
func (c *DecomposedGelu) ExternalInputs() []string { return []string{c.XInputName} }

func init() {
	Register("DecomposedGelu", detectDecomposedGelu)
}

func detectDecomposedGelu(g *onnx.Graph, consumers map[string][]*onnx.Node) []Candidate {
	var candidates []Candidate
	for _, node := range g.Nodes() {
		if node.OpType != "Div" || len(node.Inputs) != 2 || node.Output() == "" {
			continue
		}
		if cand := matchDecomposedGelu(g, consumers, node); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

// matchDecomposedGelu follows the chain Div → Erf → Add → Mul → Mul from the Div node, checking the
// constants along the way.
func matchDecomposedGelu(g *onnx.Graph, consumers map[string][]*onnx.Node, divNode *onnx.Node) *DecomposedGelu {
	x := divNode.Inputs[0]
	if x.Name == "" || !optimizer.MatchesFloatValue(g, divNode.Inputs[1], math.Sqrt2, optimizer.ConstantOnly) {
		return nil
	}
	cand := &DecomposedGelu{group: newGroup(divNode), XInputName: x.Name}

	divOut := divNode.Output()
	erfNode := soleConsumerOfType(consumers, divOut, "Erf")
	if erfNode == nil {
		return nil
	}
	cand.add(erfNode, divOut)

	erfOut := erfNode.Output()
	addNode := soleConsumerOfType(consumers, erfOut, "Add")
	if addNode == nil || !optimizer.MatchesFloatValue(g, otherInput(addNode, erfOut), 1.0, optimizer.ConstantOnly) {
		return nil
	}
	cand.add(addNode, erfOut)

	// x * (1 + erf(x/√2)), with the operands in any order.
	addOut := addNode.Output()
	mulNode := soleConsumerOfType(consumers, addOut, "Mul")
	if mulNode == nil || len(mulNode.Inputs) != 2 {
		return nil
	}
	xIndex := optimizer.IndexOfInput(mulNode, x)
	if xIndex < 0 || mulNode.Inputs[1-xIndex].Name != addOut {
		return nil
	}
	cand.add(mulNode, addOut)

	mulOut := mulNode.Output()
	halfNode := soleConsumerOfType(consumers, mulOut, "Mul")
	if halfNode == nil || !optimizer.MatchesFloatValue(g, otherInput(halfNode, mulOut), 0.5, optimizer.ConstantOnly) {
		return nil
	}
	cand.add(halfNode, mulOut)
	cand.OutputName = halfNode.Output()

	if cand.escapes(g, consumers) {
		return nil
	}
	return cand
}
