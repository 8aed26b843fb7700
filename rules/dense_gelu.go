package rules

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/onnx-rewrite/onnx"
	"github.com/gomlx/onnx-rewrite/optimizer"
)

// DenseGelu is a detected MatMul(x, W) → [Add(·, bias)] → Gelu(·), with constant weights and bias.
type DenseGelu struct {
	*group

	XInputName     string
	WeightName     string
	BiasName       string // empty if no bias
	GeluOutputName string
}

// Name implements Candidate.
func (c *DenseGelu) Name() string { return "DenseGelu" }

// Score implements Candidate.
func (c *DenseGelu) Score() float32 { return 60 }

// OutputNames implements Candidate.
func (c *DenseGelu) OutputNames() []string { return []string{c.GeluOutputName} }

// ExternalInputs implements Candidate.
func (c *DenseGelu) ExternalInputs() []string {
	inputs := []string{c.XInputName, c.WeightName}
	if c.BiasName != "" {
		inputs = append(inputs, c.BiasName)
	}
	return inputs
}

func init() {
	Register("DenseGelu", detectDenseGelu)
}

// detectDenseGelu scans the graph for:
//
//	MatMul(x, W) → [Add(·, bias)] → Gelu(·)
func detectDenseGelu(g *onnx.Graph, consumers map[string][]*onnx.Node) []Candidate {
	var candidates []Candidate
	floatTypes := optimizer.FloatTypeNames()
	for _, node := range g.Nodes() {
		if node.OpType != "MatMul" || len(node.Inputs) != 2 || node.Output() == "" {
			continue
		}
		if cand := matchDenseGelu(g, consumers, node, floatTypes); cand != nil {
			candidates = append(candidates, cand)
		}
	}
	return candidates
}

// matchDenseGelu attempts to match MatMul → [Add bias] → Gelu starting from a MatMul node.
func matchDenseGelu(g *onnx.Graph, consumers map[string][]*onnx.Node, matmulNode *onnx.Node, floatTypes sets.Set[string]) *DenseGelu {
	weight := matmulNode.Inputs[1]
	// Weights that can be overridden by the caller would change the fused op.
	if _, found := optimizer.ResolveConstant(g, weight.Name, optimizer.ConstantOnly); !found {
		return nil
	}
	if !optimizer.AllInputsHaveType(matmulNode, floatTypes) {
		return nil
	}

	cand := &DenseGelu{
		group:      newGroup(matmulNode),
		XInputName: matmulNode.Inputs[0].Name,
		WeightName: weight.Name,
	}
	matmulOut := matmulNode.Output()
	next := soleConsumer(consumers, matmulOut)
	if next == nil || next.Output() == "" {
		return nil
	}
	cand.add(next, matmulOut)

	switch next.OpType {
	case "Add":
		bias := otherInput(next, matmulOut)
		if bias == nil {
			return nil
		}
		if _, found := optimizer.ResolveConstant(g, bias.Name, optimizer.ConstantOnly); !found {
			return nil
		}
		afterBiasOut := next.Output()
		geluNode := soleConsumerOfType(consumers, afterBiasOut, "Gelu")
		if geluNode == nil {
			return nil
		}
		cand.add(geluNode, afterBiasOut)
		cand.BiasName = bias.Name
		cand.GeluOutputName = geluNode.Output()

	case "Gelu":
		cand.GeluOutputName = next.Output()

	default:
		return nil
	}

	if cand.escapes(g, consumers) {
		return nil
	}
	return cand
}
