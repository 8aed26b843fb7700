// Package onnx provides an in-memory representation of an ONNX graph, as consumed by the graph rewrite
// predicates in package optimizer.
//
//   - Graph: owns the initializers (constant tensors), the declared inputs and outputs, the value infos
//     (edges) and the ordered list of nodes. Built once with the Add* methods, then only read.
//   - Node: an operation with positional input edges, output edges and attributes.
//   - ValueInfo: an edge, with an optional declared type name and an optional (possibly partially known) Shape.
//   - Tensor: the data of an initializer, in one of the supported ElementType encodings, stored either as a
//     typed buffer or as little-endian raw bytes.
//
// Once built, a Graph is never mutated by readers, so it can be safely inspected from multiple goroutines.
package onnx

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
