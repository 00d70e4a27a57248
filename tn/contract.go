package tn

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"qtebd/tensor"
)

// ContractionTree records a pairwise contraction order together with its
// estimated cost. Node ids below the synthetic base refer to tensor ids;
// higher ids refer to intermediates produced by earlier steps.
type ContractionTree struct {
	Steps []ContractionStep
	// Cost is log10 of the total number of scalar multiplications.
	Cost float64
	// Width is log2 of the size of the largest intermediate tensor.
	Width float64
}

// ContractionStep contracts nodes A and B into Out.
type ContractionStep struct {
	A, B, Out int
}

type planNode struct {
	id   int
	inds []string
	dims map[string]int
}

func (p *planNode) size() float64 {
	s := 1.0
	for _, ix := range p.inds {
		s *= float64(p.dims[ix])
	}
	return s
}

// PlanContraction builds a greedy pairwise contraction tree over the
// network, keeping outputInds open. Every output index must appear on
// exactly one tensor. Disconnected pieces combine by outer products
// once no contractible pair remains.
func (n *Network) PlanContraction(outputInds []string) (*ContractionTree, error) {
	output := make(map[string]struct{}, len(outputInds))
	for _, ix := range outputInds {
		output[ix] = struct{}{}
	}
	for _, ix := range outputInds {
		if len(n.indMap[ix]) != 1 {
			return nil, errors.Errorf("output index %s appears on %d tensors", ix, len(n.indMap[ix]))
		}
	}
	var nodes []*planNode
	for _, tid := range n.Tids() {
		t := n.Tensor(tid)
		nd := &planNode{id: tid, inds: append([]string{}, t.Inds()...), dims: make(map[string]int)}
		for i, ix := range t.Inds() {
			nd.dims[ix] = t.Shape()[i]
		}
		nodes = append(nodes, nd)
	}
	tree := &ContractionTree{}
	next := n.nextTid
	totalCost := 0.0
	maxSize := 1.0
	for _, nd := range nodes {
		if s := nd.size(); s > maxSize {
			maxSize = s
		}
	}
	for len(nodes) > 1 {
		bi, bj := -1, -1
		bestSize, bestCost := math.Inf(1), math.Inf(1)
		for i := 0; i < len(nodes); i++ {
			for j := i + 1; j < len(nodes); j++ {
				shared := false
				for _, ix := range nodes[i].inds {
					if _, ok := nodes[j].dims[ix]; ok {
						shared = true
						break
					}
				}
				if !shared {
					continue
				}
				out, cost := combineMeta(nodes[i], nodes[j])
				size := 1.0
				for _, ix := range out.inds {
					size *= float64(out.dims[ix])
				}
				if size < bestSize || (size == bestSize && cost < bestCost) {
					bi, bj, bestSize, bestCost = i, j, size, cost
				}
			}
		}
		if bi < 0 {
			// No pair shares an index: outer product of the two
			// smallest remaining pieces.
			bi, bj = 0, 1
			for i := range nodes {
				if nodes[i].size() < nodes[bi].size() {
					bj, bi = bi, i
				} else if i != bi && nodes[i].size() < nodes[bj].size() {
					bj = i
				}
			}
			if bi > bj {
				bi, bj = bj, bi
			}
		}
		out, cost := combineMeta(nodes[bi], nodes[bj])
		out.id = next
		next++
		totalCost += cost
		if s := out.size(); s > maxSize {
			maxSize = s
		}
		tree.Steps = append(tree.Steps, ContractionStep{A: nodes[bi].id, B: nodes[bj].id, Out: out.id})
		nodes[bi] = out
		nodes = append(nodes[:bj], nodes[bj+1:]...)
	}
	if totalCost > 0 {
		tree.Cost = math.Log10(totalCost)
	}
	tree.Width = math.Log2(maxSize)
	if len(nodes) == 1 {
		for _, ix := range nodes[0].inds {
			if _, ok := output[ix]; !ok {
				return nil, errors.Errorf("index %s left open after contraction", ix)
			}
		}
	}
	return tree, nil
}

// combineMeta merges two plan nodes, dropping indices shared between
// them and returning the multiplication count of the pairwise contract.
func combineMeta(a, b *planNode) (*planNode, float64) {
	out := &planNode{dims: make(map[string]int)}
	cost := 1.0
	seen := make(map[string]struct{})
	for _, ix := range a.inds {
		cost *= float64(a.dims[ix])
		seen[ix] = struct{}{}
		if _, shared := b.dims[ix]; !shared {
			out.inds = append(out.inds, ix)
			out.dims[ix] = a.dims[ix]
		}
	}
	for _, ix := range b.inds {
		if _, ok := seen[ix]; ok {
			continue
		}
		cost *= float64(b.dims[ix])
		out.inds = append(out.inds, ix)
		out.dims[ix] = b.dims[ix]
	}
	sort.Strings(out.inds)
	return out, cost
}

// ContractTree executes a contraction tree and returns the final tensor
// with its indices ordered as outputInds.
func (n *Network) ContractTree(tree *ContractionTree, outputInds []string) *tensor.Dense {
	pool := make(map[int]*tensor.Dense, len(n.tensors))
	for tid, t := range n.tensors {
		pool[tid] = t
	}
	var last *tensor.Dense
	for _, st := range tree.Steps {
		a, b := pool[st.A], pool[st.B]
		delete(pool, st.A)
		delete(pool, st.B)
		last = tensor.Contract(a, b)
		pool[st.Out] = last
	}
	if last == nil {
		// Single tensor network.
		for _, t := range pool {
			last = t.Copy()
		}
	}
	if len(outputInds) > 0 {
		last = last.Transpose(outputInds...)
	}
	return last
}

// Contract contracts the whole network down to a tensor with the given
// open indices, using a greedy pairwise order.
func (n *Network) Contract(outputInds []string) (*tensor.Dense, error) {
	tree, err := n.PlanContraction(outputInds)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return n.ContractTree(tree, outputInds), nil
}

// ContractValue contracts a closed network down to its scalar value.
func (n *Network) ContractValue() (float64, error) {
	t, err := n.Contract(nil)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return t.ScalarValue(), nil
}
