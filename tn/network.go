package tn

import (
	"fmt"
	"sort"

	"qtebd/tensor"
)

// Network is a collection of tensors indexed by integer ids. Tensors
// sharing an index name are implicitly contracted over it. The network
// maintains reverse maps from index names and tags to tensor ids.
type Network struct {
	nextTid int
	tensors map[int]*tensor.Dense
	indMap  map[string]map[int]struct{}
	tagMap  map[string]map[int]struct{}
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{
		tensors: make(map[int]*tensor.Dense),
		indMap:  make(map[string]map[int]struct{}),
		tagMap:  make(map[string]map[int]struct{}),
	}
}

// Add inserts t into the network and returns its id. The network takes
// ownership of t.
func (n *Network) Add(t *tensor.Dense) int {
	tid := n.nextTid
	n.nextTid++
	n.link(tid, t)
	return tid
}

func (n *Network) link(tid int, t *tensor.Dense) {
	n.tensors[tid] = t
	for _, ix := range t.Inds() {
		m, ok := n.indMap[ix]
		if !ok {
			m = make(map[int]struct{})
			n.indMap[ix] = m
		}
		m[tid] = struct{}{}
	}
	for _, tag := range t.Tags() {
		m, ok := n.tagMap[tag]
		if !ok {
			m = make(map[int]struct{})
			n.tagMap[tag] = m
		}
		m[tid] = struct{}{}
	}
}

func (n *Network) unlink(tid int) *tensor.Dense {
	t, ok := n.tensors[tid]
	if !ok {
		panic(fmt.Sprintf("no tensor %d", tid))
	}
	delete(n.tensors, tid)
	for _, ix := range t.Inds() {
		delete(n.indMap[ix], tid)
		if len(n.indMap[ix]) == 0 {
			delete(n.indMap, ix)
		}
	}
	for _, tag := range t.Tags() {
		delete(n.tagMap[tag], tid)
		if len(n.tagMap[tag]) == 0 {
			delete(n.tagMap, tag)
		}
	}
	return t
}

// Remove deletes the tensor with id tid and returns it.
func (n *Network) Remove(tid int) *tensor.Dense { return n.unlink(tid) }

// Replace swaps the tensor with id tid for t, keeping the id.
func (n *Network) Replace(tid int, t *tensor.Dense) {
	n.unlink(tid)
	n.link(tid, t)
}

// Tensor returns the tensor with id tid.
func (n *Network) Tensor(tid int) *tensor.Dense {
	t, ok := n.tensors[tid]
	if !ok {
		panic(fmt.Sprintf("no tensor %d", tid))
	}
	return t
}

// NumTensors returns the number of tensors in the network.
func (n *Network) NumTensors() int { return len(n.tensors) }

// Tids returns all tensor ids in ascending order.
func (n *Network) Tids() []int {
	tids := make([]int, 0, len(n.tensors))
	for tid := range n.tensors {
		tids = append(tids, tid)
	}
	sort.Ints(tids)
	return tids
}

// TidsWithInd returns the ids of tensors carrying index ix, ascending.
func (n *Network) TidsWithInd(ix string) []int {
	return sortedKeys(n.indMap[ix])
}

// TidsWithTag returns the ids of tensors carrying the tag, ascending.
func (n *Network) TidsWithTag(tag string) []int {
	return sortedKeys(n.tagMap[tag])
}

// TidsWithAny returns the ids of tensors carrying at least one of the
// tags, ascending.
func (n *Network) TidsWithAny(tags []string) []int {
	set := make(map[int]struct{})
	for _, tag := range tags {
		for tid := range n.tagMap[tag] {
			set[tid] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// TidsWithAll returns the ids of tensors carrying every tag, ascending.
func (n *Network) TidsWithAll(tags []string) []int {
	if len(tags) == 0 {
		return nil
	}
	set := make(map[int]struct{})
	for tid := range n.tagMap[tags[0]] {
		set[tid] = struct{}{}
	}
	for _, tag := range tags[1:] {
		for tid := range set {
			if _, ok := n.tagMap[tag][tid]; !ok {
				delete(set, tid)
			}
		}
	}
	return sortedKeys(set)
}

func sortedKeys(m map[int]struct{}) []int {
	ks := make([]int, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}

// HasInd reports whether some tensor carries index ix.
func (n *Network) HasInd(ix string) bool {
	_, ok := n.indMap[ix]
	return ok
}

// IndSize returns the dimension of index ix.
func (n *Network) IndSize(ix string) int {
	for tid := range n.indMap[ix] {
		return n.tensors[tid].IndSize(ix)
	}
	panic(fmt.Sprintf("no index %s", ix))
}

// InnerInds returns the indices shared by two or more tensors, sorted.
func (n *Network) InnerInds() []string {
	var inds []string
	for ix, tids := range n.indMap {
		if len(tids) >= 2 {
			inds = append(inds, ix)
		}
	}
	sort.Strings(inds)
	return inds
}

// OuterInds returns the indices appearing on exactly one tensor, sorted.
func (n *Network) OuterInds() []string {
	var inds []string
	for ix, tids := range n.indMap {
		if len(tids) == 1 {
			inds = append(inds, ix)
		}
	}
	sort.Strings(inds)
	return inds
}

// Copy returns a deep copy of the network. Tensor ids are preserved.
func (n *Network) Copy() *Network {
	c := NewNetwork()
	c.nextTid = n.nextTid
	for tid, t := range n.tensors {
		c.link(tid, t.Copy())
	}
	return c
}

// SelectTids returns a deep copy containing only the given tensors,
// with their ids preserved.
func (n *Network) SelectTids(tids []int) *Network {
	c := NewNetwork()
	c.nextTid = n.nextTid
	for _, tid := range tids {
		c.link(tid, n.Tensor(tid).Copy())
	}
	return c
}

// Conj returns a copy with every tensor complex conjugated.
func (n *Network) Conj() *Network {
	c := n.Copy()
	for tid, t := range c.tensors {
		c.Replace(tid, t.Conj())
	}
	return c
}

// ReindexAll renames indices across the whole network.
func (n *Network) ReindexAll(m map[string]string) {
	for _, tid := range n.Tids() {
		t := n.Tensor(tid)
		local := make(map[string]string)
		for _, ix := range t.Inds() {
			if to, ok := m[ix]; ok {
				local[ix] = to
			}
		}
		if len(local) == 0 {
			continue
		}
		// Unlink before renaming, so the index maps drop the old names.
		n.unlink(tid)
		t.Reindex(local)
		n.link(tid, t)
	}
}

// AddTagAll adds a tag to every tensor.
func (n *Network) AddTagAll(tag string) {
	for _, tid := range n.Tids() {
		t := n.Tensor(tid)
		t.AddTag(tag)
		n.Replace(tid, t)
	}
}

// Combine returns a new network containing copies of the tensors of n
// and other. Inner indices of other that collide with indices of n are
// renamed to fresh bond names so that the two networks stay disjoint
// except for deliberately matching outer indices.
func (n *Network) Combine(other *Network) *Network {
	rename := make(map[string]string)
	for _, ix := range other.InnerInds() {
		if n.HasInd(ix) {
			rename[ix] = tensor.RandInd()
		}
	}
	o := other.Copy()
	if len(rename) > 0 {
		o.ReindexAll(rename)
	}
	c := n.Copy()
	for _, tid := range o.Tids() {
		c.Add(o.Tensor(tid))
	}
	return c
}

// MaxBond returns the largest dimension over all inner indices, or 1 for
// a network with no inner bonds.
func (n *Network) MaxBond() int {
	d := 1
	for _, ix := range n.InnerInds() {
		if s := n.IndSize(ix); s > d {
			d = s
		}
	}
	return d
}

// MultiplyEach scales every tensor by x.
func (n *Network) MultiplyEach(x float64) {
	for _, tid := range n.Tids() {
		n.Tensor(tid).Scale(x)
	}
}
