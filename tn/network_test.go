package tn

import (
	"testing"

	"qtebd/tensor"
)

func TestNetworkIndexMaps(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	t0 := tensor.New([]float64{1, 2, 3, 4}, []string{"i", "b"}, []int{2, 2}, "A")
	t1 := tensor.New([]float64{5, 6, 7, 8, 9, 10}, []string{"b", "j"}, []int{2, 3}, "B")
	tid0 := n.Add(t0)
	tid1 := n.Add(t1)

	if got := n.InnerInds(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("%#v", got)
	}
	if got := n.OuterInds(); len(got) != 2 || got[0] != "i" || got[1] != "j" {
		t.Fatalf("%#v", got)
	}
	if got := n.TidsWithInd("b"); len(got) != 2 || got[0] != tid0 || got[1] != tid1 {
		t.Fatalf("%#v", got)
	}
	if got := n.TidsWithTag("B"); len(got) != 1 || got[0] != tid1 {
		t.Fatalf("%#v", got)
	}
	if got := n.IndSize("j"); got != 3 {
		t.Fatalf("%d", got)
	}
	if got := n.MaxBond(); got != 2 {
		t.Fatalf("%d", got)
	}

	n.Remove(tid0)
	if n.NumTensors() != 1 {
		t.Fatalf("%d", n.NumTensors())
	}
	// The bond dangles now.
	if got := n.InnerInds(); len(got) != 0 {
		t.Fatalf("%#v", got)
	}
	if n.HasInd("i") {
		t.Fatalf("index i should be gone")
	}
}

func TestNetworkReplaceKeepsID(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	tid := n.Add(tensor.New([]float64{1, 2}, []string{"i"}, []int{2}))
	n.Replace(tid, tensor.New([]float64{3, 4, 5}, []string{"j"}, []int{3}))
	if n.HasInd("i") || !n.HasInd("j") {
		t.Fatalf("%v %v", n.HasInd("i"), n.HasInd("j"))
	}
	if got := n.Tensor(tid).At(2); got != 5 {
		t.Fatalf("%v", got)
	}
}

func TestNetworkCopyIsDeep(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	tid := n.Add(tensor.New([]float64{1, 2}, []string{"i"}, []int{2}))
	c := n.Copy()
	c.Tensor(tid).Data()[0] = 100
	if n.Tensor(tid).At(0) != 1 {
		t.Fatalf("%v", n.Tensor(tid).At(0))
	}
}

func TestCombineRenamesCollidingBonds(t *testing.T) {
	t.Parallel()
	build := func() *Network {
		n := NewNetwork()
		n.Add(tensor.New([]float64{1, 2, 3, 4}, []string{"b", "k"}, []int{2, 2}))
		n.Add(tensor.New([]float64{1, 2}, []string{"b"}, []int{2}))
		return n
	}
	a, b := build(), build()
	c := a.Combine(b)
	if c.NumTensors() != 4 {
		t.Fatalf("%d", c.NumTensors())
	}
	// The inner bond of b is renamed, its dangling k is not: the ket and
	// bra copies trace over k while their bonds stay separate.
	if got := len(c.TidsWithInd("b")); got != 2 {
		t.Fatalf("%d", got)
	}
	if got := len(c.TidsWithInd("k")); got != 2 {
		t.Fatalf("%d", got)
	}
	if got := len(c.InnerInds()); got != 3 {
		t.Fatalf("%#v", c.InnerInds())
	}
}

func TestMultiplyEach(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	tid := n.Add(tensor.New([]float64{1, 2}, []string{"i"}, []int{2}))
	n.MultiplyEach(3)
	if got := n.Tensor(tid).At(1); got != 6 {
		t.Fatalf("%v", got)
	}
}

func TestReindexAllDropsOldNames(t *testing.T) {
	t.Parallel()
	n := NewNetwork()
	t0 := tensor.New([]float64{1, 2, 3, 4}, []string{"i", "b"}, []int{2, 2}, "A")
	t1 := tensor.New([]float64{5, 6, 7, 8}, []string{"b", "j"}, []int{2, 2}, "B")
	tid0 := n.Add(t0)
	tid1 := n.Add(t1)

	n.ReindexAll(map[string]string{"b": "c"})
	if n.HasInd("b") {
		t.Fatalf("old index b should be gone")
	}
	if got := n.TidsWithInd("b"); len(got) != 0 {
		t.Fatalf("%#v", got)
	}
	if got := n.TidsWithInd("c"); len(got) != 2 || got[0] != tid0 || got[1] != tid1 {
		t.Fatalf("%#v", got)
	}
	if got := n.InnerInds(); len(got) != 1 || got[0] != "c" {
		t.Fatalf("%#v", got)
	}
	for _, tid := range []int{tid0, tid1} {
		if !n.Tensor(tid).HasInd("c") {
			t.Fatalf("tensor %d not renamed", tid)
		}
	}
}
