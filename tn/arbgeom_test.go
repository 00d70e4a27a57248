package tn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"qtebd/tensor"
)

func chainEdges(n int) []Edge {
	var edges []Edge
	for i := 0; i+1 < n; i++ {
		edges = append(edges, NewEdge(SiteAt(i), SiteAt(i+1)))
	}
	return edges
}

func TestRandVectorGeometry(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(1))
	v := RandVector(chainEdges(4), 3, 2, rnd)

	sites := v.Sites()
	if len(sites) != 4 {
		t.Fatalf("%#v", sites)
	}
	for i, s := range sites {
		if s != SiteAt(i) {
			t.Fatalf("%d %s", i, s)
		}
		if v.PhysDim(s) != 2 {
			t.Fatalf("%d", v.PhysDim(s))
		}
	}
	edges := v.Edges()
	if len(edges) != 3 {
		t.Fatalf("%#v", edges)
	}
	if v.MaxBond() != 3 {
		t.Fatalf("%d", v.MaxBond())
	}

	inds, err := v.BondInds(SiteAt(0), SiteAt(1))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(inds) != 1 || inds[0] != "b_0_1" {
		t.Fatalf("%#v", inds)
	}
	if _, err := v.BondInds(SiteAt(0), SiteAt(2)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestProductVectorBasisState(t *testing.T) {
	t.Parallel()
	v := ProductVector(chainEdges(3), 2, nil)
	d, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := d.At(0, 0, 0); math.Abs(got-1) > 1e-12 {
		t.Fatalf("%v", got)
	}
	n2, err := v.NormSquared()
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(n2-1) > 1e-12 {
		t.Fatalf("%v", n2)
	}
}

func TestSetSiteIndID(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(2))
	v := RandVector(chainEdges(2), 2, 2, rnd)
	v.SetSiteIndID("p%s")
	if !v.HasInd("p0") || v.HasInd("k0") {
		t.Fatalf("%v %v", v.HasInd("p0"), v.HasInd("k0"))
	}
	if v.SiteInd(SiteAt(0)) != "p0" {
		t.Fatalf("%s", v.SiteInd(SiteAt(0)))
	}
	v.SetSiteTagID("S%s")
	if len(v.SiteTids(SiteAt(1))) != 1 {
		t.Fatalf("%#v", v.SiteTids(SiteAt(1)))
	}
}

func TestSumDoublesState(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(3))
	a := RandVector(chainEdges(3), 2, 2, rnd)
	sum, err := Sum(a, a)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if sum.MaxBond() != 4 {
		t.Fatalf("%d", sum.MaxBond())
	}
	da, err := a.ToDense(a.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	da.Scale(2)
	ds, err := sum.ToDense(sum.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tensor.AllClose(ds, da, 1e-10) {
		t.Fatalf("%#v %#v", ds.Data(), da.Data())
	}
}

func TestSumSiteMismatch(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(4))
	a := RandVector(chainEdges(3), 2, 2, rnd)
	b := RandVector(chainEdges(4), 2, 2, rnd)
	if _, err := Sum(a, b); err == nil {
		t.Fatalf("expected error")
	}
}

func TestApplyOp(t *testing.T) {
	t.Parallel()
	v := ProductVector(chainEdges(2), 2, nil)
	x := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	op := NewOperator()
	for _, s := range v.Sites() {
		gt := tensor.FromMatrix(x, []string{op.UpperInd(s)}, []string{op.LowerInd(s)}, []int{2}, []int{2})
		gt.AddTag(op.SiteTag(s))
		op.Add(gt)
	}
	w, err := ApplyOp(op, v)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	d, err := w.ToDense(w.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// X tensor X maps |00> to |11>.
	if got := d.At(1, 1); math.Abs(got-1) > 1e-12 {
		t.Fatalf("%v", got)
	}
	if got := d.At(0, 0); math.Abs(got) > 1e-12 {
		t.Fatalf("%v", got)
	}
}

func TestOperatorIndIDCollision(t *testing.T) {
	t.Parallel()
	op := NewOperator()
	if err := op.SetUpperIndID("b%s"); err == nil {
		t.Fatalf("expected error")
	}
	if err := op.SetLowerIndID("k%s"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSetSiteTagIDDropsOldTags(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(7))
	v := RandVector(chainEdges(3), 2, 2, rnd)
	v.SetSiteTagID("S%s")
	if got := v.TidsWithTag("I1"); len(got) != 0 {
		t.Fatalf("%#v", got)
	}
	if len(v.TidsWithTag("I0")) != 0 || len(v.TidsWithTag("S0")) != 1 {
		t.Fatalf("%#v %#v", v.TidsWithTag("I0"), v.TidsWithTag("S0"))
	}
	if got := v.SiteTids(SiteAt(2)); len(got) != 1 {
		t.Fatalf("%#v", got)
	}
}
