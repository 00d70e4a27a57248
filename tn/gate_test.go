package tn

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
	"qtebd/tensor"
)

func randGate(rnd *rand.Rand, n int) *mat.Dense {
	g := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			g.Set(i, j, rnd.NormFloat64())
		}
	}
	return g
}

func TestGateSingleFlipsBasisState(t *testing.T) {
	t.Parallel()
	v := ProductVector(chainEdges(2), 2, nil)
	x := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	if _, err := v.Gate(x, []Site{SiteAt(0)}, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	d, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := d.At(1, 0); math.Abs(got-1) > 1e-12 {
		t.Fatalf("%v", got)
	}
	if got := d.At(0, 0); math.Abs(got) > 1e-12 {
		t.Fatalf("%v", got)
	}
}

func TestGateTwoSiteMatchesDense(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(10))
	v := RandVector(chainEdges(2), 2, 2, rnd)
	g := randGate(rnd, 4)

	d0, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	kA, kB := v.SiteInd(SiteAt(0)), v.SiteInd(SiteAt(1))
	gt := tensor.FromMatrix(g, []string{"oA", "oB"}, []string{kA, kB}, []int{2, 2}, []int{2, 2})
	want := tensor.Contract(gt, d0)
	want.Reindex(map[string]string{"oA": kA, "oB": kB})

	if _, err := v.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	d1, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tensor.AllClose(d1, want, 1e-10) {
		t.Fatalf("%#v %#v", d1.Data(), want.Data())
	}
}

func TestGateIdentityPreservesState(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(11))
	v := RandVector(chainEdges(3), 2, 2, rnd)
	d0, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	eye := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		eye.Set(i, i, 1)
	}
	// The middle site carries a spectator bond, exercising the reduction
	// toward the acted bond.
	if _, err := v.Gate(eye, []Site{SiteAt(1), SiteAt(2)}, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	d1, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tensor.AllClose(d0, d1, 1e-10) {
		t.Fatalf("%#v %#v", d0.Data(), d1.Data())
	}
}

func TestGateMaxBondTruncates(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(12))
	v := RandVector(chainEdges(2), 3, 2, rnd)
	g := randGate(rnd, 4)
	info, err := v.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{MaxBond: 1})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if info.BondDim != 1 || len(info.Singular) != 1 {
		t.Fatalf("%#v", info)
	}
	if v.IndSize(info.BondInd) != 1 {
		t.Fatalf("%d", v.IndSize(info.BondInd))
	}
	if info.BondInd != "b_0_1" {
		t.Fatalf("%s", info.BondInd)
	}
}

func TestGateErrors(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(13))
	v := RandVector(chainEdges(3), 2, 2, rnd)
	g := randGate(rnd, 4)
	if _, err := v.Gate(g, []Site{SiteAt(0), SiteAt(2)}, GateOpts{}); err == nil {
		t.Fatalf("expected error for non adjacent sites")
	}
	if _, err := v.Gate(g, []Site{SiteAt(0), SiteAt(0)}, GateOpts{}); err == nil {
		t.Fatalf("expected error for a repeated site")
	}
	if _, err := v.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{Contract: GateContractInto}); err == nil {
		t.Fatalf("expected error for two site contract into")
	}
	if _, err := v.GateSimple(g, []Site{SiteAt(0), SiteAt(1)}, nil, GateOpts{}); err == nil {
		t.Fatalf("expected error for nil gauges")
	}
}

func TestGateSimpleUpdatesGauge(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(14))
	v := RandVector(chainEdges(2), 2, 2, rnd)
	g := randGate(rnd, 4)
	gauges := NewGauges()
	info, err := v.GateSimple(g, []Site{SiteAt(0), SiteAt(1)}, gauges, GateOpts{})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	gv, ok := gauges.Get(info.BondInd)
	if !ok {
		t.Fatalf("no gauge on %s", info.BondInd)
	}
	n := 0.0
	for _, x := range gv {
		n += x * x
	}
	if math.Abs(n-1) > 1e-10 {
		t.Fatalf("%v", n)
	}
	for i := 1; i < len(gv); i++ {
		if gv[i] > gv[i-1] {
			t.Fatalf("%#v", gv)
		}
	}
}

// A simple update gate with identity gauges followed by reinsertion
// must act on the physical state exactly like the plain gate.
func TestGateSimpleMatchesGateOnFreshGauges(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(15))
	v := RandVector(chainEdges(2), 2, 2, rnd)
	g := randGate(rnd, 4)

	plain := v.Copy()
	if _, err := plain.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	dPlain, err := plain.ToDense(plain.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dPlain.Scale(1 / dPlain.Norm())

	gauges := NewGauges()
	if _, err := v.GateSimple(g, []Site{SiteAt(0), SiteAt(1)}, gauges, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	v.GaugeSimpleInsert(gauges, 0, 1)
	dSimple, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	dSimple.Scale(1 / dSimple.Norm())
	if !tensor.AllClose(dPlain, dSimple, 1e-8) {
		t.Fatalf("%#v %#v", dPlain.Data(), dSimple.Data())
	}
}

func TestGateLazy(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(16))
	v := RandVector(chainEdges(2), 2, 2, rnd)
	g := randGate(rnd, 4)

	want := v.Copy()
	if _, err := want.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{}); err != nil {
		t.Fatalf("%+v", err)
	}
	dWant, err := want.ToDense(want.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}

	if _, err := v.Gate(g, []Site{SiteAt(0), SiteAt(1)}, GateOpts{Contract: GateLazy}); err != nil {
		t.Fatalf("%+v", err)
	}
	if v.NumTensors() != 3 {
		t.Fatalf("%d", v.NumTensors())
	}
	// The gate tensor inherits the site tags of its register.
	if got := len(v.SiteTids(SiteAt(0))); got != 2 {
		t.Fatalf("%d", got)
	}
	dGot, err := v.ToDense(v.Sites())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !tensor.AllClose(dWant, dGot, 1e-10) {
		t.Fatalf("%#v %#v", dWant.Data(), dGot.Data())
	}
}
