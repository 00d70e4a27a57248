package tn

import (
	"math"
	"sort"

	"qtebd/tensor"
)

// Gauges stores the positive diagonal bond gauge vectors of a network in
// simple update form, keyed by bond index name. The network tensors stay
// gauge free: the physical state is the network with all gauges
// inserted.
type Gauges struct {
	m map[string][]float64
}

// NewGauges returns an empty gauge store.
func NewGauges() *Gauges {
	return &Gauges{m: make(map[string][]float64)}
}

// Get returns the gauge vector of bond ix.
func (g *Gauges) Get(ix string) ([]float64, bool) {
	v, ok := g.m[ix]
	return v, ok
}

// Set stores a copy of v as the gauge of bond ix.
func (g *Gauges) Set(ix string, v []float64) {
	g.m[ix] = append([]float64{}, v...)
}

// Delete removes the gauge of bond ix.
func (g *Gauges) Delete(ix string) { delete(g.m, ix) }

// Len returns the number of gauged bonds.
func (g *Gauges) Len() int { return len(g.m) }

// Inds returns the gauged bond names, sorted.
func (g *Gauges) Inds() []string {
	inds := make([]string, 0, len(g.m))
	for ix := range g.m {
		inds = append(inds, ix)
	}
	sort.Strings(inds)
	return inds
}

// Copy returns a deep copy of the store.
func (g *Gauges) Copy() *Gauges {
	c := NewGauges()
	for ix, v := range g.m {
		c.Set(ix, v)
	}
	return c
}

// Normalize scales every gauge vector to unit 2-norm.
func (g *Gauges) Normalize() {
	for ix, v := range g.m {
		var n float64
		for _, x := range v {
			n += x * x
		}
		n = math.Sqrt(n)
		if n == 0 {
			continue
		}
		for i := range v {
			v[i] /= n
		}
		g.m[ix] = v
	}
}

// MaxDiff returns the largest elementwise absolute difference between g
// and prev over all bonds. A bond whose dimension changed, or which is
// present in only one store, counts as a difference of one.
func (g *Gauges) MaxDiff(prev *Gauges) float64 {
	diff := 0.0
	for ix, v := range g.m {
		pv, ok := prev.m[ix]
		if !ok || len(pv) != len(v) {
			diff = math.Max(diff, 1.0)
			continue
		}
		for i := range v {
			diff = math.Max(diff, math.Abs(v[i]-pv[i]))
		}
	}
	for ix := range prev.m {
		if _, ok := g.m[ix]; !ok {
			diff = math.Max(diff, 1.0)
		}
	}
	return diff
}

// gaugedLeg records a gauge vector multiplied into one tensor leg, so
// that the multiplication can be undone.
type gaugedLeg struct {
	tid     int
	ix      string
	applied []float64
}

// smudged returns (v + smudge*max(v))^power, the regularized form in
// which gauges are absorbed.
func smudged(v []float64, smudge, power float64) []float64 {
	mx := 0.0
	for _, x := range v {
		if x > mx {
			mx = x
		}
	}
	w := make([]float64, len(v))
	for i, x := range v {
		y := x + smudge*mx
		if power != 1.0 {
			y = math.Pow(y, power)
		}
		w[i] = y
	}
	return w
}

// GaugeSimpleInsert absorbs the stored gauges into the tensors of n.
// Bonds dangling at the boundary of n receive the full gauge vector,
// bonds internal to n receive its square root on both sides. The
// returned legs undo the insertion via GaugeSimpleRemove.
func (n *Network) GaugeSimpleInsert(g *Gauges, smudge, power float64) (outer, inner []gaugedLeg) {
	for _, ix := range g.Inds() {
		tids := n.TidsWithInd(ix)
		if len(tids) == 0 {
			continue
		}
		v, _ := g.Get(ix)
		w := smudged(v, smudge, power)
		if len(tids) == 1 {
			tid := tids[0]
			t := n.Tensor(tid)
			t.MultiplyIndexDiagonal(ix, w)
			outer = append(outer, gaugedLeg{tid: tid, ix: ix, applied: w})
			continue
		}
		half := make([]float64, len(w))
		for i, x := range w {
			half[i] = math.Sqrt(x)
		}
		for _, tid := range tids {
			t := n.Tensor(tid)
			t.MultiplyIndexDiagonal(ix, half)
			inner = append(inner, gaugedLeg{tid: tid, ix: ix, applied: half})
		}
	}
	return outer, inner
}

// GaugeSimpleRemove undoes gauge insertions by multiplying the inverse
// vectors back in.
func (n *Network) GaugeSimpleRemove(legs ...[]gaugedLeg) {
	for _, group := range legs {
		for _, leg := range group {
			if _, ok := n.tensors[leg.tid]; !ok {
				continue
			}
			inv := make([]float64, len(leg.applied))
			for i, x := range leg.applied {
				inv[i] = 1 / x
			}
			n.Tensor(leg.tid).MultiplyIndexDiagonal(leg.ix, inv)
		}
	}
}

// GaugeInfo reports the outcome of a gauge equilibration.
type GaugeInfo struct {
	Iterations int
	MaxDiff    float64
	// Converged is set when the gauge change dropped below tolerance
	// before the iteration cap. Hitting the cap is not an error.
	Converged bool
}

// GaugeOpts controls gauge equilibration and simple update gauging.
type GaugeOpts struct {
	// MaxIterations caps the number of sweeps. Zero means 100.
	MaxIterations int
	// Tol stops sweeping once the largest gauge change falls below it.
	// Zero means 1e-3.
	Tol float64
	// Smudge regularizes gauge inversion. Zero means 1e-12.
	Smudge float64
	// Power raises absorbed gauges elementwise. Zero means 1.
	Power float64
}

func (o GaugeOpts) withDefaults() GaugeOpts {
	if o.MaxIterations == 0 {
		o.MaxIterations = 100
	}
	if o.Tol == 0 {
		o.Tol = 1e-3
	}
	if o.Smudge == 0 {
		o.Smudge = 1e-12
	}
	if o.Power == 0 {
		o.Power = 1
	}
	return o
}

// GaugeAllSimple sweeps local bond updates until the gauges stop
// changing, bringing the network into the Vidal gauge fixed point. The
// tensors of v are modified in place and gauges holds the equilibrated
// bond spectra. Bonds are never truncated.
func (v *Vector) GaugeAllSimple(gauges *Gauges, opts GaugeOpts) GaugeInfo {
	opts = opts.withDefaults()
	info := GaugeInfo{}
	for it := 0; it < opts.MaxIterations; it++ {
		prev := gauges.Copy()
		em, _ := v.EdgeMap()
		edges := make([]Edge, 0, len(em))
		for e := range em {
			edges = append(edges, e)
		}
		sort.Slice(edges, func(i, j int) bool {
			if edges[i][0] != edges[j][0] {
				return edges[i][0] < edges[j][0]
			}
			return edges[i][1] < edges[j][1]
		})
		for _, e := range edges {
			// Identity-gate bond update: reduce, resplit and store the
			// fresh singular values as the bond gauge.
			v.gateReduceSplit(nil, e[0], e[1], gauges, tensor.AbsorbNone, GateOpts{
				Smudge: opts.Smudge,
				Power:  opts.Power,
			})
		}
		info.Iterations = it + 1
		info.MaxDiff = gauges.MaxDiff(prev)
		if info.MaxDiff < opts.Tol {
			info.Converged = true
			break
		}
	}
	return info
}

// NormalizeSimple rescales the gauges to unit norm and each site tensor
// so that the local contraction with its gauged environment has unit
// norm. The state is unchanged up to overall scale.
func (v *Vector) NormalizeSimple(gauges *Gauges) {
	gauges.Normalize()
	for _, s := range v.Sites() {
		tid := v.SiteTensorID(s)
		sub := v.SelectTids([]int{tid})
		sub.GaugeSimpleInsert(gauges, 0, 1)
		nrm := sub.Tensor(tid).Norm()
		if nrm == 0 {
			continue
		}
		v.Tensor(tid).Scale(1 / nrm)
	}
}
