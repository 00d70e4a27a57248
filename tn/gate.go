package tn

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"qtebd/tensor"
)

// GateContract selects how a gate is applied to the network.
type GateContract int

const (
	// GateReduceSplit contracts the gate into the reduced bond tensors
	// of the two sites and splits back with a truncated SVD. For single
	// site gates it contracts directly.
	GateReduceSplit GateContract = iota
	// GateContractInto contracts a single site gate into the site
	// tensor.
	GateContractInto
	// GateLazy adds the gate as a new tensor, rewiring the physical
	// indices without contracting anything.
	GateLazy
)

// PropagateTags selects which tags a lazily added gate tensor receives.
type PropagateTags int

const (
	// PropagateRegister tags the gate tensor with the site tags of the
	// sites it acts on.
	PropagateRegister PropagateTags = iota
	PropagateNone
	// PropagateAll copies every tag of the tensors the gate touches.
	PropagateAll
)

// GateOpts controls gate application.
type GateOpts struct {
	Contract GateContract
	// MaxBond caps the bond dimension after a reduce split. Zero means
	// no cap.
	MaxBond int
	// Cutoff discards singular values by relative discarded weight.
	Cutoff float64
	// Tags are added to every tensor the gate creates or modifies.
	Tags []string
	// Propagate selects tag propagation for lazy gates.
	Propagate PropagateTags
	// Smudge and Power regularize gauge absorption during simple
	// update. Zeros mean 1e-12 and 1.
	Smudge float64
	Power  float64
}

// GateInfo reports the bond produced by a two site gate.
type GateInfo struct {
	BondInd  string
	BondDim  int
	Singular []float64
}

// gateTensor lifts a matrix acting on the given physical dimensions into
// a tensor with named output and input indices.
func gateTensor(g *mat.Dense, outInds, inInds []string, dims []int) *tensor.Dense {
	return tensor.FromMatrix(g, outInds, inInds, dims, dims)
}

// Gate applies the matrix g to the physical indices of the given sites.
// One and two site gates are supported. Two site gates require the sites
// to be adjacent unless applied lazily.
func (v *Vector) Gate(g *mat.Dense, where []Site, opts GateOpts) (GateInfo, error) {
	switch opts.Contract {
	case GateReduceSplit, GateContractInto, GateLazy:
	default:
		return GateInfo{}, errors.Errorf("invalid gate contract option %d", int(opts.Contract))
	}
	switch len(where) {
	case 1:
		if opts.Contract == GateLazy {
			return GateInfo{}, v.gateLazy(g, where, opts)
		}
		return GateInfo{}, v.gateSingle(g, where[0], opts.Tags)
	case 2:
		switch opts.Contract {
		case GateLazy:
			return GateInfo{}, v.gateLazy(g, where, opts)
		case GateContractInto:
			return GateInfo{}, errors.Errorf("contract mode supports single site gates, got %d sites", len(where))
		}
		return v.gateReduceSplit(g, where[0], where[1], nil, tensor.AbsorbBoth, opts)
	}
	return GateInfo{}, errors.Errorf("gates act on 1 or 2 sites, got %d", len(where))
}

// GateSimple applies a two site gate in the simple update scheme: the
// environment is approximated by the stored gauges, which are absorbed
// before the reduce split and whose bond entry is replaced by the fresh
// singular values. Single site gates contract directly and leave the
// gauges untouched.
func (v *Vector) GateSimple(g *mat.Dense, where []Site, gauges *Gauges, opts GateOpts) (GateInfo, error) {
	if gauges == nil {
		return GateInfo{}, errors.Errorf("simple update requires a gauge store")
	}
	switch len(where) {
	case 1:
		return GateInfo{}, v.gateSingle(g, where[0], opts.Tags)
	case 2:
		return v.gateReduceSplit(g, where[0], where[1], gauges, tensor.AbsorbNone, opts)
	}
	return GateInfo{}, errors.Errorf("gates act on 1 or 2 sites, got %d", len(where))
}

func (v *Vector) gateSingle(g *mat.Dense, s Site, tags []string) error {
	tid := v.SiteTensorID(s)
	t := v.Tensor(tid)
	phys := v.SiteInd(s)
	out := tensor.RandInd()
	gt := gateTensor(g, []string{out}, []string{phys}, []int{v.PhysDim(s)})
	nt := tensor.Contract(t, gt)
	nt.Reindex(map[string]string{out: phys})
	for _, tag := range t.Tags() {
		nt.AddTag(tag)
	}
	for _, tag := range tags {
		nt.AddTag(tag)
	}
	v.Replace(tid, nt)
	return nil
}

func (v *Vector) gateLazy(g *mat.Dense, where []Site, opts GateOpts) error {
	outInds := make([]string, len(where))
	inInds := make([]string, len(where))
	dims := make([]int, len(where))
	rename := make(map[string]string)
	for i, s := range where {
		phys := v.SiteInd(s)
		inInds[i] = tensor.RandInd()
		outInds[i] = phys
		dims[i] = v.PhysDim(s)
		rename[phys] = inInds[i]
	}
	// Rewire the current physical indices into the gate inputs before
	// the gate claims the physical names for its outputs.
	tids := make(map[int]struct{})
	for _, s := range where {
		tids[v.SiteTensorID(s)] = struct{}{}
	}
	for tid := range tids {
		t := v.Tensor(tid)
		local := make(map[string]string)
		for _, ix := range t.Inds() {
			if to, ok := rename[ix]; ok {
				local[ix] = to
			}
		}
		v.unlink(tid)
		t.Reindex(local)
		v.link(tid, t)
	}
	gt := gateTensor(g, outInds, inInds, dims)
	switch opts.Propagate {
	case PropagateNone:
	case PropagateRegister:
		for _, s := range where {
			gt.AddTag(v.SiteTag(s))
		}
	case PropagateAll:
		for tid := range tids {
			for _, tag := range v.Tensor(tid).Tags() {
				gt.AddTag(tag)
			}
		}
	default:
		return errors.Errorf("invalid tag propagation option %d", int(opts.Propagate))
	}
	for _, tag := range opts.Tags {
		gt.AddTag(tag)
	}
	v.Add(gt)
	return nil
}

// gateReduceSplit applies a two site gate by QR reducing both site
// tensors toward their shared bond, contracting the gate into the
// reduced pair and splitting back with a truncated SVD. A nil gate
// performs a pure bond update, used for gauge equilibration. A non nil
// gauge store selects simple update semantics: environment gauges are
// absorbed around the pair and the bond entry is replaced by the new,
// renormalized singular values.
func (v *Vector) gateReduceSplit(g *mat.Dense, a, b Site, gauges *Gauges, absorb tensor.Absorb, opts GateOpts) (GateInfo, error) {
	if a == b {
		return GateInfo{}, errors.Errorf("gate acts twice on site %s", a)
	}
	smudge, power := opts.Smudge, opts.Power
	if smudge == 0 {
		smudge = 1e-12
	}
	if power == 0 {
		power = 1
	}
	tidA, tidB := v.SiteTensorID(a), v.SiteTensorID(b)
	ta, tb := v.Tensor(tidA), v.Tensor(tidB)
	tagsA, tagsB := ta.Tags(), tb.Tags()

	var shared []string
	for _, ix := range ta.Inds() {
		if tb.HasInd(ix) {
			shared = append(shared, ix)
		}
	}
	if len(shared) == 0 {
		return GateInfo{}, errors.Errorf("sites %s and %s are not adjacent", a, b)
	}

	var outerLegs []gaugedLeg
	if gauges != nil {
		sharedSet := make(map[string]struct{}, len(shared))
		for _, ix := range shared {
			sharedSet[ix] = struct{}{}
		}
		absorbEnv := func(tid int, t *tensor.Dense) {
			for _, ix := range t.Inds() {
				gv, ok := gauges.Get(ix)
				if !ok {
					continue
				}
				w := smudged(gv, smudge, power)
				if _, inner := sharedSet[ix]; inner {
					half := make([]float64, len(w))
					for i, x := range w {
						half[i] = math.Sqrt(x)
					}
					t.MultiplyIndexDiagonal(ix, half)
					continue
				}
				t.MultiplyIndexDiagonal(ix, w)
				outerLegs = append(outerLegs, gaugedLeg{tid: tid, ix: ix, applied: w})
			}
		}
		absorbEnv(tidA, ta)
		absorbEnv(tidB, tb)
	}

	physA, physB := v.SiteInd(a), v.SiteInd(b)
	reduce := func(t *tensor.Dense, phys string) (*tensor.Dense, *tensor.Dense, string) {
		var left []string
		for _, ix := range t.Inds() {
			if ix == phys {
				continue
			}
			isShared := false
			for _, sx := range shared {
				if ix == sx {
					isShared = true
					break
				}
			}
			if !isShared {
				left = append(left, ix)
			}
		}
		if len(left) == 0 {
			return nil, t.Copy(), ""
		}
		q, r, bond := tensor.SplitQR(t, left)
		return q, r, bond
	}
	qa, ra, _ := reduce(ta, physA)
	qb, rb, _ := reduce(tb, physB)

	theta := tensor.Contract(ra, rb)
	if g != nil {
		outA, outB := tensor.RandInd(), tensor.RandInd()
		gt := gateTensor(g, []string{outA, outB}, []string{physA, physB}, []int{v.PhysDim(a), v.PhysDim(b)})
		theta = tensor.Contract(theta, gt)
		theta.Reindex(map[string]string{outA: physA, outB: physB})
	}

	var leftInds []string
	if qa != nil {
		for _, ix := range theta.Inds() {
			if qa.HasInd(ix) {
				leftInds = append(leftInds, ix)
			}
		}
	}
	leftInds = append(leftInds, physA)
	u, s, vt, bond := tensor.SplitSVD(theta, leftInds, tensor.SplitOpts{
		MaxBond: opts.MaxBond,
		Cutoff:  opts.Cutoff,
		Absorb:  absorb,
	})
	if len(shared) == 1 {
		u.Reindex(map[string]string{bond: shared[0]})
		vt.Reindex(map[string]string{bond: shared[0]})
		bond = shared[0]
	}

	newA, newB := u, vt
	if qa != nil {
		newA = tensor.Contract(qa, u)
	}
	if qb != nil {
		newB = tensor.Contract(vt, qb)
	}
	for _, tag := range tagsA {
		newA.AddTag(tag)
	}
	for _, tag := range tagsB {
		newB.AddTag(tag)
	}
	for _, tag := range opts.Tags {
		newA.AddTag(tag)
		newB.AddTag(tag)
	}
	v.Replace(tidA, newA)
	v.Replace(tidB, newB)

	if gauges != nil {
		v.GaugeSimpleRemove(outerLegs)
		for _, ix := range shared {
			if ix != bond {
				gauges.Delete(ix)
			}
		}
		nrm := 0.0
		for _, x := range s {
			nrm += x * x
		}
		nrm = math.Sqrt(nrm)
		ns := make([]float64, len(s))
		for i, x := range s {
			ns[i] = x / nrm
		}
		gauges.Set(bond, ns)
	}
	return GateInfo{BondInd: bond, BondDim: len(s), Singular: s}, nil
}
