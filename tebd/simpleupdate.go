package tebd

import (
	"gonum.org/v1/gonum/mat"

	"github.com/pkg/errors"
	"qtebd/tn"
)

// Equilibration schedules for the simple update gauges.
const (
	// EquilibrateGate equilibrates after every gate.
	EquilibrateGate = "gate"
	// EquilibrateLayer equilibrates after every layer of commuting
	// gates.
	EquilibrateLayer = "layer"
)

// SimpleUpdateOpts configures a simple update driver.
type SimpleUpdateOpts struct {
	Opts
	// Gauges seeds the bond gauge store. Nil seeds from a single
	// equilibration pass over the state.
	Gauges *tn.Gauges
	// GaugeOpts controls equilibration and gauge absorption.
	GaugeOpts tn.GaugeOpts
	// EquilibrateEvery is EquilibrateGate, EquilibrateLayer or empty.
	EquilibrateEvery string
	// EquilibrateStart equilibrates fully before the first sweep.
	EquilibrateStart bool
	// EquilibrateSweeps equilibrates every that many sweeps when
	// EquilibrateEvery is empty. Zero never equilibrates on a sweep
	// schedule.
	EquilibrateSweeps int
	// ClusterDistance and ClusterFillin shape the cluster patches of
	// the energy estimator.
	ClusterDistance int
	ClusterFillin   int
	// GaugeDiffTol stops evolution once the largest per sweep gauge
	// change falls below it. Zero disables.
	GaugeDiffTol float64
}

// SimpleUpdate evolves a state in the simple update scheme: gates
// absorb the stored bond gauges as their environment, each split bond
// writes its fresh singular values back into the gauge store, and the
// energy is estimated on gauged local clusters. The state tensors stay
// gauge free, the physical state is the network with all gauges
// inserted.
type SimpleUpdate struct {
	*TEBD
	suOpts SimpleUpdateOpts

	gauges     *tn.Gauges
	gaugeDiffs []float64
	preGauges  *tn.Gauges
	bestGauges *tn.Gauges
}

// NewSimpleUpdate returns a simple update driver for the state under
// ham.
func NewSimpleUpdate(state *tn.Vector, ham *Ham, opts SimpleUpdateOpts) (*SimpleUpdate, error) {
	switch opts.EquilibrateEvery {
	case "", EquilibrateGate, EquilibrateLayer:
	default:
		return nil, errors.Errorf("unknown equilibration schedule %q", opts.EquilibrateEvery)
	}
	base, err := newDriver(state, ham, opts.Opts)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	su := &SimpleUpdate{TEBD: base, suOpts: opts}
	if opts.Gauges != nil {
		su.gauges = opts.Gauges.Copy()
	} else {
		su.gauges = tn.NewGauges()
		su.seedGauges()
	}
	base.gate = su.applyGate
	base.preSweep = su.beforeSweep
	base.postLayer = su.afterLayer
	base.postSweep = su.afterSweep
	base.energyFn = su.clusterEnergy
	if opts.EnergyFn != nil {
		base.energyFn = func() (float64, error) { return opts.EnergyFn(base) }
	}
	base.onBest = func() { su.bestGauges = su.gauges.Copy() }
	return su, nil
}

func (su *SimpleUpdate) applyGate(g *mat.Dense, e tn.Edge) error {
	_, err := su.state.GateSimple(g, e.Sites(), su.gauges, tn.GateOpts{
		MaxBond: su.opts.MaxBond,
		Cutoff:  su.opts.Cutoff,
		Smudge:  su.suOpts.GaugeOpts.Smudge,
		Power:   su.suOpts.GaugeOpts.Power,
	})
	if err != nil {
		return errors.Wrap(err, "")
	}
	if su.suOpts.EquilibrateEvery == EquilibrateGate {
		su.Equilibrate()
	}
	return nil
}

// seedGauges runs a single equilibration pass so a fresh gauge store
// starts from rough singular value estimates rather than identities.
func (su *SimpleUpdate) seedGauges() {
	g := su.suOpts.GaugeOpts
	g.MaxIterations = 1
	su.state.GaugeAllSimple(su.gauges, g)
}

func (su *SimpleUpdate) beforeSweep() error {
	if su.suOpts.EquilibrateStart && su.sweeps == 0 {
		su.Equilibrate()
	}
	su.preGauges = su.gauges.Copy()
	return nil
}

func (su *SimpleUpdate) afterLayer() error {
	if su.suOpts.EquilibrateEvery == EquilibrateLayer {
		su.Equilibrate()
	}
	return nil
}

func (su *SimpleUpdate) afterSweep() error {
	diff := su.gauges.MaxDiff(su.preGauges)
	su.gaugeDiffs = append(su.gaugeDiffs, diff)
	if tol := su.suOpts.GaugeDiffTol; tol > 0 && diff < tol {
		su.stop = true
	}
	n := su.suOpts.EquilibrateSweeps
	if su.suOpts.EquilibrateEvery == "" && n > 0 && (su.sweeps+1)%n == 0 {
		su.Equilibrate()
	}
	return nil
}

func (su *SimpleUpdate) clusterEnergy() (float64, error) {
	res, err := su.state.ComputeLocalExpectationCluster(su.ham.Terms(), tn.ExpectOpts{
		Normalized:  true,
		MaxDistance: su.suOpts.ClusterDistance,
		Fillin:      su.suOpts.ClusterFillin,
		Gauges:      su.gauges,
		Smudge:      su.suOpts.GaugeOpts.Smudge,
		Power:       su.suOpts.GaugeOpts.Power,
	}, nil)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return tn.TotalExpectation(res), nil
}

// Gauges returns the live gauge store.
func (su *SimpleUpdate) Gauges() *tn.Gauges { return su.gauges }

// GaugeDiffs returns the largest gauge change of each sweep. A bond
// whose dimension changed counts as a change of one.
func (su *SimpleUpdate) GaugeDiffs() []float64 {
	return append([]float64{}, su.gaugeDiffs...)
}

// Equilibrate sweeps local bond updates until the gauges reach their
// fixed point.
func (su *SimpleUpdate) Equilibrate() tn.GaugeInfo {
	return su.state.GaugeAllSimple(su.gauges, su.suOpts.GaugeOpts)
}

// Normalize rescales the gauges and site tensors to unit local norms.
func (su *SimpleUpdate) Normalize() {
	su.state.NormalizeSimple(su.gauges)
}

// GetState returns a copy of the state, with the bond gauges absorbed
// into the tensors when absorbGauges is set, which yields the actual
// physical state.
func (su *SimpleUpdate) GetState(absorbGauges bool) *tn.Vector {
	state := su.state.Copy()
	if absorbGauges {
		state.GaugeSimpleInsert(su.gauges, 0, 1)
	}
	return state
}

// SetState replaces the state and gauges. Nil gauges reset the store
// and reseed it with a single equilibration pass.
func (su *SimpleUpdate) SetState(state *tn.Vector, gauges *tn.Gauges) {
	su.state = state.Copy()
	if gauges != nil {
		su.gauges = gauges.Copy()
	} else {
		su.gauges = tn.NewGauges()
		su.seedGauges()
	}
}

// Best returns the lowest recorded energy together with the state that
// had it, gauges absorbed.
func (su *SimpleUpdate) Best() (float64, *tn.Vector, bool) {
	if !su.haveBest {
		return 0, nil, false
	}
	state := su.bestState.Copy()
	if su.bestGauges != nil {
		state.GaugeSimpleInsert(su.bestGauges, 0, 1)
	}
	return su.bestEnergy, state, true
}

// BestGauges returns the gauge store recorded with the best state.
func (su *SimpleUpdate) BestGauges() *tn.Gauges {
	if su.bestGauges == nil {
		return nil
	}
	return su.bestGauges.Copy()
}
