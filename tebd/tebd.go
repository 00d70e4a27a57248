package tebd

import (
	"context"
	"log"
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"qtebd/tn"
)

// Opts configures an evolution driver.
type Opts struct {
	// Imag selects imaginary time evolution and must be true, real time
	// evolution is not implemented.
	Imag bool
	// MaxBond caps the bond dimension after each two site gate. Zero
	// means no cap.
	MaxBond int
	// Cutoff truncates singular values by relative discarded weight.
	Cutoff float64
	// Ordering fixes the sweep layers explicitly. Nil derives them from
	// OrderingPolicy each sweep.
	Ordering [][]tn.Edge
	// OrderingFn derives the sweep layers dynamically each sweep and
	// takes precedence over Ordering and OrderingPolicy.
	OrderingFn func(h *Ham, rnd *rand.Rand) ([][]tn.Edge, error)
	// OrderingPolicy is one of the Order constants. Empty means
	// OrderSort.
	OrderingPolicy string
	// SecondOrder reflects each sweep into a second order Trotter step.
	SecondOrder bool
	// KeepBest tracks the lowest energy state seen at energy
	// computation points.
	KeepBest bool
	// Seed feeds the random ordering policies.
	Seed int64
	// EnergyFn replaces the driver's energy estimator.
	EnergyFn func(*TEBD) (float64, error)
	// Progress logs each computed energy.
	Progress bool
}

// TEBD evolves a tensor network state in imaginary time by applying
// exponentiated Hamiltonian terms edge by edge, truncating exactly
// against the full network. Use SimpleUpdate for the gauged scheme that
// scales to large graphs.
type TEBD struct {
	state *tn.Vector
	ham   *Ham
	opts  Opts
	rnd   *rand.Rand

	taut     float64
	sweeps   int
	energies []float64
	times    []float64
	stat     rollingDiffMean

	bestEnergy float64
	bestState  *tn.Vector
	haveBest   bool

	// stop is raised by sweep hooks to end the evolution after the
	// current sweep.
	stop bool

	// Hooks overridden by SimpleUpdate.
	gate      func(g *mat.Dense, e tn.Edge) error
	preSweep  func() error
	postLayer func() error
	postSweep func() error
	energyFn  func() (float64, error)
	onBest    func()
}

// NewTEBD returns an exact evolution driver for the state under ham.
func NewTEBD(state *tn.Vector, ham *Ham, opts Opts) (*TEBD, error) {
	t, err := newDriver(state, ham, opts)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	t.gate = func(g *mat.Dense, e tn.Edge) error {
		_, err := t.state.Gate(g, e.Sites(), tn.GateOpts{MaxBond: opts.MaxBond, Cutoff: opts.Cutoff})
		return err
	}
	t.energyFn = func() (float64, error) {
		res, err := t.state.ComputeLocalExpectationExact(ham.Terms(), tn.ExpectOpts{Normalized: true}, nil)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		return tn.TotalExpectation(res), nil
	}
	if opts.EnergyFn != nil {
		t.energyFn = func() (float64, error) { return opts.EnergyFn(t) }
	}
	return t, nil
}

func newDriver(state *tn.Vector, ham *Ham, opts Opts) (*TEBD, error) {
	if !opts.Imag {
		return nil, errors.Errorf("only imaginary time evolution is supported")
	}
	return &TEBD{
		state: state.Copy(),
		ham:   ham,
		opts:  opts,
		rnd:   rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

// State returns a copy of the current state.
func (t *TEBD) State() *tn.Vector { return t.state.Copy() }

// Ham returns the Hamiltonian being evolved under.
func (t *TEBD) Ham() *Ham { return t.ham }

// Time returns the accumulated imaginary time.
func (t *TEBD) Time() float64 { return t.taut }

// NumSweeps returns the number of sweeps taken.
func (t *TEBD) NumSweeps() int { return t.sweeps }

// Energies returns the recorded energy history.
func (t *TEBD) Energies() []float64 { return append([]float64{}, t.energies...) }

// Times returns the imaginary times of the recorded energies.
func (t *TEBD) Times() []float64 { return append([]float64{}, t.times...) }

// Energy computes the current total energy with the driver's estimator.
func (t *TEBD) Energy() (float64, error) {
	return t.energyFn()
}

// EnergyPerSite computes the current energy divided by the site count.
func (t *TEBD) EnergyPerSite() (float64, error) {
	en, err := t.Energy()
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return en / float64(t.ham.NumSites()), nil
}

// Best returns the lowest recorded energy and the state that had it.
func (t *TEBD) Best() (float64, *tn.Vector, bool) {
	if !t.haveBest {
		return 0, nil, false
	}
	return t.bestEnergy, t.bestState.Copy(), true
}

// EvolveOpts controls one evolution run.
type EvolveOpts struct {
	Steps int
	Tau   float64
	// Taus gives each sweep its own time step, overriding Tau. With
	// Steps zero, every entry is used.
	Taus []float64
	// ComputeEnergyEvery records the energy before each that many
	// sweeps, starting before the first. Zero disables energy tracking.
	ComputeEnergyEvery int
	// ComputeEnergyFinal records the energy once more when the run
	// ends, unless it was just recorded.
	ComputeEnergyFinal bool
	// Tol stops early once the rolling energy difference statistic
	// falls below it, checked before the sweep. Zero disables early
	// stopping.
	Tol float64
	// Callback runs after every sweep and stops the run by returning
	// true.
	Callback func(*TEBD) bool
}

// Evolve runs sweeps of gates with time step tau. Cancelling the
// context stops cleanly between sweeps, keeping the state evolved so
// far, and is not an error.
func (t *TEBD) Evolve(ctx context.Context, opts EvolveOpts) error {
	t.stop = false
	steps := opts.Steps
	if len(opts.Taus) > 0 {
		if steps == 0 {
			steps = len(opts.Taus)
		} else if steps > len(opts.Taus) {
			return errors.Errorf("%d steps but only %d taus", steps, len(opts.Taus))
		}
	}
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			log.Printf("evolution stopped after %d sweeps", t.sweeps)
			return nil
		default:
		}
		// Energy and the convergence check come before the sweep, so
		// the first record is of the unevolved state and a converged
		// run does not take one extra sweep.
		if opts.ComputeEnergyEvery > 0 && i%opts.ComputeEnergyEvery == 0 {
			converged, err := t.recordEnergy(opts.Tol)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if converged {
				break
			}
		}
		tau := opts.Tau
		if len(opts.Taus) > 0 {
			tau = opts.Taus[i]
		}
		if err := t.sweep(tau); err != nil {
			return errors.Wrap(err, "")
		}
		t.sweeps++
		t.taut += tau
		if opts.Callback != nil && opts.Callback(t) {
			break
		}
		if t.stop {
			break
		}
	}
	if opts.ComputeEnergyFinal && (len(t.times) == 0 || t.times[len(t.times)-1] != t.taut) {
		if _, err := t.recordEnergy(0); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// recordEnergy appends the current energy to the history and reports
// whether the convergence statistic fell below tol.
func (t *TEBD) recordEnergy(tol float64) (bool, error) {
	en, err := t.Energy()
	if err != nil {
		return false, errors.Wrap(err, "")
	}
	t.energies = append(t.energies, en)
	t.times = append(t.times, t.taut)
	t.stat.Sample(en)
	if t.opts.KeepBest && (!t.haveBest || en < t.bestEnergy) {
		t.bestEnergy = en
		t.bestState = t.state.Copy()
		t.haveBest = true
		if t.onBest != nil {
			t.onBest()
		}
	}
	if t.opts.Progress {
		log.Printf("sweep %d time %v energy %v", t.sweeps, t.taut, en)
	}
	if tol > 0 && t.stat.Value() < tol {
		if t.opts.Progress {
			log.Printf("converged after %d sweeps", t.sweeps)
		}
		return true, nil
	}
	return false, nil
}

// sweep applies one layer-grouped pass of gates. A second order sweep
// appends the reflected ordering and halves each time step.
func (t *TEBD) sweep(tau float64) error {
	layers := t.opts.Ordering
	switch {
	case t.opts.OrderingFn != nil:
		var err error
		layers, err = t.opts.OrderingFn(t.ham, t.rnd)
		if err != nil {
			return errors.Wrap(err, "")
		}
	case layers == nil:
		var err error
		layers, err = t.ham.GetAutoOrdering(t.opts.OrderingPolicy, t.rnd)
		if err != nil {
			return errors.Wrap(err, "")
		}
	}
	if t.preSweep != nil {
		if err := t.preSweep(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	var edges []tn.Edge
	for _, layer := range layers {
		edges = append(edges, layer...)
	}
	factor := 1.0
	if t.opts.SecondOrder {
		factor = 2.0
		for i := len(edges) - 1; i >= 0; i-- {
			edges = append(edges, edges[i])
		}
	}
	// Layers are re-formed from the touched sites as the gates go, so
	// the layer hook fires exactly when a gate conflicts with the
	// running layer, whatever grouping the ordering came in.
	covered := make(map[tn.Site]struct{})
	for _, e := range edges {
		_, a := covered[e[0]]
		_, b := covered[e[1]]
		if a || b {
			if t.postLayer != nil {
				if err := t.postLayer(); err != nil {
					return errors.Wrap(err, "")
				}
			}
			covered = make(map[tn.Site]struct{})
		}
		g, err := t.ham.GetGateExpm(e, -tau/factor)
		if err != nil {
			return errors.Wrap(err, "")
		}
		if err := t.gate(g, e); err != nil {
			return errors.Wrap(err, "")
		}
		covered[e[0]] = struct{}{}
		covered[e[1]] = struct{}{}
	}
	if t.postSweep != nil {
		if err := t.postSweep(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}
