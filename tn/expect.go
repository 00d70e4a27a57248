package tn

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"qtebd/tensor"
)

// Rehearse selects dry run modes for the expectation estimators. A
// rehearsing estimator builds the contraction problem without executing
// it, reporting what a real evaluation would contract and at what cost.
type Rehearse int

const (
	// RehearseNone evaluates normally.
	RehearseNone Rehearse = iota
	// RehearseNetwork returns the network that would be contracted.
	RehearseNetwork
	// RehearseTree additionally returns the planned contraction tree
	// with its cost and width estimates.
	RehearseTree
)

// ExpectOpts controls the local expectation estimators.
type ExpectOpts struct {
	// Normalized divides by the estimator's own norm term.
	Normalized bool
	// MaxDistance is the graph radius of the cluster estimators.
	MaxDistance int
	// Fillin grows the cluster patch by rounds of hole filling.
	Fillin int
	// Gauges, when set, are absorbed at the cluster boundary.
	Gauges *Gauges
	// Smudge and Power regularize gauge absorption. Zeros mean 1e-12
	// and 1.
	Smudge float64
	Power  float64
	// Rehearse switches to a dry run.
	Rehearse Rehearse
}

// Expectation is the result of one local expectation estimate.
type Expectation struct {
	// Value is the estimate, already divided by Norm when the
	// estimator ran normalized.
	Value float64
	// Norm is the estimator's own norm term.
	Norm float64
	// Network and Tree are set in rehearse modes, in which Value and
	// Norm stay zero.
	Network *Network
	Tree    *ContractionTree
}

// braInd names the conjugate layer copy of a physical index.
func braInd(phys string) string { return phys + "_bra" }

// rdmNetwork builds the double layer network whose contraction is the
// reduced density matrix on the keep sites: a ket copy of v joined to
// its conjugate, with the physical indices of the keep sites left open
// on both layers and all other physical indices traced.
func (v *Vector) rdmNetwork(keep []Site) (*Network, []string, []string, []int) {
	kInds := make([]string, len(keep))
	bInds := make([]string, len(keep))
	dims := make([]int, len(keep))
	rename := make(map[string]string)
	for i, s := range keep {
		kInds[i] = v.SiteInd(s)
		bInds[i] = braInd(kInds[i])
		dims[i] = v.PhysDim(s)
		rename[kInds[i]] = bInds[i]
	}
	bra := v.Network.Conj()
	bra.ReindexAll(rename)
	// Combine renames the bra layer's bond indices, which collide with
	// the ket's, while the remaining physical indices stay shared and
	// therefore traced.
	return v.Network.Combine(bra), kInds, bInds, dims
}

// PartialTrace contracts the network into the reduced density matrix on
// the keep sites, as a tensor with the ket indices first and the bra
// indices second. The result is not trace normalized.
func (v *Vector) PartialTrace(keep []Site) (*tensor.Dense, error) {
	db, kInds, bInds, _ := v.rdmNetwork(keep)
	rho, err := db.Contract(append(append([]string{}, kInds...), bInds...))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return rho, nil
}

// rhoTrace sums the diagonal of a density matrix tensor with ket
// indices first.
func rhoTrace(rho *tensor.Dense, kInds, bInds []string) float64 {
	ordered := rho.Transpose(append(append([]string{}, kInds...), bInds...)...)
	k := 1
	for _, ix := range kInds {
		k *= rho.IndSize(ix)
	}
	data := ordered.Data()
	if len(data) != k*k {
		panic(fmt.Sprintf("%d %d", len(data), k))
	}
	tr := 0.0
	for i := 0; i < k; i++ {
		tr += data[i*k+i]
	}
	return tr
}

// NormSquared contracts the double layer norm network <v|v>.
func (v *Vector) NormSquared() (float64, error) {
	db, _, _, _ := v.rdmNetwork(nil)
	val, err := db.ContractValue()
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return val, nil
}

// ToDense contracts the whole network into a single tensor over the
// physical indices of the given sites, in order.
func (v *Vector) ToDense(order []Site) (*tensor.Dense, error) {
	inds := make([]string, len(order))
	for i, s := range order {
		inds[i] = v.SiteInd(s)
	}
	t, err := v.Network.Contract(inds)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return t, nil
}

// LocalExpectationExact estimates <v|g|v> on the given sites by exactly
// contracting the double layer network into the local reduced density
// matrix. Exact here refers to the contraction, the estimator visits
// every tensor of the network.
func (v *Vector) LocalExpectationExact(g *mat.Dense, where []Site, opts ExpectOpts) (Expectation, error) {
	db, kInds, bInds, dims := v.rdmNetwork(where)
	out := append(append([]string{}, kInds...), bInds...)
	if opts.Rehearse != RehearseNone {
		res := Expectation{Network: db}
		if opts.Rehearse >= RehearseTree {
			tree, err := db.PlanContraction(out)
			if err != nil {
				return Expectation{}, errors.Wrap(err, "")
			}
			res.Tree = tree
		}
		return res, nil
	}
	rho, err := db.Contract(out)
	if err != nil {
		return Expectation{}, errors.Wrap(err, "")
	}
	gt := tensor.FromMatrix(g, bInds, kInds, dims, dims)
	res := Expectation{
		Value: tensor.Contract(rho, gt).ScalarValue(),
		Norm:  rhoTrace(rho, kInds, bInds),
	}
	if opts.Normalized {
		res.Value /= res.Norm
	}
	return res, nil
}

// LocalExpectationCluster estimates <v|g|v> on a local patch of the
// network only: the tensors within MaxDistance of the sites, grown by
// Fillin rounds, with the stored gauges absorbed at the patch boundary
// as the environment approximation.
func (v *Vector) LocalExpectationCluster(g *mat.Dense, where []Site, opts ExpectOpts) (Expectation, error) {
	patch := v.SelectLocal(where, opts.MaxDistance, opts.Fillin)
	if opts.Gauges != nil {
		smudge, power := opts.Smudge, opts.Power
		if smudge == 0 {
			smudge = 1e-12
		}
		if power == 0 {
			power = 1
		}
		patch.GaugeSimpleInsert(opts.Gauges, smudge, power)
	}
	inner := opts
	inner.Gauges = nil
	return patch.LocalExpectationExact(g, where, inner)
}

// Terms maps edges, single site or two site, to the matrices acting on
// them. Two site matrices act on the product of the two physical spaces
// with the first site's index slowest.
type Terms map[Edge]*mat.Dense

// SortedEdges returns the keys of terms in deterministic order.
func (terms Terms) SortedEdges() []Edge {
	edges := make([]Edge, 0, len(terms))
	for e := range terms {
		edges = append(edges, e)
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i][0] != edges[j][0] {
			return edges[i][0] < edges[j][0]
		}
		return edges[i][1] < edges[j][1]
	})
	return edges
}

// ComputeLocalExpectationExact evaluates every term with the exact
// estimator, optionally fanning the independent terms out on ex. The
// state must not be mutated while the batch runs.
func (v *Vector) ComputeLocalExpectationExact(terms Terms, opts ExpectOpts, ex Executor) (map[Edge]Expectation, error) {
	return v.computeBatch(terms, ex, func(e Edge) (Expectation, error) {
		return v.LocalExpectationExact(terms[e], e.Sites(), opts)
	})
}

// ComputeLocalExpectationCluster evaluates every term with the cluster
// estimator, optionally fanning the independent terms out on ex.
func (v *Vector) ComputeLocalExpectationCluster(terms Terms, opts ExpectOpts, ex Executor) (map[Edge]Expectation, error) {
	return v.computeBatch(terms, ex, func(e Edge) (Expectation, error) {
		return v.LocalExpectationCluster(terms[e], e.Sites(), opts)
	})
}

func (v *Vector) computeBatch(terms Terms, ex Executor, eval func(Edge) (Expectation, error)) (map[Edge]Expectation, error) {
	edges := terms.SortedEdges()
	out := make(map[Edge]Expectation, len(edges))
	if ex == nil {
		for _, e := range edges {
			res, err := eval(e)
			if err != nil {
				return nil, errors.Wrap(err, "")
			}
			out[e] = res
		}
		return out, nil
	}
	futures := make([]Future, len(edges))
	for i, e := range edges {
		futures[i] = ex.Submit(func() (Expectation, error) { return eval(e) })
	}
	for i, fut := range futures {
		res, err := fut.Result()
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		out[edges[i]] = res
	}
	return out, nil
}

// TotalExpectation sums the values of a batch result.
func TotalExpectation(m map[Edge]Expectation) float64 {
	total := 0.0
	for _, res := range m {
		total += res.Value
	}
	return total
}
