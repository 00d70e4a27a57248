// Package tebd implements imaginary time evolution of arbitrary
// geometry tensor network states by local gates, in both the exact and
// the simple update (gauged) schemes.
package tebd

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"qtebd/tn"
)

// Ham is a sum of one and two site terms on the edges of a graph, with
// a uniform physical dimension. One site terms are folded evenly into
// the two site terms covering their site, so after construction the
// Hamiltonian consists of two site terms only.
type Ham struct {
	d     int
	terms map[tn.Edge]*mat.Dense

	// Distinct term contents share a handle, so caches keyed by handle
	// deduplicate repeated terms.
	handles    map[tn.Edge]uint64
	handleOf   map[uint64]uint64
	nextHandle uint64
	flipCache  map[uint64]*mat.Dense
	expmCache  map[expmKey]*mat.Dense
}

type expmKey struct {
	handle uint64
	x      float64
}

// NewHam builds the Hamiltonian from two site terms keyed by edge and
// one site terms keyed by site. Terms on reversed edges are flipped
// into canonical order, duplicate terms sum. An error is returned when
// a one site term sits on a site no two site term covers.
func NewHam(d int, h2 map[tn.Edge]*mat.Dense, h1 map[tn.Site]*mat.Dense) (*Ham, error) {
	h := &Ham{
		d:         d,
		terms:     make(map[tn.Edge]*mat.Dense),
		handles:   make(map[tn.Edge]uint64),
		handleOf:  make(map[uint64]uint64),
		flipCache: make(map[uint64]*mat.Dense),
		expmCache: make(map[expmKey]*mat.Dense),
	}
	n := d * d
	for e, m := range h2 {
		r, c := m.Dims()
		if r != n || c != n {
			return nil, errors.Errorf("term on %v is %dx%d, want %dx%d", e, r, c, n, n)
		}
		t := mat.DenseCopyOf(m)
		if !e.Canonical() {
			e = e.Flip()
			t = flipTerm(t, d)
		}
		if prev, ok := h.terms[e]; ok {
			prev.Add(prev, t)
		} else {
			h.terms[e] = t
		}
	}
	// Fold one site terms evenly into the covering two site terms.
	cover := make(map[tn.Site][]tn.Edge)
	for _, e := range h.Edges() {
		cover[e[0]] = append(cover[e[0]], e)
		cover[e[1]] = append(cover[e[1]], e)
	}
	eye := identity(d)
	sites := make([]tn.Site, 0, len(h1))
	for s := range h1 {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	for _, s := range sites {
		m := h1[s]
		r, c := m.Dims()
		if r != d || c != d {
			return nil, errors.Errorf("term on site %s is %dx%d, want %dx%d", s, r, c, d, d)
		}
		edges := cover[s]
		if len(edges) == 0 {
			return nil, errors.Errorf("site %s has a one site term but no covering edge", s)
		}
		share := mat.DenseCopyOf(m)
		share.Scale(1/float64(len(edges)), share)
		for _, e := range edges {
			var lift mat.Dense
			if e[0] == s {
				lift.Kronecker(share, eye)
			} else {
				lift.Kronecker(eye, share)
			}
			h.terms[e].Add(h.terms[e], &lift)
		}
	}
	for _, e := range h.Edges() {
		h.handles[e] = h.handle(h.terms[e])
	}
	return h, nil
}

// flipTerm swaps which site a two site term acts on first.
func flipTerm(m *mat.Dense, d int) *mat.Dense {
	n := d * d
	out := mat.NewDense(n, n, nil)
	for a := 0; a < d; a++ {
		for b := 0; b < d; b++ {
			for c := 0; c < d; c++ {
				for e := 0; e < d; e++ {
					out.Set(b*d+a, e*d+c, m.At(a*d+b, c*d+e))
				}
			}
		}
	}
	return out
}

func identity(d int) *mat.Dense {
	m := mat.NewDense(d, d, nil)
	for i := 0; i < d; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// handle returns the stable handle of a term's content.
func (h *Ham) handle(m *mat.Dense) uint64 {
	hs := fnv.New64a()
	r, c := m.Dims()
	var buf [8]byte
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.At(i, j)))
			hs.Write(buf[:])
		}
	}
	fp := hs.Sum64()
	if hd, ok := h.handleOf[fp]; ok {
		return hd
	}
	h.nextHandle++
	h.handleOf[fp] = h.nextHandle
	return h.nextHandle
}

// PhysDim returns the uniform physical dimension.
func (h *Ham) PhysDim() int { return h.d }

// Edges returns the term edges in canonical ascending order.
func (h *Ham) Edges() []tn.Edge {
	edges := make([]tn.Edge, 0, len(h.terms))
	for e := range h.terms {
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

// Sites returns every site touched by a term, ascending.
func (h *Ham) Sites() []tn.Site {
	set := make(map[tn.Site]struct{})
	for e := range h.terms {
		set[e[0]] = struct{}{}
		set[e[1]] = struct{}{}
	}
	sites := make([]tn.Site, 0, len(set))
	for s := range set {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// NumSites returns the number of sites.
func (h *Ham) NumSites() int { return len(h.Sites()) }

// Term returns the matrix of the term on edge e.
func (h *Ham) Term(e tn.Edge) (*mat.Dense, bool) {
	m, ok := h.terms[e]
	return m, ok
}

// Terms returns the Hamiltonian as an estimator term map.
func (h *Ham) Terms() tn.Terms {
	out := make(tn.Terms, len(h.terms))
	for e, m := range h.terms {
		out[e] = m
	}
	return out
}

// GetGate returns the term on e in e's own site order. A reversed edge
// returns the flipped term, cached by term content.
func (h *Ham) GetGate(e tn.Edge) (*mat.Dense, error) {
	if m, ok := h.terms[e]; ok {
		return m, nil
	}
	ce := e.Flip()
	m, ok := h.terms[ce]
	if !ok {
		return nil, errors.Errorf("no term on edge %v", e)
	}
	hd := h.handles[ce]
	if f, ok := h.flipCache[hd]; ok {
		return f, nil
	}
	f := flipTerm(m, h.d)
	h.flipCache[hd] = f
	return f, nil
}

// GetGateExpm returns expm(x * H_e), cached by term content and x. The
// terms must be symmetric, which every real Hamiltonian term is.
func (h *Ham) GetGateExpm(e tn.Edge, x float64) (*mat.Dense, error) {
	m, hd := h.terms[e], h.handles[e]
	if m == nil {
		f, err := h.GetGate(e)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		m, hd = f, h.handle(f)
	}
	key := expmKey{handle: hd, x: x}
	if g, ok := h.expmCache[key]; ok {
		return g, nil
	}
	g, err := expmSym(m, x)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	h.expmCache[key] = g
	return g, nil
}

// expmSym computes expm(x*m) for symmetric m by eigendecomposition.
func expmSym(m *mat.Dense, x float64) (*mat.Dense, error) {
	n, c := m.Dims()
	if n != c {
		return nil, errors.Errorf("matrix is %dx%d", n, c)
	}
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if math.Abs(m.At(i, j)-m.At(j, i)) > 1e-10 {
				return nil, errors.Errorf("matrix is not symmetric at (%d,%d)", i, j)
			}
			sym.SetSym(i, j, m.At(i, j))
		}
	}
	var es mat.EigenSym
	if ok := es.Factorize(sym, true); !ok {
		return nil, errors.Errorf("eigendecomposition failed")
	}
	vals := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	scaled := mat.NewDense(n, n, nil)
	for j := 0; j < n; j++ {
		ex := math.Exp(x * vals[j])
		for i := 0; i < n; i++ {
			scaled.Set(i, j, vecs.At(i, j)*ex)
		}
	}
	out := mat.NewDense(n, n, nil)
	out.Mul(scaled, vecs.T())
	return out, nil
}
