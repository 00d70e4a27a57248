package tebd

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"qtebd/tn"
)

// Spin half operators.
var (
	pauliX = mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	pauliZ = mat.NewDense(2, 2, []float64{1, 0, 0, -1})
)

// kron2 returns the Kronecker product of two 2x2 matrices.
func kron2(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Kronecker(a, b)
	return &out
}

// HamIsing builds the transverse field Ising Hamiltonian
//
//	H = -j * sum_<ab> Z_a Z_b - h * sum_a X_a
//
// on the given edges.
func HamIsing(edges []tn.Edge, j, hx float64) (*Ham, error) {
	zz := kron2(pauliZ, pauliZ)
	h2 := make(map[tn.Edge]*mat.Dense, len(edges))
	for _, e := range edges {
		t := mat.DenseCopyOf(zz)
		t.Scale(-j, t)
		h2[tn.NewEdge(e[0], e[1])] = t
	}
	h1 := make(map[tn.Site]*mat.Dense)
	if hx != 0 {
		x := mat.DenseCopyOf(pauliX)
		x.Scale(-hx, x)
		sites := make(map[tn.Site]struct{})
		for _, e := range edges {
			sites[e[0]] = struct{}{}
			sites[e[1]] = struct{}{}
		}
		for s := range sites {
			h1[s] = x
		}
	}
	return NewHam(2, h2, h1)
}

// HamHeisenberg builds the spin half Heisenberg Hamiltonian
//
//	H = j * sum_<ab> (X_a X_b + Y_a Y_b + Z_a Z_b) / 4
//
// on the given edges. The Y_a Y_b product is real even though Y itself
// is not.
func HamHeisenberg(edges []tn.Edge, j float64) (*Ham, error) {
	yy := mat.NewDense(4, 4, []float64{
		0, 0, 0, -1,
		0, 0, 1, 0,
		0, 1, 0, 0,
		-1, 0, 0, 0,
	})
	var term mat.Dense
	term.Add(kron2(pauliX, pauliX), yy)
	term.Add(&term, kron2(pauliZ, pauliZ))
	term.Scale(j/4, &term)
	h2 := make(map[tn.Edge]*mat.Dense, len(edges))
	for _, e := range edges {
		h2[tn.NewEdge(e[0], e[1])] = mat.DenseCopyOf(&term)
	}
	return NewHam(2, h2, nil)
}

// EdgesChain returns the edges of a length n chain, closed into a ring
// when cyclic.
func EdgesChain(n int, cyclic bool) []tn.Edge {
	var edges []tn.Edge
	for i := 0; i+1 < n; i++ {
		edges = append(edges, tn.NewEdge(tn.SiteAt(i), tn.SiteAt(i+1)))
	}
	if cyclic && n > 2 {
		edges = append(edges, tn.NewEdge(tn.SiteAt(n-1), tn.SiteAt(0)))
	}
	return edges
}

// EdgesSquareLattice returns the edges of an lx by ly square lattice,
// with periodic wrapping when cyclic.
func EdgesSquareLattice(lx, ly int, cyclic bool) []tn.Edge {
	var edges []tn.Edge
	for i := 0; i < lx; i++ {
		for j := 0; j < ly; j++ {
			if i+1 < lx {
				edges = append(edges, tn.NewEdge(tn.SiteAt(i, j), tn.SiteAt(i+1, j)))
			} else if cyclic && lx > 2 {
				edges = append(edges, tn.NewEdge(tn.SiteAt(i, j), tn.SiteAt(0, j)))
			}
			if j+1 < ly {
				edges = append(edges, tn.NewEdge(tn.SiteAt(i, j), tn.SiteAt(i, j+1)))
			} else if cyclic && ly > 2 {
				edges = append(edges, tn.NewEdge(tn.SiteAt(i, j), tn.SiteAt(i, 0)))
			}
		}
	}
	return edges
}

// EdgesRandomTree returns the edges of a uniformly grown random tree on
// n sites.
func EdgesRandomTree(n int, rnd *rand.Rand) []tn.Edge {
	var edges []tn.Edge
	for i := 1; i < n; i++ {
		j := rnd.Intn(i)
		edges = append(edges, tn.NewEdge(tn.SiteAt(j), tn.SiteAt(i)))
	}
	return edges
}
