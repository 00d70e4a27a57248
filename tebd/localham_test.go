package tebd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"qtebd/tn"
)

func requireMatClose(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, wr, gr)
	require.Equal(t, wc, gc)
	for i := 0; i < wr; i++ {
		for j := 0; j < wc; j++ {
			require.InDelta(t, want.At(i, j), got.At(i, j), tol, "(%d,%d)", i, j)
		}
	}
}

func TestNewHamFoldsOneSiteTerms(t *testing.T) {
	t.Parallel()
	e := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	zz := kron2(pauliZ, pauliZ)
	h2 := map[tn.Edge]*mat.Dense{e: zz}
	h1 := map[tn.Site]*mat.Dense{tn.SiteAt(0): pauliX, tn.SiteAt(1): pauliX}
	h, err := NewHam(2, h2, h1)
	require.NoError(t, err)

	var want mat.Dense
	want.Add(zz, kron2(pauliX, identity(2)))
	want.Add(&want, kron2(identity(2), pauliX))
	term, ok := h.Term(e)
	require.True(t, ok)
	requireMatClose(t, &want, term, 1e-12)
}

func TestNewHamSplitsSharedSite(t *testing.T) {
	t.Parallel()
	e01 := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	e12 := tn.NewEdge(tn.SiteAt(1), tn.SiteAt(2))
	zz := kron2(pauliZ, pauliZ)
	h2 := map[tn.Edge]*mat.Dense{e01: zz, e12: zz}
	h1 := map[tn.Site]*mat.Dense{tn.SiteAt(1): pauliX}
	h, err := NewHam(2, h2, h1)
	require.NoError(t, err)

	// Site 1 is covered by both edges, so each edge receives half its
	// term, on the matching side.
	half := mat.DenseCopyOf(pauliX)
	half.Scale(0.5, half)
	var want01 mat.Dense
	want01.Add(zz, kron2(identity(2), half))
	term01, _ := h.Term(e01)
	requireMatClose(t, &want01, term01, 1e-12)

	var want12 mat.Dense
	want12.Add(zz, kron2(half, identity(2)))
	term12, _ := h.Term(e12)
	requireMatClose(t, &want12, term12, 1e-12)
}

func TestNewHamUncoveredOneSiteTerm(t *testing.T) {
	t.Parallel()
	e := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	h2 := map[tn.Edge]*mat.Dense{e: kron2(pauliZ, pauliZ)}
	h1 := map[tn.Site]*mat.Dense{tn.SiteAt(5): pauliX}
	_, err := NewHam(2, h2, h1)
	require.Error(t, err)
}

func TestNewHamFlipsReversedEdges(t *testing.T) {
	t.Parallel()
	// A term keyed by the reversed edge acts with Z on site 1 and X on
	// site 0, so the canonical term is X kron Z.
	h2 := map[tn.Edge]*mat.Dense{
		{tn.SiteAt(1), tn.SiteAt(0)}: kron2(pauliZ, pauliX),
	}
	h, err := NewHam(2, h2, nil)
	require.NoError(t, err)
	term, ok := h.Term(tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1)))
	require.True(t, ok)
	requireMatClose(t, kron2(pauliX, pauliZ), term, 1e-12)
}

func TestNewHamSumsDuplicates(t *testing.T) {
	t.Parallel()
	zz := kron2(pauliZ, pauliZ)
	h2 := map[tn.Edge]*mat.Dense{
		{tn.SiteAt(0), tn.SiteAt(1)}: zz,
		{tn.SiteAt(1), tn.SiteAt(0)}: zz,
	}
	h, err := NewHam(2, h2, nil)
	require.NoError(t, err)
	var want mat.Dense
	want.Scale(2, zz)
	term, _ := h.Term(tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1)))
	requireMatClose(t, &want, term, 1e-12)
}

func TestGetGateExpmDiagonal(t *testing.T) {
	t.Parallel()
	e := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	diag := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		diag.Set(i, i, float64(i+1))
	}
	h, err := NewHam(2, map[tn.Edge]*mat.Dense{e: diag}, nil)
	require.NoError(t, err)
	g, err := h.GetGateExpm(e, -0.5)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = math.Exp(-0.5 * float64(i+1))
			}
			require.InDelta(t, want, g.At(i, j), 1e-10)
		}
	}
}

func TestGetGateExpmCache(t *testing.T) {
	t.Parallel()
	zz := kron2(pauliZ, pauliZ)
	e01 := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	e12 := tn.NewEdge(tn.SiteAt(1), tn.SiteAt(2))
	h, err := NewHam(2, map[tn.Edge]*mat.Dense{e01: zz, e12: zz}, nil)
	require.NoError(t, err)

	a, err := h.GetGateExpm(e01, -0.1)
	require.NoError(t, err)
	b, err := h.GetGateExpm(e01, -0.1)
	require.NoError(t, err)
	require.Same(t, a, b)

	// Identical term contents share the cache entry across edges.
	c, err := h.GetGateExpm(e12, -0.1)
	require.NoError(t, err)
	require.Same(t, a, c)

	d, err := h.GetGateExpm(e01, -0.2)
	require.NoError(t, err)
	require.NotSame(t, a, d)
}

func TestGetGateExpmNotSymmetric(t *testing.T) {
	t.Parallel()
	e := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	m := mat.NewDense(4, 4, nil)
	m.Set(0, 1, 1)
	h, err := NewHam(2, map[tn.Edge]*mat.Dense{e: m}, nil)
	require.NoError(t, err)
	_, err = h.GetGateExpm(e, -0.1)
	require.Error(t, err)
}

func TestHamSites(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesChain(4, false), 1, 0)
	require.NoError(t, err)
	require.Equal(t, 4, h.NumSites())
	require.Equal(t, 2, h.PhysDim())
	require.Len(t, h.Edges(), 3)
	require.Len(t, h.Terms(), 3)
}

func TestGetGateReversedEdge(t *testing.T) {
	t.Parallel()
	e := tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1))
	h, err := NewHam(2, map[tn.Edge]*mat.Dense{e: kron2(pauliX, pauliZ)}, nil)
	require.NoError(t, err)

	g, err := h.GetGate(e)
	require.NoError(t, err)
	requireMatClose(t, kron2(pauliX, pauliZ), g, 1e-14)

	rev := tn.Edge{tn.SiteAt(1), tn.SiteAt(0)}
	f, err := h.GetGate(rev)
	require.NoError(t, err)
	requireMatClose(t, kron2(pauliZ, pauliX), f, 1e-14)

	f2, err := h.GetGate(rev)
	require.NoError(t, err)
	require.Same(t, f, f2)

	_, err = h.GetGate(tn.NewEdge(tn.SiteAt(2), tn.SiteAt(3)))
	require.Error(t, err)

	ge, err := h.GetGateExpm(rev, -0.1)
	require.NoError(t, err)
	r, c := ge.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 4, c)
}
