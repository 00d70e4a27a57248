package tebd

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"qtebd/tn"
)

func TestGetAutoOrderingSort(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesChain(4, false), 1, 0)
	require.NoError(t, err)
	layers, err := h.GetAutoOrdering("", nil)
	require.NoError(t, err)
	want := [][]tn.Edge{
		{tn.NewEdge(tn.SiteAt(0), tn.SiteAt(1)), tn.NewEdge(tn.SiteAt(2), tn.SiteAt(3))},
		{tn.NewEdge(tn.SiteAt(1), tn.SiteAt(2))},
	}
	require.Equal(t, want, layers)
}

func TestGetAutoOrderingRandomNeedsSource(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesChain(4, false), 1, 0)
	require.NoError(t, err)
	_, err = h.GetAutoOrdering(OrderRandom, nil)
	require.Error(t, err)
	_, err = h.GetAutoOrdering(OrderRandomUngrouped, nil)
	require.Error(t, err)
}

func TestGetAutoOrderingUnknownPolicyColors(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesChain(4, true), 1, 0)
	require.NoError(t, err)
	layers, err := h.GetAutoOrdering("smallest_last", nil)
	require.NoError(t, err)
	checkLayers(t, h, layers, true)
}

func checkLayers(t *testing.T, h *Ham, layers [][]tn.Edge, disjoint bool) {
	t.Helper()
	seen := make(map[tn.Edge]int)
	for _, layer := range layers {
		covered := make(map[tn.Site]struct{})
		for _, e := range layer {
			seen[e]++
			if !disjoint {
				continue
			}
			for _, s := range e.Sites() {
				_, ok := covered[s]
				require.False(t, ok, "site %s covered twice in a layer", s)
				covered[s] = struct{}{}
			}
		}
	}
	for _, e := range h.Edges() {
		require.Equal(t, 1, seen[e], "edge %v", e)
	}
}

func TestGetAutoOrderingRandom(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesChain(6, true), 1, 0)
	require.NoError(t, err)
	rnd := rand.New(rand.NewSource(2))

	layers, err := h.GetAutoOrdering(OrderRandom, rnd)
	require.NoError(t, err)
	checkLayers(t, h, layers, true)

	layers, err = h.GetAutoOrdering(OrderRandomUngrouped, rnd)
	require.NoError(t, err)
	require.Len(t, layers, len(h.Edges()))
	for _, layer := range layers {
		require.Len(t, layer, 1)
	}
	checkLayers(t, h, layers, false)
}

func TestGetAutoOrderingColored(t *testing.T) {
	t.Parallel()
	h, err := HamIsing(EdgesSquareLattice(3, 3, false), 1, 0)
	require.NoError(t, err)
	layers, err := h.GetAutoOrdering(OrderColored, nil)
	require.NoError(t, err)
	checkLayers(t, h, layers, true)
}
