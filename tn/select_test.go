package tn

import (
	"math/rand"
	"testing"
)

func ringEdges(n int) []Edge {
	edges := chainEdges(n)
	return append(edges, NewEdge(SiteAt(0), SiteAt(n-1)))
}

func TestSitePathBetween(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(21))
	v := RandVector(chainEdges(4), 2, 2, rnd)
	path, err := v.SitePathBetween(SiteAt(0), SiteAt(3))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(path) != 4 {
		t.Fatalf("%#v", path)
	}
	for i, s := range path {
		if s != SiteAt(i) {
			t.Fatalf("%d %s", i, s)
		}
	}
	same, err := v.SitePathBetween(SiteAt(2), SiteAt(2))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(same) != 1 || same[0] != SiteAt(2) {
		t.Fatalf("%#v", same)
	}
}

func TestSitePathBetweenDisconnected(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(22))
	edges := []Edge{
		NewEdge(SiteAt(0), SiteAt(1)),
		NewEdge(SiteAt(2), SiteAt(3)),
	}
	v := RandVector(edges, 2, 2, rnd)
	if _, err := v.SitePathBetween(SiteAt(0), SiteAt(3)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSelectLocal(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(23))
	v := RandVector(chainEdges(5), 2, 2, rnd)
	patch := v.SelectLocal([]Site{SiteAt(2)}, 1, 0)
	if patch.NumTensors() != 3 {
		t.Fatalf("%d", patch.NumTensors())
	}
	sites := patch.Sites()
	if len(sites) != 3 || sites[0] != SiteAt(1) || sites[2] != SiteAt(3) {
		t.Fatalf("%#v", sites)
	}
}

func TestSelectLocalFillin(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(24))
	v := RandVector(ringEdges(4), 2, 2, rnd)
	if got := v.SelectLocal([]Site{SiteAt(0)}, 1, 0).NumTensors(); got != 3 {
		t.Fatalf("%d", got)
	}
	// Site 2 neighbours two selected tensors, so one fillin round closes
	// the ring.
	if got := v.SelectLocal([]Site{SiteAt(0)}, 1, 1).NumTensors(); got != 4 {
		t.Fatalf("%d", got)
	}
}

func TestGenLoopsOnRing(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(25))
	v := RandVector(ringEdges(4), 2, 2, rnd)
	var loops [][]Site
	v.GenLoops([]Site{SiteAt(0), SiteAt(1)}, 0)(func(l []Site) bool {
		loops = append(loops, l)
		return true
	})
	if len(loops) != 1 {
		t.Fatalf("%#v", loops)
	}
	if len(loops[0]) != 4 {
		t.Fatalf("%#v", loops[0])
	}

	loops = nil
	v.GenLoops([]Site{SiteAt(0)}, 0)(func(l []Site) bool {
		loops = append(loops, l)
		return true
	})
	if len(loops) != 1 || len(loops[0]) != 4 {
		t.Fatalf("%#v", loops)
	}
}

func TestGenLoopsNoneOnChain(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(26))
	v := RandVector(chainEdges(4), 2, 2, rnd)
	count := 0
	v.GenLoops([]Site{SiteAt(0), SiteAt(1)}, 6)(func(l []Site) bool {
		count++
		return true
	})
	if count != 0 {
		t.Fatalf("%d", count)
	}
}

func TestGenRegionsOnRing(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(27))
	v := RandVector(ringEdges(4), 2, 2, rnd)
	var regions [][]Site
	v.GenRegions([]Site{SiteAt(0)}, 0)(func(r []Site) bool {
		regions = append(regions, r)
		return true
	})
	// The smallest region on a ring in which every site keeps two in
	// region neighbours is the whole ring.
	if len(regions) != 1 || len(regions[0]) != 4 {
		t.Fatalf("%#v", regions)
	}
}

func TestGenLoopsEarlyStop(t *testing.T) {
	t.Parallel()
	rnd := rand.New(rand.NewSource(28))
	v := RandVector(ringEdges(4), 2, 2, rnd)
	count := 0
	v.GenLoops([]Site{SiteAt(0)}, 8)(func(l []Site) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("%d", count)
	}
}
