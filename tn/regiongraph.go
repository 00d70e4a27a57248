package tn

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// regionFingerprint returns the canonical content key of a region: its
// sorted sites joined into one string. Regions with the same sites are
// the same region no matter how they were produced.
func regionFingerprint(sites []Site) string {
	sorted := make([]string, 0, len(sites))
	for _, s := range sites {
		sorted = append(sorted, string(s))
	}
	sort.Strings(sorted)
	return strings.Join(sorted, ";")
}

// RegionGraph tracks a family of overlapping site regions and assigns
// each region an inclusion exclusion counting coefficient, such that
// summing coefficient times anything additive over the regions counts
// every covered patch exactly once.
type RegionGraph struct {
	regions      map[string][]Site
	counts       map[string]int
	autocomplete bool
	dirty        bool
}

// NewRegionGraph builds a region graph over the given regions. With
// autocomplete set, pairwise intersections of regions are added until
// closed, which the counting coefficients require when regions overlap
// partially.
func NewRegionGraph(regions [][]Site, autocomplete bool) *RegionGraph {
	rg := &RegionGraph{
		regions:      make(map[string][]Site),
		autocomplete: autocomplete,
	}
	for _, r := range regions {
		rg.AddRegion(r)
	}
	return rg
}

// AddRegion inserts a region, deduplicating by content.
func (rg *RegionGraph) AddRegion(sites []Site) {
	fp := regionFingerprint(sites)
	if _, ok := rg.regions[fp]; ok {
		return
	}
	sorted := append([]Site{}, sites...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rg.regions[fp] = sorted
	rg.dirty = true
}

// Regions returns all regions, intersections included, sorted by
// descending size then fingerprint.
func (rg *RegionGraph) Regions() [][]Site {
	rg.refresh()
	fps := make([]string, 0, len(rg.regions))
	for fp := range rg.regions {
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool {
		a, b := rg.regions[fps[i]], rg.regions[fps[j]]
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return fps[i] < fps[j]
	})
	out := make([][]Site, 0, len(fps))
	for _, fp := range fps {
		out = append(out, append([]Site{}, rg.regions[fp]...))
	}
	return out
}

// Count returns the counting coefficient of the region with the given
// sites, zero when the region is not tracked.
func (rg *RegionGraph) Count(sites []Site) int {
	rg.refresh()
	return rg.counts[regionFingerprint(sites)]
}

func (rg *RegionGraph) refresh() {
	if !rg.dirty {
		return
	}
	if rg.autocomplete {
		rg.closeIntersections()
	}
	// Moebius style: a region's coefficient is one minus the
	// coefficients of every strictly larger region containing it,
	// resolved from the largest down.
	type entry struct {
		fp    string
		sites []Site
		set   map[Site]struct{}
	}
	entries := make([]entry, 0, len(rg.regions))
	for fp, sites := range rg.regions {
		set := make(map[Site]struct{}, len(sites))
		for _, s := range sites {
			set[s] = struct{}{}
		}
		entries = append(entries, entry{fp: fp, sites: sites, set: set})
	}
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].sites) != len(entries[j].sites) {
			return len(entries[i].sites) > len(entries[j].sites)
		}
		return entries[i].fp < entries[j].fp
	})
	rg.counts = make(map[string]int, len(entries))
	for i, e := range entries {
		c := 1
		for j := 0; j < i; j++ {
			if len(entries[j].sites) <= len(e.sites) {
				continue
			}
			contains := true
			for _, s := range e.sites {
				if _, ok := entries[j].set[s]; !ok {
					contains = false
					break
				}
			}
			if contains {
				c -= rg.counts[entries[j].fp]
			}
		}
		rg.counts[e.fp] = c
	}
	rg.dirty = false
}

func (rg *RegionGraph) closeIntersections() {
	for {
		var added [][]Site
		fps := make([]string, 0, len(rg.regions))
		for fp := range rg.regions {
			fps = append(fps, fp)
		}
		sort.Strings(fps)
		for i := 0; i < len(fps); i++ {
			ai := rg.regions[fps[i]]
			seti := make(map[Site]struct{}, len(ai))
			for _, s := range ai {
				seti[s] = struct{}{}
			}
			for j := i + 1; j < len(fps); j++ {
				var inter []Site
				for _, s := range rg.regions[fps[j]] {
					if _, ok := seti[s]; ok {
						inter = append(inter, s)
					}
				}
				if len(inter) == 0 {
					continue
				}
				if _, ok := rg.regions[regionFingerprint(inter)]; !ok {
					added = append(added, inter)
				}
			}
		}
		if len(added) == 0 {
			return
		}
		for _, r := range added {
			rg.AddRegion(r)
		}
	}
}

// Normalize selects how region estimates combine into one value.
type Normalize int

const (
	// NormalizeCombined divides the counted sum of raw estimates by the
	// counted sum of norms.
	NormalizeCombined Normalize = iota
	// NormalizeLocal normalizes every region estimate by its own norm
	// before counting.
	NormalizeLocal
	// NormalizeProd divides by the product of region norms raised to
	// their counting coefficients.
	NormalizeProd
	// NormalizeNone returns the raw counted sum.
	NormalizeNone
)

// ExpansionOpts controls the region expansion estimators.
type ExpansionOpts struct {
	// Gauges are absorbed at every region boundary.
	Gauges *Gauges
	// Smudge and Power regularize gauge absorption. Zeros mean 1e-12
	// and 1.
	Smudge float64
	Power  float64
	// MaxLoopLength bounds loop search for the loop expansion. Zero
	// searches at the shortest loop length found.
	MaxLoopLength int
	// MaxRegionSize bounds region search for the cluster expansion.
	// Zero searches at the smallest valid region size.
	MaxRegionSize int
	Normalize     Normalize
	// Rehearse returns the contraction plan of the largest counted
	// region, which dominates the cost, instead of estimating.
	Rehearse Rehearse
	// Info, when set, caches gauged region patches and their norms
	// across calls. Callers must supply a fresh Info after mutating the
	// state or the gauges.
	Info *ExpansionInfo
}

// ExpansionInfo caches region patches and norms between expansion
// calls on the same state, keyed by region content fingerprints. Safe
// to share across the terms of an executor batch.
type ExpansionInfo struct {
	mu      sync.Mutex
	patches map[string]*Vector
	norms   map[string]float64
}

// NewExpansionInfo returns an empty expansion cache.
func NewExpansionInfo() *ExpansionInfo {
	return &ExpansionInfo{patches: make(map[string]*Vector), norms: make(map[string]float64)}
}

func (info *ExpansionInfo) patch(fp string) (*Vector, bool) {
	info.mu.Lock()
	defer info.mu.Unlock()
	p, ok := info.patches[fp]
	return p, ok
}

func (info *ExpansionInfo) setPatch(fp string, p *Vector) {
	info.mu.Lock()
	defer info.mu.Unlock()
	info.patches[fp] = p
}

func (info *ExpansionInfo) norm(fp string) (float64, bool) {
	info.mu.Lock()
	defer info.mu.Unlock()
	n, ok := info.norms[fp]
	return n, ok
}

func (info *ExpansionInfo) setNorm(fp string, n float64) {
	info.mu.Lock()
	defer info.mu.Unlock()
	info.norms[fp] = n
}

// gaugedRegion returns the gauged patch covering the region, from the
// cache when available.
func (v *Vector) gaugedRegion(region []Site, opts ExpansionOpts) *Vector {
	fp := regionFingerprint(region)
	if opts.Info != nil {
		if patch, ok := opts.Info.patch(fp); ok {
			return patch
		}
	}
	patch := v.SelectAny(region)
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
	if opts.Info != nil {
		opts.Info.setPatch(fp, patch)
	}
	return patch
}

func (v *Vector) regionNorm(region []Site, patch *Vector, opts ExpansionOpts) (float64, error) {
	fp := regionFingerprint(region)
	if opts.Info != nil {
		if n, ok := opts.Info.norm(fp); ok {
			return n, nil
		}
	}
	n, err := patch.NormSquared()
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if opts.Info != nil {
		opts.Info.setNorm(fp, n)
	}
	return n, nil
}

// expandRegions evaluates the term on every counted region of rg and
// combines the estimates per the normalization mode.
func (v *Vector) expandRegions(rg *RegionGraph, g *mat.Dense, where []Site, opts ExpansionOpts) (Expectation, error) {
	if opts.Rehearse != RehearseNone {
		for _, region := range rg.Regions() {
			if rg.Count(region) == 0 {
				continue
			}
			patch := v.gaugedRegion(region, opts)
			return patch.LocalExpectationExact(g, where, ExpectOpts{Rehearse: opts.Rehearse})
		}
		return Expectation{}, errors.Errorf("no counted regions")
	}
	var sumE, sumN float64
	prodE, prodN := 1.0, 1.0
	total := 0.0
	for _, region := range rg.Regions() {
		c := rg.Count(region)
		if c == 0 {
			continue
		}
		patch := v.gaugedRegion(region, opts)
		res, err := patch.LocalExpectationExact(g, where, ExpectOpts{})
		if err != nil {
			return Expectation{}, errors.Wrap(err, "")
		}
		// The trace of the local density matrix is the region norm, so
		// it comes for free with each evaluation.
		n := res.Norm
		if opts.Info != nil {
			opts.Info.setNorm(regionFingerprint(region), n)
		}
		fc := float64(c)
		sumE += fc * res.Value
		sumN += fc * n
		prodE *= math.Pow(res.Value, fc)
		prodN *= math.Pow(n, fc)
		total += fc * res.Value / n
	}
	switch opts.Normalize {
	case NormalizeCombined:
		return Expectation{Value: sumE / sumN, Norm: sumN}, nil
	case NormalizeLocal:
		return Expectation{Value: total, Norm: 1}, nil
	case NormalizeProd:
		return Expectation{Value: prodE / prodN, Norm: prodN}, nil
	case NormalizeNone:
		return Expectation{Value: sumE, Norm: 1}, nil
	}
	return Expectation{}, errors.Errorf("invalid normalization mode %d", int(opts.Normalize))
}

// LocalExpectationLoopExpansion estimates the term by an inclusion
// exclusion sum over the shortest site path between the sites and the
// loops passing through it. With no loops present this reduces to the
// plain cluster estimate on the path.
func (v *Vector) LocalExpectationLoopExpansion(g *mat.Dense, where []Site, opts ExpansionOpts) (Expectation, error) {
	pathSites, err := v.termPath(where)
	if err != nil {
		return Expectation{}, errors.Wrap(err, "")
	}
	var loops [][]Site
	v.GenLoops(pathSites, opts.MaxLoopLength)(func(l []Site) bool {
		loops = append(loops, l)
		return true
	})
	rg := NewRegionGraph(loops, false)
	rg.AddRegion(pathSites)
	return v.expandRegions(rg, g, where, opts)
}

// LocalExpectationClusterExpansion estimates the term by an inclusion
// exclusion sum over the connected regions containing the sites in
// which every site has two or more in region neighbours, closed under
// intersection.
func (v *Vector) LocalExpectationClusterExpansion(g *mat.Dense, where []Site, opts ExpansionOpts) (Expectation, error) {
	pathSites, err := v.termPath(where)
	if err != nil {
		return Expectation{}, errors.Wrap(err, "")
	}
	var regions [][]Site
	v.GenRegions(pathSites, opts.MaxRegionSize)(func(r []Site) bool {
		regions = append(regions, r)
		return true
	})
	rg := NewRegionGraph(regions, true)
	rg.AddRegion(pathSites)
	return v.expandRegions(rg, g, where, opts)
}

// ComputeLocalExpectationLoopExpansion evaluates every term with the
// loop expansion estimator, optionally fanning the independent terms
// out on ex. The state must not be mutated while the batch runs; a
// shared opts.Info cache is safe.
func (v *Vector) ComputeLocalExpectationLoopExpansion(terms Terms, opts ExpansionOpts, ex Executor) (map[Edge]Expectation, error) {
	return v.computeBatch(terms, ex, func(e Edge) (Expectation, error) {
		return v.LocalExpectationLoopExpansion(terms[e], e.Sites(), opts)
	})
}

// ComputeLocalExpectationClusterExpansion evaluates every term with the
// cluster expansion estimator, optionally fanning the independent terms
// out on ex.
func (v *Vector) ComputeLocalExpectationClusterExpansion(terms Terms, opts ExpansionOpts, ex Executor) (map[Edge]Expectation, error) {
	return v.computeBatch(terms, ex, func(e Edge) (Expectation, error) {
		return v.LocalExpectationClusterExpansion(terms[e], e.Sites(), opts)
	})
}

func (v *Vector) termPath(where []Site) ([]Site, error) {
	switch len(where) {
	case 1:
		return []Site{where[0]}, nil
	case 2:
		return v.SitePathBetween(where[0], where[1])
	}
	return nil, errors.Errorf("expansion terms act on 1 or 2 sites, got %d", len(where))
}

// NormClusterExpansion estimates the squared norm of the state as the
// product of gauged region norms raised to their counting coefficients.
// The supplied regions, typically the bonds plus some loops, are closed
// under intersection before counting.
func (v *Vector) NormClusterExpansion(regions [][]Site, opts ExpansionOpts) (float64, error) {
	rg := NewRegionGraph(regions, true)
	logNorm := 0.0
	for _, region := range rg.Regions() {
		c := rg.Count(region)
		if c == 0 {
			continue
		}
		patch := v.gaugedRegion(region, opts)
		n, err := v.regionNorm(region, patch, opts)
		if err != nil {
			return 0, errors.Wrap(err, "")
		}
		if n <= 0 {
			return 0, errors.Errorf("region %s has non positive norm %v", regionFingerprint(region), n)
		}
		logNorm += float64(c) * math.Log(n)
	}
	return math.Exp(logNorm), nil
}
