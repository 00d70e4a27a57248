package tn

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// graph builds the tensor adjacency graph: one node per tensor id, one
// edge per pair of tensors sharing an index.
func (n *Network) graph() *simple.UndirectedGraph {
	g := simple.NewUndirectedGraph()
	for _, tid := range n.Tids() {
		g.AddNode(simple.Node(tid))
	}
	for _, ix := range n.InnerInds() {
		tids := n.TidsWithInd(ix)
		for i := 0; i < len(tids); i++ {
			for j := i + 1; j < len(tids); j++ {
				g.SetEdge(simple.Edge{F: simple.Node(tids[i]), T: simple.Node(tids[j])})
			}
		}
	}
	return g
}

// PathBetween returns tensor ids forming a shortest path between the
// tensors a and b, inclusive. An error is returned when the two tensors
// lie in disconnected components.
func (n *Network) PathBetween(a, b int) ([]int, error) {
	if a == b {
		return []int{a}, nil
	}
	g := n.graph()
	shortest := path.DijkstraFrom(simple.Node(a), g)
	nodes, _ := shortest.To(int64(b))
	if len(nodes) == 0 {
		return nil, errors.Errorf("tensors %d and %d are disconnected", a, b)
	}
	tids := make([]int, 0, len(nodes))
	for _, nd := range nodes {
		tids = append(tids, int(nd.ID()))
	}
	return tids, nil
}

// LocalTids returns the ids of all tensors within maxDistance graph
// steps of the seed tensors. Each fillin round then adds every tensor
// adjacent to at least two already selected tensors, patching holes in
// the selected patch.
func (n *Network) LocalTids(seed []int, maxDistance, fillin int) []int {
	g := n.graph()
	selected := make(map[int]struct{})
	bfs := traverse.BreadthFirst{}
	for _, tid := range seed {
		bfs.Reset()
		bfs.Walk(g, simple.Node(tid), func(nd graph.Node, depth int) bool {
			if depth > maxDistance {
				return true
			}
			selected[int(nd.ID())] = struct{}{}
			return false
		})
	}
	for round := 0; round < fillin; round++ {
		add := make(map[int]struct{})
		for tid := range selected {
			it := g.From(int64(tid))
			for it.Next() {
				cand := int(it.Node().ID())
				if _, ok := selected[cand]; ok {
					continue
				}
				cnt := 0
				nb := g.From(int64(cand))
				for nb.Next() {
					if _, ok := selected[int(nb.Node().ID())]; ok {
						cnt++
					}
				}
				if cnt >= 2 {
					add[cand] = struct{}{}
				}
			}
		}
		if len(add) == 0 {
			break
		}
		for tid := range add {
			selected[tid] = struct{}{}
		}
	}
	return sortedKeys(selected)
}

// SelectAny returns a copy of the sub network of tensors carrying at
// least one of the site tags, keeping the view's id formats.
func (v *Vector) SelectAny(sites []Site) *Vector {
	tags := make([]string, 0, len(sites))
	for _, s := range sites {
		tags = append(tags, v.SiteTag(s))
	}
	return v.withNetwork(v.SelectTids(v.TidsWithAny(tags)))
}

// SelectLocal returns a copy of the patch of the network within
// maxDistance of the given sites, grown by fillin rounds.
func (v *Vector) SelectLocal(sites []Site, maxDistance, fillin int) *Vector {
	var seed []int
	for _, s := range sites {
		seed = append(seed, v.SiteTids(s)...)
	}
	return v.withNetwork(v.SelectTids(v.LocalTids(seed, maxDistance, fillin)))
}

// SitePathBetween returns a shortest site path from a to b along the
// bonds of the network, inclusive of both endpoints.
func (v *Vector) SitePathBetween(a, b Site) ([]Site, error) {
	tids, err := v.PathBetween(v.SiteTensorID(a), v.SiteTensorID(b))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	siteOf := make(map[int]Site)
	for _, s := range v.Sites() {
		for _, tid := range v.SiteTids(s) {
			siteOf[tid] = s
		}
	}
	var sites []Site
	for _, tid := range tids {
		s := siteOf[tid]
		if len(sites) == 0 || sites[len(sites)-1] != s {
			sites = append(sites, s)
		}
	}
	return sites, nil
}

// GenLoops yields the site sets of simple cycles passing through every
// site of path, with at most maxLength sites. A zero maxLength searches
// with the length of the shortest such cycle. Each loop is yielded once,
// as a sorted site slice, in deterministic order.
func (v *Vector) GenLoops(pathSites []Site, maxLength int) func(yield func([]Site) bool) {
	_, neighbors := v.EdgeMap()
	loops := findLoops(pathSites, neighbors, maxLength)
	return func(yield func([]Site) bool) {
		for _, l := range loops {
			if !yield(append([]Site{}, l...)) {
				return
			}
		}
	}
}

func findLoops(pathSites []Site, neighbors map[Site][]Site, maxLength int) [][]Site {
	if len(pathSites) == 0 {
		return nil
	}
	start, end := pathSites[0], pathSites[len(pathSites)-1]
	interior := make(map[Site]struct{})
	for _, s := range pathSites {
		interior[s] = struct{}{}
	}
	// Walk simple paths from end back to start avoiding the path
	// interior, closing each into a cycle through the whole path.
	seen := make(map[string]struct{})
	var loops [][]Site
	limit := maxLength
	if limit == 0 {
		// First pass finds the shortest closure, second collects all
		// loops of that size.
		best := 0
		walkLoops(start, end, pathSites, interior, neighbors, len(neighbors), func(cycle []Site) {
			if best == 0 || len(cycle) < best {
				best = len(cycle)
			}
		})
		if best == 0 {
			return nil
		}
		limit = best
	}
	walkLoops(start, end, pathSites, interior, neighbors, limit, func(cycle []Site) {
		sorted := append([]Site{}, cycle...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fp := regionFingerprint(sorted)
		if _, ok := seen[fp]; ok {
			return
		}
		seen[fp] = struct{}{}
		loops = append(loops, sorted)
	})
	sort.Slice(loops, func(i, j int) bool { return regionFingerprint(loops[i]) < regionFingerprint(loops[j]) })
	return loops
}

func walkLoops(start, end Site, pathSites []Site, interior map[Site]struct{}, neighbors map[Site][]Site, limit int, emit func([]Site)) {
	var dfs func(cur Site, trail []Site)
	visited := make(map[Site]struct{})
	dfs = func(cur Site, trail []Site) {
		if len(pathSites)+len(trail) > limit {
			return
		}
		for _, nb := range neighbors[cur] {
			if nb == start {
				// A cycle needs at least one site beyond the path, and
				// single site "paths" need a genuine loop of length 3+.
				if len(trail) == 0 || (len(pathSites) == 1 && len(trail) < 2) {
					continue
				}
				emit(append(append([]Site{}, pathSites...), trail...))
				continue
			}
			if _, ok := interior[nb]; ok {
				continue
			}
			if _, ok := visited[nb]; ok {
				continue
			}
			visited[nb] = struct{}{}
			dfs(nb, append(trail, nb))
			delete(visited, nb)
		}
	}
	dfs(end, nil)
}

// GenRegions yields connected site regions containing all the seed
// sites, in which every site has at least two neighbours inside the
// region, with at most maxSize sites. A zero maxSize searches with the
// size of the smallest such region. Regions are yielded as sorted site
// slices in deterministic order.
func (v *Vector) GenRegions(seed []Site, maxSize int) func(yield func([]Site) bool) {
	_, neighbors := v.EdgeMap()
	regions := findRegions(seed, neighbors, maxSize)
	return func(yield func([]Site) bool) {
		for _, r := range regions {
			if !yield(append([]Site{}, r...)) {
				return
			}
		}
	}
}

func findRegions(seed []Site, neighbors map[Site][]Site, maxSize int) [][]Site {
	if len(seed) == 0 {
		return nil
	}
	limit := maxSize
	if limit == 0 {
		for limit = len(seed); limit <= len(neighbors); limit++ {
			if rs := findRegions(seed, neighbors, limit); len(rs) > 0 {
				return rs
			}
		}
		return nil
	}
	valid := func(region map[Site]struct{}) bool {
		for s := range region {
			cnt := 0
			for _, nb := range neighbors[s] {
				if _, ok := region[nb]; ok {
					cnt++
				}
			}
			if cnt < 2 {
				return false
			}
		}
		return true
	}
	seen := make(map[string]struct{})
	var regions [][]Site
	var grow func(region map[Site]struct{})
	grow = func(region map[Site]struct{}) {
		sorted := make([]Site, 0, len(region))
		for s := range region {
			sorted = append(sorted, s)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		fp := regionFingerprint(sorted)
		if _, ok := seen[fp]; ok {
			return
		}
		seen[fp] = struct{}{}
		if valid(region) {
			regions = append(regions, sorted)
		}
		if len(region) >= limit {
			return
		}
		for _, s := range sorted {
			for _, nb := range neighbors[s] {
				if _, ok := region[nb]; ok {
					continue
				}
				region[nb] = struct{}{}
				grow(region)
				delete(region, nb)
			}
		}
	}
	region := make(map[Site]struct{})
	for _, s := range seed {
		region[s] = struct{}{}
	}
	grow(region)
	sort.Slice(regions, func(i, j int) bool { return regionFingerprint(regions[i]) < regionFingerprint(regions[j]) })
	return regions
}
