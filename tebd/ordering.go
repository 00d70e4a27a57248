package tebd

import (
	"math/rand"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/coloring"
	"gonum.org/v1/gonum/graph/simple"
	"qtebd/tn"
)

// Ordering policies for the gate sweep.
const (
	// OrderSort applies gates in canonical edge order, grouped into
	// layers of non overlapping edges.
	OrderSort = "sort"
	// OrderRandom shuffles the edges each time, then groups them into
	// layers of non overlapping edges.
	OrderRandom = "random"
	// OrderRandomUngrouped shuffles the edges with each edge its own
	// layer.
	OrderRandomUngrouped = "random-ungrouped"
	// OrderColored groups the edges by a proper coloring of the line
	// graph, so each layer is an exactly commuting set.
	OrderColored = "colored"
)

// GetAutoOrdering returns the term edges grouped into sweep layers per
// the policy. Edges within a layer share no site, so their gates
// commute. An empty policy means OrderSort, and any name that is not a
// listed policy selects the coloring grouping. The random policies draw
// from rnd, which may be nil for the deterministic policies.
func (h *Ham) GetAutoOrdering(policy string, rnd *rand.Rand) ([][]tn.Edge, error) {
	edges := h.Edges()
	switch policy {
	case "", OrderSort:
		return greedyLayers(edges), nil
	case OrderRandom:
		if rnd == nil {
			return nil, errors.Errorf("policy %q needs a random source", policy)
		}
		shuffled := append([]tn.Edge{}, edges...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		return greedyLayers(shuffled), nil
	case OrderRandomUngrouped:
		if rnd == nil {
			return nil, errors.Errorf("policy %q needs a random source", policy)
		}
		shuffled := append([]tn.Edge{}, edges...)
		rnd.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		layers := make([][]tn.Edge, len(shuffled))
		for i, e := range shuffled {
			layers[i] = []tn.Edge{e}
		}
		return layers, nil
	}
	// Any other policy name selects the graph coloring grouping.
	return coloredLayers(edges)
}

// greedyLayers scans the edges repeatedly, starting a fresh layer each
// pass and appending an edge when neither of its sites is covered yet.
func greedyLayers(edges []tn.Edge) [][]tn.Edge {
	remaining := append([]tn.Edge{}, edges...)
	var layers [][]tn.Edge
	for len(remaining) > 0 {
		covered := make(map[tn.Site]struct{})
		var layer, rest []tn.Edge
		for _, e := range remaining {
			_, a := covered[e[0]]
			_, b := covered[e[1]]
			if a || b {
				rest = append(rest, e)
				continue
			}
			covered[e[0]] = struct{}{}
			covered[e[1]] = struct{}{}
			layer = append(layer, e)
		}
		layers = append(layers, layer)
		remaining = rest
	}
	return layers
}

// coloredLayers groups the edges by a proper vertex coloring of the
// line graph: one node per edge, adjacent when two edges share a site.
func coloredLayers(edges []tn.Edge) ([][]tn.Edge, error) {
	g := simple.NewUndirectedGraph()
	for i := range edges {
		g.AddNode(simple.Node(i))
	}
	for i := 0; i < len(edges); i++ {
		for j := i + 1; j < len(edges); j++ {
			if edges[i][0] == edges[j][0] || edges[i][0] == edges[j][1] ||
				edges[i][1] == edges[j][0] || edges[i][1] == edges[j][1] {
				g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
			}
		}
	}
	k, colors, err := coloring.WelshPowell(g, nil)
	if err != nil {
		return nil, err
	}
	layers := make([][]tn.Edge, k)
	for i, e := range edges {
		c := colors[int64(i)]
		layers[c] = append(layers[c], e)
	}
	var out [][]tn.Edge
	for _, l := range layers {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out, nil
}
