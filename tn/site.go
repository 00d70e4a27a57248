// Package tn implements tensor networks of arbitrary geometry, with
// vector (one physical index per site) and operator (two physical indices
// per site) views, simple-update bond gauges, and local expectation value
// estimators based on exact, cluster and region-expansion contractions.
//
// References:
//   - Accurate determination of tensor network state of quantum lattice models in two dimensions, Jiang, Weng and Xiang
//   - Gauging tensor networks with belief propagation, Tindall and Fishman
package tn

import (
	"strconv"
	"strings"
)

// Site identifies a node of the network graph. Sites compare by their
// string value, which gives the canonical global order used for edges.
type Site string

// SiteAt returns the site with the given integer coordinates, for example
// SiteAt(1, 2) == Site("1,2").
func SiteAt(coo ...int) Site {
	ss := make([]string, 0, len(coo))
	for _, c := range coo {
		ss = append(ss, strconv.Itoa(c))
	}
	return Site(strings.Join(ss, ","))
}

// Edge is a pair of sites. Two-site edges are canonical with the smaller
// site first. A single-site edge stores the site in the first slot and an
// empty second slot.
type Edge [2]Site

// NewEdge returns the canonical edge between a and b.
func NewEdge(a, b Site) Edge {
	if b < a {
		a, b = b, a
	}
	return Edge{a, b}
}

// SiteEdge returns the single-site edge at a, used to key one-site terms.
func SiteEdge(a Site) Edge {
	return Edge{a, ""}
}

// IsSingle reports whether e addresses a single site.
func (e Edge) IsSingle() bool { return e[1] == "" }

// Sites returns the sites of e, one or two of them.
func (e Edge) Sites() []Site {
	if e.IsSingle() {
		return []Site{e[0]}
	}
	return []Site{e[0], e[1]}
}

// Flip returns e with the site order reversed.
func (e Edge) Flip() Edge { return Edge{e[1], e[0]} }

// Canonical reports whether e is in canonical order.
func (e Edge) Canonical() bool { return e.IsSingle() || e[0] < e[1] }
