package tn

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"qtebd/tensor"
)

// Kind distinguishes the physical structure layered on top of a plain
// network. These are the only kinds; code switching on Kind need not
// handle other values.
type Kind int

const (
	// KindVector has one physical index per site.
	KindVector Kind = iota
	// KindOperator has an upper and a lower physical index per site.
	KindOperator
)

func (k Kind) String() string {
	switch k {
	case KindVector:
		return "vector"
	case KindOperator:
		return "operator"
	}
	panic(fmt.Sprintf("unknown kind %d", int(k)))
}

// Vector is a tensor network state with one physical index per site.
// Site tags and physical indices are generated from printf style id
// formats, by default "I%s" and "k%s".
type Vector struct {
	*Network
	siteTagID string
	siteIndID string
}

// NewVector wraps an empty network with the default id formats.
func NewVector() *Vector {
	return &Vector{Network: NewNetwork(), siteTagID: "I%s", siteIndID: "k%s"}
}

// Kind returns KindVector.
func (v *Vector) Kind() Kind { return KindVector }

// SiteTag returns the tag addressing site s.
func (v *Vector) SiteTag(s Site) string { return fmt.Sprintf(v.siteTagID, s) }

// SiteInd returns the physical index of site s.
func (v *Vector) SiteInd(s Site) string { return fmt.Sprintf(v.siteIndID, s) }

// SiteTagID returns the site tag format.
func (v *Vector) SiteTagID() string { return v.siteTagID }

// SiteIndID returns the physical index format.
func (v *Vector) SiteIndID() string { return v.siteIndID }

// SetSiteTagID renames the site tag format, retagging every tensor.
func (v *Vector) SetSiteTagID(id string) {
	if id == v.siteTagID {
		return
	}
	for _, s := range v.Sites() {
		old, nu := v.SiteTag(s), fmt.Sprintf(id, s)
		for _, tid := range v.TidsWithTag(old) {
			t := v.Tensor(tid)
			v.unlink(tid)
			t.Retag(map[string]string{old: nu})
			v.link(tid, t)
		}
	}
	v.siteTagID = id
}

// SetSiteIndID renames the physical index format, reindexing every
// tensor.
func (v *Vector) SetSiteIndID(id string) {
	if id == v.siteIndID {
		return
	}
	m := make(map[string]string)
	for _, s := range v.Sites() {
		m[v.SiteInd(s)] = fmt.Sprintf(id, s)
	}
	v.ReindexAll(m)
	v.siteIndID = id
}

// Sites returns the sites present in the network, in ascending order,
// derived from the site tags.
func (v *Vector) Sites() []Site {
	return sitesFromTags(v.Network, v.siteTagID)
}

func sitesFromTags(n *Network, tagID string) []Site {
	var sites []Site
	for tag := range n.tagMap {
		var s string
		if _, err := fmt.Sscanf(tag, tagID, &s); err == nil && fmt.Sprintf(tagID, s) == tag {
			sites = append(sites, Site(s))
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// SiteTids returns the ids of the tensors tagged with site s.
func (v *Vector) SiteTids(s Site) []int { return v.TidsWithTag(v.SiteTag(s)) }

// SiteTensorID returns the id of the tensor carrying the physical index
// of site s.
func (v *Vector) SiteTensorID(s Site) int {
	tids := v.TidsWithInd(v.SiteInd(s))
	if len(tids) != 1 {
		panic(fmt.Sprintf("site %s has %d tensors with its physical index", s, len(tids)))
	}
	return tids[0]
}

// PhysDim returns the physical dimension of site s.
func (v *Vector) PhysDim(s Site) int { return v.IndSize(v.SiteInd(s)) }

// Copy returns a deep copy.
func (v *Vector) Copy() *Vector {
	return &Vector{Network: v.Network.Copy(), siteTagID: v.siteTagID, siteIndID: v.siteIndID}
}

// withNetwork wraps n with the ids of v.
func (v *Vector) withNetwork(n *Network) *Vector {
	return &Vector{Network: n, siteTagID: v.siteTagID, siteIndID: v.siteIndID}
}

// EdgeMap returns the bonds of the network keyed by canonical site pair,
// with the index names realising each bond, plus the neighbour map. A
// bond connects two sites when a shared index joins tensors tagged with
// different sites.
func (v *Vector) EdgeMap() (map[Edge][]string, map[Site][]Site) {
	siteOf := make(map[int]Site)
	for _, s := range v.Sites() {
		for _, tid := range v.SiteTids(s) {
			siteOf[tid] = s
		}
	}
	edges := make(map[Edge][]string)
	for _, ix := range v.InnerInds() {
		tids := v.TidsWithInd(ix)
		for i := 0; i < len(tids); i++ {
			for j := i + 1; j < len(tids); j++ {
				a, b := siteOf[tids[i]], siteOf[tids[j]]
				if a == b || a == "" || b == "" {
					continue
				}
				e := NewEdge(a, b)
				edges[e] = append(edges[e], ix)
			}
		}
	}
	neighbors := make(map[Site][]Site)
	for e := range edges {
		neighbors[e[0]] = append(neighbors[e[0]], e[1])
		neighbors[e[1]] = append(neighbors[e[1]], e[0])
	}
	for s := range neighbors {
		ns := neighbors[s]
		sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
	}
	return edges, neighbors
}

// Edges returns the bonds of the network in ascending canonical order.
func (v *Vector) Edges() []Edge {
	em, _ := v.EdgeMap()
	edges := make([]Edge, 0, len(em))
	for e := range em {
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

// BondInds returns the index names realising the bond between a and b,
// or an error when the sites are not adjacent.
func (v *Vector) BondInds(a, b Site) ([]string, error) {
	em, _ := v.EdgeMap()
	inds, ok := em[NewEdge(a, b)]
	if !ok {
		return nil, errors.Errorf("sites %s and %s share no bond", a, b)
	}
	sort.Strings(inds)
	return inds, nil
}

// RandVector builds a random network state over the given edges with
// bond dimension bondDim and physical dimension physDim. Bond indices
// are named after their canonical edge.
func RandVector(edges []Edge, bondDim, physDim int, rnd *rand.Rand) *Vector {
	v := NewVector()
	bondName := func(e Edge) string { return fmt.Sprintf("b_%s_%s", e[0], e[1]) }
	inds := make(map[Site][]string)
	dims := make(map[Site][]int)
	for _, e := range edges {
		e = NewEdge(e[0], e[1])
		for _, s := range e.Sites() {
			inds[s] = append(inds[s], bondName(e))
			dims[s] = append(dims[s], bondDim)
		}
	}
	sites := make([]Site, 0, len(inds))
	for s := range inds {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	for _, s := range sites {
		six := append(append([]string{}, inds[s]...), v.SiteInd(s))
		sdims := append(append([]int{}, dims[s]...), physDim)
		t := tensor.Zeros(six, sdims)
		data := t.Data()
		for i := range data {
			data[i] = rnd.NormFloat64()
		}
		t.AddTag(v.SiteTag(s))
		v.Add(t)
	}
	return v
}

// ProductVector builds a bond dimension one state over the given edges,
// with the local vector of each site supplied by fill. A nil fill uses
// the first computational basis state everywhere.
func ProductVector(edges []Edge, physDim int, fill func(Site) []float64) *Vector {
	v := RandVector(edges, 1, physDim, rand.New(rand.NewSource(0)))
	for _, s := range v.Sites() {
		local := make([]float64, physDim)
		if fill != nil {
			copy(local, fill(s))
		} else {
			local[0] = 1
		}
		tid := v.SiteTensorID(s)
		t := v.Tensor(tid)
		data := t.Data()
		copy(data, local)
		v.Replace(tid, t)
	}
	return v
}

// Sum returns the network sum of a and b: site tensors are direct
// summed over their bond indices while physical indices stay shared, so
// the contraction of the result equals the sum of the contractions. The
// two states must live on the same sites.
func Sum(a, b *Vector) (*Vector, error) {
	as, bs := a.Sites(), b.Sites()
	if len(as) != len(bs) {
		return nil, errors.Errorf("site mismatch: %d vs %d sites", len(as), len(bs))
	}
	for i := range as {
		if as[i] != bs[i] {
			return nil, errors.Errorf("site mismatch at %s vs %s", as[i], bs[i])
		}
	}
	b = b.Copy()
	b.SetSiteIndID(a.siteIndID)
	b.SetSiteTagID(a.siteTagID)
	// Align bond names between the two states so that matching bonds
	// direct sum together.
	aem, _ := a.EdgeMap()
	bem, _ := b.EdgeMap()
	rename := make(map[string]string)
	for e, binds := range bem {
		ainds, ok := aem[e]
		if !ok || len(ainds) != len(binds) {
			return nil, errors.Errorf("bond mismatch at edge %s-%s", e[0], e[1])
		}
		sort.Strings(ainds)
		sort.Strings(binds)
		for i := range binds {
			rename[binds[i]] = ainds[i]
		}
	}
	b.ReindexAll(rename)
	out := a.withNetwork(NewNetwork())
	for _, s := range as {
		ta := a.Tensor(a.SiteTensorID(s))
		tb := b.Tensor(b.SiteTensorID(s))
		sum := tensor.DirectSum(ta, tb, []string{a.SiteInd(s)})
		sum.AddTag(a.SiteTag(s))
		out.Add(sum)
	}
	return out, nil
}

// Operator is a tensor network operator with an upper (output) and a
// lower (input) physical index per site, by default "k%s" and "b%s".
type Operator struct {
	*Network
	siteTagID  string
	upperIndID string
	lowerIndID string
}

// NewOperator wraps an empty network with the default id formats.
func NewOperator() *Operator {
	return &Operator{Network: NewNetwork(), siteTagID: "I%s", upperIndID: "k%s", lowerIndID: "b%s"}
}

// Kind returns KindOperator.
func (op *Operator) Kind() Kind { return KindOperator }

// SiteTag returns the tag addressing site s.
func (op *Operator) SiteTag(s Site) string { return fmt.Sprintf(op.siteTagID, s) }

// UpperInd returns the output index of site s.
func (op *Operator) UpperInd(s Site) string { return fmt.Sprintf(op.upperIndID, s) }

// LowerInd returns the input index of site s.
func (op *Operator) LowerInd(s Site) string { return fmt.Sprintf(op.lowerIndID, s) }

// UpperIndID returns the output index format.
func (op *Operator) UpperIndID() string { return op.upperIndID }

// LowerIndID returns the input index format.
func (op *Operator) LowerIndID() string { return op.lowerIndID }

// Sites returns the sites present, ascending.
func (op *Operator) Sites() []Site { return sitesFromTags(op.Network, op.siteTagID) }

// Copy returns a deep copy.
func (op *Operator) Copy() *Operator {
	return &Operator{
		Network:    op.Network.Copy(),
		siteTagID:  op.siteTagID,
		upperIndID: op.upperIndID,
		lowerIndID: op.lowerIndID,
	}
}

// SetUpperIndID renames the output index format. Setting it equal to the
// lower format is rejected, as the two id spaces must stay disjoint.
func (op *Operator) SetUpperIndID(id string) error {
	if id == op.lowerIndID {
		return errors.Errorf("upper index id %q collides with lower index id", id)
	}
	if id == op.upperIndID {
		return nil
	}
	m := make(map[string]string)
	for _, s := range op.Sites() {
		m[op.UpperInd(s)] = fmt.Sprintf(id, s)
	}
	op.ReindexAll(m)
	op.upperIndID = id
	return nil
}

// SetLowerIndID renames the input index format, with the same collision
// rule as SetUpperIndID.
func (op *Operator) SetLowerIndID(id string) error {
	if id == op.upperIndID {
		return errors.Errorf("lower index id %q collides with upper index id", id)
	}
	if id == op.lowerIndID {
		return nil
	}
	m := make(map[string]string)
	for _, s := range op.Sites() {
		m[op.LowerInd(s)] = fmt.Sprintf(id, s)
	}
	op.ReindexAll(m)
	op.lowerIndID = id
	return nil
}

// ApplyOp returns the lazy application op|v>: the input indices of op
// are joined with the physical indices of v through fresh inner names,
// and the output indices become the new physical indices. No contraction
// is performed.
func ApplyOp(op *Operator, v *Vector) (*Vector, error) {
	ov, vs := op.Sites(), v.Sites()
	if len(ov) != len(vs) {
		return nil, errors.Errorf("operator acts on %d sites but state has %d", len(ov), len(vs))
	}
	for i := range ov {
		if ov[i] != vs[i] {
			return nil, errors.Errorf("operator site %s does not match state site %s", ov[i], vs[i])
		}
	}
	o := op.Copy()
	w := v.Copy()
	// Fresh inner names joining op's input with the state's physical
	// indices, then expose op's output as the new physical indices.
	inner := make(map[string]string)
	outer := make(map[string]string)
	for _, s := range vs {
		b := tensor.RandInd()
		inner[v.SiteInd(s)] = b
		outer[o.LowerInd(s)] = b
	}
	w.ReindexAll(inner)
	o.ReindexAll(outer)
	up := make(map[string]string)
	for _, s := range vs {
		up[o.UpperInd(s)] = v.SiteInd(s)
	}
	o.ReindexAll(up)
	return w.withNetwork(w.Network.Combine(o.Network)), nil
}
