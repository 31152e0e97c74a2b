// Package indexed is an in-memory target graph built once from an edge list.
//
// Nodes live in a dense arena addressed by NodeID. For every (node, relation
// type) pair the graph keeps sorted, duplicate free neighbour slices in both
// directions, so a typed neighbourhood lookup is two slice indexings. No node
// holds a pointer to another node.
package indexed

import (
	"slices"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

// NodeID is a dense node handle, valid for the Graph that issued it.
type NodeID int32

// Direction selects which adjacency a lookup follows.
type Direction uint8

const (
	// Out follows edges from source to target.
	Out Direction = iota
	// In follows edges from target to source.
	In
)

func (d Direction) String() string {
	if d == In {
		return "in"
	}
	return "out"
}

type edgeKey struct {
	src, tgt NodeID
	typ      int32
}

type probeKey struct {
	name, value string
}

// Graph is immutable and safe for concurrent readers.
type Graph struct {
	ext   []string
	ids   map[string]NodeID
	attrs []match.AttributeMap

	types   []string
	typeIDs map[string]int32

	// adj[Out][n][t] and adj[In][n][t] are sorted. adj[d][n] is nil for
	// nodes without edges in direction d.
	adj [2][][][]NodeID

	edgeAttrs map[edgeKey]match.AttributeMap
	probes    map[probeKey][]NodeID
	policy    *attrs.Policy
	edges     int
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.ext) }

// EdgeCount returns the number of distinct (source, target, type) edges.
func (g *Graph) EdgeCount() int { return g.edges }

// RelTypes returns the relation types in first-seen order.
func (g *Graph) RelTypes() []string { return slices.Clone(g.types) }

// Policy returns the attribute policy the probe index was built with.
func (g *Graph) Policy() *attrs.Policy { return g.policy }

// Lookup maps an external id to its NodeID.
func (g *Graph) Lookup(externalID string) (NodeID, bool) {
	n, ok := g.ids[externalID]
	return n, ok
}

// ExternalID returns the id n was loaded under.
func (g *Graph) ExternalID(n NodeID) string {
	if !g.valid(n) {
		return ""
	}
	return g.ext[n]
}

// Attrs returns the attributes of n. The map must not be modified.
func (g *Graph) Attrs(n NodeID) (match.AttributeMap, bool) {
	if !g.valid(n) {
		return nil, false
	}
	return g.attrs[n], true
}

// Neighbours returns the neighbours of n over relType in direction dir.
// The slice is sorted and must not be modified.
func (g *Graph) Neighbours(n NodeID, relType string, dir Direction) []NodeID {
	t, ok := g.typeIDs[relType]
	if !ok || !g.valid(n) {
		return nil
	}
	row := g.adj[dir][n]
	if row == nil {
		return nil
	}
	return row[t]
}

// AllNeighbours returns the sorted union of the neighbours of n over every
// relation type.
func (g *Graph) AllNeighbours(n NodeID, dir Direction) []NodeID {
	if !g.valid(n) || g.adj[dir][n] == nil {
		return nil
	}
	var out []NodeID
	for _, row := range g.adj[dir][n] {
		out = append(out, row...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// HasEdge reports whether an edge src -> tgt of relType exists.
func (g *Graph) HasEdge(src, tgt NodeID, relType string) bool {
	_, found := slices.BinarySearch(g.Neighbours(src, relType, Out), tgt)
	return found
}

// EdgeAttrs returns the attributes of the edge src -> tgt of relType.
func (g *Graph) EdgeAttrs(src, tgt NodeID, relType string) (match.AttributeMap, bool) {
	t, ok := g.typeIDs[relType]
	if !ok || !g.HasEdge(src, tgt, relType) {
		return nil, false
	}
	return g.edgeAttrs[edgeKey{src, tgt, t}], true
}

// Probe returns the nodes whose attribute name has the canonical form of
// value, in NodeID order. Callers filter the result with an exact check.
func (g *Graph) Probe(name string, value any) []NodeID {
	return g.probes[probeKey{name, g.policy.Canonical(name, value)}]
}

// Node returns the attribute view of n. The id attribute falls back to the
// external id when n carries no attribute of that name.
func (g *Graph) Node(n NodeID) match.Attributes {
	return nodeView{g, n}
}

type nodeView struct {
	g *Graph
	n NodeID
}

func (v nodeView) Attr(name string) (any, bool) {
	if !v.g.valid(v.n) {
		return nil, false
	}
	if val, ok := v.g.attrs[v.n][name]; ok {
		return val, true
	}
	if name == pattern.IDAttr {
		return v.g.ext[v.n], true
	}
	return nil, false
}

func (g *Graph) valid(n NodeID) bool {
	return n >= 0 && int(n) < len(g.ext)
}
