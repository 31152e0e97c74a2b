package indexed

import (
	"github.com/emirpasic/gods/trees/redblacktree"

	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/dataset"
	"github.com/szrrizvi/arebac/pkg/match"
)

// Builder accumulates nodes and edges for a Graph. It is not safe for
// concurrent use and must not be used after Build.
type Builder struct {
	ext   []string
	ids   map[string]NodeID
	attrs []match.AttributeMap

	types   []string
	typeIDs map[string]int32

	// Neighbour sets under construction, keyed by (node, type).
	sets      [2]map[edgeKey]*redblacktree.Tree
	edgeAttrs map[edgeKey]match.AttributeMap
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		ids:       make(map[string]NodeID),
		typeIDs:   make(map[string]int32),
		sets:      [2]map[edgeKey]*redblacktree.Tree{make(map[edgeKey]*redblacktree.Tree), make(map[edgeKey]*redblacktree.Tree)},
		edgeAttrs: make(map[edgeKey]match.AttributeMap),
	}
}

// AddNode registers externalID, merging a into its attributes.
func (b *Builder) AddNode(externalID string, a map[string]any) NodeID {
	n, ok := b.ids[externalID]
	if !ok {
		n = NodeID(len(b.ext))
		b.ids[externalID] = n
		b.ext = append(b.ext, externalID)
		b.attrs = append(b.attrs, nil)
	}
	if len(a) > 0 {
		if b.attrs[n] == nil {
			b.attrs[n] = make(match.AttributeMap, len(a))
		}
		for k, v := range a {
			b.attrs[n][k] = v
		}
	}
	return n
}

// AddEdge adds src -> tgt of relType, creating the endpoints as needed.
// Adding the same edge again merges its attributes.
func (b *Builder) AddEdge(src, tgt, relType string, a map[string]any) {
	s := b.AddNode(src, nil)
	t := b.AddNode(tgt, nil)
	typ := b.typeID(relType)

	b.neighbourSet(Out, s, typ).Put(t, nil)
	b.neighbourSet(In, t, typ).Put(s, nil)

	if len(a) > 0 {
		key := edgeKey{s, t, typ}
		m := b.edgeAttrs[key]
		if m == nil {
			m = make(match.AttributeMap, len(a))
			b.edgeAttrs[key] = m
		}
		for k, v := range a {
			m[k] = v
		}
	}
}

// AddDataset adds every node and edge of ds.
func (b *Builder) AddDataset(ds *dataset.Dataset) {
	for _, n := range ds.Nodes {
		b.AddNode(n.ID, n.Attrs)
	}
	for _, e := range ds.Edges {
		b.AddEdge(e.Source, e.Target, e.Type, e.Attrs)
	}
}

func (b *Builder) typeID(relType string) int32 {
	t, ok := b.typeIDs[relType]
	if !ok {
		t = int32(len(b.types))
		b.typeIDs[relType] = t
		b.types = append(b.types, relType)
	}
	return t
}

func (b *Builder) neighbourSet(dir Direction, n NodeID, typ int32) *redblacktree.Tree {
	key := edgeKey{src: n, typ: typ}
	set, ok := b.sets[dir][key]
	if !ok {
		set = &redblacktree.Tree{
			Comparator: func(p, q interface{}) int {
				x, y := p.(NodeID), q.(NodeID)
				switch {
				case x < y:
					return -1
				case x > y:
					return 1
				}
				return 0
			},
		}
		b.sets[dir][key] = set
	}
	return set
}

// Build freezes the builder into a Graph. Attribute probes are indexed
// under p's canonical forms; a nil p compares everything as strings.
func (b *Builder) Build(p *attrs.Policy) *Graph {
	g := &Graph{
		ext:       b.ext,
		ids:       b.ids,
		attrs:     b.attrs,
		types:     b.types,
		typeIDs:   b.typeIDs,
		edgeAttrs: b.edgeAttrs,
		probes:    make(map[probeKey][]NodeID),
		policy:    p,
	}

	for dir := range b.sets {
		g.adj[dir] = make([][][]NodeID, len(b.ext))
		for key, set := range b.sets[dir] {
			row := g.adj[dir][key.src]
			if row == nil {
				row = make([][]NodeID, len(b.types))
				g.adj[dir][key.src] = row
			}
			nbrs := make([]NodeID, 0, set.Size())
			it := set.Iterator()
			for it.Next() {
				nbrs = append(nbrs, it.Key().(NodeID))
			}
			row[key.typ] = nbrs
			if Direction(dir) == Out {
				g.edges += len(nbrs)
			}
		}
	}

	// Nodes are visited in NodeID order, so probe slices come out sorted.
	for n, m := range b.attrs {
		for name, v := range m {
			key := probeKey{name, p.Canonical(name, v)}
			g.probes[key] = append(g.probes[key], NodeID(n))
		}
	}

	*b = Builder{}
	return g
}

// FromDataset builds a Graph from ds in one step.
func FromDataset(ds *dataset.Dataset, p *attrs.Policy) *Graph {
	b := NewBuilder()
	b.AddDataset(ds)
	return b.Build(p)
}
