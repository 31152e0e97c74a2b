package pattern

import "fmt"

// ExclusionPair says A and B must never be bound to the same target
// identity. The pair is unordered.
type ExclusionPair struct {
	A, B *Node
}

// Holder is everything the engine needs to evaluate one query: the pattern
// graph, its mutual-exclusion pairs and the ordered result schema.
type Holder struct {
	graph    *Graph
	mex      []ExclusionPair
	partners [][]*Node
	schema   []*Node
}

// NewHolder validates the pairs and schema against g and freezes g.
// Duplicate pairs (in either order) are collapsed.
func NewHolder(g *Graph, mex []ExclusionPair, schema []*Node) (*Holder, error) {
	if g == nil {
		return nil, ErrNilGraph
	}

	h := &Holder{
		graph:    g,
		partners: make([][]*Node, g.Len()),
	}

	seenPair := make(map[[2]int]bool)
	for _, p := range mex {
		if !g.Contains(p.A) || !g.Contains(p.B) {
			return nil, fmt.Errorf("%w: exclusion pair %v <> %v", ErrForeignNode, p.A, p.B)
		}
		if p.A == p.B {
			return nil, fmt.Errorf("%w: %s", ErrSelfExclusion, p.A.name)
		}
		a, b := p.A, p.B
		if b.index < a.index {
			a, b = b, a
		}
		k := [2]int{a.index, b.index}
		if seenPair[k] {
			continue
		}
		seenPair[k] = true
		h.mex = append(h.mex, ExclusionPair{A: a, B: b})
		h.partners[a.index] = append(h.partners[a.index], b)
		h.partners[b.index] = append(h.partners[b.index], a)
	}

	seenSchema := make(map[*Node]bool, len(schema))
	for _, n := range schema {
		if !g.Contains(n) {
			return nil, fmt.Errorf("%w: schema node %v", ErrForeignNode, n)
		}
		if seenSchema[n] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInRow, n.name)
		}
		seenSchema[n] = true
		h.schema = append(h.schema, n)
	}

	g.Freeze()
	return h, nil
}

// Graph returns the pattern graph.
func (h *Holder) Graph() *Graph { return h.graph }

// Exclusions returns the normalized exclusion pairs (A precedes B in
// enumeration order).
func (h *Holder) Exclusions() []ExclusionPair {
	out := make([]ExclusionPair, len(h.mex))
	copy(out, h.mex)
	return out
}

// Partners returns the nodes that must differ from n.
func (h *Holder) Partners(n *Node) []*Node {
	if !h.graph.Contains(n) {
		return nil
	}
	return h.partners[n.index]
}

// Excludes reports whether a and b form an exclusion pair.
func (h *Holder) Excludes(a, b *Node) bool {
	for _, p := range h.Partners(a) {
		if p == b {
			return true
		}
	}
	return false
}

// Schema returns the projected nodes in report order.
func (h *Holder) Schema() []*Node {
	out := make([]*Node, len(h.schema))
	copy(out, h.schema)
	return out
}

// AllNodesSchema is a convenience schema reporting every node.
func AllNodesSchema(g *Graph) []*Node { return g.Nodes() }
