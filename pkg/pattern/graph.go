package pattern

import (
	"fmt"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Graph is a pattern graph: a node set plus a value-deduplicated edge set
// with an incidence view per node.
//
// Node enumeration order is insertion order; the match engine breaks ties
// between equally constrained variables in this order, so two graphs built
// the same way always search the same way.
type Graph struct {
	nodes    []*Node
	byName   map[string]*Node
	edges    *linkedhashmap.Map // Edge.Key() -> *Edge
	incident [][]*Edge
	frozen   bool
}

// NewGraph returns an empty pattern graph.
func NewGraph() *Graph {
	return &Graph{
		byName: make(map[string]*Node),
		edges:  linkedhashmap.New(),
	}
}

// AddNode adds n to the graph and assigns its enumeration index.
func (g *Graph) AddNode(n *Node) error {
	if g.frozen {
		return ErrFrozen
	}
	if n.graph != nil {
		return fmt.Errorf("%w: %s", ErrNodeOwned, n.name)
	}
	if _, ok := g.byName[n.name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.name)
	}
	n.index = len(g.nodes)
	n.graph = g
	g.nodes = append(g.nodes, n)
	g.byName[n.name] = n
	g.incident = append(g.incident, nil)
	return nil
}

// AddEdge adds e to the graph. Both endpoints must already be members.
// If an equal edge is already present, the stored edge is returned and e is
// discarded.
func (g *Graph) AddEdge(e *Edge) (*Edge, error) {
	if g.frozen {
		return nil, ErrFrozen
	}
	if !g.Contains(e.source) {
		return nil, fmt.Errorf("%w: %s", ErrForeignNode, e.source.name)
	}
	if !g.Contains(e.target) {
		return nil, fmt.Errorf("%w: %s", ErrForeignNode, e.target.name)
	}

	key := e.Key()
	if existing, ok := g.edges.Get(key); ok {
		return existing.(*Edge), nil
	}
	e.frozen = true
	g.edges.Put(key, e)

	g.incident[e.source.index] = append(g.incident[e.source.index], e)
	if !e.IsLoop() {
		g.incident[e.target.index] = append(g.incident[e.target.index], e)
	}
	return e, nil
}

// Contains reports whether n is a member of g.
func (g *Graph) Contains(n *Node) bool {
	return n != nil && n.graph == g
}

// Node looks up a member by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// Nodes returns the members in enumeration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// NodeAt returns the node with enumeration index i.
func (g *Graph) NodeAt(i int) *Node { return g.nodes[i] }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Edges returns the edges in insertion order.
func (g *Graph) Edges() []*Edge {
	values := g.edges.Values()
	out := make([]*Edge, len(values))
	for i, v := range values {
		out[i] = v.(*Edge)
	}
	return out
}

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return g.edges.Size() }

// Incident returns every edge touching n, outgoing or incoming, in insertion
// order. The returned slice must not be modified.
func (g *Graph) Incident(n *Node) []*Edge {
	if !g.Contains(n) {
		return nil
	}
	return g.incident[n.index]
}

// Freeze makes the graph and its nodes read-only.
func (g *Graph) Freeze() { g.frozen = true }

// Frozen reports whether Freeze was called.
func (g *Graph) Frozen() bool { return g.frozen }

// Components groups the nodes into weakly connected components, each listed
// in enumeration order.
func (g *Graph) Components() [][]*Node {
	seen := make([]bool, len(g.nodes))
	var comps [][]*Node
	for _, start := range g.nodes {
		if seen[start.index] {
			continue
		}
		var comp []*Node
		stack := []*Node{start}
		seen[start.index] = true
		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, n)
			for _, e := range g.incident[n.index] {
				o := e.Other(n)
				if !seen[o.index] {
					seen[o.index] = true
					stack = append(stack, o)
				}
			}
		}
		sortByIndex(comp)
		comps = append(comps, comp)
	}
	return comps
}

func sortByIndex(nodes []*Node) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodes[j].index < nodes[j-1].index; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
