// Package pattern holds the query side of graph pattern matching: pattern
// nodes and edges with their attribute requirements, the pattern graph that
// connects them, and the Holder that adds mutual-exclusion pairs and the
// result projection schema.
//
// A pattern is built once, handed to the match engine inside a Holder and is
// read-only from then on. NewHolder freezes the graph, after which every
// mutating call returns ErrFrozen.
//
// Example:
//
//	g := pattern.NewGraph()
//	x := pattern.NewNode("x", "Person")
//	y := pattern.NewNode("y", "Person")
//	_ = x.SetAttr(pattern.IDAttr, "5")
//	_ = y.SetAttr("color", "red")
//	_ = g.AddNode(x)
//	_ = g.AddNode(y)
//	_, _ = g.AddEdge(pattern.NewEdge("r1", x, y, "FRIEND"))
//
//	h, err := pattern.NewHolder(g, nil, []*pattern.Node{x, y})
package pattern

import (
	"fmt"
	"strings"
)

// IDAttr is the reserved attribute naming an explicit target identity.
// A node carrying it is pre-bound.
const IDAttr = "id"

// Attribute is a single required attribute value.
type Attribute struct {
	Name  string
	Value string
}

// Attributed is implemented by both pattern nodes and pattern edges.
type Attributed interface {
	Attr(name string) (string, bool)
	Requirements() []Attribute
}

// Node is a pattern variable. Its identity is its name, which must be unique
// within a Graph.
type Node struct {
	name  string
	label string
	attrs []Attribute

	index int
	graph *Graph
}

// NewNode creates a node that is not yet part of any graph.
func NewNode(name, label string) *Node {
	return &Node{name: name, label: label, index: -1}
}

// Name returns the variable name.
func (n *Node) Name() string { return n.name }

// Label returns the node label.
func (n *Node) Label() string { return n.label }

// Index is the enumeration position inside the owning graph, or -1.
func (n *Node) Index() int { return n.index }

// SetAttr adds or replaces a required attribute.
func (n *Node) SetAttr(name, value string) error {
	if n.graph != nil && n.graph.frozen {
		return ErrFrozen
	}
	if name == "" {
		return ErrEmptyAttrName
	}
	n.attrs = setAttr(n.attrs, name, value)
	return nil
}

// Attr returns the required value for name.
func (n *Node) Attr(name string) (string, bool) { return getAttr(n.attrs, name) }

// Attrs returns the requirements in insertion order.
func (n *Node) Attrs() []Attribute {
	out := make([]Attribute, len(n.attrs))
	copy(out, n.attrs)
	return out
}

// Requirements returns the requirement slice without copying. Callers must
// not modify it.
func (n *Node) Requirements() []Attribute { return n.attrs }

// HasAttrs reports whether the node carries any requirement.
func (n *Node) HasAttrs() bool { return len(n.attrs) > 0 }

// IsPreBound reports whether the node names an explicit target identity.
func (n *Node) IsPreBound() bool {
	_, ok := n.Attr(IDAttr)
	return ok
}

func (n *Node) String() string {
	if len(n.attrs) == 0 {
		return fmt.Sprintf("(%s:%s)", n.name, n.label)
	}
	return fmt.Sprintf("(%s:%s %s)", n.name, n.label, formatAttrs(n.attrs))
}

func setAttr(attrs []Attribute, name, value string) []Attribute {
	for i := range attrs {
		if attrs[i].Name == name {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, Attribute{Name: name, Value: value})
}

func getAttr(attrs []Attribute, name string) (string, bool) {
	for _, a := range attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

func formatAttrs(attrs []Attribute) string {
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.Name + "=" + a.Value
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
