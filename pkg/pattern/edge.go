package pattern

import (
	"fmt"
	"sort"
	"strings"
)

// Edge is a directed, typed pattern relationship with its own attribute
// requirements.
//
// Two edges are the same edge when their endpoints, type and requirements
// agree. The local id is only used for reporting and does not take part in
// equality, so Key is what Graph deduplicates on.
type Edge struct {
	id      string
	source  *Node
	target  *Node
	relType string
	attrs   []Attribute
	frozen  bool
}

// NewEdge creates an edge from source to target.
func NewEdge(id string, source, target *Node, relType string) *Edge {
	return &Edge{id: id, source: source, target: target, relType: relType}
}

// ID returns the local identifier.
func (e *Edge) ID() string { return e.id }

// Source returns the tail of the edge.
func (e *Edge) Source() *Node { return e.source }

// Target returns the head of the edge.
func (e *Edge) Target() *Node { return e.target }

// Type returns the relation type tag.
func (e *Edge) Type() string { return e.relType }

// IsLoop reports whether both endpoints are the same node.
func (e *Edge) IsLoop() bool { return e.source == e.target }

// Other returns the endpoint opposite v. For a loop it returns v.
func (e *Edge) Other(v *Node) *Node {
	if e.source == v {
		return e.target
	}
	return e.source
}

// SetAttr adds or replaces a required attribute. Edges that already belong
// to a graph cannot be changed, since that would alter their key.
func (e *Edge) SetAttr(name, value string) error {
	if e.frozen {
		return ErrFrozen
	}
	if name == "" {
		return ErrEmptyAttrName
	}
	e.attrs = setAttr(e.attrs, name, value)
	return nil
}

// Attr returns the required value for name.
func (e *Edge) Attr(name string) (string, bool) { return getAttr(e.attrs, name) }

// Attrs returns the requirements in insertion order.
func (e *Edge) Attrs() []Attribute {
	out := make([]Attribute, len(e.attrs))
	copy(out, e.attrs)
	return out
}

// Requirements returns the requirement slice without copying.
func (e *Edge) Requirements() []Attribute { return e.attrs }

// Key is the value identity of the edge.
func (e *Edge) Key() string {
	var sb strings.Builder
	sb.WriteString(e.source.name)
	sb.WriteByte(0)
	sb.WriteString(e.target.name)
	sb.WriteByte(0)
	sb.WriteString(e.relType)

	sorted := make([]Attribute, len(e.attrs))
	copy(sorted, e.attrs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, a := range sorted {
		sb.WriteByte(0)
		sb.WriteString(a.Name)
		sb.WriteByte('=')
		sb.WriteString(a.Value)
	}
	return sb.String()
}

func (e *Edge) String() string {
	s := fmt.Sprintf("(%s)-[%s:%s]->(%s)", e.source.name, e.id, e.relType, e.target.name)
	if len(e.attrs) > 0 {
		s += " " + formatAttrs(e.attrs)
	}
	return s
}
