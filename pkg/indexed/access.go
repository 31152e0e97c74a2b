package indexed

import (
	"context"
	"slices"

	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Access answers the engine's neighbourhood queries from a Graph. It never
// returns an error.
type Access struct {
	g       *Graph
	checker match.AttrChecker
}

var (
	_ match.Access[NodeID] = (*Access)(nil)
	_ match.Prober[NodeID] = (*Access)(nil)
)

// NewAccess returns an Access over g. A nil checker compares attributes with
// the graph's policy.
func NewAccess(g *Graph, checker match.AttrChecker) *Access {
	if checker == nil {
		checker = match.PolicyChecker{Policy: g.policy}
	}
	return &Access{g: g, checker: checker}
}

// Graph returns the underlying graph.
func (a *Access) Graph() *Graph { return a.g }

// FindNeighbours implements match.Access.
func (a *Access) FindNeighbours(_ context.Context, e *pattern.Edge, bound *pattern.Node, value NodeID) ([]NodeID, error) {
	dir, other := Out, e.Target()
	if bound != e.Source() {
		dir, other = In, e.Source()
	}

	nbrs := a.g.Neighbours(value, e.Type(), dir)
	out := make([]NodeID, 0, len(nbrs))
	for _, n := range nbrs {
		if len(e.Requirements()) > 0 {
			src, tgt := value, n
			if dir == In {
				src, tgt = n, value
			}
			ea, _ := a.g.EdgeAttrs(src, tgt, e.Type())
			if !a.checker.CheckAttrs(e, ea) {
				continue
			}
		}
		if !a.checker.CheckAttrs(other, a.g.Node(n)) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// FindNode implements match.Access.
func (a *Access) FindNode(ctx context.Context, v *pattern.Node) (NodeID, bool, error) {
	id, ok := v.Attr(pattern.IDAttr)
	if !ok {
		return 0, false, nil
	}
	return a.FindNodeByID(ctx, v, id)
}

// FindNodeByID implements match.Access.
func (a *Access) FindNodeByID(_ context.Context, v *pattern.Node, id string) (NodeID, bool, error) {
	n, ok := a.g.Lookup(id)
	if !ok {
		return 0, false, nil
	}
	if !a.checker.CheckAttrs(match.ExceptID(v), a.g.Node(n)) {
		return 0, false, nil
	}
	return n, true, nil
}

// RelationshipExists implements match.Access.
func (a *Access) RelationshipExists(_ context.Context, src, tgt NodeID, e *pattern.Edge) (bool, error) {
	ea, ok := a.g.EdgeAttrs(src, tgt, e.Type())
	if !ok {
		return false, nil
	}
	return a.checker.CheckAttrs(e, ea), nil
}

// ProbeAttr implements match.Prober. Probes on the id attribute also match
// the external id.
func (a *Access) ProbeAttr(_ context.Context, name, value string) ([]NodeID, error) {
	out := a.g.Probe(name, value)
	if name != pattern.IDAttr {
		return out, nil
	}
	n, ok := a.g.Lookup(value)
	if !ok || slices.Contains(out, n) {
		return out, nil
	}
	merged := append(slices.Clone(out), n)
	slices.Sort(merged)
	return merged, nil
}

// NodeAttributes implements match.Prober.
func (a *Access) NodeAttributes(_ context.Context, n NodeID) (match.Attributes, bool, error) {
	if !a.g.valid(n) {
		return nil, false, nil
	}
	return a.g.Node(n), true, nil
}
