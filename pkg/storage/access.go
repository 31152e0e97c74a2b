package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"

	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Access answers the engine's neighbourhood queries from a BadgerEngine.
// Every call runs in its own read transaction. Missing nodes and edges are
// empty results; only storage failures are errors.
type Access struct {
	engine  *BadgerEngine
	checker match.AttrChecker
}

var (
	_ match.Access[NodeID] = (*Access)(nil)
	_ match.Prober[NodeID] = (*Access)(nil)
)

// NewAccess returns an Access over engine. A nil checker compares attributes
// with the engine's policy.
func NewAccess(engine *BadgerEngine, checker match.AttrChecker) *Access {
	if checker == nil {
		checker = match.PolicyChecker{Policy: engine.policy}
	}
	return &Access{engine: engine, checker: checker}
}

// FindNeighbours implements match.Access.
func (a *Access) FindNeighbours(ctx context.Context, e *pattern.Edge, bound *pattern.Node, value NodeID) ([]NodeID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, other := Outgoing, e.Target()
	if bound != e.Source() {
		dir, other = Incoming, e.Source()
	}

	var out []NodeID
	err := a.engine.view(func(txn *badger.Txn) error {
		for _, n := range neighboursTxn(txn, value, e.Type(), dir) {
			if len(e.Requirements()) > 0 {
				src, tgt := value, n
				if dir == Incoming {
					src, tgt = n, value
				}
				edge, err := getEdgeTxn(txn, src, e.Type(), tgt)
				if err == ErrNotFound {
					continue
				}
				if err != nil {
					return err
				}
				if !a.checker.CheckAttrs(e, edge) {
					continue
				}
			}
			if other.HasAttrs() {
				node, err := getNodeTxn(txn, n)
				if err == ErrNotFound {
					continue
				}
				if err != nil {
					return err
				}
				if !a.checker.CheckAttrs(other, node) {
					continue
				}
			}
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: neighbours of %s: %w", value, err)
	}
	return out, nil
}

// FindNode implements match.Access.
func (a *Access) FindNode(ctx context.Context, v *pattern.Node) (NodeID, bool, error) {
	id, ok := v.Attr(pattern.IDAttr)
	if !ok {
		return "", false, nil
	}
	return a.FindNodeByID(ctx, v, id)
}

// FindNodeByID implements match.Access.
func (a *Access) FindNodeByID(ctx context.Context, v *pattern.Node, id string) (NodeID, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if !validID(NodeID(id)) {
		return "", false, nil
	}
	node, err := a.engine.GetNode(NodeID(id))
	if err == ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("storage: node %s: %w", id, err)
	}
	if !a.checker.CheckAttrs(match.ExceptID(v), node) {
		return "", false, nil
	}
	return node.ID, true, nil
}

// RelationshipExists implements match.Access.
func (a *Access) RelationshipExists(ctx context.Context, src, tgt NodeID, e *pattern.Edge) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	edge, err := a.engine.GetEdge(src, e.Type(), tgt)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: edge %s -> %s: %w", src, tgt, err)
	}
	return a.checker.CheckAttrs(e, edge), nil
}

// ProbeAttr implements match.Prober. Probes on the id attribute also match
// the node identity.
func (a *Access) ProbeAttr(ctx context.Context, name, value string) ([]NodeID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []NodeID
	err := a.engine.view(func(txn *badger.Txn) error {
		out = probeTxn(txn, name, a.engine.policy.Canonical(name, value))
		if name != pattern.IDAttr || !validID(NodeID(value)) || slices.Contains(out, NodeID(value)) {
			return nil
		}
		_, err := getNodeTxn(txn, NodeID(value))
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		out = append(out, NodeID(value))
		slices.Sort(out)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: probing %s: %w", name, err)
	}
	return out, nil
}

// NodeAttributes implements match.Prober.
func (a *Access) NodeAttributes(ctx context.Context, n NodeID) (match.Attributes, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if !validID(n) {
		return nil, false, nil
	}
	node, err := a.engine.GetNode(n)
	if err == ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("storage: node %s: %w", n, err)
	}
	return node, true, nil
}
