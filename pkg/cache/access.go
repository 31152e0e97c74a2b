package cache

import (
	"context"

	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Access decorates a match.Access with a NeighbourCache. Only
// FindNeighbours is memoised; failed lookups are not cached.
type Access[N comparable] struct {
	inner match.Access[N]
	cache *NeighbourCache[N]
}

// NewAccess wraps inner. When inner can probe attributes, so can the
// result, which keeps the engine's default alternative start available.
func NewAccess[N comparable](inner match.Access[N], c *NeighbourCache[N]) match.Access[N] {
	a := &Access[N]{inner: inner, cache: c}
	if p, ok := inner.(match.Prober[N]); ok {
		return &probingAccess[N]{Access: a, Prober: p}
	}
	return a
}

// FindNeighbours implements match.Access.
func (a *Access[N]) FindNeighbours(ctx context.Context, e *pattern.Edge, bound *pattern.Node, value N) ([]N, error) {
	key := Key(e, bound, value)
	if nbrs, ok := a.cache.Get(key); ok {
		return nbrs, nil
	}
	nbrs, err := a.inner.FindNeighbours(ctx, e, bound, value)
	if err != nil {
		return nil, err
	}
	a.cache.Put(key, nbrs)
	return nbrs, nil
}

// FindNode implements match.Access.
func (a *Access[N]) FindNode(ctx context.Context, v *pattern.Node) (N, bool, error) {
	return a.inner.FindNode(ctx, v)
}

// FindNodeByID implements match.Access.
func (a *Access[N]) FindNodeByID(ctx context.Context, v *pattern.Node, id string) (N, bool, error) {
	return a.inner.FindNodeByID(ctx, v, id)
}

// RelationshipExists implements match.Access.
func (a *Access[N]) RelationshipExists(ctx context.Context, src, tgt N, e *pattern.Edge) (bool, error) {
	return a.inner.RelationshipExists(ctx, src, tgt, e)
}

type probingAccess[N comparable] struct {
	*Access[N]
	match.Prober[N]
}
