// Package reference enumerates pattern matches by brute force. It tries
// every total mapping of pattern nodes to target nodes, so it is only usable
// on small graphs, and exists to cross-check the match engine.
package reference

import (
	"context"
	"fmt"
	"strings"

	"github.com/szrrizvi/arebac/pkg/indexed"
	"github.com/szrrizvi/arebac/pkg/match"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Enumerate returns the distinct projections onto h's schema of every
// mapping that satisfies all node, edge and exclusion constraints. Explicit
// bindings pin nodes the same way the engine's CheckWithBindings does.
// Rows are in lexicographic NodeID order of the full mapping.
func Enumerate(ctx context.Context, h *pattern.Holder, g *indexed.Graph, bindings map[*pattern.Node]string) ([][]indexed.NodeID, error) {
	pg := h.Graph()
	access := indexed.NewAccess(g, nil)
	checker := match.PolicyChecker{Policy: g.Policy()}

	domains := make([][]indexed.NodeID, pg.Len())
	for i := 0; i < pg.Len(); i++ {
		v := pg.NodeAt(i)
		id, pinned := bindings[v]
		if !pinned {
			id, pinned = v.Attr(pattern.IDAttr)
		}
		if pinned {
			if n, ok := g.Lookup(id); ok && checker.CheckAttrs(match.ExceptID(v), g.Node(n)) {
				domains[i] = []indexed.NodeID{n}
			}
			continue
		}
		for n := 0; n < g.NodeCount(); n++ {
			if checker.CheckAttrs(v, g.Node(indexed.NodeID(n))) {
				domains[i] = append(domains[i], indexed.NodeID(n))
			}
		}
	}

	e := &enumerator{
		ctx:     ctx,
		holder:  h,
		access:  access,
		domains: domains,
		values:  make([]indexed.NodeID, pg.Len()),
		seen:    make(map[string]struct{}),
	}
	if err := e.extend(0); err != nil {
		return nil, err
	}
	return e.rows, nil
}

type enumerator struct {
	ctx     context.Context
	holder  *pattern.Holder
	access  *indexed.Access
	domains [][]indexed.NodeID
	values  []indexed.NodeID
	seen    map[string]struct{}
	rows    [][]indexed.NodeID
}

func (e *enumerator) extend(i int) error {
	if err := e.ctx.Err(); err != nil {
		return err
	}
	pg := e.holder.Graph()
	if i == pg.Len() {
		e.emit()
		return nil
	}
	for _, n := range e.domains[i] {
		e.values[i] = n
		ok, err := e.consistent(i)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := e.extend(i + 1); err != nil {
			return err
		}
	}
	return nil
}

// consistent checks every constraint between node i and nodes 0..i.
func (e *enumerator) consistent(i int) (bool, error) {
	pg := e.holder.Graph()
	v := pg.NodeAt(i)
	for _, edge := range pg.Incident(v) {
		si, ti := edge.Source().Index(), edge.Target().Index()
		if si > i || ti > i {
			continue
		}
		ok, err := e.access.RelationshipExists(e.ctx, e.values[si], e.values[ti], edge)
		if err != nil || !ok {
			return false, err
		}
	}
	for _, p := range e.holder.Partners(v) {
		if j := p.Index(); j < i && e.values[j] == e.values[i] {
			return false, nil
		}
	}
	return true, nil
}

func (e *enumerator) emit() {
	schema := e.holder.Schema()
	row := make([]indexed.NodeID, len(schema))
	var key strings.Builder
	for j, s := range schema {
		row[j] = e.values[s.Index()]
		fmt.Fprintf(&key, "%d,", row[j])
	}
	if _, dup := e.seen[key.String()]; dup {
		return
	}
	e.seen[key.String()] = struct{}{}
	e.rows = append(e.rows, row)
}
