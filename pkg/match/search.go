package match

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/plan-systems/klog"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// start binds pre-bound nodes, prechecks the constraints among them, forward
// checks from them and seeds every component that is still unanchored.
// exhausted is true when the initial forward check already proves there is
// no match.
func (e *Engine[N]) start(ctx context.Context, bindings map[*pattern.Node]string) (exhausted bool, err error) {
	g := e.holder.Graph()
	st := e.st
	access := e.strat.Access

	for v := range bindings {
		if !g.Contains(v) {
			return false, fmt.Errorf("%w: %s", ErrUnknownBinding, v.Name())
		}
	}

	for i := 0; i < g.Len(); i++ {
		v := g.NodeAt(i)
		var (
			val N
			ok  bool
			err error
		)
		if id, explicit := bindings[v]; explicit {
			val, ok, err = access.FindNodeByID(ctx, v, id)
		} else if v.IsPreBound() {
			val, ok, err = access.FindNode(ctx, v)
		} else {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: resolving %s: %w", ErrBackend, v.Name(), err)
		}
		if !ok {
			return false, fmt.Errorf("%w: %s does not resolve to a target node", ErrCouldNotStart, v)
		}
		st.assign(i, val)
		klog.V(4).Infof("match: bound %s = %v", v.Name(), val)
	}

	if err := e.interrupted(ctx); err != nil {
		return false, err
	}
	if err := e.precheck(ctx); err != nil {
		return false, err
	}

	for _, i := range st.assigned.members() {
		ok, _, err := e.forwardCheck(ctx, 0, i)
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}

	if err := e.interrupted(ctx); err != nil {
		return false, err
	}

	loose := e.unanchored()
	if len(loose) == 0 {
		return false, nil
	}
	seeds, ok, err := e.strat.Starter.StartPop(ctx, loose)
	if err != nil {
		return false, fmt.Errorf("%w: alternative start: %w", ErrBackend, err)
	}
	if !ok {
		return false, fmt.Errorf("%w: alternative start found an unsatisfiable node", ErrCouldNotStart)
	}
	for _, v := range loose {
		if s, seeded := seeds[v]; seeded && s != nil {
			st.setCands(v.Index(), s)
			klog.V(4).Infof("match: seeded %s with %d candidates", v.Name(), s.Len())
		}
	}
	if rest := e.unanchored(); len(rest) > 0 {
		return false, fmt.Errorf("%w: nothing to start from for %s", ErrCouldNotStart, names(rest))
	}
	return false, nil
}

// precheck verifies the edges and exclusion pairs whose endpoints are both
// bound before search begins.
func (e *Engine[N]) precheck(ctx context.Context) error {
	st := e.st
	for _, edge := range e.holder.Graph().Edges() {
		si, ti := edge.Source().Index(), edge.Target().Index()
		if !st.assigned.has(si) || !st.assigned.has(ti) {
			continue
		}
		ok, err := e.strat.Access.RelationshipExists(ctx, st.values[si], st.values[ti], edge)
		if err != nil {
			return fmt.Errorf("%w: checking %s: %w", ErrBackend, edge, err)
		}
		if !ok {
			return fmt.Errorf("%w: %w: %s", ErrCouldNotStart, ErrPrecheckFailed, edge)
		}
	}
	for _, p := range e.holder.Exclusions() {
		ai, bi := p.A.Index(), p.B.Index()
		if st.assigned.has(ai) && st.assigned.has(bi) && st.values[ai] == st.values[bi] {
			return fmt.Errorf("%w: %w: %s and %s bound to the same node",
				ErrCouldNotStart, ErrPrecheckFailed, p.A.Name(), p.B.Name())
		}
	}
	return nil
}

// unanchored lists the nodes of every component in which no node is bound
// and no node has candidates. The ordering never picks from such a
// component.
func (e *Engine[N]) unanchored() []*pattern.Node {
	var out []*pattern.Node
	for _, comp := range e.holder.Graph().Components() {
		anchored := false
		for _, v := range comp {
			i := v.Index()
			if e.st.assigned.has(i) || e.st.cands[i] != nil {
				anchored = true
				break
			}
		}
		if !anchored {
			out = append(out, comp...)
		}
	}
	return out
}

// search extends the current assignment by one node and returns the
// conflict set of the frame: the bound nodes responsible for its failure.
// An empty set lets the caller continue with its next value.
func (e *Engine[N]) search(ctx context.Context, depth int) (varSet, error) {
	if err := e.interrupted(ctx); err != nil {
		return nil, err
	}

	st := e.st
	g := st.graph
	if st.nAssigned == st.size() {
		e.emit()
		return nil, nil
	}

	leavesBefore := e.stats.Leaves
	v := e.strat.Ordering.PickNextNode(g, st)
	if v == nil || !g.Contains(v) {
		return nil, errors.Wrapf(ErrInvariant, "no node to pick at depth %d with %d of %d bound",
			depth, st.nAssigned, st.size())
	}
	vi := v.Index()
	if st.assigned.has(vi) || st.cands[vi] == nil {
		return nil, errors.Wrapf(ErrInvariant, "ordering picked %s which is bound or has no candidates", v.Name())
	}

	cands := st.cands[vi]
	filtered := e.strat.Evaluator.MexFilter(v, cands, st, st)
	if filtered != cands {
		st.setCands(vi, filtered)
		e.opts.trace.Prune(depth, v, cands.Len(), filtered.Len())
		e.stats.Prunes++
	}

	conflicts := newVarSet(st.size())
	wiped := newVarSet(st.size())
	for _, val := range filtered.Items() {
		m := st.mark()
		st.assign(vi, val)
		e.opts.trace.Assign(depth, v, val)
		e.stats.Assignments++

		ok, failed, err := e.forwardCheck(ctx, depth, vi)
		if err != nil {
			st.rollback(m)
			return nil, err
		}
		if !ok {
			wiped.add(failed)
			st.rollback(m)
			continue
		}

		child, err := e.search(ctx, depth+1)
		st.rollback(m)
		if err != nil {
			return nil, err
		}
		if !child.empty() && !child.has(vi) {
			e.opts.trace.Backjump(depth, v)
			e.stats.Backjumps++
			return child, nil
		}
		conflicts.union(child)
	}

	if e.stats.Leaves == leavesBefore {
		conflicts.union(e.deadEndSet(vi, wiped))
	} else {
		// A row was found below, so earlier nodes must all be retried.
		conflicts = newVarSet(st.size())
	}
	conflicts.del(vi)

	if !conflicts.subsetOf(st.assigned) {
		return nil, errors.Wrapf(ErrInvariant, "conflict set of %s names unbound nodes", v.Name())
	}
	if !conflicts.empty() {
		e.opts.trace.Conflict(depth, v, e.nodesOf(conflicts), st.boundNodes())
	}
	return conflicts, nil
}

// deadEndSet is what the frame for vi blames when no value of vi led to a
// row: everything that restricted vi and everything that restricted a node
// whose candidates a value of vi wiped out.
func (e *Engine[N]) deadEndSet(vi int, wiped varSet) varSet {
	out := e.st.confCopy(vi)
	for _, j := range wiped.members() {
		out.union(e.st.confIn[j])
	}
	return out
}

// forwardCheck narrows the candidates of every unbound neighbour of the
// node at vi to the values compatible with its binding. It reports the
// index of the first node left without candidates.
func (e *Engine[N]) forwardCheck(ctx context.Context, depth, vi int) (ok bool, failed int, err error) {
	st := e.st
	v := st.graph.NodeAt(vi)
	val := st.values[vi]

	for _, edge := range st.graph.Incident(v) {
		if edge.IsLoop() {
			exists, err := e.strat.Access.RelationshipExists(ctx, val, val, edge)
			if err != nil {
				return false, vi, fmt.Errorf("%w: checking %s: %w", ErrBackend, edge, err)
			}
			if !exists {
				return false, vi, nil
			}
			continue
		}

		other := edge.Other(v)
		oi := other.Index()
		if st.assigned.has(oi) {
			continue
		}

		nbrs, err := e.strat.Access.FindNeighbours(ctx, edge, v, val)
		if err != nil {
			return false, vi, fmt.Errorf("%w: neighbours of %s via %s: %w", ErrBackend, v.Name(), edge, err)
		}
		found := NewSet(nbrs...)

		if cur := st.cands[oi]; cur == nil {
			st.setCands(oi, found)
			st.addConflictIn(vi, oi)
		} else if next := cur.Intersect(found); next != cur {
			st.setCands(oi, next)
			st.addConflictIn(vi, oi)
			e.opts.trace.Prune(depth, other, cur.Len(), next.Len())
			e.stats.Prunes++
		}

		if st.cands[oi].Len() == 0 {
			return false, oi, nil
		}
	}
	return true, 0, nil
}

// emit records the projection of a complete assignment.
func (e *Engine[N]) emit() {
	e.stats.Leaves++
	row := make([]N, len(e.schema))
	for j, s := range e.schema {
		row[j] = e.st.values[s.Index()]
	}
	if e.rows.add(row) {
		klog.V(4).Infof("match: row %d %v", e.rows.len(), row)
	}
}

func (e *Engine[N]) nodesOf(vs varSet) []*pattern.Node {
	idx := vs.members()
	out := make([]*pattern.Node, len(idx))
	for k, i := range idx {
		out[k] = e.st.graph.NodeAt(i)
	}
	return out
}
