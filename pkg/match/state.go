package match

import "github.com/szrrizvi/arebac/pkg/pattern"

type undoKind uint8

const (
	undoAssign undoKind = iota
	undoCands
	undoConf
)

type undo[N comparable] struct {
	kind  undoKind
	node  int
	cands *Set[N]
	conf  varSet
}

// state is the search state: the partial assignment, the candidate sets of
// the nodes forward checking has touched, and the incoming conflict sets.
//
// Changes are recorded on an undo trail. A branch takes a mark before it
// binds a value and rolls back to that mark before the next sibling value is
// tried, so siblings never observe each other's changes. Candidate and
// conflict sets are replaced, never mutated, which lets the trail keep the
// previous value by reference.
type state[N comparable] struct {
	graph     *pattern.Graph
	values    []N
	assigned  varSet
	nAssigned int
	cands     []*Set[N]
	confIn    []varSet
	trail     []undo[N]
}

func newState[N comparable](g *pattern.Graph) *state[N] {
	n := g.Len()
	return &state[N]{
		graph:    g,
		values:   make([]N, n),
		assigned: newVarSet(n),
		cands:    make([]*Set[N], n),
		confIn:   make([]varSet, n),
	}
}

func (s *state[N]) size() int { return len(s.values) }

func (s *state[N]) member(v *pattern.Node) (int, bool) {
	if !s.graph.Contains(v) {
		return 0, false
	}
	return v.Index(), true
}

// Value implements State.
func (s *state[N]) Value(v *pattern.Node) (N, bool) {
	i, ok := s.member(v)
	if !ok || !s.assigned.has(i) {
		var zero N
		return zero, false
	}
	return s.values[i], true
}

// Candidates implements State.
func (s *state[N]) Candidates(v *pattern.Node) (*Set[N], bool) {
	i, ok := s.member(v)
	if !ok || s.cands[i] == nil {
		return nil, false
	}
	return s.cands[i], true
}

// RecordConflict implements ConflictRecorder. Unlike forward-checking
// conflicts it does not pull in from's own conflicts, since from is bound.
func (s *state[N]) RecordConflict(from, to *pattern.Node) {
	fi, ok1 := s.member(from)
	ti, ok2 := s.member(to)
	if !ok1 || !ok2 {
		return
	}
	next := s.confCopy(ti)
	next.add(fi)
	s.setConf(ti, next)
}

func (s *state[N]) mark() int { return len(s.trail) }

func (s *state[N]) rollback(m int) {
	for len(s.trail) > m {
		u := s.trail[len(s.trail)-1]
		s.trail = s.trail[:len(s.trail)-1]
		switch u.kind {
		case undoAssign:
			var zero N
			s.values[u.node] = zero
			s.assigned.del(u.node)
			s.nAssigned--
		case undoCands:
			s.cands[u.node] = u.cands
		case undoConf:
			s.confIn[u.node] = u.conf
		}
	}
}

func (s *state[N]) assign(i int, value N) {
	s.trail = append(s.trail, undo[N]{kind: undoAssign, node: i})
	s.values[i] = value
	s.assigned.add(i)
	s.nAssigned++
}

func (s *state[N]) setCands(i int, c *Set[N]) {
	s.trail = append(s.trail, undo[N]{kind: undoCands, node: i, cands: s.cands[i]})
	s.cands[i] = c
}

func (s *state[N]) setConf(i int, c varSet) {
	s.trail = append(s.trail, undo[N]{kind: undoConf, node: i, conf: s.confIn[i]})
	s.confIn[i] = c
}

func (s *state[N]) confCopy(i int) varSet {
	if s.confIn[i] == nil {
		return newVarSet(s.size())
	}
	return s.confIn[i].clone()
}

// addConflictIn records that src filtered tgt. The influence chain is kept
// transitive: whatever restricted src also restricted tgt.
func (s *state[N]) addConflictIn(src, tgt int) {
	next := s.confCopy(tgt)
	next.add(src)
	next.union(s.confIn[src])
	s.setConf(tgt, next)
}

func (s *state[N]) boundNodes() []*pattern.Node {
	idx := s.assigned.members()
	out := make([]*pattern.Node, len(idx))
	for k, i := range idx {
		out[k] = s.graph.NodeAt(i)
	}
	return out
}
