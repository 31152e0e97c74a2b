package match

import "github.com/szrrizvi/arebac/pkg/pattern"

// LeastCandidates picks the unassigned node with the fewest remaining
// candidates (fail first). Ties go to the earlier node in enumeration order.
type LeastCandidates[N comparable] struct{}

// PickNextNode implements Ordering.
func (LeastCandidates[N]) PickNextNode(g *pattern.Graph, st State[N]) *pattern.Node {
	var (
		best    *pattern.Node
		bestLen int
	)
	for i := 0; i < g.Len(); i++ {
		v := g.NodeAt(i)
		if _, bound := st.Value(v); bound {
			continue
		}
		c, ok := st.Candidates(v)
		if !ok {
			continue
		}
		if best == nil || c.Len() < bestLen {
			best, bestLen = v, c.Len()
		}
	}
	return best
}
