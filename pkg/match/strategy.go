package match

import (
	"context"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Attributes is the attribute view of a target node or relationship.
// A nil value is treated as absent.
type Attributes interface {
	Attr(name string) (any, bool)
}

// AttributeMap is the simplest Attributes implementation.
type AttributeMap map[string]any

// Attr implements Attributes.
func (m AttributeMap) Attr(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// State is the read-only view of the search state handed to strategies.
type State[N comparable] interface {
	// Value returns the identity bound to v.
	Value(v *pattern.Node) (N, bool)
	// Candidates returns the remaining candidates of v, if forward checking
	// or alternative start has populated it.
	Candidates(v *pattern.Node) (*Set[N], bool)
}

// ConflictRecorder records that the binding of from restricted to.
type ConflictRecorder interface {
	RecordConflict(from, to *pattern.Node)
}

// AttrChecker compares attribute requirements against a target entity.
type AttrChecker interface {
	// CheckAttrs reports whether target carries every attribute required by
	// req with a matching value. A missing attribute fails the check.
	CheckAttrs(req pattern.Attributed, target Attributes) bool
}

// Evaluator is the constraint evaluator strategy.
type Evaluator[N comparable] interface {
	AttrChecker

	// MexFilter removes from cands the identities bound to v's
	// mutual-exclusion partners and records each assigned partner as a
	// conflict of v. It returns the filtered set, which is cands itself when
	// nothing was removed.
	MexFilter(v *pattern.Node, cands *Set[N], st State[N], rec ConflictRecorder) *Set[N]
}

// Access is the neighbourhood access strategy and the only boundary to a
// target graph backend.
//
// A lookup that finds nothing (unknown identity, failed attribute check)
// returns an empty result and a nil error. A non-nil error means the backend
// itself failed and aborts the match.
type Access[N comparable] interface {
	// FindNeighbours returns the identities reachable from value through
	// edges of e's type, following e in the direction implied by bound's
	// role, that satisfy e's requirements and those of the opposite
	// endpoint. The result is duplicate free and deterministically ordered.
	FindNeighbours(ctx context.Context, e *pattern.Edge, bound *pattern.Node, value N) ([]N, error)

	// FindNode resolves v through its id attribute.
	FindNode(ctx context.Context, v *pattern.Node) (N, bool, error)

	// FindNodeByID resolves v to an explicit identity and validates its
	// remaining requirements.
	FindNodeByID(ctx context.Context, v *pattern.Node, id string) (N, bool, error)

	// RelationshipExists reports whether an edge of e's type satisfying e's
	// requirements runs from src to tgt.
	RelationshipExists(ctx context.Context, src, tgt N, e *pattern.Edge) (bool, error)
}

// Ordering is the variable ordering strategy.
type Ordering[N comparable] interface {
	// PickNextNode returns an unassigned node that has candidates, or nil
	// when none exists.
	PickNextNode(g *pattern.Graph, st State[N]) *pattern.Node
}

// Starter is the alternative start strategy, used when no pattern node in a
// connected component is pre-bound.
type Starter[N comparable] interface {
	// StartPop seeds candidate sets for nodes. It returns false when some
	// node is provably unsatisfiable.
	StartPop(ctx context.Context, nodes []*pattern.Node) (map[*pattern.Node]*Set[N], bool, error)
}

// Prober is implemented by backends that can enumerate nodes by attribute
// value. It backs AttrStart.
type Prober[N comparable] interface {
	// ProbeAttr returns the nodes whose attribute name may equal value.
	// It may over-approximate; callers filter with an AttrChecker.
	ProbeAttr(ctx context.Context, name, value string) ([]N, error)

	// NodeAttributes returns the attribute view of n.
	NodeAttributes(ctx context.Context, n N) (Attributes, bool, error)
}

// Strategies bundles the four strategies an Engine is built from. Only
// Access is required; see New for the defaults.
type Strategies[N comparable] struct {
	Evaluator Evaluator[N]
	Access    Access[N]
	Ordering  Ordering[N]
	Starter   Starter[N]
}
