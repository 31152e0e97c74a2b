package match

import (
	"github.com/szrrizvi/arebac/pkg/attrs"
	"github.com/szrrizvi/arebac/pkg/pattern"
)

var defaultPolicy = attrs.DefaultPolicy()

// Checker is the default Evaluator. Attribute comparison follows an
// attrs.Policy; mutual exclusion follows the Holder's pairs.
type Checker[N comparable] struct {
	holder *pattern.Holder
	policy *attrs.Policy
}

// NewChecker returns a Checker. A nil policy compares everything as strings.
func NewChecker[N comparable](h *pattern.Holder, p *attrs.Policy) *Checker[N] {
	return &Checker[N]{holder: h, policy: p}
}

// CheckAttrs implements AttrChecker.
func (c *Checker[N]) CheckAttrs(req pattern.Attributed, target Attributes) bool {
	return CheckAttrs(c.policy, req, target)
}

// MexFilter implements Evaluator.
func (c *Checker[N]) MexFilter(v *pattern.Node, cands *Set[N], st State[N], rec ConflictRecorder) *Set[N] {
	out := cands
	for _, other := range c.holder.Partners(v) {
		val, ok := st.Value(other)
		if !ok {
			continue
		}
		out = out.Without(val)
		rec.RecordConflict(other, v)
	}
	return out
}

// CheckAttrs is the policy-driven attribute comparison shared by Checker
// and by backends that filter neighbours themselves.
func CheckAttrs(p *attrs.Policy, req pattern.Attributed, target Attributes) bool {
	for _, a := range req.Requirements() {
		if target == nil {
			return false
		}
		val, ok := target.Attr(a.Name)
		if !ok || val == nil {
			return false
		}
		if !p.Match(a.Name, a.Value, val) {
			return false
		}
	}
	return true
}

// PolicyChecker adapts an attrs.Policy to AttrChecker for backends.
type PolicyChecker struct {
	Policy *attrs.Policy
}

// CheckAttrs implements AttrChecker.
func (p PolicyChecker) CheckAttrs(req pattern.Attributed, target Attributes) bool {
	return CheckAttrs(p.Policy, req, target)
}

// ExceptID hides the id requirement of a node. Backends use it to validate
// the remaining requirements of a node resolved by identity.
func ExceptID(a pattern.Attributed) pattern.Attributed {
	return exceptID{a}
}

type exceptID struct {
	pattern.Attributed
}

func (x exceptID) Requirements() []pattern.Attribute {
	reqs := x.Attributed.Requirements()
	out := make([]pattern.Attribute, 0, len(reqs))
	for _, r := range reqs {
		if r.Name != pattern.IDAttr {
			out = append(out, r)
		}
	}
	return out
}
