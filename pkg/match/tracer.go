package match

import (
	"strings"

	"github.com/plan-systems/klog"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Tracer observes the search. Each hook is called synchronously from the
// search goroutine at a specific position of the algorithm.
type Tracer interface {
	// Assign is called when value is bound to v at the given depth, before
	// forward checking.
	Assign(depth int, v *pattern.Node, value any)

	// Prune is called when forward checking or mutual exclusion shrinks the
	// candidate set of v.
	Prune(depth int, v *pattern.Node, before, after int)

	// Conflict is called when the frame for v returns a non-empty conflict
	// set. bound lists the nodes assigned in that frame.
	Conflict(depth int, v *pattern.Node, conflicts, bound []*pattern.Node)

	// Backjump is called when the frame for v abandons its remaining
	// candidates because the failure below does not involve v.
	Backjump(depth int, v *pattern.Node)
}

// LogTracer writes every event to klog at verbosity 4.
type LogTracer struct{}

func (LogTracer) Assign(depth int, v *pattern.Node, value any) {
	klog.V(4).Infof("%sassign %s = %v", indent(depth), v.Name(), value)
}

func (LogTracer) Prune(depth int, v *pattern.Node, before, after int) {
	klog.V(4).Infof("%sprune %s %d -> %d", indent(depth), v.Name(), before, after)
}

func (LogTracer) Conflict(depth int, v *pattern.Node, conflicts, _ []*pattern.Node) {
	klog.V(4).Infof("%sconflict at %s: %s", indent(depth), v.Name(), names(conflicts))
}

func (LogTracer) Backjump(depth int, v *pattern.Node) {
	klog.V(4).Infof("%sbackjump over %s", indent(depth), v.Name())
}

func indent(depth int) string { return strings.Repeat("  ", depth) }

func names(nodes []*pattern.Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.Name()
	}
	return "{" + strings.Join(parts, ",") + "}"
}
