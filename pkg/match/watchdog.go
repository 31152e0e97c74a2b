package match

import (
	"time"

	"github.com/plan-systems/klog"
)

// Killable is a computation that can be cancelled cooperatively.
type Killable interface {
	Kill()
}

// Watch kills k once d has elapsed, unless the returned stop function is
// called first. A non-positive d never fires.
//
// Example:
//
//	stop := match.Watch(engine, 6*time.Second)
//	defer stop()
//	res, err := engine.Check(ctx)
func Watch(k Killable, d time.Duration) (stop func()) {
	if d <= 0 {
		return func() {}
	}
	t := time.AfterFunc(d, func() {
		klog.Warningf("match: deadline of %v reached, killing search", d)
		k.Kill()
	})
	return func() { t.Stop() }
}
