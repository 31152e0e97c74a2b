package match

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/plan-systems/klog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/szrrizvi/arebac/pkg/pattern"
)

// Engine finds every embedding of a pattern in a target graph using forward
// checking with conflict-directed backjumping.
//
// An Engine is single use: build one per check with New. Kill may be called
// from any goroutine; everything else must be called from one goroutine.
type Engine[N comparable] struct {
	holder *pattern.Holder
	schema []*pattern.Node
	strat  Strategies[N]
	opts   options

	killed atomic.Bool
	ran    atomic.Bool

	st    *state[N]
	rows  *rowSet[N]
	stats Stats
}

type options struct {
	timeout time.Duration
	trace   Tracer
}

// Option configures an Engine.
type Option func(*options)

// WithTimeout kills the search once d has elapsed. Zero disables the
// deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithTracer installs a tracer for search events.
func WithTracer(t Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.trace = t
		}
	}
}

// New returns an Engine for holder. Strategies.Access is required; the other
// strategies default to:
//
//   - Evaluator: NewChecker with attrs.DefaultPolicy
//   - Ordering:  LeastCandidates
//   - Starter:   AttrStart when Access also implements Prober, otherwise a
//     starter that seeds nothing
func New[N comparable](holder *pattern.Holder, s Strategies[N], opts ...Option) (*Engine[N], error) {
	if holder == nil {
		return nil, pattern.ErrNilGraph
	}
	if s.Access == nil {
		return nil, ErrNoAccess
	}
	if s.Evaluator == nil {
		s.Evaluator = NewChecker[N](holder, defaultPolicy)
	}
	if s.Ordering == nil {
		s.Ordering = LeastCandidates[N]{}
	}
	if s.Starter == nil {
		if p, ok := s.Access.(Prober[N]); ok {
			s.Starter = AttrStart[N]{Prober: p, Checker: s.Evaluator}
		} else {
			s.Starter = noStart[N]{}
		}
	}

	o := options{trace: nopTracer{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine[N]{holder: holder, schema: holder.Schema(), strat: s, opts: o}, nil
}

// Kill asks a running check to stop. It is safe to call at any time, from
// any goroutine, any number of times.
func (e *Engine[N]) Kill() {
	e.killed.Store(true)
}

// Check runs the search with the pattern's own pre-bound nodes.
func (e *Engine[N]) Check(ctx context.Context) (*Result[N], error) {
	return e.CheckWithBindings(ctx, nil)
}

// CheckWithBindings runs the search with explicit identities for some
// pattern nodes. An explicit binding takes precedence over the node's id
// attribute.
//
// The returned Result is non-nil unless the error is ErrAlreadyRun. Its
// Status tells a completed search (possibly with zero rows) apart from one
// that could not start, was killed, or failed.
func (e *Engine[N]) CheckWithBindings(ctx context.Context, bindings map[*pattern.Node]string) (*Result[N], error) {
	if !e.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	g := e.holder.Graph()
	ctx, span := tracer.Start(ctx, "match.Engine.Check",
		trace.WithAttributes(
			attribute.Int("pattern.nodes", g.Len()),
			attribute.Int("pattern.edges", g.EdgeCount()),
			attribute.Int("pattern.bindings", len(bindings)),
		))
	defer span.End()

	stop := Watch(e, e.opts.timeout)
	defer stop()

	begin := time.Now()
	err := e.run(ctx, bindings)
	e.stats.Duration = time.Since(begin)

	res := &Result[N]{
		Schema: e.schema,
		Status: statusOf(err),
		Stats:  e.stats,
	}
	if res.Status == StatusCompleted {
		res.Rows = e.rows.rows
	}

	span.SetAttributes(
		attribute.String("match.outcome", res.Status.String()),
		attribute.Int("match.rows", len(res.Rows)),
		attribute.Int("match.assignments", e.stats.Assignments),
		attribute.Int("match.backjumps", e.stats.Backjumps),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	recordCheckMetrics(ctx, res.Status, e.stats.Duration, len(res.Rows), e.stats)

	if res.Status == StatusFailed {
		klog.Warningf("match: check failed after %v: %v", e.stats.Duration, err)
	}
	klog.V(2).Infof("match: %s in %v, %d rows, %d assignments, %d prunes, %d backjumps",
		res.Status, e.stats.Duration, len(res.Rows), e.stats.Assignments, e.stats.Prunes, e.stats.Backjumps)
	return res, err
}

func (e *Engine[N]) run(ctx context.Context, bindings map[*pattern.Node]string) error {
	if err := e.interrupted(ctx); err != nil {
		return err
	}

	e.st = newState[N](e.holder.Graph())
	e.rows = newRowSet[N]()

	exhausted, err := e.start(ctx, bindings)
	if err != nil {
		return err
	}
	if exhausted {
		klog.V(2).Infof("match: initial forward check emptied a candidate set")
		return nil
	}

	_, err = e.search(ctx, 0)
	return err
}

// interrupted returns ErrKilled once Kill was called or ctx is done.
func (e *Engine[N]) interrupted(ctx context.Context) error {
	if e.killed.Load() {
		return ErrKilled
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrKilled, err)
	}
	return nil
}

func statusOf(err error) Status {
	switch {
	case err == nil:
		return StatusCompleted
	case errors.Is(err, ErrKilled),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		// A backend that honours ctx reports cancellation as its own error.
		return StatusKilled
	case errors.Is(err, ErrCouldNotStart):
		return StatusNotStarted
	default:
		return StatusFailed
	}
}

type nopTracer struct{}

func (nopTracer) Assign(int, *pattern.Node, any) {}
func (nopTracer) Prune(int, *pattern.Node, int, int) {}
func (nopTracer) Conflict(int, *pattern.Node, []*pattern.Node, []*pattern.Node) {}
func (nopTracer) Backjump(int, *pattern.Node) {}
