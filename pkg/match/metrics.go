package match

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for match operations.
var (
	tracer = otel.Tracer("arebac.match")
	meter  = otel.Meter("arebac.match")
)

var (
	checkLatency metric.Float64Histogram
	rowsFound    metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// Prometheus counters. Labels for checksTotal: "completed", "not_started",
// "killed", "failed".
var (
	checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpmatch_checks_total",
		Help: "Pattern checks by outcome",
	}, []string{"outcome"})

	expandedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpmatch_assignments_total",
		Help: "Candidate values bound during search",
	})

	prunesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpmatch_prunes_total",
		Help: "Candidate sets shrunk by forward checking or mutual exclusion",
	})

	backjumpsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpmatch_backjumps_total",
		Help: "Frames abandoned by conflict-directed backjumping",
	})
)

// initMetrics initializes the otel instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		checkLatency, err = meter.Float64Histogram(
			"gpmatch_check_duration_seconds",
			metric.WithDescription("Duration of pattern checks"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rowsFound, err = meter.Int64Histogram(
			"gpmatch_rows",
			metric.WithDescription("Distinct result rows per completed check"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCheckMetrics(ctx context.Context, status Status, duration time.Duration, rows int, stats Stats) {
	checksTotal.WithLabelValues(status.String()).Inc()
	expandedTotal.Add(float64(stats.Assignments))
	prunesTotal.Add(float64(stats.Prunes))
	backjumpsTotal.Add(float64(stats.Backjumps))

	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", status.String()))
	checkLatency.Record(ctx, duration.Seconds(), attrs)
	if status == StatusCompleted {
		rowsFound.Record(ctx, int64(rows))
	}
}
