package workflow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the pipeline counters. Counter creation only fails on
// malformed names, so the errors are discarded.
type metrics struct {
	completed metric.Int64Counter
	failed    metric.Int64Counter
	swept     metric.Int64Counter
	sent      metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("bookingflow/workflow")
	completed, _ := meter.Int64Counter("bookingflow.workflows.completed")
	failed, _ := meter.Int64Counter("bookingflow.workflows.failed")
	swept, _ := meter.Int64Counter("bookingflow.sweeper.processed")
	sent, _ := meter.Int64Counter("bookingflow.notifications.sent")
	return &metrics{completed: completed, failed: failed, swept: swept, sent: sent}
}

func (m *metrics) recordOutcome(ctx context.Context, success bool) {
	if success {
		m.completed.Add(ctx, 1)
	} else {
		m.failed.Add(ctx, 1)
	}
}

func (m *metrics) recordSent(ctx context.Context, n int64) {
	if n > 0 {
		m.sent.Add(ctx, n)
	}
}

func (m *metrics) recordSwept(ctx context.Context, n int64) {
	if n > 0 {
		m.swept.Add(ctx, n)
	}
}
