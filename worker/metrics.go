package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope of the worker metrics
const MeterName = "github.com/inkstamp/paperless-stamp/worker"

// Metrics holds the worker's RED instruments
type Metrics struct {
	cycles           metric.Int64Counter
	cycleFailures    metric.Int64Counter
	outcomes         metric.Int64Counter
	slowDocuments    metric.Int64Counter
	documentDuration metric.Float64Histogram
	cycleDuration    metric.Float64Histogram
}

// NewMetrics registers the worker instruments on meter. A nil meter
// records nothing.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter(MeterName)
	}

	m := &Metrics{}
	var err error

	m.cycles, err = meter.Int64Counter("stamp.cycles",
		metric.WithDescription("Poll cycles run"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle counter: %w", err)
	}

	m.cycleFailures, err = meter.Int64Counter("stamp.cycle.failures",
		metric.WithDescription("Poll cycles aborted before processing documents"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle failure counter: %w", err)
	}

	m.outcomes, err = meter.Int64Counter("stamp.outcomes",
		metric.WithDescription("Stamp outcomes by type and status"),
		metric.WithUnit("{outcome}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create outcome counter: %w", err)
	}

	m.slowDocuments, err = meter.Int64Counter("stamp.documents.slow",
		metric.WithDescription("Documents that exceeded the processing budget"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create slow document counter: %w", err)
	}

	m.documentDuration, err = meter.Float64Histogram("stamp.document.duration",
		metric.WithDescription("Per-document processing time"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create document histogram: %w", err)
	}

	m.cycleDuration, err = meter.Float64Histogram("stamp.cycle.duration",
		metric.WithDescription("Poll cycle duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordCycle(ctx context.Context, d time.Duration, failed bool) {
	m.cycles.Add(ctx, 1)
	if failed {
		m.cycleFailures.Add(ctx, 1)
	}
	m.cycleDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) recordDocument(ctx context.Context, d time.Duration, slow bool) {
	m.documentDuration.Record(ctx, d.Seconds())
	if slow {
		m.slowDocuments.Add(ctx, 1)
	}
}

func (m *Metrics) recordOutcome(ctx context.Context, stampType, status string) {
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stamp_type", stampType),
		attribute.String("status", status),
	))
}
