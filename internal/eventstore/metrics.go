package eventstore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	appendsTotal  metric.Int64Counter
	failuresTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.appendsTotal, err = meter.Int64Counter(
		"eventstore_appends_total",
		metric.WithDescription("Event records appended to the store"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create eventstore_appends_total counter: %w", err)
	}

	m.failuresTotal, err = meter.Int64Counter(
		"eventstore_append_failures_total",
		metric.WithDescription("Events the writer could not persist"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create eventstore_append_failures_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordAppend(ctx context.Context, detailType string) {
	m.appendsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("detail_type", detailType),
	))
}

func (m *Metrics) RecordAppendFailure(ctx context.Context, detailType, reason string) {
	m.failuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("detail_type", detailType),
		attribute.String("reason", reason),
	))
}
