package bus

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderbus/internal/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records publish latency and per-target dispatch outcomes. It is
// also an Observer so it can be handed straight to WithObserver.
type Metrics struct {
	publishLatency   metric.Float64Histogram
	dispatchTotal    metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	unroutedTotal    metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.publishLatency, err = meter.Float64Histogram(
		"bus_publish_latency_seconds",
		metric.WithDescription("Time spent validating and scheduling a published event"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create bus_publish_latency histogram: %w", err)
	}

	m.dispatchTotal, err = meter.Int64Counter(
		"bus_dispatch_total",
		metric.WithDescription("Event deliveries to subscriber targets"),
		metric.WithUnit("{delivery}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create bus_dispatch_total counter: %w", err)
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"bus_dispatch_duration_seconds",
		metric.WithDescription("Duration of subscriber target invocations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create bus_dispatch_duration histogram: %w", err)
	}

	m.unroutedTotal, err = meter.Int64Counter(
		"bus_unrouted_events_total",
		metric.WithDescription("Published events that matched no routing rule"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create bus_unrouted_events_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordPublish(ctx context.Context, detailType string, durationSeconds float64, success bool) {
	m.publishLatency.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("detail_type", detailType),
		attribute.String("status", status(success)),
	))
}

func (m *Metrics) ObserveDispatch(ctx context.Context, result Result) {
	m.dispatchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target", result.Target),
		attribute.String("status", status(result.OK())),
	))
	m.dispatchDuration.Record(ctx, result.Duration.Seconds(), metric.WithAttributes(
		attribute.String("target", result.Target),
	))
}

func (m *Metrics) ObserveUnrouted(ctx context.Context, event events.Event) {
	m.unroutedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", event.Source),
		attribute.String("detail_type", event.DetailType),
	))
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
