package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	ordersCreatedTotal    metric.Int64Counter
	orderCreationDuration metric.Float64Histogram
	retailerRoutedTotal   metric.Int64Counter
	unroutedTotal         metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.ordersCreatedTotal, err = meter.Int64Counter(
		"orders_created_total",
		metric.WithDescription("Total number of create order requests by outcome"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_created_total counter: %w", err)
	}

	m.orderCreationDuration, err = meter.Float64Histogram(
		"order_creation_duration_seconds",
		metric.WithDescription("Time to validate an order and publish its events"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create order_creation_duration histogram: %w", err)
	}

	m.retailerRoutedTotal, err = meter.Int64Counter(
		"orders_retailer_routed_total",
		metric.WithDescription("Orders that produced a retailer event, by detail type"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_retailer_routed_total counter: %w", err)
	}

	m.unroutedTotal, err = meter.Int64Counter(
		"orders_unrouted_total",
		metric.WithDescription("Orders whose store has no retailer mapping"),
		metric.WithUnit("{order}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create orders_unrouted_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOrderCreated(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.ordersCreatedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordOrderCreationDuration(ctx context.Context, durationSeconds float64) {
	m.orderCreationDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordRetailerRouted(ctx context.Context, detailType string) {
	m.retailerRoutedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("detail_type", detailType),
	))
}

// RecordRetailerUnrouted carries no store attribute; store ids come from
// clients and are unbounded.
func (m *Metrics) RecordRetailerUnrouted(ctx context.Context) {
	m.unroutedTotal.Add(ctx, 1)
}
