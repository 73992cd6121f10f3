package retailers

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	notificationsTotal   metric.Int64Counter
	notificationDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.notificationsTotal, err = meter.Int64Counter(
		"retailer_notifications_total",
		metric.WithDescription("Retailer notifications by retailer and outcome"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retailer_notifications_total counter: %w", err)
	}

	m.notificationDuration, err = meter.Float64Histogram(
		"retailer_notification_duration_seconds",
		metric.WithDescription("Time to render and send a retailer notification"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create retailer_notification_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordNotification(ctx context.Context, storeID string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.notificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("retailer", storeID),
		attribute.String("status", status),
	))
	m.notificationDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("retailer", storeID),
	))
}
