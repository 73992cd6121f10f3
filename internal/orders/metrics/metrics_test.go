package metrics

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}
	return metrics, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	byName := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			byName[m.Name] = m
		}
	}
	return byName
}

func TestRecordOrderCreated(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordOrderCreated(ctx, true)
	metrics.RecordOrderCreated(ctx, false)
	metrics.RecordOrderCreationDuration(ctx, 0.002)
	metrics.RecordOrderCreationDuration(ctx, 0.004)

	got := collect(t, reader)

	created, ok := got["orders_created_total"]
	if !ok {
		t.Fatal("orders_created_total metric not found")
	}
	if sum := created.Data.(metricdata.Sum[int64]); len(sum.DataPoints) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
	}

	duration, ok := got["order_creation_duration_seconds"]
	if !ok {
		t.Fatal("order_creation_duration_seconds metric not found")
	}
	histogram := duration.Data.(metricdata.Histogram[float64])
	if len(histogram.DataPoints) != 1 || histogram.DataPoints[0].Count != 2 {
		t.Errorf("Expected a single data point with count=2, got %+v", histogram.DataPoints)
	}
}

func TestRecordRetailerRouting(t *testing.T) {
	metrics, reader := newTestMetrics(t)
	ctx := context.Background()

	metrics.RecordRetailerRouted(ctx, "WalmartOrder")
	metrics.RecordRetailerRouted(ctx, "SorianaOrder")
	metrics.RecordRetailerRouted(ctx, "WalmartOrder")
	metrics.RecordRetailerUnrouted(ctx)

	got := collect(t, reader)

	routed := got["orders_retailer_routed_total"].Data.(metricdata.Sum[int64])
	if len(routed.DataPoints) != 2 {
		t.Errorf("Expected 2 data points, got %d", len(routed.DataPoints))
	}

	unrouted := got["orders_unrouted_total"].Data.(metricdata.Sum[int64])
	if len(unrouted.DataPoints) != 1 || unrouted.DataPoints[0].Value != 1 {
		t.Errorf("Expected one unrouted order, got %+v", unrouted.DataPoints)
	}
}
