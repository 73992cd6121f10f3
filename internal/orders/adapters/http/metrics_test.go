package http

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecordHTTPRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	ctx := context.Background()

	metrics.RequestStarted(ctx)
	metrics.RecordRequest(ctx, "POST", "POST /v1/orders", 202, 0.5)
	metrics.RequestFinished(ctx)
	metrics.RequestStarted(ctx)
	metrics.RecordRequest(ctx, "GET", "GET /v1/customers/{customerId}/events", 200, 0.7)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	seen := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			seen[m.Name] = true
			switch m.Name {
			case "http_requests_total":
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatal("Expected Sum[int64] data type")
				}
				if len(sum.DataPoints) != 2 {
					t.Errorf("Expected 2 data points, got %d", len(sum.DataPoints))
				}
			case "http_request_duration_seconds":
				histogram, ok := m.Data.(metricdata.Histogram[float64])
				if !ok {
					t.Fatal("Expected Histogram[float64] data type")
				}
				if len(histogram.DataPoints) != 2 {
					t.Errorf("Expected 2 data points, got %d", len(histogram.DataPoints))
				}
			case "http_requests_in_flight":
				sum := m.Data.(metricdata.Sum[int64])
				if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
					t.Errorf("Expected 1 request in flight, got %+v", sum.DataPoints)
				}
			}
		}
	}

	for _, name := range []string{"http_requests_total", "http_request_duration_seconds", "http_requests_in_flight"} {
		if !seen[name] {
			t.Errorf("%s metric not found", name)
		}
	}
}
