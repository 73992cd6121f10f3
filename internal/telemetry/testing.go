package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MeterRecorder is a meter whose measurements can be collected on demand.
// Tests build package metrics from Meter and then inspect what was recorded.
type MeterRecorder struct {
	Meter  metric.Meter
	reader *sdkmetric.ManualReader
}

func NewMeterRecorder(name string) *MeterRecorder {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return &MeterRecorder{
		Meter:  provider.Meter(name),
		reader: reader,
	}
}

// Collect returns the recorded instruments keyed by name.
func (r *MeterRecorder) Collect(ctx context.Context) (map[string]metricdata.Metrics, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out, nil
}

// CounterTotal sums an int64 counter or up-down counter over every attribute
// set. A counter that was never incremented reports zero.
func (r *MeterRecorder) CounterTotal(ctx context.Context, name string) (int64, error) {
	recorded, err := r.Collect(ctx)
	if err != nil {
		return 0, err
	}

	m, ok := recorded[name]
	if !ok {
		return 0, nil
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0, fmt.Errorf("metric %s is %T, not an int64 sum", name, m.Data)
	}

	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total, nil
}
