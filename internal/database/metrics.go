package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics times store queries. The event store decorator records every
// append and history read under its operation name.
type Metrics struct {
	queryDuration metric.Float64Histogram
	queryErrors   metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.queryDuration, err = meter.Float64Histogram(
		"db_query_duration_seconds",
		metric.WithDescription("Duration of event store and idempotency queries"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_duration histogram: %w", err)
	}

	m.queryErrors, err = meter.Int64Counter(
		"db_query_errors_total",
		metric.WithDescription("Store queries that returned an error"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_query_errors_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordQuery(ctx context.Context, operation string, durationSeconds float64, success bool) {
	status := "success"
	if !success {
		status = "error"
		m.queryErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
	m.queryDuration.Record(ctx, durationSeconds, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", status),
	))
}

// PoolStats is the subset of pool statistics exported as gauges.
type PoolStats struct {
	Acquired int64
	Idle     int64
	Total    int64
	Max      int64
}

// StatsOf reads the current statistics of a pgx pool.
func StatsOf(pool *pgxpool.Pool) func() PoolStats {
	return func() PoolStats {
		s := pool.Stat()
		return PoolStats{
			Acquired: int64(s.AcquiredConns()),
			Idle:     int64(s.IdleConns()),
			Total:    int64(s.TotalConns()),
			Max:      int64(s.MaxConns()),
		}
	}
}

// RegisterPoolMetrics exports connection pool gauges, sampled from stats at
// every collection.
func RegisterPoolMetrics(meter metric.Meter, stats func() PoolStats) (metric.Registration, error) {
	conns, err := meter.Int64ObservableGauge(
		"db_pool_connections",
		metric.WithDescription("Connections in the pool by state"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_pool_connections gauge: %w", err)
	}

	maxConns, err := meter.Int64ObservableGauge(
		"db_pool_max_connections",
		metric.WithDescription("Configured pool size"),
		metric.WithUnit("{connection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create db_pool_max_connections gauge: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := stats()
		o.ObserveInt64(conns, s.Acquired, metric.WithAttributes(attribute.String("state", "acquired")))
		o.ObserveInt64(conns, s.Idle, metric.WithAttributes(attribute.String("state", "idle")))
		o.ObserveInt64(conns, s.Total, metric.WithAttributes(attribute.String("state", "total")))
		o.ObserveInt64(maxConns, s.Max)
		return nil
	}, conns, maxConns)
}
