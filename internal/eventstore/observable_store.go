package eventstore

import (
	"context"
	"time"

	"github.com/dejobratic/orderbus/internal/database"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// ObservableStore decorates a Store with spans and query duration metrics.
type ObservableStore struct {
	store   Store
	metrics *database.Metrics
}

func NewObservableStore(store Store, metrics *database.Metrics) *ObservableStore {
	return &ObservableStore{
		store:   store,
		metrics: metrics,
	}
}

func (s *ObservableStore) Append(ctx context.Context, record Record) error {
	ctx, span := telemetry.StartSpan(ctx, "EventStore.Append")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("eventstore.who", record.Who),
		attribute.String("operation", "append"),
	)

	start := time.Now()
	err := s.store.Append(ctx, record)
	s.metrics.RecordQuery(ctx, "append_event_record", time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (s *ObservableStore) History(ctx context.Context, who string, period Period) ([]Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "EventStore.History")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("eventstore.who", who),
		attribute.String("operation", "history"),
	)

	start := time.Now()
	records, err := s.store.History(ctx, who, period)
	s.metrics.RecordQuery(ctx, "event_history", time.Since(start).Seconds(), err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, err
	}

	telemetry.AddSpanAttributes(span, attribute.Int("result.count", len(records)))
	telemetry.SetSpanSuccess(span)
	return records, nil
}
