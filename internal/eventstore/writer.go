package eventstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Writer is the catch-all bus subscriber that appends every event to the
// store. Failures are logged and counted, never returned and never retried.
type Writer struct {
	store    Appender
	subjects []SubjectKind
	now      func() time.Time
	logger   *slog.Logger
	metrics  *Metrics
}

type WriterOption func(*Writer)

func WithSubjects(subjects ...SubjectKind) WriterOption {
	return func(w *Writer) {
		if len(subjects) > 0 {
			w.subjects = subjects
		}
	}
}

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(metrics *Metrics) WriterOption {
	return func(w *Writer) {
		w.metrics = metrics
	}
}

func NewWriter(store Appender, opts ...WriterOption) *Writer {
	w := &Writer{
		store:    store,
		subjects: DefaultSubjects,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle stamps the event with the writer's own receipt time, which may lag
// the true occurrence time under delivery delay.
func (w *Writer) Handle(ctx context.Context, event events.Event) error {
	ctx, span := telemetry.StartEventSpan(ctx, "EventStoreWriter.Handle", event)
	defer span.End()

	record, err := NewRecord(event, w.subjects, w.now())
	if err != nil {
		w.fail(ctx, &StorageError{EventID: event.ID.String(), Err: err}, event, reason(err))
		telemetry.RecordSpanError(span, err)
		return nil
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("eventstore.who", record.Who),
		attribute.String("eventstore.time_what", record.TimeWhat),
	)

	if err := w.store.Append(ctx, record); err != nil {
		w.fail(ctx, &StorageError{
			EventID:  record.EventID,
			Who:      record.Who,
			TimeWhat: record.TimeWhat,
			Err:      err,
		}, event, "append")
		telemetry.RecordSpanError(span, err)
		return nil
	}

	if w.metrics != nil {
		w.metrics.RecordAppend(ctx, event.DetailType)
	}
	w.logger.DebugContext(ctx, "event stored",
		"who", record.Who,
		"time_what", record.TimeWhat,
		"event_id", record.EventID,
	)

	telemetry.SetSpanSuccess(span)
	return nil
}

func (w *Writer) fail(ctx context.Context, err *StorageError, event events.Event, reason string) {
	if w.metrics != nil {
		w.metrics.RecordAppendFailure(ctx, event.DetailType, reason)
	}
	w.logger.ErrorContext(ctx, "failed to store event",
		"error", err,
		"reason", reason,
		"event_id", err.EventID,
		"source", event.Source,
		"detail_type", event.DetailType,
	)
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrNoSubject):
		return "no_subject"
	case errors.Is(err, ErrEncodeDetail):
		return "encode"
	default:
		return "malformed"
	}
}
