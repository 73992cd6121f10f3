package eventstore_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/eventstore"
	"github.com/dejobratic/orderbus/internal/eventstore/memory"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type failingAppender struct {
	mu    sync.Mutex
	calls int
}

func (f *failingAppender) Append(context.Context, eventstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return eventstore.ErrUnavailable
}

// stepClock returns strictly increasing times one millisecond apart.
func stepClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := next
		next = next.Add(time.Millisecond)
		return t
	}
}

func TestWriterStoresEvent(t *testing.T) {
	store := memory.NewStore()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	writer := eventstore.NewWriter(store, eventstore.WithClock(stepClock(start)))

	event := events.New("Order", "OrderCreated", events.Detail{"customerId": "cust-1", "orderId": "o-1", "storeId": "walmart"})
	if err := writer.Handle(context.Background(), event); err != nil {
		t.Fatalf("Handle() returned error: %v", err)
	}

	records, err := store.History(context.Background(), "C#cust-1", eventstore.Period{})
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TimeWhat != eventstore.TimeWhat(start, "OrderCreated") {
		t.Errorf("expected receipt time key, got %s", records[0].TimeWhat)
	}
}

func TestWriterUsesReceiptTimeNotOccurrenceTime(t *testing.T) {
	store := memory.NewStore()
	receipt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	writer := eventstore.NewWriter(store, eventstore.WithClock(func() time.Time { return receipt }))

	event := events.New("Order", "OrderCreated", events.Detail{"customerId": "cust-1"})
	event.OccurredAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = writer.Handle(context.Background(), event)

	records, _ := store.History(context.Background(), "C#cust-1", eventstore.Period{})
	if len(records) != 1 || !strings.HasPrefix(records[0].TimeWhat, "2030-01-01T") {
		t.Errorf("expected record keyed by receipt time, got %+v", records)
	}
}

func TestWriterRepublishCreatesDistinctRecords(t *testing.T) {
	store := memory.NewStore()
	writer := eventstore.NewWriter(store, eventstore.WithClock(stepClock(time.Now())))

	event := events.New("Order", "OrderCreated", events.Detail{"customerId": "cust-1"})
	_ = writer.Handle(context.Background(), event)
	_ = writer.Handle(context.Background(), event)

	records, _ := store.History(context.Background(), "C#cust-1", eventstore.Period{})
	if len(records) != 2 {
		t.Fatalf("expected 2 records for republished event, got %d", len(records))
	}
	if records[0].TimeWhat == records[1].TimeWhat {
		t.Error("expected distinct timeWhat keys")
	}
}

func TestWriterSwallowsFailures(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := eventstore.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	appender := &failingAppender{}
	writer := eventstore.NewWriter(appender, eventstore.WithLogger(logger), eventstore.WithMetrics(metrics))

	t.Run("append failure", func(t *testing.T) {
		err := writer.Handle(context.Background(), events.New("Order", "OrderCreated", events.Detail{"customerId": "c-1"}))
		if err != nil {
			t.Fatalf("expected failure to be swallowed, got %v", err)
		}
		if appender.calls != 1 {
			t.Errorf("expected exactly one attempt, got %d", appender.calls)
		}
		if !strings.Contains(buf.String(), "failed to store event") {
			t.Errorf("expected failure to be logged, got %s", buf.String())
		}
	})

	t.Run("missing subject is not appended", func(t *testing.T) {
		err := writer.Handle(context.Background(), events.New("Order", "OrderCreated", events.Detail{"orderId": "o-1"}))
		if err != nil {
			t.Fatalf("expected failure to be swallowed, got %v", err)
		}
		if appender.calls != 1 {
			t.Errorf("expected no append attempt, got %d calls", appender.calls)
		}
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Failed to collect metrics: %v", err)
	}

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "eventstore_append_failures_total" {
				continue
			}
			found = true
			sum := m.Data.(metricdata.Sum[int64])
			if len(sum.DataPoints) != 2 {
				t.Errorf("expected failures by reason, got %d data points", len(sum.DataPoints))
			}
		}
	}
	if !found {
		t.Error("eventstore_append_failures_total metric not found")
	}
}

func TestStorageError(t *testing.T) {
	err := &eventstore.StorageError{EventID: "e-1", Who: "C#c", TimeWhat: "t#X", Err: eventstore.ErrUnavailable}

	if !errors.Is(err, eventstore.ErrUnavailable) {
		t.Error("expected StorageError to unwrap")
	}
	if !strings.Contains(err.Error(), "C#c/t#X") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
