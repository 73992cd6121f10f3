package retailers_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/dejobratic/orderbus/internal/retailers"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type sent struct {
	channelID string
	message   string
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (c *fakeChannel) Send(_ context.Context, channelID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sent{channelID, message})
	return c.err
}

var fixedNow = func() time.Time { return time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC) }

func orderEvent(detailType string) events.Event {
	return events.New("Order", detailType, events.Detail{
		"customerId": "cust-1",
		"orderId":    "2024-03-01T18:29:59.000000001Z",
		"storeId":    "walmart",
	})
}

func newAdapter(t *testing.T, retailer retailers.Retailer, channel retailers.Channel, opts ...retailers.Option) *retailers.Adapter {
	t.Helper()
	adapter, err := retailers.NewAdapter(retailer, channel, opts...)
	if err != nil {
		t.Fatalf("NewAdapter() failed: %v", err)
	}
	return adapter
}

func expectSent(t *testing.T, channel *fakeChannel, channelID, message string) {
	t.Helper()
	if len(channel.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(channel.sent))
	}
	if channel.sent[0].channelID != channelID {
		t.Errorf("expected channel %q, got %q", channelID, channel.sent[0].channelID)
	}
	if channel.sent[0].message != message {
		t.Errorf("expected message %q, got %q", message, channel.sent[0].message)
	}
}

func TestAdapterSendsRenderedMessage(t *testing.T) {
	channel := &fakeChannel{}
	walmart, _ := retailers.DefaultCatalog().Lookup("walmart")

	adapter := newAdapter(t, walmart, channel,
		retailers.WithClock(fixedNow),
		retailers.WithDefaultChannel("orders.notifications"),
	)

	if err := adapter.Handle(context.Background(), orderEvent("WalmartOrder")); err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	expectSent(t, channel, "orders.notifications",
		"Mensaje enviado a las 2024-03-01T18:30:00Z del servicio de Walmart (pedido 2024-03-01T18:29:59.000000001Z)")
}

func TestAdapterCustomTemplateAndChannel(t *testing.T) {
	channel := &fakeChannel{}
	retailer := retailers.Retailer{
		StoreID:    "soriana",
		DetailType: "SorianaOrder",
		Template:   "{{.Retailer}}: order {{.OrderID}} for {{.CustomerID}} ({{.DetailType}})",
		Channel:    "soriana.sms",
	}

	adapter := newAdapter(t, retailer, channel, retailers.WithDefaultChannel("ignored"))
	if err := adapter.Handle(context.Background(), orderEvent("SorianaOrder")); err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	expectSent(t, channel, "soriana.sms", "soriana: order 2024-03-01T18:29:59.000000001Z for cust-1 (SorianaOrder)")
}

func TestAdapterReturnsSendFailure(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := retailers.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics() failed: %v", err)
	}

	channel := &fakeChannel{err: errors.New("connection refused")}
	lacomer, _ := retailers.DefaultCatalog().Lookup("lacomer")
	adapter := newAdapter(t, lacomer, channel, retailers.WithMetrics(metrics))

	err = adapter.Handle(context.Background(), orderEvent("LacomerOrder"))
	if !errors.Is(err, retailers.ErrSend) {
		t.Fatalf("expected ErrSend, got %v", err)
	}
	if len(channel.sent) != 1 {
		t.Errorf("expected a single send attempt, got %d", len(channel.sent))
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}

	var found bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "retailer_notifications_total" {
				continue
			}
			found = true
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("expected one int64 data point, got %#v", m.Data)
			}
			status, _ := sum.DataPoints[0].Attributes.Value("status")
			if status.AsString() != "error" {
				t.Errorf("expected status error, got %q", status.AsString())
			}
		}
	}
	if !found {
		t.Error("retailer_notifications_total metric not found")
	}
}

func TestAdapterRendersEventWithoutOrderID(t *testing.T) {
	walmart, _ := retailers.DefaultCatalog().Lookup("walmart")
	adapter := newAdapter(t, walmart, &fakeChannel{}, retailers.WithClock(fixedNow))

	message, err := adapter.Render(events.New("Order", "WalmartOrder", nil))
	if err != nil {
		t.Fatalf("Render() failed: %v", err)
	}
	if !strings.Contains(message, "Walmart") {
		t.Errorf("expected retailer name in %q", message)
	}
}

func TestNewAdapterRejectsBadTemplate(t *testing.T) {
	_, err := retailers.NewAdapter(retailers.Retailer{StoreID: "x", DetailType: "X", Template: "{{"}, &fakeChannel{})
	if err == nil {
		t.Error("expected error for unparsable template")
	}
}
