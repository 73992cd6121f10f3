package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dejobratic/orderbus/internal/config"
	eventmemory "github.com/dejobratic/orderbus/internal/eventstore/memory"
	idemmemory "github.com/dejobratic/orderbus/internal/idempotency/memory"
	"github.com/dejobratic/orderbus/internal/retailers"
	"github.com/dejobratic/orderbus/internal/telemetry"
)

type sentMessage struct {
	channelID string
	message   string
}

type recordingChannel struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (c *recordingChannel) Send(_ context.Context, channelID, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{channelID: channelID, message: message})
	return nil
}

func (c *recordingChannel) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

type testApp struct {
	handler  http.Handler
	pipeline *pipeline
	store    *eventmemory.Store
	channel  *recordingChannel
	meters   *telemetry.MeterRecorder
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	meters := telemetry.NewMeterRecorder("test")
	m, err := newMetrics(meters.Meter)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	routing := &config.Routing{
		Retailers: retailers.DefaultCatalog(),
		Rules:     config.DefaultRules(retailers.DefaultCatalog(), false),
	}

	store := eventmemory.NewStore()
	channel := &recordingChannel{}

	p, err := newPipeline(pipelineDeps{
		routing: routing,
		store:   store,
		idem:    idemmemory.NewStore(time.Hour),
		channel: channel,
		nats:    config.NATSConfig{NotificationChannel: "orderbus.notifications"},
		metrics: m,
		logger:  logger,
	})
	if err != nil {
		t.Fatalf("failed to build pipeline: %v", err)
	}

	return &testApp{
		handler:  newHTTPHandler(p.service, m.http, logger, nil),
		pipeline: p,
		store:    store,
		channel:  channel,
		meters:   meters,
	}
}

func (a *testApp) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testApp) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.pipeline.router.Drain(ctx); err != nil {
		t.Fatalf("Drain() failed: %v", err)
	}
}

func expectCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestRetailerOrderIsStoredAndNotified(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/order/create/c-42/soriana", nil))
	expectCode(t, rec, http.StatusOK)
	app.drain(t)

	if got := app.store.Len(); got != 2 {
		t.Errorf("expected 2 stored events, got %d", got)
	}

	sent := app.channel.messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(sent))
	}
	if sent[0].channelID != "orderbus.notifications" {
		t.Errorf("expected channel orderbus.notifications, got %q", sent[0].channelID)
	}
	if !strings.Contains(sent[0].message, "Soriana") {
		t.Errorf("expected Soriana notification, got %q", sent[0].message)
	}

	rec = app.do(t, httptest.NewRequest(http.MethodGet, "/v1/customers/c-42/events", nil))
	expectCode(t, rec, http.StatusOK)

	var body struct {
		Events []struct {
			DetailType string `json:"detailType"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}

	var types []string
	for _, e := range body.Events {
		types = append(types, e.DetailType)
	}
	slices.Sort(types)
	if want := []string{"OrderCreated", "SorianaOrder"}; !slices.Equal(types, want) {
		t.Errorf("expected history %v, got %v", want, types)
	}
}

func TestUnknownStoreOnlyRecordsOrderCreated(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, httptest.NewRequest(http.MethodPost, "/v1/orders",
		strings.NewReader(`{"customer_id":"c-7","store_id":"costco"}`)))
	expectCode(t, rec, http.StatusAccepted)
	app.drain(t)

	if got := app.store.Len(); got != 1 {
		t.Errorf("expected 1 stored event, got %d", got)
	}
	if got := app.channel.messages(); len(got) != 0 {
		t.Errorf("expected no notifications, got %v", got)
	}

	unrouted, err := app.meters.CounterTotal(context.Background(), "orders_unrouted_total")
	if err != nil {
		t.Fatalf("CounterTotal() failed: %v", err)
	}
	if unrouted != 1 {
		t.Errorf("expected 1 unrouted order, got %d", unrouted)
	}
}

func TestIdempotentCreateIsReplayed(t *testing.T) {
	app := newTestApp(t)

	post := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders",
			strings.NewReader(`{"customer_id":"c-1","store_id":"walmart"}`))
		req.Header.Set("Idempotency-Key", "key-1")
		return app.do(t, req)
	}

	first := post()
	second := post()
	app.drain(t)

	expectCode(t, first, http.StatusAccepted)
	expectCode(t, second, http.StatusAccepted)
	if first.Body.String() != second.Body.String() {
		t.Errorf("replayed body differs:\n%s\n%s", first.Body.String(), second.Body.String())
	}
	if got := second.Header().Get("Idempotent-Replayed"); got != "true" {
		t.Errorf("expected Idempotent-Replayed true, got %q", got)
	}
	if got := app.store.Len(); got != 2 {
		t.Errorf("expected 2 stored events, got %d", got)
	}
	if got := len(app.channel.messages()); got != 1 {
		t.Errorf("expected 1 notification, got %d", got)
	}
}

func TestMissingCustomerIsRejected(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, httptest.NewRequest(http.MethodPost, "/v1/orders",
		strings.NewReader(`{"store_id":"walmart"}`)))
	app.drain(t)

	expectCode(t, rec, http.StatusBadRequest)
	if got := app.store.Len(); got != 0 {
		t.Errorf("expected nothing stored, got %d", got)
	}
}

func TestHealthz(t *testing.T) {
	app := newTestApp(t)

	rec := app.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	expectCode(t, rec, http.StatusOK)

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["status"] != "ok" || len(body) != 1 {
		t.Errorf(`expected {"status":"ok"}, got %v`, body)
	}
}

func TestCheckReadyWithoutBackends(t *testing.T) {
	if err := checkReady(context.Background(), nil, nil); err != nil {
		t.Errorf("expected ready without backends, got %v", err)
	}
}

type purgerStub struct {
	calls atomic.Int32
	err   error
}

func (p *purgerStub) DeleteExpired(context.Context) (int64, error) {
	p.calls.Add(1)
	return 0, p.err
}

func TestPurgeIdempotencyKeysStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	stub := &purgerStub{err: errors.New("unused")}

	go func() {
		purgeIdempotencyKeys(ctx, stub, slog.New(slog.NewTextHandler(io.Discard, nil)))
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purge loop did not stop")
	}
	if got := stub.calls.Load(); got != 0 {
		t.Errorf("expected no purge before the first tick, got %d", got)
	}
}
