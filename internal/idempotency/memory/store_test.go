package memory_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dejobratic/orderbus/internal/idempotency/memory"
	"github.com/dejobratic/orderbus/internal/orders/ports"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func save(t *testing.T, store *memory.Store, key string, response ports.StoredResponse) {
	t.Helper()
	if err := store.Save(context.Background(), key, response); err != nil {
		t.Fatalf("Save(%q) failed: %v", key, err)
	}
}

func get(t *testing.T, store *memory.Store, key string) *ports.StoredResponse {
	t.Helper()
	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return got
}

func TestStoreSaveAndGet(t *testing.T) {
	store := memory.NewStore(time.Hour)

	response := ports.StoredResponse{StatusCode: 202, Body: []byte(`{"order":{}}`), OrderID: "o-1"}
	save(t, store, "key-1", response)

	got := get(t, store, "key-1")
	if got == nil {
		t.Fatal("expected stored response")
	}
	if got.StatusCode != 202 {
		t.Errorf("expected status 202, got %d", got.StatusCode)
	}
	if !bytes.Equal(got.Body, response.Body) {
		t.Errorf("expected body %s, got %s", response.Body, got.Body)
	}
	if got.OrderID != "o-1" {
		t.Errorf("expected order o-1, got %q", got.OrderID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}

	if missing := get(t, store, "unknown"); missing != nil {
		t.Errorf("expected nil for unknown key, got %+v", missing)
	}
}

func TestStoreKeepsFirstResponse(t *testing.T) {
	store := memory.NewStore(time.Hour)

	save(t, store, "key", ports.StoredResponse{StatusCode: 202, OrderID: "first"})
	save(t, store, "key", ports.StoredResponse{StatusCode: 202, OrderID: "second"})

	if got := get(t, store, "key"); got == nil || got.OrderID != "first" {
		t.Errorf("expected first response to win, got %+v", got)
	}
}

func TestStoreExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := memory.NewStore(time.Minute, memory.WithClock(clock.Now))

	save(t, store, "key", ports.StoredResponse{OrderID: "first"})

	clock.Advance(59 * time.Second)
	if got := get(t, store, "key"); got == nil {
		t.Fatal("expected response before ttl elapses")
	}

	clock.Advance(time.Second)
	if got := get(t, store, "key"); got != nil {
		t.Fatalf("expected expired response to be gone, got %+v", got)
	}

	save(t, store, "key", ports.StoredResponse{OrderID: "second"})
	if got := get(t, store, "key"); got == nil || got.OrderID != "second" {
		t.Errorf("expected key to be reusable after expiry, got %+v", got)
	}
}

func TestStoreSweepsExpiredEntries(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := memory.NewStore(time.Minute, memory.WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		save(t, store, fmt.Sprintf("old-%d", i), ports.StoredResponse{})
	}
	clock.Advance(time.Hour)
	for i := 0; i < 64; i++ {
		save(t, store, fmt.Sprintf("new-%d", i), ports.StoredResponse{})
	}

	if got := store.Len(); got >= 74 {
		t.Errorf("expected expired entries to be swept, store holds %d", got)
	}
}

func TestStoreWithoutTTLNeverExpires(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	store := memory.NewStore(0, memory.WithClock(clock.Now))

	save(t, store, "key", ports.StoredResponse{OrderID: "o"})
	clock.Advance(24 * 365 * time.Hour)

	if got := get(t, store, "key"); got == nil {
		t.Error("expected response to survive without ttl")
	}
}
