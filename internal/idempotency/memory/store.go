package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dejobratic/orderbus/internal/orders/ports"
)

const sweepEvery = 64

type entry struct {
	response  ports.StoredResponse
	expiresAt time.Time
}

// Store retains idempotency responses in process memory until they expire.
// A non-positive ttl keeps entries forever.
type Store struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	items  map[string]entry
	writes int
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func NewStore(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, key string) (*ports.StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.items[key]
	if !ok {
		return nil, nil
	}
	if s.expired(e) {
		delete(s.items, key)
		return nil, nil
	}
	resp := e.response
	resp.Body = append([]byte(nil), e.response.Body...)
	return &resp, nil
}

// Save keeps the first live response for a key; an expired one is replaced.
func (s *Store) Save(_ context.Context, key string, response ports.StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writes++
	if s.writes%sweepEvery == 0 {
		s.sweep()
	}

	if e, ok := s.items[key]; ok && !s.expired(e) {
		return nil
	}

	now := s.now()
	if response.CreatedAt.IsZero() {
		response.CreatedAt = now
	}
	response.Body = append([]byte(nil), response.Body...)

	e := entry{response: response}
	if s.ttl > 0 {
		e.expiresAt = now.Add(s.ttl)
	}
	s.items[key] = e
	return nil
}

// Len reports the number of retained entries, expired ones included.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) expired(e entry) bool {
	return !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt)
}

func (s *Store) sweep() {
	for key, e := range s.items {
		if s.expired(e) {
			delete(s.items, key)
		}
	}
}
