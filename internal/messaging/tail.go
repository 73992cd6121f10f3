package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/dejobratic/orderbus/internal/events"
	"github.com/nats-io/nats.go"
)

// Tail follows forwarded events on a subject, wildcards included.
type Tail struct {
	sub     *nats.Subscription
	ch      chan *nats.Msg
	onSkip  func(subject string, err error)
	skipped atomic.Int64
}

type TailOption func(*Tail)

// WithSkipHandler is called for every message that is not a valid event.
func WithSkipHandler(fn func(subject string, err error)) TailOption {
	return func(t *Tail) {
		t.onSkip = fn
	}
}

// NewTail subscribes and flushes, so events published after it returns are
// delivered.
func NewTail(conn *nats.Conn, subject string, opts ...TailOption) (*Tail, error) {
	ch := make(chan *nats.Msg, 64)
	sub, err := conn.ChanSubscribe(subject, ch)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	if err := conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("flushing subscription: %w", err)
	}

	t := &Tail{sub: sub, ch: ch}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Run calls fn for every event until ctx is done or fn fails. Messages that
// are not valid events are counted and handed to the skip handler.
func (t *Tail) Run(ctx context.Context, fn func(subject string, event events.Event) error) error {
	defer t.Close() //nolint:errcheck

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-t.ch:
			event, err := decodeEvent(msg.Data)
			if err != nil {
				t.skipped.Add(1)
				if t.onSkip != nil {
					t.onSkip(msg.Subject, err)
				}
				continue
			}
			if err := fn(msg.Subject, event); err != nil {
				return err
			}
		}
	}
}

// Skipped returns how many messages were dropped as undecodable.
func (t *Tail) Skipped() int64 {
	return t.skipped.Load()
}

func (t *Tail) Close() error {
	if !t.sub.IsValid() {
		return nil
	}
	return t.sub.Unsubscribe()
}

func decodeEvent(data []byte) (events.Event, error) {
	var event events.Event
	if err := json.Unmarshal(data, &event); err != nil {
		return events.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if err := event.Validate(); err != nil {
		return events.Event{}, err
	}
	return event, nil
}
