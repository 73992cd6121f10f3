package commands

import (
	"sync"
	"time"
)

// OrderIDLayout is RFC 3339 in UTC with a fixed nine digit fraction.
const OrderIDLayout = "2006-01-02T15:04:05.000000000Z"

// OrderIDs issues order identifiers from the wall clock. Identifiers are
// strictly increasing within one process: when the clock does not advance the
// previous value is bumped by a nanosecond. Separate processes may still
// collide.
type OrderIDs struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewOrderIDs(now func() time.Time) *OrderIDs {
	if now == nil {
		now = time.Now
	}
	return &OrderIDs{now: now}
}

func (g *OrderIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	t := g.now().UTC()
	if !t.After(g.last) {
		t = g.last.Add(time.Nanosecond)
	}
	g.last = t

	return t.Format(OrderIDLayout)
}
