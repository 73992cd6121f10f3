package ports

import (
	"context"

	"github.com/dejobratic/orderbus/internal/events"
)

// Publisher hands events to the bus. It returns once the event is accepted,
// not once subscribers have run.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}
