// Package events defines the message exchanged on the bus.
package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidEvent is wrapped by every structural validation failure.
	ErrInvalidEvent      = errors.New("invalid event")
	ErrMissingSource     = errors.New("source is required")
	ErrMissingDetailType = errors.New("detail-type is required")
)

// Detail is the event payload, keyed by field name.
type Detail map[string]any

// String returns the value of key when it holds a non-empty string.
func (d Detail) String(key string) (string, bool) {
	v, ok := d[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// Clone returns a deep copy of nested maps and slices.
func (d Detail) Clone() Detail {
	if d == nil {
		return nil
	}
	out := make(Detail, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Detail:
		return t.Clone()
	case map[string]any:
		return map[string]any(Detail(t).Clone())
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// Event is an immutable fact published on the bus. Once published, neither
// routing nor storage mutates it; subscribers receive their own copy.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Source     string    `json:"source"`
	DetailType string    `json:"detail-type"`
	Detail     Detail    `json:"detail"`
	OccurredAt time.Time `json:"time"`
}

// New builds an event stamped with the current UTC time. The detail is copied.
func New(source, detailType string, detail Detail) Event {
	return Event{
		ID:         uuid.New(),
		Source:     source,
		DetailType: detailType,
		Detail:     detail.Clone(),
		OccurredAt: time.Now().UTC(),
	}
}

// Validate reports structural problems that prevent dispatch.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Source) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrMissingSource)
	}
	if strings.TrimSpace(e.DetailType) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, ErrMissingDetailType)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with e.
func (e Event) Clone() Event {
	e.Detail = e.Detail.Clone()
	return e
}
