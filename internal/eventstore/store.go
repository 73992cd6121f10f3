package eventstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable marks transient backend failures.
var ErrUnavailable = errors.New("event store unavailable")

// Appender writes records. Appending an existing (Who, TimeWhat) key
// replaces the stored record.
type Appender interface {
	Append(ctx context.Context, record Record) error
}

// Reader retrieves a subject's records in TimeWhat order.
type Reader interface {
	History(ctx context.Context, who string, period Period) ([]Record, error)
}

type Store interface {
	Appender
	Reader
}

// StorageError describes a record the writer failed to persist.
type StorageError struct {
	EventID  string
	Who      string
	TimeWhat string
	Err      error
}

func (e *StorageError) Error() string {
	if e.Who == "" {
		return fmt.Sprintf("store event %s: %v", e.EventID, e.Err)
	}
	return fmt.Sprintf("store event %s at %s/%s: %v", e.EventID, e.Who, e.TimeWhat, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
