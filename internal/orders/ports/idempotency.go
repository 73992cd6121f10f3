package ports

import (
	"context"
	"time"
)

// StoredResponse contains the response data to replay for a reused key.
type StoredResponse struct {
	StatusCode int
	Body       []byte
	OrderID    string
	CreatedAt  time.Time
}

// IdempotencyStore lets clients retry order creation safely. Get returns nil
// for unknown or expired keys. Save keeps the first live response for a key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, response StoredResponse) error
}
