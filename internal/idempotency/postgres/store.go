package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dejobratic/orderbus/internal/orders/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultTTL = 24 * time.Hour

type Store struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

// NewStore keeps responses for ttl, or a day when ttl is not positive.
func NewStore(pool *pgxpool.Pool, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{pool: pool, ttl: ttl}
}

func (s *Store) Get(ctx context.Context, key string) (*ports.StoredResponse, error) {
	query := `
		SELECT status_code, body, order_id, created_at
		FROM idempotency_keys
		WHERE key = $1 AND expires_at > now()
	`

	var resp ports.StoredResponse
	err := s.pool.QueryRow(ctx, query, key).Scan(
		&resp.StatusCode,
		&resp.Body,
		&resp.OrderID,
		&resp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency key: %w", err)
	}

	return &resp, nil
}

// Save keeps the first live response for a key. An expired row is
// overwritten in place.
func (s *Store) Save(ctx context.Context, key string, response ports.StoredResponse) error {
	query := `
		INSERT INTO idempotency_keys (key, status_code, body, order_id, expires_at)
		VALUES ($1, $2, $3, $4, now() + make_interval(secs => $5::double precision))
		ON CONFLICT (key) DO UPDATE
		SET status_code = EXCLUDED.status_code,
			body = EXCLUDED.body,
			order_id = EXCLUDED.order_id,
			created_at = now(),
			expires_at = EXCLUDED.expires_at
		WHERE idempotency_keys.expires_at <= now()
	`

	_, err := s.pool.Exec(ctx, query, key, response.StatusCode, response.Body, response.OrderID, s.ttl.Seconds())
	if err != nil {
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	return nil
}

// DeleteExpired removes rows past their expiry and reports how many went.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM idempotency_keys WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency keys: %w", err)
	}
	return tag.RowsAffected(), nil
}
