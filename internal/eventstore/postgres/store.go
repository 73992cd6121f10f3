package postgres

import (
	"context"
	"fmt"

	"github.com/dejobratic/orderbus/internal/eventstore"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append upserts on (who, time_what): the last writer wins.
func (s *Store) Append(ctx context.Context, record eventstore.Record) error {
	query := `
		INSERT INTO event_records (who, time_what, event_id, event_source, event_detail)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (who, time_what) DO UPDATE
		SET event_id = EXCLUDED.event_id,
			event_source = EXCLUDED.event_source,
			event_detail = EXCLUDED.event_detail,
			stored_at = now()
	`

	_, err := s.pool.Exec(ctx, query,
		record.Who,
		record.TimeWhat,
		record.EventID,
		record.EventSource,
		record.EventDetail,
	)
	if err != nil {
		return fmt.Errorf("%w: insert event record: %w", eventstore.ErrUnavailable, err)
	}

	return nil
}

func (s *Store) History(ctx context.Context, who string, period eventstore.Period) ([]eventstore.Record, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	lower, upper := period.Bounds()

	query := `
		SELECT who, time_what, event_id::text, event_source, event_detail::text
		FROM event_records
		WHERE who = $1
			AND ($2::text = '' OR time_what >= $2::text)
			AND ($3::text = '' OR time_what < $3::text)
		ORDER BY time_what ASC
	`

	rows, err := s.pool.Query(ctx, query, who, lower, upper)
	if err != nil {
		return nil, fmt.Errorf("query event records: %w", err)
	}
	defer rows.Close()

	records := []eventstore.Record{}
	for rows.Next() {
		var r eventstore.Record
		if err := rows.Scan(
			&r.Who,
			&r.TimeWhat,
			&r.EventID,
			&r.EventSource,
			&r.EventDetail,
		); err != nil {
			return nil, fmt.Errorf("scan event record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event records: %w", err)
	}

	return records, nil
}
