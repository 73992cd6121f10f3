package queries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/orderbus/internal/eventstore"
)

var ErrInvalidQuery = errors.New("invalid history query")

// CustomerHistoryQuery asks for the events recorded for one customer,
// optionally bounded by receipt time. Zero bounds are open.
type CustomerHistoryQuery struct {
	CustomerID string
	From       time.Time
	To         time.Time
}

// Validate ensures the query has valid parameters.
func (q CustomerHistoryQuery) Validate() error {
	if strings.TrimSpace(q.CustomerID) == "" {
		return fmt.Errorf("%w: customerId is required", ErrInvalidQuery)
	}
	if err := q.period().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	return nil
}

func (q CustomerHistoryQuery) period() eventstore.Period {
	return eventstore.Period{From: q.From, To: q.To}
}

// HistoryEntry is one stored event as returned to API clients.
type HistoryEntry struct {
	EventID    string          `json:"eventId"`
	Source     string          `json:"source"`
	DetailType string          `json:"detailType"`
	ReceivedAt time.Time       `json:"receivedAt"`
	Detail     json.RawMessage `json:"detail"`
}

type CustomerHistoryQueryHandler struct {
	reader eventstore.Reader
}

func NewCustomerHistoryQueryHandler(reader eventstore.Reader) *CustomerHistoryQueryHandler {
	return &CustomerHistoryQueryHandler{reader: reader}
}

// Handle returns the customer's events oldest first.
func (h *CustomerHistoryQueryHandler) Handle(ctx context.Context, query CustomerHistoryQuery) ([]HistoryEntry, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	who := eventstore.Who(eventstore.CustomerSubject, query.CustomerID)
	records, err := h.reader.History(ctx, who, query.period())
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", who, err)
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		receivedAt, err := r.ReceivedAt()
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			EventID:    r.EventID,
			Source:     r.EventSource,
			DetailType: r.DetailType(),
			ReceivedAt: receivedAt,
			Detail:     json.RawMessage(r.EventDetail),
		})
	}

	return entries, nil
}
