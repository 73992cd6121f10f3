// Package eventstore persists every bus event as an append-only record keyed
// by subject and receipt time.
package eventstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dejobratic/orderbus/internal/events"
)

// TimeLayout is fixed width so that string order equals time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	ErrNoSubject     = errors.New("event detail carries no known subject")
	ErrEncodeDetail  = errors.New("encode event detail")
	ErrMalformedKey  = errors.New("malformed timeWhat key")
	ErrInvalidPeriod = errors.New("history range ends before it starts")
)

// SubjectKind maps a detail field to the prefix of the partition key.
type SubjectKind struct {
	Field  string
	Prefix string
}

var (
	CustomerSubject = SubjectKind{Field: "customerId", Prefix: "C#"}
	ProductSubject  = SubjectKind{Field: "productId", Prefix: "P#"}
)

// DefaultSubjects is consulted in order; the first field present wins.
var DefaultSubjects = []SubjectKind{CustomerSubject, ProductSubject}

// Record is the persisted form of an event.
type Record struct {
	Who         string `json:"who"`
	TimeWhat    string `json:"timeWhat"`
	EventID     string `json:"eventId"`
	EventSource string `json:"eventSource"`
	EventDetail string `json:"eventDetail"`
}

func Who(kind SubjectKind, id string) string {
	return kind.Prefix + id
}

func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

func TimeWhat(at time.Time, detailType string) string {
	return FormatTime(at) + "#" + detailType
}

// NewRecord derives the record for event as received at receivedAt.
func NewRecord(event events.Event, subjects []SubjectKind, receivedAt time.Time) (Record, error) {
	who, err := subjectKey(event.Detail, subjects)
	if err != nil {
		return Record{}, err
	}

	detail, err := json.Marshal(event.Detail)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrEncodeDetail, err)
	}

	return Record{
		Who:         who,
		TimeWhat:    TimeWhat(receivedAt, event.DetailType),
		EventID:     event.ID.String(),
		EventSource: event.Source,
		EventDetail: string(detail),
	}, nil
}

func subjectKey(detail events.Detail, subjects []SubjectKind) (string, error) {
	for _, kind := range subjects {
		if id, ok := detail.String(kind.Field); ok {
			return Who(kind, id), nil
		}
	}
	return "", ErrNoSubject
}

// ReceivedAt parses the time half of the sort key.
func (r Record) ReceivedAt() (time.Time, error) {
	ts, _, ok := strings.Cut(r.TimeWhat, "#")
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedKey, r.TimeWhat)
	}
	t, err := time.Parse(TimeLayout, ts)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrMalformedKey, err)
	}
	return t, nil
}

// DetailType returns the detail-type half of the sort key.
func (r Record) DetailType() string {
	_, dt, _ := strings.Cut(r.TimeWhat, "#")
	return dt
}

// Period selects records by receipt time, both ends inclusive. Zero values
// leave that end open.
type Period struct {
	From time.Time
	To   time.Time
}

func (p Period) Validate() error {
	if !p.From.IsZero() && !p.To.IsZero() && p.To.Before(p.From) {
		return ErrInvalidPeriod
	}
	return nil
}

// Bounds returns the inclusive lower and exclusive upper timeWhat keys.
// An empty string means unbounded.
func (p Period) Bounds() (lower, upper string) {
	if !p.From.IsZero() {
		lower = FormatTime(p.From)
	}
	if !p.To.IsZero() {
		// '$' sorts right after '#', so every detail type at To is included.
		upper = FormatTime(p.To) + "$"
	}
	return lower, upper
}

// Contains reports whether key falls inside the period.
func (p Period) Contains(timeWhat string) bool {
	lower, upper := p.Bounds()
	if lower != "" && timeWhat < lower {
		return false
	}
	if upper != "" && timeWhat >= upper {
		return false
	}
	return true
}
