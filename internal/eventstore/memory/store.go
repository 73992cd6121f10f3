package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dejobratic/orderbus/internal/eventstore"
)

// Store keeps records per subject sorted by TimeWhat. Useful for local
// development and tests.
type Store struct {
	mu       sync.RWMutex
	subjects map[string][]eventstore.Record
}

func NewStore() *Store {
	return &Store{subjects: make(map[string][]eventstore.Record)}
}

// Append inserts record in key order; an existing key is overwritten.
func (s *Store) Append(_ context.Context, record eventstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.subjects[record.Who]
	i := sort.Search(len(records), func(i int) bool {
		return records[i].TimeWhat >= record.TimeWhat
	})

	if i < len(records) && records[i].TimeWhat == record.TimeWhat {
		records[i] = record
		return nil
	}

	records = append(records, eventstore.Record{})
	copy(records[i+1:], records[i:])
	records[i] = record
	s.subjects[record.Who] = records
	return nil
}

func (s *Store) History(_ context.Context, who string, period eventstore.Period) ([]eventstore.Record, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []eventstore.Record{}
	for _, r := range s.subjects[who] {
		if period.Contains(r.TimeWhat) {
			result = append(result, r)
		}
	}
	return result, nil
}

// Len returns the number of stored records across all subjects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, records := range s.subjects {
		n += len(records)
	}
	return n
}
