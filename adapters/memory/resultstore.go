// Package memory provides an in-memory execution ledger for processes that run
// without SQLite, and for tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/artpar/docforge/domain/execution"
	"github.com/artpar/docforge/domain/failure"
	"github.com/artpar/docforge/ports"
)

// DefaultCapacity is the number of records kept when none is given.
const DefaultCapacity = 1000

// ResultStore keeps the most recent executions. When full, the oldest record
// is evicted.
type ResultStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string // insertion order, oldest first
	records  map[string]execution.Record
}

// NewResultStore creates a ledger holding at most capacity records.
func NewResultStore(capacity int) *ResultStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ResultStore{
		capacity: capacity,
		records:  make(map[string]execution.Record),
	}
}

// Save stores rec, replacing any record with the same ID.
func (s *ResultStore) Save(ctx context.Context, rec execution.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	rec.Warnings = append([]string(nil), rec.Warnings...)
	s.records[rec.ID] = rec

	for len(s.order) > s.capacity {
		delete(s.records, s.order[0])
		s.order = s.order[1:]
	}
	return nil
}

// Get returns the record with id.
func (s *ResultStore) Get(ctx context.Context, id string) (execution.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return execution.Record{}, failure.NotFound("execution", id)
	}
	return rec, nil
}

// List returns matching records, newest first.
func (s *ResultStore) List(ctx context.Context, filter execution.Filter) ([]execution.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]execution.Record, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Bundle != "" && rec.Bundle != filter.Bundle {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Len returns the number of stored records.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

var _ ports.ResultStore = (*ResultStore)(nil)
