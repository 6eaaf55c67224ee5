package repository

import (
	"context"
	"sync"
	"time"

	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/pkg/metrics"
)

// MemoryStore keeps records in a slice guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	records []model.DecisionRecord
	ids     map[string]struct{}
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ids: make(map[string]struct{})}
}

func (s *MemoryStore) Append(_ context.Context, rec model.DecisionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.ids[rec.ID]; ok {
		return ErrDuplicate
	}
	s.ids[rec.ID] = struct{}{}
	s.records = append(s.records, rec)
	metrics.UpdateStoreRecords(len(s.records))
	metrics.RecordStoreLatency("append", float64(time.Since(start).Nanoseconds())/1e6)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, f Filter) ([]model.DecisionRecord, error) {
	start := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]model.DecisionRecord, 0)
	for _, rec := range s.records {
		if f.Match(rec) {
			out = append(out, rec)
		}
	}
	metrics.RecordStoreLatency("query", float64(time.Since(start).Nanoseconds())/1e6)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
