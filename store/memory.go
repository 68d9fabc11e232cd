package store

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process. Used by default and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[roomID]
	if !ok {
		return nil, ErrNotFound
	}

	return &record, nil
}

func (s *MemoryStore) Put(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validate(record); err != nil {
		return err
	}

	r := *record
	r.UpdatedAt = stamp(record)

	s.mu.Lock()
	s.records[r.RoomID] = r
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
