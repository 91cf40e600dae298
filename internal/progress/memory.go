package progress

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore holds records in memory. Records are stored encoded so
// callers never share slices with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[Key][]byte
	now     func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[Key][]byte),
		now:     time.Now,
	}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, key Key, rec Record) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now()
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return &PersistenceError{Op: "save", Key: key, Err: err}
	}

	s.mu.Lock()
	s.records[key] = data
	s.mu.Unlock()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, key Key, maxAge time.Duration) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	s.mu.RLock()
	data, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &PersistenceError{Op: "load", Key: key, Err: err}
	}
	if expired(rec.SavedAt, s.now(), maxAge) {
		return nil, nil
	}
	return &rec, nil
}

// Reset implements Store.
func (s *MemoryStore) Reset(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return &PersistenceError{Op: "reset", Key: key, Err: err}
	}
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, &PersistenceError{Op: "prune", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, data := range s.records {
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return n, &PersistenceError{Op: "prune", Key: key, Err: err}
		}
		if rec.SavedAt.Before(before) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
