package timetable

import (
	"context"
	"sync"

	domain "timetable/internal/domain/classentry"
)

// MemoryStore keeps encoded snapshots in process memory. Values go through
// the same JSON encoding as the durable stores so callers never share slices.
type MemoryStore struct {
	mu       sync.Mutex
	payloads map[string][]byte
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{payloads: make(map[string][]byte)}
}

// Load returns a decoded copy of the namespace snapshot.
func (s *MemoryStore) Load(_ context.Context, namespace string) ([]domain.ClassEntry, error) {
	s.mu.Lock()
	payload := s.payloads[namespace]
	s.mu.Unlock()
	return decode(payload)
}

// Replace stores an encoded copy of entries.
func (s *MemoryStore) Replace(_ context.Context, namespace string, entries []domain.ClassEntry) error {
	payload, err := encode(entries)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.payloads[namespace] = payload
	s.mu.Unlock()
	return nil
}
