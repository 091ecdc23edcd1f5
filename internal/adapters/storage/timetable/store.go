package timetable

import (
	"context"
	"encoding/json"
	"fmt"

	domain "timetable/internal/domain/classentry"
)

// Store persists the whole entry collection as one record per namespace.
type Store interface {
	// Load returns the stored collection in stored order.
	// PRE: namespace is non-empty
	// POST: Returns an empty slice when nothing was stored under namespace
	Load(ctx context.Context, namespace string) ([]domain.ClassEntry, error)

	// Replace overwrites the stored collection atomically.
	// PRE: namespace is non-empty
	// POST: A later Load returns exactly entries
	Replace(ctx context.Context, namespace string, entries []domain.ClassEntry) error
}

func encode(entries []domain.ClassEntry) ([]byte, error) {
	if entries == nil {
		entries = []domain.ClassEntry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return payload, nil
}

func decode(payload []byte) ([]domain.ClassEntry, error) {
	var entries []domain.ClassEntry
	if len(payload) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return entries, nil
}
