// Package entrystore owns the authoritative collection of class entries and
// mirrors it to a snapshot store after every mutation.
package entrystore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"timetable/internal/adapters/metrics"
	"timetable/internal/adapters/storage/timetable"
	"timetable/internal/domain/classentry"
)

// DefaultNamespace is used when Deps.Namespace is empty.
const DefaultNamespace = "default"

// Deps holds dependencies for the entry store.
type Deps struct {
	Snapshots  timetable.Store
	Namespace  string
	GenerateID func() string
	Metrics    *metrics.Metrics
}

// Store is the single source of truth for class entries. All methods are safe
// for concurrent use; mutations are serialized and each one is persisted
// before it returns.
type Store struct {
	mu      sync.RWMutex
	entries []classentry.ClassEntry
	deps    Deps
}

// Open loads the namespace snapshot and returns a ready store.
// PRE: deps.Snapshots is non-nil
// POST: Store holds exactly the persisted collection, or an ErrPersistence error
func Open(ctx context.Context, deps Deps) (*Store, error) {
	if deps.Namespace == "" {
		deps.Namespace = DefaultNamespace
	}
	if deps.GenerateID == nil {
		deps.GenerateID = uuid.NewString
	}
	entries, err := deps.Snapshots.Load(ctx, deps.Namespace)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", classentry.ErrPersistence, deps.Namespace, err)
	}
	slog.Info("timetable_loaded", "namespace", deps.Namespace, "entries", len(entries))
	return &Store{entries: entries, deps: deps}, nil
}

// Create assigns a fresh id, defaults the status to scheduled and persists.
// PRE: d carries subject, day, start and end time
// POST: Returns the stored entry; on error the collection is unchanged
func (s *Store) Create(ctx context.Context, d classentry.Draft) (classentry.ClassEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.deps.GenerateID()
	if s.indexOf(id) >= 0 {
		return s.fail("create", fmt.Errorf("%w: generated id %q already in use", classentry.ErrPersistence, id))
	}
	e, err := classentry.NewEntry(id, d)
	if err != nil {
		return s.fail("create", err)
	}

	prev := s.entries
	next := make([]classentry.ClassEntry, len(prev), len(prev)+1)
	copy(next, prev)
	next = append(next, e)
	if err := s.commit(ctx, next); err != nil {
		return s.fail("create", err)
	}

	s.deps.Metrics.CountMutation("create", nil)
	slog.Info("entry_created", "entry_id", e.ID, "day", e.Day, "class_code", e.ClassCode)
	return e, nil
}

// Update merges p into the entry with the given id and persists.
// PRE: none
// POST: Returns the merged entry, ErrNotFound, ErrValidation or ErrPersistence
func (s *Store) Update(ctx context.Context, id string, p classentry.Patch) (classentry.ClassEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return s.fail("update", classentry.NotFound(id))
	}
	e, err := p.Apply(s.entries[i])
	if err != nil {
		return s.fail("update", err)
	}

	next := make([]classentry.ClassEntry, len(s.entries))
	copy(next, s.entries)
	next[i] = e
	if err := s.commit(ctx, next); err != nil {
		return s.fail("update", err)
	}

	s.deps.Metrics.CountMutation("update", nil)
	slog.Info("entry_updated", "entry_id", e.ID, "status", e.Status)
	return e, nil
}

// Delete removes the entry if present. A missing id is not an error.
// POST: No entry with id remains; storage failures return ErrPersistence
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		slog.Debug("entry_delete_missing", "entry_id", id)
		return nil
	}
	next := make([]classentry.ClassEntry, 0, len(s.entries)-1)
	next = append(next, s.entries[:i]...)
	next = append(next, s.entries[i+1:]...)
	if err := s.commit(ctx, next); err != nil {
		_, err = s.fail("delete", err)
		return err
	}

	s.deps.Metrics.CountMutation("delete", nil)
	slog.Info("entry_deleted", "entry_id", id)
	return nil
}

// List returns a copy of the current collection. Order is not a display order.
func (s *Store) List() []classentry.ClassEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]classentry.ClassEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with the given id.
// POST: Returns ErrNotFound when absent
func (s *Store) Get(id string) (classentry.ClassEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.entries[i], nil
	}
	return classentry.ClassEntry{}, classentry.NotFound(id)
}

// commit persists next and only then swaps it in, so a failed write leaves
// the in-memory collection as it was.
func (s *Store) commit(ctx context.Context, next []classentry.ClassEntry) error {
	if err := s.deps.Snapshots.Replace(ctx, s.deps.Namespace, next); err != nil {
		return fmt.Errorf("%w: replace %s: %w", classentry.ErrPersistence, s.deps.Namespace, err)
	}
	s.entries = next
	return nil
}

func (s *Store) fail(op string, err error) (classentry.ClassEntry, error) {
	s.deps.Metrics.CountMutation(op, err)
	slog.Warn("entry_mutation_failed", "op", op, "error", err)
	return classentry.ClassEntry{}, err
}

func (s *Store) indexOf(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}
