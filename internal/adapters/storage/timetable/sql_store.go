package timetable

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"timetable/internal/adapters/storage"
	domain "timetable/internal/domain/classentry"
)

// SQLStore keeps each namespace as one row of timetable_snapshot. The
// placeholder dialect is handled by the storage.SQLDB it is given.
type SQLStore struct {
	db  storage.SQLDB
	now func() time.Time
}

// NewSQLStore creates a snapshot store on db.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

// Load reads the namespace row.
// PRE: namespace is non-empty
// POST: Returns the decoded collection, empty when the row is absent
func (s *SQLStore) Load(ctx context.Context, namespace string) ([]domain.ClassEntry, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM timetable_snapshot WHERE namespace = ?", namespace,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.ClassEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decode([]byte(payload))
}

// Replace upserts the namespace row in a single statement.
// PRE: namespace is non-empty
// POST: The row holds exactly entries
func (s *SQLStore) Replace(ctx context.Context, namespace string, entries []domain.ClassEntry) error {
	payload, err := encode(entries)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO timetable_snapshot (namespace, payload, entry_count, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET payload=excluded.payload, entry_count=excluded.entry_count, updated_at=excluded.updated_at`,
		namespace, string(payload), len(entries), s.now().UTC().Format(time.RFC3339Nano),
	)
	return err
}
