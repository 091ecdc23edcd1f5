package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"timetable/internal/adapters/storage"
	domain "timetable/internal/domain/outbox"
)

const timeLayout = time.RFC3339Nano

const selectColumns = `SELECT id, action_type, payload, status, attempts, max_attempts, last_attempted_at, created_at, external_id, error_message FROM outbox`

// ErrNotFound is returned for an unknown outbox id.
var ErrNotFound = errors.New("outbox entry not found")

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new outbox store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Entry, error) {
	e, err := scan(s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, err
}

func (s *SQLStore) Save(ctx context.Context, e domain.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	last := ""
	if !e.LastAttemptedAt.IsZero() {
		last = e.LastAttemptedAt.UTC().Format(timeLayout)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outbox (id, action_type, payload, status, attempts, max_attempts, last_attempted_at, created_at, external_id, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   payload=excluded.payload, status=excluded.status, attempts=excluded.attempts, max_attempts=excluded.max_attempts,
		   last_attempted_at=excluded.last_attempted_at, external_id=excluded.external_id,
		   error_message=excluded.error_message`,
		e.ID, e.ActionType, e.Payload, e.Status, e.Attempts, e.MaxAttempts,
		last, e.CreatedAt.UTC().Format(timeLayout), e.ExternalID, e.ErrorMessage)
	return err
}

func (s *SQLStore) ListPending(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx, selectColumns+" WHERE status IN (?, ?) ORDER BY created_at ASC LIMIT ?",
		domain.StatusPending, domain.StatusRetrying, limit)
}

func (s *SQLStore) ListFailed(ctx context.Context, limit int) ([]domain.Entry, error) {
	return s.list(ctx, selectColumns+" WHERE status = ? ORDER BY last_attempted_at DESC LIMIT ?",
		domain.StatusFailed, limit)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	e, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !e.IsTerminal() {
		return fmt.Errorf("delete %s: entry still %s: %w", id, e.Status, domain.ErrTerminal)
	}
	_, err = s.db.ExecContext(ctx, "DELETE FROM outbox WHERE id = ?", id)
	return err
}

func (s *SQLStore) list(ctx context.Context, query string, args ...any) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		e, err := scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (domain.Entry, error) {
	var e domain.Entry
	var created, last string
	if err := row.Scan(&e.ID, &e.ActionType, &e.Payload, &e.Status, &e.Attempts, &e.MaxAttempts,
		&last, &created, &e.ExternalID, &e.ErrorMessage); err != nil {
		return domain.Entry{}, err
	}
	e.CreatedAt, _ = time.Parse(timeLayout, created)
	if last != "" {
		e.LastAttemptedAt, _ = time.Parse(timeLayout, last)
	}
	return e, nil
}
