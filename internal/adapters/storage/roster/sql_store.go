package roster

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"timetable/internal/adapters/storage"
	domain "timetable/internal/domain/roster"
	"timetable/internal/domain/viewer"
)

// ErrNotFound is returned by GetByID for an unknown member.
var ErrNotFound = errors.New("roster member not found")

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db storage.SQLDB
}

// NewSQLStore creates a new roster store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// GetByID retrieves a Member by its ID.
// PRE: id is non-empty
// POST: Returns the member or ErrNotFound
func (s *SQLStore) GetByID(ctx context.Context, id string) (domain.Member, error) {
	var m domain.Member
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, name, role, class_code FROM roster_member WHERE id = ?", id,
	).Scan(&m.ID, &m.Email, &m.Name, &m.Role, &m.ClassCode)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Member{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m, err
}

// Save validates and upserts a Member.
// PRE: none
// POST: Member is persisted (insert or update) or a validation error is returned
func (s *SQLStore) Save(ctx context.Context, m domain.Member) error {
	if err := m.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roster_member (id, email, name, role, class_code) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET email=excluded.email, name=excluded.name, role=excluded.role, class_code=excluded.class_code`,
		m.ID, m.Email, m.Name, m.Role, m.ClassCode,
	)
	return err
}

// ListStudentsByClassCode returns the students of one cohort ordered by email.
// PRE: classCode is non-empty
// POST: Returns nil when the cohort has no students
func (s *SQLStore) ListStudentsByClassCode(ctx context.Context, classCode string) ([]domain.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, email, name, role, class_code FROM roster_member WHERE class_code = ? AND role = ? ORDER BY email",
		classCode, viewer.RoleStudent,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.Email, &m.Name, &m.Role, &m.ClassCode); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}
