package roster

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"timetable/internal/adapters/storage"
	domain "timetable/internal/domain/roster"
	"timetable/internal/domain/viewer"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := storage.MigrateDB(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewSQLStore(db)
}

// TestSQLStore_SaveAndGet tests upsert and lookup.
func TestSQLStore_SaveAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := domain.Member{ID: "s-1", Email: "ana@uni.edu", Name: "Ana", Role: viewer.RoleStudent, ClassCode: "CS101"}
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m.ClassCode = "CS202"
	if err := s.Save(ctx, m); err != nil {
		t.Fatalf("Save update: %v", err)
	}

	got, err := s.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got != m {
		t.Errorf("got %+v, want %+v", got, m)
	}

	if _, err := s.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestSQLStore_SaveInvalid tests that invalid members are rejected.
func TestSQLStore_SaveInvalid(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), domain.Member{ID: "x", Email: "nope", Role: viewer.RoleStudent})
	if !errors.Is(err, domain.ErrInvalidEmail) {
		t.Errorf("expected ErrInvalidEmail, got %v", err)
	}
}

// TestSQLStore_ListStudentsByClassCode tests cohort lookup.
func TestSQLStore_ListStudentsByClassCode(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	members := []domain.Member{
		{ID: "1", Email: "b@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS101"},
		{ID: "2", Email: "a@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS101"},
		{ID: "3", Email: "c@uni.edu", Role: viewer.RoleStudent, ClassCode: "CS999"},
		{ID: "4", Email: "prof@uni.edu", Role: viewer.RoleProfessor, ClassCode: "CS101"},
	}
	for _, m := range members {
		if err := s.Save(ctx, m); err != nil {
			t.Fatalf("Save %s: %v", m.ID, err)
		}
	}

	got, err := s.ListStudentsByClassCode(ctx, "CS101")
	if err != nil {
		t.Fatalf("ListStudentsByClassCode: %v", err)
	}
	if len(got) != 2 || got[0].Email != "a@uni.edu" || got[1].Email != "b@uni.edu" {
		t.Errorf("unexpected cohort: %+v", got)
	}

	none, err := s.ListStudentsByClassCode(ctx, "EMPTY")
	if err != nil {
		t.Fatalf("ListStudentsByClassCode: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no students, got %d", len(none))
	}
}
