package roster

import (
	"context"

	domain "timetable/internal/domain/roster"
)

// Store persists roster members.
type Store interface {
	GetByID(ctx context.Context, id string) (domain.Member, error)
	Save(ctx context.Context, m domain.Member) error
	ListStudentsByClassCode(ctx context.Context, classCode string) ([]domain.Member, error)
}
