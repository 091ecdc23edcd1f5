package outbox

import (
	"context"

	domain "timetable/internal/domain/outbox"
)

// Store persists deferred deliveries.
type Store interface {
	// GetByID retrieves an entry by its ID.
	// PRE: id is non-empty
	// POST: Returns the entry or ErrNotFound
	GetByID(ctx context.Context, id string) (domain.Entry, error)

	// Save inserts or updates an entry.
	// PRE: entry has been validated
	Save(ctx context.Context, e domain.Entry) error

	// ListPending returns pending and retrying entries, oldest first.
	// PRE: limit > 0
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)

	// ListFailed returns entries whose retry budget is spent, most recent attempt first.
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)

	// Delete removes a terminal entry.
	// POST: Returns domain.ErrTerminal wrapped if the entry can still be retried
	Delete(ctx context.Context, id string) error
}
