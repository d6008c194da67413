package outbox

import (
	"context"

	domain "frontdesk/internal/domain/outbox"
)

// Store defines persistence for outbox entries.
type Store interface {
	// GetByID returns domain.ErrNotFound for unknown IDs.
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	// Save inserts or updates an entry.
	Save(ctx context.Context, e domain.Entry) error
	// ListPending returns pending and retrying entries, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)
	// ListFailed returns entries that exhausted their attempts, most recent attempt first.
	ListFailed(ctx context.Context, limit int) ([]domain.Entry, error)
}
