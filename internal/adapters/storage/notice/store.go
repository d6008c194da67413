package notice

import (
	"context"
	"time"

	domain "frontdesk/internal/domain/notice"
)

// Store persists notices and their recipient sets. Notices are immutable once saved.
type Store interface {
	Save(ctx context.Context, n domain.Notice) error
	GetByID(ctx context.Context, id string) (domain.Notice, error)
	// ListAutomaticSince returns automatic notices for recipient with the given
	// reason created at or after since, newest first.
	ListAutomaticSince(ctx context.Context, recipient, reason string, since time.Time) ([]domain.Notice, error)
	// ListForRecipient returns the recipient's notices, newest first.
	ListForRecipient(ctx context.Context, recipient string, limit int) ([]domain.Notice, error)
}
