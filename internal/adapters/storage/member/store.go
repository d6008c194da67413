package member

import (
	"context"

	domain "frontdesk/internal/domain/member"
	"frontdesk/internal/domain/renewal"
)

// Store persists Member state and renewal history.
type Store interface {
	// GetByID returns domain.ErrNotFound when no member has the id.
	GetByID(ctx context.Context, id string) (domain.Member, error)
	Save(ctx context.Context, value domain.Member) error
	// ApplyRenewal updates the member and appends the history entry atomically.
	ApplyRenewal(ctx context.Context, value domain.Member, entry renewal.HistoryEntry) error
	ListActive(ctx context.Context) ([]domain.Member, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Member, error)
	ListHistory(ctx context.Context, memberID string) ([]renewal.HistoryEntry, error)
}

// ListFilter carries filtering parameters for List operations.
type ListFilter struct {
	Limit        int
	Offset       int
	Status       string
	RenewalState string
}
