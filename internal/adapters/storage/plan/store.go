package plan

import (
	"context"

	domain "frontdesk/internal/domain/plan"
)

// Store persists the plan catalog.
type Store interface {
	// GetByName returns domain.ErrNotFound for unknown names.
	GetByName(ctx context.Context, name string) (domain.Plan, error)
	Upsert(ctx context.Context, p domain.Plan) error
	List(ctx context.Context) ([]domain.Plan, error)
}
