package attendance

import (
	"context"

	domain "frontdesk/internal/domain/attendance"
)

// Store persists the append-only attendance log.
type Store interface {
	// Append inserts a unless the member already has a record for a.ClassDate
	// in a.Epoch, in which case it returns domain.ErrAlreadyRecorded.
	Append(ctx context.Context, a domain.Attendance) error
	// ListLedger returns the distinct class dates attended in epoch,
	// in order of first check-in.
	ListLedger(ctx context.Context, memberID string, epoch int) ([]string, error)
	ListByDateRange(ctx context.Context, from, to string) ([]domain.Attendance, error)
	ListByMember(ctx context.Context, memberID string, limit int) ([]domain.Attendance, error)
}
