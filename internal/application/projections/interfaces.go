package projections

import (
	"context"

	domainAttendance "frontdesk/internal/domain/attendance"
	domainMember "frontdesk/internal/domain/member"
	domainNotice "frontdesk/internal/domain/notice"
)

// MemberStore interface for member queries.
type MemberStore interface {
	GetByID(ctx context.Context, id string) (domainMember.Member, error)
}

// AttendanceStore interface for attendance queries.
type AttendanceStore interface {
	ListLedger(ctx context.Context, memberID string, epoch int) ([]string, error)
	ListByDateRange(ctx context.Context, from, to string) ([]domainAttendance.Attendance, error)
}

// NoticeStore interface for notice queries.
type NoticeStore interface {
	ListForRecipient(ctx context.Context, recipient string, limit int) ([]domainNotice.Notice, error)
}
