package projections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/domain/cycle"
	domainMember "frontdesk/internal/domain/member"
)

// MaxReportDays bounds the attendance report range.
const MaxReportDays = 366

// ErrInvalidRange is returned when the dates do not parse or the range is out of bounds.
var ErrInvalidRange = errors.New("invalid report range")

// GetAttendanceReportQuery carries query parameters.
type GetAttendanceReportQuery struct {
	From string // YYYY-MM-DD inclusive
	To   string // YYYY-MM-DD inclusive
}

// AttendanceReportRow is one check-in with the member's details resolved.
type AttendanceReportRow struct {
	ClassDate   string
	CheckInTime time.Time
	MemberID    string
	MemberName  string
	PlanName    string
}

// GetAttendanceReportDeps holds dependencies for GetAttendanceReport.
type GetAttendanceReportDeps struct {
	MemberStore     MemberStore
	AttendanceStore AttendanceStore
}

// QueryGetAttendanceReport lists check-ins in a date range, oldest first.
// PRE: From <= To, both YYYY-MM-DD, range at most MaxReportDays
// POST: Rows for members that no longer exist keep an empty name
func QueryGetAttendanceReport(ctx context.Context, query GetAttendanceReportQuery, deps GetAttendanceReportDeps) ([]AttendanceReportRow, error) {
	from, err := cycle.ParseDate(query.From, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: from: %w", ErrInvalidRange, err)
	}
	to, err := cycle.ParseDate(query.To, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %w", ErrInvalidRange, err)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: end precedes start", ErrInvalidRange)
	}
	if to.Sub(from) > MaxReportDays*24*time.Hour {
		return nil, fmt.Errorf("%w: cannot exceed %d days", ErrInvalidRange, MaxReportDays)
	}

	records, err := deps.AttendanceStore.ListByDateRange(ctx, cycle.FormatDate(from), cycle.FormatDate(to))
	if err != nil {
		return nil, storeFailure("list attendance", err)
	}

	members := make(map[string]domainMember.Member)
	rows := make([]AttendanceReportRow, 0, len(records))
	for _, r := range records {
		m, ok := members[r.MemberID]
		if !ok {
			m, err = deps.MemberStore.GetByID(ctx, r.MemberID)
			if err != nil && !errors.Is(err, domainMember.ErrNotFound) {
				return nil, storeFailure("load member", err)
			}
			members[r.MemberID] = m
		}
		rows = append(rows, AttendanceReportRow{
			ClassDate:   r.ClassDate,
			CheckInTime: r.CheckInTime,
			MemberID:    r.MemberID,
			MemberName:  m.Name,
			PlanName:    m.PlanName,
		})
	}
	return rows, nil
}
