package projections

import (
	"context"
	"time"

	"frontdesk/internal/adapters/storage/member"
	domainMember "frontdesk/internal/domain/member"
)

// MemberLister lists members for the front-desk roster.
type MemberLister interface {
	List(ctx context.Context, filter member.ListFilter) ([]domainMember.Member, error)
}

// GetMemberListQuery carries query parameters.
type GetMemberListQuery struct {
	Status       string // empty for any
	RenewalState string // empty for any
	Limit        int
	Offset       int
}

// MemberRow is one roster line.
type MemberRow struct {
	ID              string
	Name            string
	Email           string
	Status          string
	PlanName        string
	PlanEnd         string
	RenewalState    string
	DaysUntilExpiry *int // nil when the plan dates do not parse
}

// GetMemberListDeps holds dependencies for GetMemberList.
type GetMemberListDeps struct {
	MemberStore MemberLister
	Now         func() time.Time
}

// QueryGetMemberList retrieves a page of members with their expiry countdown.
// PRE: Valid query parameters
// POST: Returns members ordered by name, never nil
// INVARIANT: Members with unparseable plan dates are listed with a nil countdown
func QueryGetMemberList(ctx context.Context, query GetMemberListQuery, deps GetMemberListDeps) ([]MemberRow, error) {
	limit := query.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	members, err := deps.MemberStore.List(ctx, member.ListFilter{
		Limit:        limit,
		Offset:       max(query.Offset, 0),
		Status:       query.Status,
		RenewalState: query.RenewalState,
	})
	if err != nil {
		return nil, storeFailure("list members", err)
	}

	now := deps.Now()
	rows := make([]MemberRow, 0, len(members))
	for _, m := range members {
		row := MemberRow{
			ID:           m.ID,
			Name:         m.Name,
			Email:        m.Email,
			Status:       m.Status,
			PlanName:     m.PlanName,
			PlanEnd:      m.PlanEnd,
			RenewalState: string(m.RenewalState.Normalize()),
		}
		if days, err := m.DaysUntilExpiry(now); err == nil {
			row.DaysUntilExpiry = &days
		}
		rows = append(rows, row)
	}
	return rows, nil
}
