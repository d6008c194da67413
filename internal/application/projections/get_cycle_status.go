package projections

import (
	"context"
	"sort"
	"time"

	"frontdesk/internal/domain/cycle"
	domainMember "frontdesk/internal/domain/member"
	"frontdesk/internal/domain/quota"
)

// GetCycleStatusQuery carries query parameters.
type GetCycleStatusQuery struct {
	MemberID string
}

// GetCycleStatusResult describes where a member stands in the current cycle.
type GetCycleStatusResult struct {
	MemberID              string
	PlanName              string
	PlanStart             string
	PlanEnd               string
	CycleStart            string
	CycleEnd              string
	CycleIndex            int
	AttendedDates         []string // sorted
	NominalQuota          quota.Quota
	EffectiveQuota        int
	RemainingClasses      int // numeric plans: effective - attended, floored at 0; unlimited: remaining business days
	RemainingBusinessDays int
	RenewalState          string
}

// GetCycleStatusDeps holds dependencies for GetCycleStatus.
type GetCycleStatusDeps struct {
	MemberStore     MemberStore
	AttendanceStore AttendanceStore
	Now             func() time.Time
}

// QueryGetCycleStatus computes the member's current cycle and quota position.
// PRE: MemberID is non-empty
// POST: Returns the cycle containing now and the ledger dates within it
func QueryGetCycleStatus(ctx context.Context, query GetCycleStatusQuery, deps GetCycleStatusDeps) (GetCycleStatusResult, error) {
	memberID := domainMember.NormalizeID(query.MemberID)
	m, err := deps.MemberStore.GetByID(ctx, memberID)
	if err != nil {
		return GetCycleStatusResult{}, storeFailure("load member", err)
	}

	now := deps.Now()
	start, _, err := m.PlanDates(now.Location())
	if err != nil {
		return GetCycleStatusResult{}, err
	}

	ledger, err := deps.AttendanceStore.ListLedger(ctx, memberID, m.LedgerEpoch)
	if err != nil {
		return GetCycleStatusResult{}, storeFailure("load ledger", err)
	}

	c := cycle.Current(start, now)
	attended := cycle.FilterLedger(ledger, c)
	sort.Strings(attended)
	remainingDays := cycle.RemainingBusinessDays(c.End, now)
	effective := quota.Effective(m.Quota, remainingDays, c.BusinessDays())

	remaining := max(effective-len(attended), 0)
	if m.Quota.IsUnlimited() {
		remaining = remainingDays
	}

	return GetCycleStatusResult{
		MemberID:              m.ID,
		PlanName:              m.PlanName,
		PlanStart:             m.PlanStart,
		PlanEnd:               m.PlanEnd,
		CycleStart:            cycle.FormatDate(c.Start),
		CycleEnd:              cycle.FormatDate(c.End),
		CycleIndex:            c.Index,
		AttendedDates:         attended,
		NominalQuota:          m.Quota,
		EffectiveQuota:        effective,
		RemainingClasses:      remaining,
		RemainingBusinessDays: remainingDays,
		RenewalState:          string(m.RenewalState.Normalize()),
	}, nil
}
