package admission

import (
	"errors"
	"fmt"
	"time"

	"frontdesk/internal/domain/checkintoken"
	"frontdesk/internal/domain/cycle"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/quota"
)

// Code is a stable rejection reason clients can branch on.
type Code string

// Rejection codes, in the order the checks run.
const (
	CodeMemberNotFound        Code = "MEMBER_NOT_FOUND"
	CodePlanDatesInvalid      Code = "PLAN_DATES_INVALID"
	CodePlanNotStarted        Code = "PLAN_NOT_STARTED"
	CodePlanExpired           Code = "PLAN_EXPIRED"
	CodeTokenMalformed        Code = "TOKEN_MALFORMED"
	CodeTokenExpired          Code = "TOKEN_EXPIRED"
	CodeTokenMemberMismatch   Code = "TOKEN_MEMBER_MISMATCH"
	CodeAlreadyCheckedInToday Code = "ALREADY_CHECKED_IN_TODAY"
	CodeCycleEnded            Code = "CYCLE_ENDED"
	CodeQuotaExceeded         Code = "QUOTA_EXCEEDED"
)

// IsInputError reports whether the code means the request itself was garbage
// rather than refused by a business rule.
func (c Code) IsInputError() bool {
	return c == CodeTokenMalformed
}

// Status is the outcome of one check-in attempt.
type Status string

// Outcomes
const (
	StatusAdmitted Status = "admitted"
	StatusRejected Status = "rejected"
)

// Errors outside the rejection codes.
var (
	ErrMemberIDRequired = errors.New("member identifier is required")
	ErrRetryable        = errors.New("temporary failure, retry the request")
)

// Detail carries operator-facing context for a rejection.
type Detail struct {
	Message               string `json:"message"`
	EffectiveQuota        *int   `json:"effectiveQuota,omitempty"`
	NominalQuota          string `json:"nominalQuota,omitempty"`
	RemainingBusinessDays *int   `json:"remainingBusinessDays,omitempty"`
	CycleStart            string `json:"cycleStart,omitempty"`
	CycleEnd              string `json:"cycleEnd,omitempty"`
}

// Decision is the result of evaluating a check-in.
type Decision struct {
	Status Status
	Code   Code   // empty when admitted
	Detail Detail // empty when admitted

	// Set when admitted.
	Date                  string
	EffectiveQuota        int
	Remaining             int
	RemainingBusinessDays int
	Cycle                 cycle.Cycle
	AttendedInCycle       int // including today
}

// Admitted reports whether the member may enter.
func (d Decision) Admitted() bool {
	return d.Status == StatusAdmitted
}

// Reject builds a rejection with a plain message.
func Reject(code Code, format string, args ...any) Decision {
	return Decision{Status: StatusRejected, Code: code, Detail: Detail{Message: fmt.Sprintf(format, args...)}}
}

// Request is everything Decide needs, fetched before the decision runs.
type Request struct {
	Member          *member.Member // nil when the lookup found nothing
	Ledger          []string       // the member's admitted dates since the last renewal
	Token           string         // raw payload; empty skips the token checks
	ClaimedMemberID string
	Now             time.Time // location sets day boundaries
}

// Decide runs the ordered admission checks. The first failing check wins.
// PRE: req.Ledger is the member's current ledger view
// POST: Admitted decisions carry today's date and the quota figures; rejections carry a Code
// INVARIANT: pure, no side effects
func Decide(req Request) Decision {
	m := req.Member
	if m == nil {
		return Reject(CodeMemberNotFound, "member %s not found", req.ClaimedMemberID)
	}

	now := req.Now
	start, end, err := m.PlanDates(now.Location())
	if err != nil {
		return Reject(CodePlanDatesInvalid, "plan dates for member %s are invalid", m.ID)
	}

	today := cycle.DateOf(now)
	if today.Before(start) {
		return Reject(CodePlanNotStarted, "plan starts on %s", cycle.FormatDate(start))
	}
	if today.After(end) {
		return Reject(CodePlanExpired, "plan ended on %s", cycle.FormatDate(end))
	}

	if req.Token != "" {
		if d, ok := checkToken(req.Token, req.ClaimedMemberID, now); !ok {
			return d
		}
	}

	todayKey := cycle.FormatDate(today)
	if inLedger(req.Ledger, todayKey, now.Location()) {
		return Reject(CodeAlreadyCheckedInToday, "already checked in on %s", todayKey)
	}

	c := cycle.Current(start, now)
	attended := len(cycle.FilterLedger(req.Ledger, c))
	remainingDays := cycle.RemainingBusinessDays(c.End, now)
	effective := quota.Effective(m.Quota, remainingDays, c.BusinessDays())

	if m.Quota.IsUnlimited() {
		if remainingDays <= 0 {
			d := Reject(CodeCycleEnded, "cycle %s has no business days left", c)
			d.Detail = withFigures(d.Detail, c, m.Quota, effective, remainingDays)
			return d
		}
	} else if attended >= effective {
		d := Reject(CodeQuotaExceeded, "%d classes attended this cycle, %d allowed today", attended, effective)
		d.Detail = withFigures(d.Detail, c, m.Quota, effective, remainingDays)
		return d
	}

	remaining := max(effective-(attended+1), 0)
	if m.Quota.IsUnlimited() {
		remaining = remainingDays
	}
	return Decision{
		Status:                StatusAdmitted,
		Date:                  todayKey,
		EffectiveQuota:        effective,
		Remaining:             remaining,
		RemainingBusinessDays: remainingDays,
		Cycle:                 c,
		AttendedInCycle:       attended + 1,
	}
}

func checkToken(payload, claimed string, now time.Time) (Decision, bool) {
	tok, err := checkintoken.Parse(payload)
	if err != nil {
		return Reject(CodeTokenMalformed, "%v", err), false
	}
	switch err := tok.Check(now, claimed); {
	case errors.Is(err, checkintoken.ErrExpired):
		return Reject(CodeTokenExpired, "token expired at %s", tok.ExpiresAt.UTC().Format(time.RFC3339)), false
	case errors.Is(err, checkintoken.ErrMemberMismatch):
		return Reject(CodeTokenMemberMismatch, "token was issued for another member"), false
	}
	return Decision{}, true
}

func inLedger(ledger []string, day string, loc *time.Location) bool {
	for _, entry := range ledger {
		d, err := cycle.ParseDate(entry, loc)
		if err == nil && cycle.FormatDate(d) == day {
			return true
		}
	}
	return false
}

func withFigures(d Detail, c cycle.Cycle, q quota.Quota, effective, remainingDays int) Detail {
	d.EffectiveQuota = &effective
	d.NominalQuota = string(q)
	d.RemainingBusinessDays = &remainingDays
	d.CycleStart = cycle.FormatDate(c.Start)
	d.CycleEnd = cycle.FormatDate(c.End)
	return d
}
