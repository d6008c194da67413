package member

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"frontdesk/internal/domain/cycle"
	"frontdesk/internal/domain/quota"
	"frontdesk/internal/domain/renewal"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
)

// Business rule constants
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Domain errors
var (
	ErrNotFound         = errors.New("member not found")
	ErrEmptyID          = errors.New("member identifier cannot be empty")
	ErrPlanDatesInvalid = errors.New("member plan dates are invalid")
)

// Member holds state for the concept.
// The attendance ledger is not stored here: it is derived from attendance
// records written in the member's current LedgerEpoch.
type Member struct {
	ID                 string // normalized national ID
	Name               string
	Email              string
	PlanName           string
	PlanDescription    string
	PlanStart          string // YYYY-MM-DD
	PlanEnd            string // YYYY-MM-DD
	Quota              quota.Quota
	Price              int // cents
	Status             string
	RenewalState       renewal.State
	RenewalRequestedAt time.Time
	RenewalReason      string
	LedgerResetAt      time.Time // when LedgerEpoch last changed
	LedgerEpoch        int
	CreatedAt          time.Time
}

// NormalizeID uppercases an identifier and strips punctuation and spaces,
// so "12.345.678-k" and "12345678K" name the same member.
// PRE: raw is any string
// POST: Returns only uppercase letters and digits
func NormalizeID(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Validate checks if the Member has valid data.
// PRE: Member struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: ID is normalized, PlanStart <= PlanEnd
func (m *Member) Validate() error {
	if m.ID == "" {
		return ErrEmptyID
	}
	if m.ID != NormalizeID(m.ID) {
		return errors.New("member identifier must be normalized")
	}
	if strings.TrimSpace(m.Name) == "" {
		return errors.New("member name cannot be empty")
	}
	if len(m.Name) > MaxNameLength {
		return errors.New("member name cannot exceed 100 characters")
	}
	if m.Email != "" && !strings.Contains(m.Email, "@") {
		return errors.New("member email must be valid")
	}
	if m.Status != StatusActive && m.Status != StatusInactive {
		return errors.New("status must be 'active' or 'inactive'")
	}
	if err := m.Quota.Validate(); err != nil {
		return err
	}
	if err := m.RenewalState.Validate(); err != nil {
		return err
	}
	if _, _, err := m.PlanDates(time.UTC); err != nil {
		return err
	}
	return nil
}

// PlanDates parses the plan window as calendar dates in loc.
// PRE: loc is non-nil
// POST: Returns start <= end, or an error wrapping ErrPlanDatesInvalid
func (m *Member) PlanDates(loc *time.Location) (time.Time, time.Time, error) {
	start, err := cycle.ParseDate(m.PlanStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start: %v", ErrPlanDatesInvalid, err)
	}
	end, err := cycle.ParseDate(m.PlanEnd, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end: %v", ErrPlanDatesInvalid, err)
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: start %s after end %s", ErrPlanDatesInvalid, m.PlanStart, m.PlanEnd)
	}
	return start, end, nil
}

// DaysUntilExpiry returns the number of calendar days from now until PlanEnd.
// Zero means the plan ends today; negative means it already ended.
// PRE: now carries the location used for day boundaries
func (m *Member) DaysUntilExpiry(now time.Time) (int, error) {
	_, end, err := m.PlanDates(now.Location())
	if err != nil {
		return 0, err
	}
	today := cycle.DateOf(now)
	days := 0
	for d := today; d.Before(end); d = d.AddDate(0, 0, 1) {
		days++
	}
	for d := today; d.After(end); d = d.AddDate(0, 0, -1) {
		days--
	}
	return days, nil
}

// IsActive returns true if the member is currently active.
// INVARIANT: Status field is not mutated
func (m *Member) IsActive() bool {
	return m.Status == StatusActive
}

// RequestRenewal records a member-initiated renewal request.
// PRE: RenewalState is none or completed
// POST: RenewalState is requested, reason and timestamp captured
func (m *Member) RequestRenewal(reason string, now time.Time) error {
	cleaned, err := renewal.CleanReason(reason)
	if err != nil {
		return err
	}
	next, err := m.RenewalState.Apply(renewal.ActionRequest)
	if err != nil {
		return err
	}
	m.RenewalState = next
	m.RenewalReason = cleaned
	m.RenewalRequestedAt = now
	return nil
}

// BeginRenewalProcessing marks a requested renewal as in flight.
// PRE: RenewalState is requested
// POST: RenewalState is processing
func (m *Member) BeginRenewalProcessing() error {
	next, err := m.RenewalState.Apply(renewal.ActionBeginProcessing)
	if err != nil {
		return err
	}
	m.RenewalState = next
	return nil
}

// RevertRenewal returns an in-flight renewal to requested.
// PRE: RenewalState is processing
// POST: RenewalState is requested
func (m *Member) RevertRenewal() error {
	next, err := m.RenewalState.Apply(renewal.ActionRevert)
	if err != nil {
		return err
	}
	m.RenewalState = next
	return nil
}

// ApplyRenewal assigns new plan terms and starts a fresh ledger.
// PRE: terms are valid
// POST: plan fields replaced, RenewalState completed, LedgerEpoch incremented, LedgerResetAt = now
func (m *Member) ApplyRenewal(terms renewal.Terms, now time.Time) error {
	if err := terms.Validate(); err != nil {
		return err
	}
	next, err := m.RenewalState.Apply(renewal.ActionComplete)
	if err != nil {
		return err
	}
	if terms.PlanName != "" {
		m.PlanName = terms.PlanName
		m.PlanDescription = terms.PlanDescription
	}
	m.PlanStart = terms.PlanStart
	m.PlanEnd = terms.PlanEnd
	m.Quota = terms.Quota
	m.Price = terms.Price
	m.RenewalState = next
	m.LedgerEpoch++
	m.LedgerResetAt = now
	return nil
}
