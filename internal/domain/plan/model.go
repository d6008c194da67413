package plan

import (
	"errors"
	"strings"
	"time"

	"frontdesk/internal/domain/quota"
)

// Duration classes
const (
	DurationMonthly    = "monthly"
	DurationQuarterly  = "quarterly"
	DurationSemiannual = "semiannual"
	DurationAnnual     = "annual"
)

// Domain errors
var (
	ErrNotFound        = errors.New("plan not found")
	ErrEmptyName       = errors.New("plan name cannot be empty")
	ErrInvalidDuration = errors.New("plan duration must be one of: monthly, quarterly, semiannual, annual")
	ErrNegativePrice   = errors.New("plan price cannot be negative")
)

// Plan is a catalog entry. Members snapshot its quota and description at
// renewal time, so catalog edits never rewrite existing memberships.
type Plan struct {
	Name        string
	Quota       quota.Quota
	Duration    string
	Price       int // cents
	Description string
}

// Validate checks if the Plan has valid data.
// PRE: Plan struct is populated
// POST: Returns nil if valid, error otherwise
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if err := p.Quota.Validate(); err != nil {
		return err
	}
	if p.Months() == 0 {
		return ErrInvalidDuration
	}
	if p.Price < 0 {
		return ErrNegativePrice
	}
	return nil
}

// Months returns the calendar months covered by the duration class, or 0 if unknown.
func (p *Plan) Months() int {
	switch p.Duration {
	case DurationMonthly:
		return 1
	case DurationQuarterly:
		return 3
	case DurationSemiannual:
		return 6
	case DurationAnnual:
		return 12
	}
	return 0
}

// EndFor returns the last day of a plan starting on start.
// PRE: Duration is valid
// POST: Returns start + Months months - 1 day
func (p *Plan) EndFor(start time.Time) time.Time {
	return start.AddDate(0, p.Months(), -1)
}

// PriceAfter applies an override or a percentage discount to the catalog price.
// A non-nil override wins; discount is clamped to [0, 100].
func (p *Plan) PriceAfter(override *int, discountPercent int) int {
	if override != nil {
		if *override < 0 {
			return 0
		}
		return *override
	}
	if discountPercent <= 0 {
		return p.Price
	}
	if discountPercent > 100 {
		discountPercent = 100
	}
	return p.Price * (100 - discountPercent) / 100
}
