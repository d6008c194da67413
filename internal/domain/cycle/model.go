package cycle

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar-date format used for ledger entries and plan dates.
const DateLayout = "2006-01-02"

// Cycle geometry. Consecutive cycles start Stride days apart while each window
// spans Length days, which leaves one uncovered day between blocks.
const (
	Length = 30
	Stride = 31
)

// ErrInvalidDate is returned when a date string cannot be parsed.
var ErrInvalidDate = errors.New("invalid date")

// Cycle is a member's personal billing/class period anchored to the plan start.
type Cycle struct {
	Start time.Time // first day, midnight
	End   time.Time // last day (inclusive), midnight
	Index int       // 1-based ordinal
}

// Current returns the cycle containing now for a plan starting at planStart.
// Cycles are fixed blocks anchored at planStart, not calendar months.
// PRE: planStart is a calendar date; now carries the location used for day boundaries
// POST: Start <= End, End-Start = Length-1 days, Index >= 1
// INVARIANT: pure, no clock access beyond now
func Current(planStart, now time.Time) Cycle {
	loc := now.Location()
	start := dateIn(planStart, loc)
	today := DateOf(now)

	elapsed := daysBetween(start, today)
	if elapsed < 0 {
		return first(start)
	}
	blocks := elapsed / Stride
	cycleStart := start.AddDate(0, 0, blocks*Stride)
	if today.Before(cycleStart) {
		return first(start)
	}
	return Cycle{
		Start: cycleStart,
		End:   cycleStart.AddDate(0, 0, Length-1),
		Index: blocks + 1,
	}
}

func first(start time.Time) Cycle {
	return Cycle{Start: start, End: start.AddDate(0, 0, Length-1), Index: 1}
}

// Contains reports whether t falls on a calendar day inside the cycle.
func (c Cycle) Contains(t time.Time) bool {
	d := dateIn(t, c.Start.Location())
	return !d.Before(c.Start) && !d.After(c.End)
}

// BusinessDays counts the business days in the whole cycle.
func (c Cycle) BusinessDays() int {
	return CountBusinessDays(c.Start, c.End)
}

// String renders the cycle as "[start, end] #index".
func (c Cycle) String() string {
	return fmt.Sprintf("[%s, %s] #%d", c.Start.Format(DateLayout), c.End.Format(DateLayout), c.Index)
}

// DateOf truncates t to midnight of its calendar day in its own location.
func DateOf(t time.Time) time.Time {
	return dateIn(t, t.Location())
}

// dateIn keeps the calendar day written in t and places it at midnight in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// daysBetween returns the number of calendar days from a to b.
func daysBetween(a, b time.Time) int {
	ua := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ParseDate parses an ISO-8601 date or date-time and returns the calendar day it
// names at midnight in loc. Time-of-day is ignored.
// PRE: loc is non-nil
// POST: Returns midnight of the written calendar day, or ErrInvalidDate
func ParseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	layouts := []string{
		DateLayout,
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return dateIn(parsed, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
