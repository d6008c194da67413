package attendance

import (
	"errors"
	"time"

	"frontdesk/internal/domain/cycle"
)

// ErrAlreadyRecorded is returned by stores when a record for the same member and
// class date already exists in the current ledger epoch.
var ErrAlreadyRecorded = errors.New("attendance already recorded for this date")

// Attendance is one admitted check-in. Records are append-only.
// Epoch is the member's ledger epoch when the record was written; a renewal
// bumps the member's epoch, which empties the ledger without deleting rows.
type Attendance struct {
	ID          string
	MemberID    string
	CheckInTime time.Time
	ClassDate   string // YYYY-MM-DD in the gym's timezone
	Epoch       int
}

// New builds the record for a member admitted at now.
// POST: ClassDate is the calendar day of now in now's location
func New(id, memberID string, now time.Time) Attendance {
	return Attendance{
		ID:          id,
		MemberID:    memberID,
		CheckInTime: now,
		ClassDate:   cycle.FormatDate(now),
	}
}

// Validate checks if the Attendance has valid data.
// PRE: Attendance struct is initialized
// POST: Returns error if validation fails, nil otherwise
// INVARIANT: MemberID must not be empty, CheckInTime must be set
func (a *Attendance) Validate() error {
	if a.MemberID == "" {
		return errors.New("attendance must be associated with a member")
	}
	if a.CheckInTime.IsZero() {
		return errors.New("check-in time must be set")
	}
	if a.Epoch < 0 {
		return errors.New("ledger epoch must not be negative")
	}
	if _, err := time.Parse(cycle.DateLayout, a.ClassDate); err != nil {
		return errors.New("class date must be YYYY-MM-DD")
	}
	return nil
}

// Ledger returns the distinct class dates of records in the given epoch,
// in first-seen order.
// POST: No duplicates; never nil
func Ledger(records []Attendance, epoch int) []string {
	seen := make(map[string]bool, len(records))
	out := make([]string, 0, len(records))
	for _, r := range records {
		if r.Epoch != epoch || seen[r.ClassDate] {
			continue
		}
		seen[r.ClassDate] = true
		out = append(out, r.ClassDate)
	}
	return out
}
