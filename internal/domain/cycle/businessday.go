package cycle

import "time"

// IsBusinessDay reports whether classes run on t (Monday through Saturday).
func IsBusinessDay(t time.Time) bool {
	return t.Weekday() != time.Sunday
}

// CountBusinessDays counts business days in the inclusive range [start, end].
// Ranges are at most about a year, so a day-by-day walk is fine.
// PRE: start and end are calendar dates
// POST: Returns 0 when end is before start
func CountBusinessDays(start, end time.Time) int {
	from := DateOf(start)
	to := dateIn(end, from.Location())
	n := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

// RemainingBusinessDays counts business days left after today up to end.
// now is pushed to 23:59:59 first, so today is treated as already used and is
// never counted twice.
// PRE: end is the current cycle's last day
// POST: Returns >= 0
func RemainingBusinessDays(end, now time.Time) int {
	tomorrow := DateOf(now).AddDate(0, 0, 1)
	return CountBusinessDays(tomorrow, dateIn(end, now.Location()))
}
