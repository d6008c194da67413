package quota

import (
	"errors"
	"strconv"
	"strings"
)

// Nominal quotas a plan can grant per cycle.
const (
	Unlimited Quota = "unlimited"
	Twelve    Quota = "12"
	Eight     Quota = "8"
)

// Sentinel stands in for "no limit" before it is capped by the cycle's business days.
const Sentinel = 9999

// ErrInvalid is returned when a quota is not one of the supported values.
var ErrInvalid = errors.New("quota must be one of: unlimited, 12, 8")

// Quota is the class limit stated by a plan for one cycle.
type Quota string

// Parse normalizes user or catalog input into a Quota.
// PRE: raw is any string
// POST: Returns a valid Quota or ErrInvalid
func Parse(raw string) (Quota, error) {
	q := Quota(strings.ToLower(strings.TrimSpace(raw)))
	if err := q.Validate(); err != nil {
		return "", err
	}
	return q, nil
}

// Validate checks the quota is a supported value.
func (q Quota) Validate() error {
	switch q {
	case Unlimited, Twelve, Eight:
		return nil
	}
	return ErrInvalid
}

// IsUnlimited reports whether the plan has no numeric class limit.
func (q Quota) IsUnlimited() bool {
	return q == Unlimited
}

// Nominal returns the numeric limit. Unlimited maps to Sentinel, invalid quotas to 0.
func (q Quota) Nominal() int {
	switch q {
	case Unlimited:
		return Sentinel
	case Twelve, Eight:
		n, _ := strconv.Atoi(string(q))
		return n
	}
	return 0
}

// Effective returns today's usable quota under the throttling protocol.
// Unlimited plans may attend every business day of the cycle and no more.
// Numeric plans are capped by the business days still left in the cycle, so the
// limit shrinks as the cycle nears its end.
// PRE: remainingBusinessDays and cycleBusinessDays come from the current cycle
// POST: 0 <= result <= q.Nominal()
func Effective(q Quota, remainingBusinessDays, cycleBusinessDays int) int {
	var eff int
	if q.IsUnlimited() {
		eff = min(Sentinel, cycleBusinessDays)
	} else {
		eff = min(q.Nominal(), remainingBusinessDays)
	}
	return max(eff, 0)
}
