package renewal

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"frontdesk/internal/domain/cycle"
	"frontdesk/internal/domain/quota"
)

// Renewal request states.
const (
	StateNone       State = "none"
	StateRequested  State = "requested"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
)

// Actions that move a renewal request between states.
const (
	ActionRequest         Action = "request"
	ActionBeginProcessing Action = "begin_processing"
	ActionRevert          Action = "revert"
	ActionComplete        Action = "complete"
)

// MaxReasonLength bounds the member's free-text reason.
const MaxReasonLength = 500

// Domain errors
var (
	ErrInvalidState      = errors.New("renewal state must be one of: none, requested, processing, completed")
	ErrInvalidTransition = errors.New("renewal transition not allowed")
	ErrReasonTooLong     = errors.New("renewal reason cannot exceed 500 characters")
	ErrEmptyPerformer    = errors.New("renewal must record who performed it")
)

// State is the lifecycle position of a member's renewal request.
type State string

// Action is an event applied to a State.
type Action string

// transitions lists, per action, the states it may start from and where it lands.
var transitions = map[Action]struct {
	from []State
	to   State
}{
	ActionRequest:         {from: []State{StateNone, StateCompleted}, to: StateRequested},
	ActionBeginProcessing: {from: []State{StateRequested}, to: StateProcessing},
	ActionRevert:          {from: []State{StateProcessing}, to: StateRequested},
	ActionComplete:        {from: []State{StateNone, StateRequested, StateProcessing, StateCompleted}, to: StateCompleted},
}

// Normalize maps the empty state stored for fresh members to StateNone.
func (s State) Normalize() State {
	if s == "" {
		return StateNone
	}
	return s
}

// Validate checks the state is known.
func (s State) Validate() error {
	switch s.Normalize() {
	case StateNone, StateRequested, StateProcessing, StateCompleted:
		return nil
	}
	return ErrInvalidState
}

// Apply returns the state reached by applying a to s.
// PRE: s is a valid state
// POST: Returns the new state, or ErrInvalidTransition leaving s unchanged
func (s State) Apply(a Action) (State, error) {
	from := s.Normalize()
	t, ok := transitions[a]
	if !ok {
		return from, fmt.Errorf("%w: unknown action %q", ErrInvalidTransition, a)
	}
	for _, allowed := range t.from {
		if allowed == from {
			return t.to, nil
		}
	}
	return from, fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, a, from)
}

// CleanReason trims and bounds a member-supplied reason.
func CleanReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxReasonLength {
		return "", ErrReasonTooLong
	}
	return reason, nil
}

// Terms are the new plan values assigned by an administrative renewal.
type Terms struct {
	PlanName        string
	PlanDescription string
	PlanStart       string // YYYY-MM-DD
	PlanEnd         string // YYYY-MM-DD
	Quota           quota.Quota
	Price           int // cents
}

// Validate checks the dates are well formed and ordered and the quota is valid.
// PRE: Terms struct is populated
// POST: Returns nil if valid, error otherwise
func (t *Terms) Validate() error {
	start, err := cycle.ParseDate(t.PlanStart, time.UTC)
	if err != nil {
		return fmt.Errorf("plan start: %w", err)
	}
	end, err := cycle.ParseDate(t.PlanEnd, time.UTC)
	if err != nil {
		return fmt.Errorf("plan end: %w", err)
	}
	if start.After(end) {
		return errors.New("plan start must be on or before plan end")
	}
	if err := t.Quota.Validate(); err != nil {
		return err
	}
	if t.Price < 0 {
		return errors.New("price cannot be negative")
	}
	return nil
}

// HistoryEntry records one completed administrative renewal.
type HistoryEntry struct {
	ID            string
	MemberID      string
	PerformedBy   string
	PerformedAt   time.Time
	PreviousState State
	PlanName      string
	PlanStart     string
	PlanEnd       string
	Quota         quota.Quota
	Price         int
}

// Validate checks the entry can be persisted.
func (h *HistoryEntry) Validate() error {
	if h.MemberID == "" {
		return errors.New("history entry must reference a member")
	}
	if strings.TrimSpace(h.PerformedBy) == "" {
		return ErrEmptyPerformer
	}
	if h.PerformedAt.IsZero() {
		return errors.New("performed_at must be set")
	}
	return nil
}
