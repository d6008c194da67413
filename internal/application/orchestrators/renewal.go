package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"frontdesk/internal/application/keylock"
	"frontdesk/internal/domain/cycle"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/plan"
	"frontdesk/internal/domain/quota"
	"frontdesk/internal/domain/renewal"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrInvalidRenewal wraps input problems in a renewal request.
var ErrInvalidRenewal = errors.New("invalid renewal")

// RenewalMemberStore defines the member persistence renewal needs.
type RenewalMemberStore interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
	Save(ctx context.Context, m member.Member) error
	// ApplyRenewal writes the renewed member and the history entry in one transaction.
	ApplyRenewal(ctx context.Context, m member.Member, h renewal.HistoryEntry) error
}

// PlanLookup resolves catalog plans by name.
type PlanLookup interface {
	GetByName(ctx context.Context, name string) (plan.Plan, error)
}

// RenewalDeps holds dependencies for the renewal orchestrators.
type RenewalDeps struct {
	MemberStore RenewalMemberStore
	PlanStore   PlanLookup // optional: required only when renewing by plan name
	Locks       *keylock.Locker
	Now         func() time.Time
	GenerateID  func() string
}

// RequestRenewalInput carries a member-initiated renewal request.
type RequestRenewalInput struct {
	MemberID string
	Reason   string
}

// ExecuteRequestRenewal moves the member's renewal state to requested.
// PRE: RenewalState is none or completed
// POST: RenewalState is requested with reason and timestamp stored
func ExecuteRequestRenewal(ctx context.Context, input RequestRenewalInput, deps RenewalDeps) (member.Member, error) {
	return transitionRenewal(ctx, input.MemberID, deps, "renewal_requested", func(m *member.Member) error {
		return m.RequestRenewal(input.Reason, deps.Now())
	})
}

// ExecuteBeginRenewalProcessing marks a requested renewal as in flight.
// PRE: RenewalState is requested
// POST: RenewalState is processing
func ExecuteBeginRenewalProcessing(ctx context.Context, memberID string, deps RenewalDeps) (member.Member, error) {
	return transitionRenewal(ctx, memberID, deps, "renewal_processing", func(m *member.Member) error {
		return m.BeginRenewalProcessing()
	})
}

// ExecuteRevertRenewal returns an in-flight renewal to requested.
// PRE: RenewalState is processing
// POST: RenewalState is requested
func ExecuteRevertRenewal(ctx context.Context, memberID string, deps RenewalDeps) (member.Member, error) {
	return transitionRenewal(ctx, memberID, deps, "renewal_reverted", func(m *member.Member) error {
		return m.RevertRenewal()
	})
}

func transitionRenewal(ctx context.Context, rawID string, deps RenewalDeps, event string, apply func(m *member.Member) error) (member.Member, error) {
	memberID := member.NormalizeID(rawID)
	if memberID == "" {
		return member.Member{}, member.ErrEmptyID
	}
	unlock := deps.Locks.Lock(memberID)
	defer unlock()

	m, err := deps.MemberStore.GetByID(ctx, memberID)
	if err != nil {
		return member.Member{}, storeFailure("load member", err)
	}
	previous := m.RenewalState.Normalize()
	if err := apply(&m); err != nil {
		return member.Member{}, err
	}
	if err := deps.MemberStore.Save(ctx, m); err != nil {
		return member.Member{}, storeFailure("save member", err)
	}
	slog.Info("renewal_event", "event", event, "member_id", memberID, "from", string(previous), "to", string(m.RenewalState))
	return m, nil
}

// RenewMemberInput carries an administrative renewal.
// Either PlanName or Quota must be set. Dates default from the plan's duration
// when PlanName is set.
type RenewMemberInput struct {
	MemberID        string
	PlanName        string
	PlanStart       string // YYYY-MM-DD; defaults to today
	PlanEnd         string // YYYY-MM-DD; defaults to the plan's duration
	Quota           string
	PriceOverride   *int
	DiscountPercent int
	PerformedBy     string
}

// RenewMemberResult carries the renewed member and the history entry written.
type RenewMemberResult struct {
	Member  member.Member
	History renewal.HistoryEntry
}

// ExecuteRenewMember assigns new plan terms from any renewal state.
// PRE: PerformedBy is non-empty; terms resolve to valid dates and quota
// POST: Member updated, ledger reset, history entry stored, all in one write
// INVARIANT: A concurrent check-in sees either the old or the new plan, never a mix
func ExecuteRenewMember(ctx context.Context, input RenewMemberInput, deps RenewalDeps) (RenewMemberResult, error) {
	memberID := member.NormalizeID(input.MemberID)
	if memberID == "" {
		return RenewMemberResult{}, member.ErrEmptyID
	}
	if strings.TrimSpace(input.PerformedBy) == "" {
		return RenewMemberResult{}, renewal.ErrEmptyPerformer
	}

	ctx, span := tracer.Start(ctx, "ExecuteRenewMember")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID), attribute.String("renewal.plan", input.PlanName))

	unlock := deps.Locks.Lock(memberID)
	defer unlock()

	m, err := deps.MemberStore.GetByID(ctx, memberID)
	if err != nil {
		return RenewMemberResult{}, storeFailure("load member", err)
	}

	now := deps.Now()
	terms, err := resolveTerms(ctx, input, m, now, deps.PlanStore)
	if err != nil {
		return RenewMemberResult{}, err
	}

	previous := m.RenewalState.Normalize()
	if err := m.ApplyRenewal(terms, now); err != nil {
		return RenewMemberResult{}, fmt.Errorf("%w: %w", ErrInvalidRenewal, err)
	}

	h := renewal.HistoryEntry{
		ID:            deps.GenerateID(),
		MemberID:      memberID,
		PerformedBy:   strings.TrimSpace(input.PerformedBy),
		PerformedAt:   now,
		PreviousState: previous,
		PlanName:      m.PlanName,
		PlanStart:     m.PlanStart,
		PlanEnd:       m.PlanEnd,
		Quota:         m.Quota,
		Price:         m.Price,
	}
	if err := h.Validate(); err != nil {
		return RenewMemberResult{}, err
	}

	if err := deps.MemberStore.ApplyRenewal(ctx, m, h); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return RenewMemberResult{}, storeFailure("apply renewal", err)
	}

	slog.Info("renewal_event", "event", "member_renewed", "member_id", memberID, "performed_by", h.PerformedBy,
		"plan", m.PlanName, "plan_start", m.PlanStart, "plan_end", m.PlanEnd, "quota", string(m.Quota), "price", m.Price,
		"from", string(previous))
	return RenewMemberResult{Member: m, History: h}, nil
}

// resolveTerms fills renewal terms from the input, the catalog plan and the member's current values.
func resolveTerms(ctx context.Context, input RenewMemberInput, m member.Member, now time.Time, plans PlanLookup) (renewal.Terms, error) {
	loc := now.Location()
	start := cycle.DateOf(now)
	if input.PlanStart != "" {
		parsed, err := cycle.ParseDate(input.PlanStart, loc)
		if err != nil {
			return renewal.Terms{}, fmt.Errorf("%w: plan start: %w", ErrInvalidRenewal, err)
		}
		start = parsed
	}

	terms := renewal.Terms{
		PlanName:        m.PlanName,
		PlanDescription: m.PlanDescription,
		PlanStart:       cycle.FormatDate(start),
		Price:           m.Price,
	}

	var catalog *plan.Plan
	if input.PlanName != "" {
		if plans == nil {
			return renewal.Terms{}, fmt.Errorf("%w: plan catalog unavailable", ErrInvalidRenewal)
		}
		p, err := plans.GetByName(ctx, input.PlanName)
		if err != nil {
			if errors.Is(err, plan.ErrNotFound) {
				return renewal.Terms{}, fmt.Errorf("%w: %w: %s", ErrInvalidRenewal, err, input.PlanName)
			}
			return renewal.Terms{}, storeFailure("load plan", err)
		}
		catalog = &p
		terms.PlanName = p.Name
		terms.PlanDescription = p.Description
		terms.Quota = p.Quota
		terms.Price = p.PriceAfter(input.PriceOverride, input.DiscountPercent)
	} else {
		base := plan.Plan{Price: m.Price}
		terms.Price = base.PriceAfter(input.PriceOverride, input.DiscountPercent)
	}

	if input.Quota != "" {
		q, err := quota.Parse(input.Quota)
		if err != nil {
			return renewal.Terms{}, fmt.Errorf("%w: %w", ErrInvalidRenewal, err)
		}
		terms.Quota = q
	}
	if terms.Quota == "" {
		return renewal.Terms{}, fmt.Errorf("%w: quota or plan name is required", ErrInvalidRenewal)
	}

	switch {
	case input.PlanEnd != "":
		end, err := cycle.ParseDate(input.PlanEnd, loc)
		if err != nil {
			return renewal.Terms{}, fmt.Errorf("%w: plan end: %w", ErrInvalidRenewal, err)
		}
		terms.PlanEnd = cycle.FormatDate(end)
	case catalog != nil:
		terms.PlanEnd = cycle.FormatDate(catalog.EndFor(start))
	default:
		return renewal.Terms{}, fmt.Errorf("%w: plan end or plan name is required", ErrInvalidRenewal)
	}

	if err := terms.Validate(); err != nil {
		return renewal.Terms{}, fmt.Errorf("%w: %w", ErrInvalidRenewal, err)
	}
	return terms, nil
}
