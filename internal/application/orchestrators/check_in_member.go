package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"frontdesk/internal/application/keylock"
	"frontdesk/internal/domain/admission"
	"frontdesk/internal/domain/attendance"
	"frontdesk/internal/domain/member"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("frontdesk/orchestrators")

// MemberReader loads a member by normalized ID.
type MemberReader interface {
	GetByID(ctx context.Context, id string) (member.Member, error)
}

// AttendanceStore defines the attendance persistence the check-in flow needs.
type AttendanceStore interface {
	// ListLedger returns the distinct class dates recorded in the given ledger epoch.
	ListLedger(ctx context.Context, memberID string, epoch int) ([]string, error)
	// Append inserts a unless the member already has a record for a.ClassDate
	// in a.Epoch, in which case it returns attendance.ErrAlreadyRecorded.
	Append(ctx context.Context, a attendance.Attendance) error
}

// CheckInMemberInput carries input for the check-in orchestrator.
type CheckInMemberInput struct {
	MemberID string // as typed or scanned; normalized here
	Token    string // optional QR payload
}

// CheckInMemberDeps holds dependencies for CheckInMember.
type CheckInMemberDeps struct {
	MemberStore     MemberReader
	AttendanceStore AttendanceStore
	Locks           *keylock.Locker
	Now             func() time.Time
	GenerateID      func() string
}

// ExecuteCheckInMember decides whether a member may enter today and records the
// attendance when admitted.
// PRE: MemberID is non-empty after normalization
// POST: Admitted decisions have exactly one new attendance record; rejections write nothing
// INVARIANT: Check-ins for one member are serialized; two concurrent attempts on the
// same day admit exactly once
func ExecuteCheckInMember(ctx context.Context, input CheckInMemberInput, deps CheckInMemberDeps) (admission.Decision, error) {
	memberID := member.NormalizeID(input.MemberID)
	if memberID == "" {
		return admission.Decision{}, admission.ErrMemberIDRequired
	}

	ctx, span := tracer.Start(ctx, "ExecuteCheckInMember")
	defer span.End()
	span.SetAttributes(attribute.String("member.id", memberID), attribute.Bool("checkin.token", input.Token != ""))

	unlock := deps.Locks.Lock(memberID)
	defer unlock()

	now := deps.Now()
	req := admission.Request{Token: input.Token, ClaimedMemberID: memberID, Now: now}

	m, err := deps.MemberStore.GetByID(ctx, memberID)
	switch {
	case errors.Is(err, member.ErrNotFound):
	case err != nil:
		return failCheckIn(span, fmt.Errorf("%w: load member: %w", admission.ErrRetryable, err))
	default:
		req.Member = &m
		ledger, err := deps.AttendanceStore.ListLedger(ctx, memberID, m.LedgerEpoch)
		if err != nil {
			return failCheckIn(span, fmt.Errorf("%w: load ledger: %w", admission.ErrRetryable, err))
		}
		req.Ledger = ledger
	}

	decision := admission.Decide(req)
	if !decision.Admitted() {
		logRejection(memberID, decision)
		span.SetAttributes(attribute.String("checkin.code", string(decision.Code)))
		return decision, nil
	}

	record := attendance.New(deps.GenerateID(), memberID, now)
	record.Epoch = m.LedgerEpoch
	if err := record.Validate(); err != nil {
		return failCheckIn(span, err)
	}
	if err := deps.AttendanceStore.Append(ctx, record); err != nil {
		if errors.Is(err, attendance.ErrAlreadyRecorded) {
			decision = admission.Reject(admission.CodeAlreadyCheckedInToday, "already checked in on %s", record.ClassDate)
			logRejection(memberID, decision)
			return decision, nil
		}
		return failCheckIn(span, fmt.Errorf("%w: record attendance: %w", admission.ErrRetryable, err))
	}

	span.SetAttributes(attribute.String("checkin.status", string(decision.Status)))
	slog.Info("checkin_event", "event", "member_admitted", "member_id", memberID, "date", decision.Date,
		"cycle", decision.Cycle.String(), "effective_quota", decision.EffectiveQuota, "remaining", decision.Remaining,
		"token", input.Token != "")
	return decision, nil
}

func failCheckIn(span trace.Span, err error) (admission.Decision, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	slog.Error("checkin_event", "event", "checkin_failed", "error", err)
	return admission.Decision{}, err
}

func logRejection(memberID string, d admission.Decision) {
	if d.Code == admission.CodePlanDatesInvalid {
		slog.Warn("checkin_event", "event", "plan_dates_invalid", "member_id", memberID, "detail", d.Detail.Message)
		return
	}
	slog.Info("checkin_event", "event", "member_rejected", "member_id", memberID, "code", string(d.Code), "detail", d.Detail.Message)
}
