package web

import (
	"net/http"
	"time"

	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/application/projections"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/renewal"
)

type cycleStatusResponse struct {
	MemberID              string    `json:"memberId"`
	PlanName              string    `json:"planName"`
	PlanStart             string    `json:"planStart"`
	PlanEnd               string    `json:"planEnd"`
	Cycle                 cycleView `json:"cycle"`
	AttendedDates         []string  `json:"attendedDates"`
	NominalQuota          string    `json:"nominalQuota"`
	EffectiveQuota        int       `json:"effectiveQuota"`
	RemainingClasses      int       `json:"remainingClasses"`
	RemainingBusinessDays int       `json:"remainingBusinessDays"`
	RenewalState          string    `json:"renewalState"`
}

func (s *Server) handleCycleStatus(w http.ResponseWriter, r *http.Request) {
	res, err := projections.QueryGetCycleStatus(r.Context(), projections.GetCycleStatusQuery{
		MemberID: r.PathValue("id"),
	}, projections.GetCycleStatusDeps{
		MemberStore:     s.stores.MemberStore,
		AttendanceStore: s.stores.AttendanceStore,
		Now:             s.now,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cycleStatusResponse{
		MemberID:              res.MemberID,
		PlanName:              res.PlanName,
		PlanStart:             res.PlanStart,
		PlanEnd:               res.PlanEnd,
		Cycle:                 cycleView{Start: res.CycleStart, End: res.CycleEnd, Index: res.CycleIndex},
		AttendedDates:         res.AttendedDates,
		NominalQuota:          string(res.NominalQuota),
		EffectiveQuota:        res.EffectiveQuota,
		RemainingClasses:      res.RemainingClasses,
		RemainingBusinessDays: res.RemainingBusinessDays,
		RenewalState:          res.RenewalState,
	})
}

// renewalView is a member's plan and renewal position after a renewal operation.
type renewalView struct {
	MemberID           string     `json:"memberId"`
	PlanName           string     `json:"planName"`
	PlanStart          string     `json:"planStart"`
	PlanEnd            string     `json:"planEnd"`
	NominalQuota       string     `json:"nominalQuota"`
	Price              int        `json:"price"`
	RenewalState       string     `json:"renewalState"`
	RenewalReason      string     `json:"renewalReason,omitempty"`
	RenewalRequestedAt *time.Time `json:"renewalRequestedAt,omitempty"`
}

func newRenewalView(m member.Member) renewalView {
	v := renewalView{
		MemberID:      m.ID,
		PlanName:      m.PlanName,
		PlanStart:     m.PlanStart,
		PlanEnd:       m.PlanEnd,
		NominalQuota:  string(m.Quota),
		Price:         m.Price,
		RenewalState:  string(m.RenewalState.Normalize()),
		RenewalReason: m.RenewalReason,
	}
	if !m.RenewalRequestedAt.IsZero() {
		t := m.RenewalRequestedAt
		v.RenewalRequestedAt = &t
	}
	return v
}

type historyView struct {
	ID            string    `json:"id"`
	PerformedBy   string    `json:"performedBy"`
	PerformedAt   time.Time `json:"performedAt"`
	PreviousState string    `json:"previousState"`
	PlanName      string    `json:"planName"`
	PlanStart     string    `json:"planStart"`
	PlanEnd       string    `json:"planEnd"`
	NominalQuota  string    `json:"nominalQuota"`
	Price         int       `json:"price"`
}

func newHistoryView(h renewal.HistoryEntry) historyView {
	return historyView{
		ID:            h.ID,
		PerformedBy:   h.PerformedBy,
		PerformedAt:   h.PerformedAt,
		PreviousState: string(h.PreviousState),
		PlanName:      h.PlanName,
		PlanStart:     h.PlanStart,
		PlanEnd:       h.PlanEnd,
		NominalQuota:  string(h.Quota),
		Price:         h.Price,
	}
}

func (s *Server) handleRenewalHistory(w http.ResponseWriter, r *http.Request) {
	id := member.NormalizeID(r.PathValue("id"))
	if _, err := s.stores.MemberStore.GetByID(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	entries, err := s.stores.MemberStore.ListHistory(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]historyView, 0, len(entries))
	for _, h := range entries {
		views = append(views, newHistoryView(h))
	}
	writeJSON(w, http.StatusOK, views)
}

type renewalRequestBody struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// handleRenewalRequest lets a member ask for a renewal. An empty body is allowed.
func (s *Server) handleRenewalRequest(w http.ResponseWriter, r *http.Request) {
	var body renewalRequestBody
	if r.ContentLength != 0 && !s.decodeAndValidate(w, r, &body) {
		return
	}
	m, err := orchestrators.ExecuteRequestRenewal(r.Context(), orchestrators.RequestRenewalInput{
		MemberID: r.PathValue("id"),
		Reason:   body.Reason,
	}, s.renewalDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRenewalView(m))
}
