package web

import (
	"net/http"

	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/domain/admission"
	"frontdesk/internal/domain/cycle"
)

type checkInRequest struct {
	MemberID string `json:"memberId" validate:"required,max=32"`
	Token    string `json:"token,omitempty" validate:"max=4096"`
}

type cycleView struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Index int    `json:"index"`
}

type admittedResponse struct {
	Status                admission.Status `json:"status"`
	Date                  string           `json:"date"`
	EffectiveQuota        int              `json:"effectiveQuota"`
	Remaining             int              `json:"remaining"`
	RemainingBusinessDays int              `json:"remainingBusinessDays"`
	Cycle                 cycleView        `json:"cycle"`
}

type rejectedResponse struct {
	Status admission.Status `json:"status"`
	Code   admission.Code   `json:"code"`
	Detail admission.Detail `json:"detail"`
}

func newCycleView(c cycle.Cycle) cycleView {
	return cycleView{Start: cycle.FormatDate(c.Start), End: cycle.FormatDate(c.End), Index: c.Index}
}

// handleCheckIn admits or rejects a member at the door.
// Rejections are answered with 200 because they are normal outcomes; a
// malformed token is the caller's fault and gets 400.
func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	d, err := orchestrators.ExecuteCheckInMember(r.Context(), orchestrators.CheckInMemberInput{
		MemberID: req.MemberID,
		Token:    req.Token,
	}, s.checkInDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.collector != nil {
		s.collector.RecordDecision(string(d.Status), string(d.Code))
	}

	if !d.Admitted() {
		status := http.StatusOK
		if d.Code.IsInputError() {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, rejectedResponse{Status: d.Status, Code: d.Code, Detail: d.Detail})
		return
	}
	writeJSON(w, http.StatusOK, admittedResponse{
		Status:                d.Status,
		Date:                  d.Date,
		EffectiveQuota:        d.EffectiveQuota,
		Remaining:             d.Remaining,
		RemainingBusinessDays: d.RemainingBusinessDays,
		Cycle:                 newCycleView(d.Cycle),
	})
}
