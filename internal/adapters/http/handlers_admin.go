package web

import (
	"fmt"
	"log/slog"
	"net/http"

	"frontdesk/internal/adapters/export"
	"frontdesk/internal/adapters/http/middleware"
	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/application/projections"
)

// actor returns the X-Actor value. Admin routes are guarded by the Actor
// middleware, so it is always present there.
func actor(r *http.Request) string {
	a, _ := middleware.ActorFromContext(r.Context())
	return a
}

type renewRequest struct {
	MemberID      string `json:"memberId" validate:"required,max=32"`
	PlanName      string `json:"planName,omitempty" validate:"max=100"`
	PlanStart     string `json:"planStart,omitempty" validate:"omitempty,datetime=2006-01-02"`
	PlanEnd       string `json:"planEnd,omitempty" validate:"omitempty,datetime=2006-01-02"`
	NominalQuota  string `json:"nominalQuota,omitempty" validate:"omitempty,oneof=unlimited 12 8"`
	PriceOverride *int   `json:"priceOverride,omitempty" validate:"omitempty,min=0"`
	Discount      int    `json:"discount,omitempty" validate:"min=0,max=100"`
}

type renewResponse struct {
	Member  renewalView `json:"member"`
	History historyView `json:"history"`
}

// handleAdminRenew assigns new plan terms and resets the member's ledger.
func (s *Server) handleAdminRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	res, err := orchestrators.ExecuteRenewMember(r.Context(), orchestrators.RenewMemberInput{
		MemberID:        req.MemberID,
		PlanName:        req.PlanName,
		PlanStart:       req.PlanStart,
		PlanEnd:         req.PlanEnd,
		Quota:           req.NominalQuota,
		PriceOverride:   req.PriceOverride,
		DiscountPercent: req.Discount,
		PerformedBy:     actor(r),
	}, s.renewalDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, renewResponse{Member: newRenewalView(res.Member), History: newHistoryView(res.History)})
}

func (s *Server) handleAdminRenewalProcessing(w http.ResponseWriter, r *http.Request) {
	m, err := orchestrators.ExecuteBeginRenewalProcessing(r.Context(), r.PathValue("id"), s.renewalDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRenewalView(m))
}

func (s *Server) handleAdminRenewalRevert(w http.ResponseWriter, r *http.Request) {
	m, err := orchestrators.ExecuteRevertRenewal(r.Context(), r.PathValue("id"), s.renewalDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRenewalView(m))
}

type expiryScanResponse struct {
	Scanned    int `json:"scanned"`
	Sent       int `json:"sent"`
	Suppressed int `json:"suppressed"`
	Invalid    int `json:"invalid"`
}

// handleAdminExpiryScan runs the expiry notice scan now instead of waiting for the ticker.
func (s *Server) handleAdminExpiryScan(w http.ResponseWriter, r *http.Request) {
	res, err := orchestrators.ExecuteExpiryScan(r.Context(), s.ExpiryScanDeps())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.collector != nil {
		s.collector.RecordNotice("automatic", "created", res.Sent)
		s.collector.RecordNotice("automatic", "suppressed", res.Suppressed)
	}
	writeJSON(w, http.StatusOK, expiryScanResponse{
		Scanned:    res.Scanned,
		Sent:       res.Sent,
		Suppressed: res.Suppressed,
		Invalid:    res.Invalid,
	})
}

type reportRowView struct {
	ClassDate   string `json:"classDate"`
	CheckInTime string `json:"checkInTime"`
	MemberID    string `json:"memberId"`
	MemberName  string `json:"memberName"`
	PlanName    string `json:"planName"`
}

// handleAdminAttendanceExport returns attendance in [from, to] as XLSX, or as
// JSON when format=json.
func (s *Server) handleAdminAttendanceExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to := q.Get("from"), q.Get("to")
	rows, err := projections.QueryGetAttendanceReport(r.Context(), projections.GetAttendanceReportQuery{
		From: from,
		To:   to,
	}, projections.GetAttendanceReportDeps{
		MemberStore:     s.stores.MemberStore,
		AttendanceStore: s.stores.AttendanceStore,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	switch q.Get("format") {
	case "json":
		views := make([]reportRowView, 0, len(rows))
		for _, row := range rows {
			views = append(views, reportRowView{
				ClassDate:   row.ClassDate,
				CheckInTime: row.CheckInTime.In(s.opts.Location).Format("2006-01-02T15:04:05Z07:00"),
				MemberID:    row.MemberID,
				MemberName:  row.MemberName,
				PlanName:    row.PlanName,
			})
		}
		writeJSON(w, http.StatusOK, views)
	case "", "xlsx":
		w.Header().Set("Content-Type", export.ContentTypeXLSX)
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attendance_%s_%s.xlsx"`, from, to))
		if err := export.WriteAttendanceXLSX(w, rows, s.opts.Location); err != nil {
			// Headers are already sent.
			slog.Error("export_failed", "from", from, "to", to, "error", err)
		}
	default:
		writeError(w, http.StatusBadRequest, "format must be xlsx or json")
	}
}

type planView struct {
	Name         string `json:"name"`
	NominalQuota string `json:"nominalQuota"`
	Duration     string `json:"duration"`
	Price        int    `json:"price"`
	Description  string `json:"description,omitempty"`
}

func (s *Server) handleAdminListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.stores.PlanStore.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			Name:         p.Name,
			NominalQuota: string(p.Quota),
			Duration:     p.Duration,
			Price:        p.Price,
			Description:  p.Description,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.DB != nil {
		if err := s.opts.DB.PingContext(r.Context()); err != nil {
			slog.Error("health_check_failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
