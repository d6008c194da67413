package web

import (
	"errors"
	"net/http"
	"strconv"

	"frontdesk/internal/application/listutil"
	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/application/projections"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/renewal"
)

const maxImportBytes = 5 << 20

type memberRowView struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email,omitempty"`
	Status          string `json:"status"`
	PlanName        string `json:"planName"`
	PlanEnd         string `json:"planEnd"`
	RenewalState    string `json:"renewalState"`
	DaysUntilExpiry *int   `json:"daysUntilExpiry"`
}

type memberListResponse struct {
	Members []memberRowView   `json:"members"`
	Page    listutil.PageInfo `json:"page"`
}

// handleAdminListMembers lists the roster a page at a time, optionally
// filtered by ?status= and ?renewalState=.
func (s *Server) handleAdminListMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := listutil.ParseFilters(q, []string{"status", "renewalState"})
	status, state := filters["status"], filters["renewalState"]
	if status != "" && status != member.StatusActive && status != member.StatusInactive {
		writeError(w, http.StatusBadRequest, "status must be active or inactive")
		return
	}
	if state != "" {
		if err := renewal.State(state).Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	page := listutil.ParsePage(q)

	rows, err := projections.QueryGetMemberList(r.Context(), projections.GetMemberListQuery{
		Status:       status,
		RenewalState: state,
		Limit:        page.Limit(),
		Offset:       page.Offset(),
	}, projections.GetMemberListDeps{MemberStore: s.stores.MemberStore, Now: s.now})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	rows, info := listutil.Trim(rows, page)
	views := make([]memberRowView, 0, len(rows))
	for _, m := range rows {
		views = append(views, memberRowView(m))
	}
	writeJSON(w, http.StatusOK, memberListResponse{Members: views, Page: info})
}

type importRowErrorView struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type importResponse struct {
	Total   int                  `json:"total"`
	Created int                  `json:"created"`
	Updated int                  `json:"updated"`
	Skipped int                  `json:"skipped"`
	DryRun  bool                 `json:"dryRun"`
	Unknown []string             `json:"unknownColumns,omitempty"`
	Errors  []importRowErrorView `json:"errors"`
}

// handleAdminImportMembers syncs the roster from a CSV body.
// ?dryRun=true validates without writing; ?update=true refreshes existing contacts.
func (s *Server) handleAdminImportMembers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dryRun, _ := strconv.ParseBool(q.Get("dryRun"))
	update, _ := strconv.ParseBool(q.Get("update"))

	res, err := orchestrators.ExecuteImportMembers(r.Context(), orchestrators.ImportMembersInput{
		Reader:      http.MaxBytesReader(w, r.Body, maxImportBytes),
		PerformedBy: actor(r),
		DryRun:      dryRun,
		UpdateMode:  update,
	}, orchestrators.ImportMembersDeps{
		MemberStore: s.stores.MemberStore,
		Locks:       s.locks,
		Now:         s.now,
	})
	if err != nil {
		if errors.Is(err, orchestrators.ErrImportFormat) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeDomainError(w, err)
		return
	}

	resp := importResponse{
		Total:   res.Total,
		Created: res.Created,
		Updated: res.Updated,
		Skipped: res.Skipped,
		DryRun:  res.DryRun,
		Unknown: res.Unknown,
		Errors:  make([]importRowErrorView, 0, len(res.Errors)),
	}
	for _, e := range res.Errors {
		resp.Errors = append(resp.Errors, importRowErrorView(e))
	}
	writeJSON(w, http.StatusOK, resp)
}
