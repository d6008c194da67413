package web

import (
	"errors"
	"net/http"
	"time"

	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/application/projections"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/notice"
)

type noticeView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Sender     string    `json:"sender"`
	Recipients []string  `json:"recipients"`
	Kind       string    `json:"kind"`
	ReasonCode string    `json:"reasonCode,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newNoticeView(n notice.Notice) noticeView {
	return noticeView{
		ID:         n.ID,
		Title:      n.Title,
		Body:       n.Content,
		Sender:     n.Sender,
		Recipients: n.Recipients,
		Kind:       n.Kind,
		ReasonCode: n.ReasonCode,
		CreatedAt:  n.CreatedAt,
	}
}

// handleListNotices lists the notices addressed to ?memberId=, newest first.
func (s *Server) handleListNotices(w http.ResponseWriter, r *http.Request) {
	id := member.NormalizeID(r.URL.Query().Get("memberId"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "memberId is required")
		return
	}
	if _, err := s.stores.MemberStore.GetByID(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	notices, err := projections.QueryGetMemberNotices(r.Context(), projections.GetMemberNoticesQuery{
		MemberID: id,
		Limit:    queryLimit(r, 50, 200),
	}, projections.GetMemberNoticesDeps{NoticeStore: s.stores.NoticeStore})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	views := make([]noticeView, 0, len(notices))
	for _, n := range notices {
		views = append(views, newNoticeView(n))
	}
	writeJSON(w, http.StatusOK, views)
}

type createNoticeRequest struct {
	Recipients []string `json:"recipients" validate:"required,min=1,max=500,dive,required,max=32"`
	Title      string   `json:"title" validate:"required,max=200"`
	Body       string   `json:"body" validate:"required,max=10000"`
	Kind       string   `json:"kind,omitempty" validate:"omitempty,oneof=manual automatic"`
	ReasonCode string   `json:"reasonCode,omitempty" validate:"required_if=Kind automatic,max=64"`
}

type automaticOutcome struct {
	MemberID string      `json:"memberId"`
	Created  bool        `json:"created"`
	Notice   *noticeView `json:"notice,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// handleAdminCreateNotice creates a manual notice for all recipients, or, for
// kind=automatic, one deduplicated notice per recipient.
func (s *Server) handleAdminCreateNotice(w http.ResponseWriter, r *http.Request) {
	var req createNoticeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if req.Kind == notice.KindAutomatic {
		s.createAutomaticNotices(w, r, req)
		return
	}

	n, err := orchestrators.ExecuteCreateNotice(r.Context(), orchestrators.CreateNoticeInput{
		Title:      req.Title,
		Content:    req.Body,
		Recipients: req.Recipients,
		Sender:     actor(r),
	}, orchestrators.CreateNoticeDeps{
		NoticeStore: s.stores.NoticeStore,
		MemberStore: s.stores.MemberStore,
		Outbox:      s.stores.OutboxStore,
		GenerateID:  s.opts.GenerateID,
		Now:         s.now,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if s.collector != nil {
		s.collector.RecordNotice(notice.KindManual, "created", 1)
	}
	writeJSON(w, http.StatusCreated, newNoticeView(n))
}

func (s *Server) createAutomaticNotices(w http.ResponseWriter, r *http.Request, req createNoticeRequest) {
	deps := s.automaticNoticeDeps()
	outcomes := make([]automaticOutcome, 0, len(req.Recipients))
	created, suppressed := 0, 0
	seen := make(map[string]bool, len(req.Recipients))

	for _, raw := range req.Recipients {
		id := member.NormalizeID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		m, err := s.stores.MemberStore.GetByID(r.Context(), id)
		if err != nil {
			if !errors.Is(err, member.ErrNotFound) {
				writeStoreError(w, err)
				return
			}
			outcomes = append(outcomes, automaticOutcome{MemberID: id, Error: err.Error()})
			continue
		}

		n, ok, err := orchestrators.ExecuteSendAutomaticNotice(r.Context(), orchestrators.SendAutomaticNoticeInput{
			Recipient:  m,
			ReasonCode: req.ReasonCode,
			Title:      req.Title,
			Content:    req.Body,
		}, deps)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		outcome := automaticOutcome{MemberID: id, Created: ok}
		if ok {
			view := newNoticeView(n)
			outcome.Notice = &view
			created++
		} else {
			suppressed++
		}
		outcomes = append(outcomes, outcome)
	}

	if s.collector != nil {
		s.collector.RecordNotice(notice.KindAutomatic, "created", created)
		s.collector.RecordNotice(notice.KindAutomatic, "suppressed", suppressed)
	}
	writeJSON(w, http.StatusOK, outcomes)
}
