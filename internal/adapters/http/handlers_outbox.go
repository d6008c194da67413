package web

import (
	"net/http"
	"time"

	"frontdesk/internal/domain/outbox"
)

type outboxEntryView struct {
	ID              string     `json:"id"`
	ActionType      string     `json:"actionType"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"maxAttempts"`
	LastAttemptedAt *time.Time `json:"lastAttemptedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	ExternalID      string     `json:"externalId,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
}

func newOutboxEntryView(e outbox.Entry) outboxEntryView {
	v := outboxEntryView{
		ID:           e.ID,
		ActionType:   e.ActionType,
		Status:       e.Status,
		Attempts:     e.Attempts,
		MaxAttempts:  e.MaxAttempts,
		CreatedAt:    e.CreatedAt,
		ExternalID:   e.ExternalID,
		ErrorMessage: e.ErrorMessage,
	}
	if !e.LastAttemptedAt.IsZero() {
		t := e.LastAttemptedAt
		v.LastAttemptedAt = &t
	}
	return v
}

// handleAdminListOutbox lists failed deliveries, or pending ones with ?status=pending.
func (s *Server) handleAdminListOutbox(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 100)

	var (
		entries []outbox.Entry
		err     error
	)
	switch r.URL.Query().Get("status") {
	case "", outbox.StatusFailed:
		entries, err = s.stores.OutboxStore.ListFailed(r.Context(), limit)
	case outbox.StatusPending:
		entries, err = s.stores.OutboxStore.ListPending(r.Context(), limit)
	default:
		writeError(w, http.StatusBadRequest, "status must be failed or pending")
		return
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}

	views := make([]outboxEntryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newOutboxEntryView(e))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleAdminOutboxRetry attempts one entry immediately, ignoring its backoff.
func (s *Server) handleAdminOutboxRetry(w http.ResponseWriter, r *http.Request) {
	if err := s.outbox.ProcessSingle(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "retry triggered"})
}

func (s *Server) handleAdminOutboxAbandon(w http.ResponseWriter, r *http.Request) {
	if err := s.outbox.AbandonEntry(r.Context(), r.PathValue("id")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "abandoned"})
}
