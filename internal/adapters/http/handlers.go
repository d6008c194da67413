package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/application/projections"
	"frontdesk/internal/domain/admission"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/notice"
	"frontdesk/internal/domain/outbox"
	"frontdesk/internal/domain/renewal"

	"github.com/go-playground/validator/v10"
)

// maxBodyBytes bounds JSON request bodies. Notice content is the largest field.
const maxBodyBytes = 64 << 10

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// writeStoreError answers a store call made by the handler itself. Missing
// members and outbox entries are 404; any other failure is retryable.
func writeStoreError(w http.ResponseWriter, err error) {
	if !errors.Is(err, member.ErrNotFound) && !errors.Is(err, outbox.ErrNotFound) {
		err = fmt.Errorf("%w: %w", admission.ErrRetryable, err)
	}
	writeDomainError(w, err)
}

// decodeAndValidate reads a JSON body, rejecting unknown fields, then runs
// struct validation. It writes the 400 response itself and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "invalid input")
			return false
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			fields[fe.Field()] = fe.Tag()
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}

// queryLimit parses ?limit=, falling back to def for missing or out-of-range values.
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > max {
		return def
	}
	return n
}

// inputErrors are domain errors caused by the request itself.
var inputErrors = []error{
	admission.ErrMemberIDRequired,
	member.ErrEmptyID,
	renewal.ErrReasonTooLong,
	renewal.ErrEmptyPerformer,
	orchestrators.ErrInvalidRenewal,
	projections.ErrInvalidRange,
	notice.ErrEmptyTitle,
	notice.ErrEmptyContent,
	notice.ErrNoRecipients,
	notice.ErrEmptySender,
	notice.ErrTitleTooLong,
	notice.ErrContentTooLong,
	notice.ErrMissingReason,
	notice.ErrInvalidKind,
}

// writeDomainError maps an orchestrator or projection error to a response:
// retryable infrastructure failures become 503, unknown members 404, illegal
// renewal transitions 409 and request problems 400. Anything else is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, admission.ErrRetryable):
		slog.Error("retryable_error", "error", err.Error())
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable, retry")
		return
	case errors.Is(err, member.ErrNotFound), errors.Is(err, outbox.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, renewal.ErrInvalidTransition), errors.Is(err, outbox.ErrTerminal):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, member.ErrPlanDatesInvalid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	internalError(w, err)
}
