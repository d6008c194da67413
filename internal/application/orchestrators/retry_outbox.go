package orchestrators

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"frontdesk/internal/adapters/email"
	domain "frontdesk/internal/domain/outbox"

	"github.com/yuin/goldmark"
)

// OutboxStore defines the outbox persistence the processor needs.
type OutboxStore interface {
	GetByID(ctx context.Context, id string) (domain.Entry, error)
	Save(ctx context.Context, e domain.Entry) error
	ListPending(ctx context.Context, limit int) ([]domain.Entry, error)
}

// OutboxProcessor delivers pending outbox entries with exponential backoff.
type OutboxProcessor struct {
	store     OutboxStore
	executors map[string]ActionExecutor
	now       func() time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the external ID (e.g. provider message ID) and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store OutboxStore, executors map[string]ActionExecutor, now func() time.Time) *OutboxProcessor {
	if now == nil {
		now = time.Now
	}
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		now:       now,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 10,
	}
}

// ProcessPending processes due outbox entries.
// PRE: Context is valid
// POST: Due entries are attempted; failures stay queued until attempts run out
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	entries, err := p.store.ListPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("list pending outbox entries: %w", err)
	}

	for _, entry := range entries {
		if err := p.processEntry(ctx, entry); err != nil {
			slog.Error("outbox_process_failed", "entry_id", entry.ID, "action_type", entry.ActionType, "error", err.Error())
		}
	}
	return nil
}

func (p *OutboxProcessor) processEntry(ctx context.Context, entry domain.Entry) error {
	now := p.now()
	if now.Before(entry.DueAt(p.baseDelay, p.maxDelay)) {
		return nil
	}
	return p.attempt(ctx, entry, now)
}

func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry, now time.Time) error {
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.MarkAttempt(now)
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		return p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(now)
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		slog.Warn("outbox_action_failed", "entry_id", entry.ID, "attempt", entry.Attempts, "error", err.Error())
	} else {
		entry.MarkSuccess(externalID)
		slog.Info("outbox_action_succeeded", "entry_id", entry.ID, "action_type", entry.ActionType, "external_id", externalID)
	}
	return p.store.Save(ctx, entry)
}

// ProcessSingle processes one entry immediately, ignoring backoff (admin retry).
// PRE: entryID is non-empty
// POST: Entry is attempted and its status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return storeFailure("get outbox entry", err)
	}
	if entry.IsTerminal() {
		return fmt.Errorf("%w: %s", domain.ErrTerminal, entryID)
	}
	if err := p.attempt(ctx, entry, p.now()); err != nil {
		return storeFailure("save outbox entry", err)
	}
	return nil
}

// AbandonEntry marks an entry as abandoned by an admin.
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) error {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return storeFailure("get outbox entry", err)
	}
	entry.MarkAbandoned()
	if err := p.store.Save(ctx, entry); err != nil {
		return storeFailure("save outbox entry", err)
	}
	return nil
}

// --- Notice Email Executor ---

// NoticeEmailExecutor renders a notice's Markdown and sends it to each addressee.
type NoticeEmailExecutor struct {
	Sender  email.Sender
	From    string
	ReplyTo string
}

// Execute sends the notice e-mail from the payload.
// PRE: payload is valid JSON matching NoticeEmailPayload
// POST: One e-mail per recipient accepted by the provider; returns the first message ID
// INVARIANT: outbox entry status managed by caller
func (e *NoticeEmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var p NoticeEmailPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(p.Recipients) == 0 {
		return "", errors.New("notice email has no recipients")
	}

	body, err := RenderNoticeHTML(p.Markdown)
	if err != nil {
		return "", err
	}

	reqs := make([]email.SendRequest, 0, len(p.Recipients))
	for _, r := range p.Recipients {
		greeting := ""
		if r.Name != "" {
			greeting = "<p>" + html.EscapeString(r.Name) + ",</p>"
		}
		reqs = append(reqs, email.SendRequest{
			To:       []string{r.Address},
			From:     e.From,
			Subject:  p.Title,
			HTML:     greeting + body,
			ReplyTo:  e.ReplyTo,
			Category: "notice",
		})
	}

	if len(reqs) == 1 {
		res, err := e.Sender.Send(ctx, reqs[0])
		if err != nil {
			return "", err
		}
		return res.MessageID, nil
	}
	results, err := e.Sender.SendBatch(ctx, reqs)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.MessageID)
	}
	return strings.Join(ids, ","), nil
}

// RenderNoticeHTML converts a notice's Markdown body to HTML. Raw HTML in the
// source is not passed through.
func RenderNoticeHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return buf.String(), nil
}

// --- Background Worker ---

// StartBackgroundWorker starts a goroutine that periodically processes pending outbox entries.
// PRE: stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed
func StartBackgroundWorker(processor *OutboxProcessor, interval time.Duration, stopCh <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := processor.ProcessPending(ctx); err != nil {
					slog.Error("outbox_background_process_failed", "error", err.Error())
				}
				cancel()
			case <-stopCh:
				slog.Info("outbox_background_worker_stopped")
				return
			}
		}
	}()
}
