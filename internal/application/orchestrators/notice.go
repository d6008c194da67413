package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"frontdesk/internal/application/keylock"
	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/notice"
	"frontdesk/internal/domain/outbox"
)

// NoticeStoreForOrchestrator defines the store interface needed by notice orchestrators.
type NoticeStoreForOrchestrator interface {
	Save(ctx context.Context, n notice.Notice) error
	// ListAutomaticSince returns automatic notices for recipient and reason created at or after since.
	ListAutomaticSince(ctx context.Context, recipient, reason string, since time.Time) ([]notice.Notice, error)
}

// OutboxWriter enqueues side effects for the background processor.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

// NoticeEmailRecipient is one addressee of a notice e-mail.
type NoticeEmailRecipient struct {
	MemberID string `json:"memberId"`
	Name     string `json:"name"`
	Address  string `json:"address"`
}

// NoticeEmailPayload is the outbox payload for ActionTypeNoticeEmail.
type NoticeEmailPayload struct {
	NoticeID   string                 `json:"noticeId"`
	Title      string                 `json:"title"`
	Markdown   string                 `json:"markdown"`
	Recipients []NoticeEmailRecipient `json:"recipients"`
}

// --- Create Notice ---

// CreateNoticeInput carries input for a manual notice.
type CreateNoticeInput struct {
	Title      string
	Content    string
	Recipients []string
	Sender     string // actor creating the notice
}

// CreateNoticeDeps holds dependencies for CreateNotice.
type CreateNoticeDeps struct {
	NoticeStore NoticeStoreForOrchestrator
	MemberStore MemberReader // optional: used to address e-mails
	Outbox      OutboxWriter // optional: nil skips e-mail delivery
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteCreateNotice creates a manual notice for a set of members.
// PRE: Sender, Title, Content non-empty; at least one recipient
// POST: Notice stored with normalized, de-duplicated recipients; e-mail enqueued for recipients with an address
func ExecuteCreateNotice(ctx context.Context, input CreateNoticeInput, deps CreateNoticeDeps) (notice.Notice, error) {
	if strings.TrimSpace(input.Sender) == "" {
		return notice.Notice{}, notice.ErrEmptySender
	}

	n := notice.Notice{
		ID:         deps.GenerateID(),
		Title:      strings.TrimSpace(input.Title),
		Content:    input.Content,
		Sender:     strings.TrimSpace(input.Sender),
		Recipients: normalizeRecipients(input.Recipients),
		Kind:       notice.KindManual,
		CreatedAt:  deps.Now(),
	}
	if err := n.Validate(); err != nil {
		return notice.Notice{}, err
	}
	if err := deps.NoticeStore.Save(ctx, n); err != nil {
		return notice.Notice{}, storeFailure("save notice", err)
	}
	slog.Info("notice_event", "event", "notice_created", "notice_id", n.ID, "kind", n.Kind, "sender", n.Sender, "recipients", len(n.Recipients))

	if deps.Outbox != nil && deps.MemberStore != nil {
		var addressees []NoticeEmailRecipient
		for _, id := range n.Recipients {
			m, err := deps.MemberStore.GetByID(ctx, id)
			if err != nil {
				if !errors.Is(err, member.ErrNotFound) {
					slog.Warn("notice_event", "event", "recipient_lookup_failed", "notice_id", n.ID, "member_id", id, "error", err)
				}
				continue
			}
			if m.Email != "" {
				addressees = append(addressees, NoticeEmailRecipient{MemberID: m.ID, Name: m.Name, Address: m.Email})
			}
		}
		enqueueNoticeEmail(ctx, deps.Outbox, n, addressees, deps.GenerateID, deps.Now())
	}
	return n, nil
}

func normalizeRecipients(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id := member.NormalizeID(r)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// --- Automatic Notice ---

// SendAutomaticNoticeInput carries one automatic notice for one member.
type SendAutomaticNoticeInput struct {
	Recipient  member.Member
	ReasonCode string
	Title      string
	Content    string
}

// SendAutomaticNoticeDeps holds dependencies for SendAutomaticNotice.
type SendAutomaticNoticeDeps struct {
	NoticeStore NoticeStoreForOrchestrator
	Outbox      OutboxWriter // optional
	Locks       *keylock.Locker
	Cooldown    time.Duration // zero means notice.DefaultCooldown
	GenerateID  func() string
	Now         func() time.Time
}

// ExecuteSendAutomaticNotice creates an automatic notice unless one with the same
// recipient and reason was created within the cooldown.
// PRE: Recipient.ID and ReasonCode are non-empty
// POST: Returns created=false when suppressed; otherwise the notice is stored and its e-mail enqueued
// INVARIANT: check-then-create is serialized per (recipient, reason)
func ExecuteSendAutomaticNotice(ctx context.Context, input SendAutomaticNoticeInput, deps SendAutomaticNoticeDeps) (notice.Notice, bool, error) {
	recipient := member.NormalizeID(input.Recipient.ID)
	if recipient == "" {
		return notice.Notice{}, false, member.ErrEmptyID
	}
	if input.ReasonCode == "" {
		return notice.Notice{}, false, notice.ErrMissingReason
	}
	cooldown := deps.Cooldown
	if cooldown <= 0 {
		cooldown = notice.DefaultCooldown
	}

	unlock := deps.Locks.Lock("notice:" + recipient + ":" + input.ReasonCode)
	defer unlock()

	now := deps.Now()
	existing, err := deps.NoticeStore.ListAutomaticSince(ctx, recipient, input.ReasonCode, now.Add(-cooldown))
	if err != nil {
		return notice.Notice{}, false, storeFailure("list recent notices", err)
	}
	if notice.IsDuplicate(existing, recipient, input.ReasonCode, now, cooldown) {
		slog.Info("notice_event", "event", "notice_suppressed", "member_id", recipient, "reason", input.ReasonCode)
		return notice.Notice{}, false, nil
	}

	n := notice.Notice{
		ID:         deps.GenerateID(),
		Title:      input.Title,
		Content:    input.Content,
		Sender:     notice.SenderSystem,
		Recipients: []string{recipient},
		Kind:       notice.KindAutomatic,
		ReasonCode: input.ReasonCode,
		CreatedAt:  now,
	}
	if err := n.Validate(); err != nil {
		return notice.Notice{}, false, err
	}
	if err := deps.NoticeStore.Save(ctx, n); err != nil {
		return notice.Notice{}, false, storeFailure("save notice", err)
	}
	slog.Info("notice_event", "event", "notice_created", "notice_id", n.ID, "kind", n.Kind, "member_id", recipient, "reason", n.ReasonCode)

	if deps.Outbox != nil && input.Recipient.Email != "" {
		enqueueNoticeEmail(ctx, deps.Outbox, n, []NoticeEmailRecipient{{
			MemberID: recipient, Name: input.Recipient.Name, Address: input.Recipient.Email,
		}}, deps.GenerateID, now)
	}
	return n, true, nil
}

// enqueueNoticeEmail records the delivery in the outbox. The notice itself is
// already stored, so failures here are logged rather than returned.
func enqueueNoticeEmail(ctx context.Context, w OutboxWriter, n notice.Notice, to []NoticeEmailRecipient, generateID func() string, now time.Time) {
	if len(to) == 0 {
		return
	}
	payload, err := json.Marshal(NoticeEmailPayload{NoticeID: n.ID, Title: n.Title, Markdown: n.Content, Recipients: to})
	if err != nil {
		slog.Error("notice_event", "event", "notice_email_encode_failed", "notice_id", n.ID, "error", err)
		return
	}
	entry := outbox.NewEntry(generateID(), outbox.ActionTypeNoticeEmail, string(payload), now)
	if err := w.Save(ctx, entry); err != nil {
		slog.Error("notice_event", "event", "notice_email_enqueue_failed", "notice_id", n.ID, "error", err)
		return
	}
	slog.Info("notice_event", "event", "notice_email_enqueued", "notice_id", n.ID, "outbox_id", entry.ID, "recipients", len(to))
}
