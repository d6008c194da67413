package notice

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Notice kinds
const (
	KindManual    = "manual"
	KindAutomatic = "automatic"
)

// SenderSystem marks notices generated by scheduled jobs.
const SenderSystem = "SYSTEM"

// DefaultCooldown is how long an automatic notice suppresses another one with
// the same recipient and reason.
const DefaultCooldown = 24 * time.Hour

// Max length constants for user-editable fields.
const (
	MaxTitleLength   = 200
	MaxContentLength = 10000
)

// Domain errors
var (
	ErrEmptyTitle     = errors.New("notice title cannot be empty")
	ErrEmptyContent   = errors.New("notice content cannot be empty")
	ErrNoRecipients   = errors.New("notice must have at least one recipient")
	ErrInvalidKind    = errors.New("notice kind must be one of: manual, automatic")
	ErrMissingReason  = errors.New("automatic notice requires a reason code")
	ErrEmptySender    = errors.New("notice sender cannot be empty")
	ErrTitleTooLong   = errors.New("notice title cannot exceed 200 characters")
	ErrContentTooLong = errors.New("notice content cannot exceed 10000 characters")
)

// Notice is a message addressed to one or more members. Content is Markdown.
// Notices are never mutated after creation.
type Notice struct {
	ID         string
	Title      string
	Content    string
	Sender     string // SenderSystem for automatic notices, actor otherwise
	Recipients []string
	Kind       string // manual, automatic
	ReasonCode string // e.g. expiry_in_3_days; empty for manual notices
	CreatedAt  time.Time
}

// ExpiryReason returns the reason code for a plan ending in days days.
func ExpiryReason(days int) string {
	if days == 1 {
		return "expiry_in_1_day"
	}
	return fmt.Sprintf("expiry_in_%d_days", days)
}

// Validate checks if the Notice has valid data.
// PRE: Notice struct is populated
// POST: Returns nil if valid, error otherwise
func (n *Notice) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return ErrEmptyTitle
	}
	if len(n.Title) > MaxTitleLength {
		return ErrTitleTooLong
	}
	if strings.TrimSpace(n.Content) == "" {
		return ErrEmptyContent
	}
	if len(n.Content) > MaxContentLength {
		return ErrContentTooLong
	}
	if n.Sender == "" {
		return ErrEmptySender
	}
	if len(n.Recipients) == 0 {
		return ErrNoRecipients
	}
	switch n.Kind {
	case KindManual:
	case KindAutomatic:
		if n.ReasonCode == "" {
			return ErrMissingReason
		}
	default:
		return ErrInvalidKind
	}
	return nil
}

// IsAutomatic returns true for notices generated by scheduled jobs.
func (n *Notice) IsAutomatic() bool {
	return n.Kind == KindAutomatic
}

// HasRecipient reports whether id is among the notice's recipients.
func (n *Notice) HasRecipient(id string) bool {
	for _, r := range n.Recipients {
		if r == id {
			return true
		}
	}
	return false
}

// IsDuplicate reports whether an automatic notice for (recipient, reason) was
// created within cooldown before now.
// PRE: existing may contain notices of any kind, recipient and age
// POST: true only if a matching automatic notice has now - CreatedAt < cooldown
// INVARIANT: pure
func IsDuplicate(existing []Notice, recipient, reason string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	for i := range existing {
		n := &existing[i]
		if !n.IsAutomatic() || n.ReasonCode != reason || !n.HasRecipient(recipient) {
			continue
		}
		age := now.Sub(n.CreatedAt)
		if age >= 0 && age < cooldown {
			return true
		}
	}
	return false
}
