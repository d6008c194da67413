package email

import (
	"context"
	"time"
)

// SendRequest is one outgoing message.
type SendRequest struct {
	To       []string
	From     string // falls back to the sender's default when empty
	Subject  string
	HTML     string
	ReplyTo  string
	Category string // provider tag used to group deliveries, e.g. "notice"
}

// SendResult is the provider's acknowledgement of a message.
type SendResult struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers e-mail through an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
	SendBatch(ctx context.Context, reqs []SendRequest) ([]SendResult, error)
}
