package checkintoken

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"frontdesk/internal/domain/member"
)

// Validation failures, checked in this order.
var (
	ErrMalformed      = errors.New("check-in token is malformed")
	ErrExpired        = errors.New("check-in token has expired")
	ErrMemberMismatch = errors.New("check-in token belongs to a different member")
)

// Token is a short-lived proof of presence generated by the member's device.
// Tokens are never persisted; validity depends only on the timestamps.
type Token struct {
	MemberID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
}

type wireToken struct {
	MemberID  string    `json:"memberId"`
	IssuedAt  timestamp `json:"issuedAt"`
	ExpiresAt timestamp `json:"expiresAt"`
	Nonce     string    `json:"nonce,omitempty"`
}

// timestamp accepts an RFC 3339 string or epoch milliseconds.
type timestamp struct {
	time.Time
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = time.UnixMilli(ms).UTC()
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(ms).UTC()
	return nil
}

func (t timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// Parse decodes a token payload. QR scanners deliver either raw JSON or its
// base64 encoding.
// PRE: payload is any string
// POST: Returns a token with MemberID, IssuedAt and ExpiresAt set, or an error wrapping ErrMalformed
func Parse(payload string) (Token, error) {
	raw := []byte(strings.TrimSpace(payload))
	if len(raw) == 0 {
		return Token{}, fmt.Errorf("%w: empty payload", ErrMalformed)
	}
	if raw[0] != '{' {
		decoded, err := decodeBase64(string(raw))
		if err != nil {
			return Token{}, fmt.Errorf("%w: not JSON or base64", ErrMalformed)
		}
		raw = decoded
	}

	var w wireToken
	if err := json.Unmarshal(raw, &w); err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case strings.TrimSpace(w.MemberID) == "":
		return Token{}, fmt.Errorf("%w: memberId is required", ErrMalformed)
	case w.IssuedAt.IsZero():
		return Token{}, fmt.Errorf("%w: issuedAt is required", ErrMalformed)
	case w.ExpiresAt.IsZero():
		return Token{}, fmt.Errorf("%w: expiresAt is required", ErrMalformed)
	case w.ExpiresAt.Before(w.IssuedAt.Time):
		return Token{}, fmt.Errorf("%w: expiresAt precedes issuedAt", ErrMalformed)
	}
	return Token{
		MemberID:  w.MemberID,
		IssuedAt:  w.IssuedAt.Time,
		ExpiresAt: w.ExpiresAt.Time,
		Nonce:     w.Nonce,
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if out, err := enc.DecodeString(s); err == nil {
			return out, nil
		}
	}
	return nil, errors.New("invalid base64")
}

// Check validates freshness and ownership.
// PRE: t was produced by Parse
// POST: ErrExpired if now > ExpiresAt; ErrMemberMismatch if normalized ids differ; nil otherwise
// INVARIANT: valid for every now <= ExpiresAt with a matching member
func (t Token) Check(now time.Time, claimedMemberID string) error {
	if now.After(t.ExpiresAt) {
		return ErrExpired
	}
	if member.NormalizeID(t.MemberID) != member.NormalizeID(claimedMemberID) {
		return ErrMemberMismatch
	}
	return nil
}

// Encode renders the token as base64 JSON, the form member devices display as a QR code.
func (t Token) Encode() (string, error) {
	data, err := json.Marshal(wireToken{
		MemberID:  t.MemberID,
		IssuedAt:  timestamp{t.IssuedAt},
		ExpiresAt: timestamp{t.ExpiresAt},
		Nonce:     t.Nonce,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
