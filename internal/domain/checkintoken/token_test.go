package checkintoken_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"frontdesk/internal/domain/checkintoken"

	"github.com/google/uuid"
	"pgregory.net/rapid"
)

var issued = time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

// TestParse tests accepted and rejected payload shapes.
func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "rfc3339 json", payload: `{"memberId":"12.345.678-k","issuedAt":"2025-01-15T09:00:00Z","expiresAt":"2025-01-15T09:05:00Z","nonce":"abc"}`},
		{name: "epoch millis", payload: fmt.Sprintf(`{"memberId":"X","issuedAt":%d,"expiresAt":%d}`, issued.UnixMilli(), issued.Add(5*time.Minute).UnixMilli())},
		{name: "base64 json", payload: "eyJtZW1iZXJJZCI6IlgiLCJpc3N1ZWRBdCI6IjIwMjUtMDEtMTVUMDk6MDA6MDBaIiwiZXhwaXJlc0F0IjoiMjAyNS0wMS0xNVQwOTowNTowMFoifQ=="},
		{name: "empty", payload: "", wantErr: true},
		{name: "garbage", payload: "not a token!", wantErr: true},
		{name: "missing member", payload: `{"issuedAt":"2025-01-15T09:00:00Z","expiresAt":"2025-01-15T09:05:00Z"}`, wantErr: true},
		{name: "missing expiry", payload: `{"memberId":"X","issuedAt":"2025-01-15T09:00:00Z"}`, wantErr: true},
		{name: "bad timestamp", payload: `{"memberId":"X","issuedAt":"yesterday","expiresAt":"2025-01-15T09:05:00Z"}`, wantErr: true},
		{name: "expiry before issue", payload: `{"memberId":"X","issuedAt":"2025-01-15T09:05:00Z","expiresAt":"2025-01-15T09:00:00Z"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := checkintoken.Parse(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, checkintoken.ErrMalformed) {
					t.Errorf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tok.IssuedAt.Equal(issued) || !tok.ExpiresAt.Equal(issued.Add(5*time.Minute)) {
				t.Errorf("timestamps = %s / %s", tok.IssuedAt, tok.ExpiresAt)
			}
		})
	}
}

// TestCheck_ExpiredAfterFiveMinuteLifetime evaluates a five minute token at six minutes.
func TestCheck_ExpiredAfterFiveMinuteLifetime(t *testing.T) {
	tok := checkintoken.Token{MemberID: "X", IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute)}
	if err := tok.Check(issued.Add(6*time.Minute), "X"); !errors.Is(err, checkintoken.ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
	if err := tok.Check(issued.Add(5*time.Minute), "X"); err != nil {
		t.Errorf("expected token valid at expiry instant, got %v", err)
	}
}

// TestCheck_MemberMismatch tests that ids are compared after normalization.
func TestCheck_MemberMismatch(t *testing.T) {
	tok := checkintoken.Token{MemberID: "12.345.678-k", IssuedAt: issued, ExpiresAt: issued.Add(time.Minute)}
	if err := tok.Check(issued, "12345678K"); err != nil {
		t.Errorf("expected match after normalization, got %v", err)
	}
	if err := tok.Check(issued, "87654321"); !errors.Is(err, checkintoken.ErrMemberMismatch) {
		t.Errorf("expected ErrMemberMismatch, got %v", err)
	}
}

// TestCheck_ExpiryWinsOverMismatch tests check ordering.
func TestCheck_ExpiryWinsOverMismatch(t *testing.T) {
	tok := checkintoken.Token{MemberID: "A", IssuedAt: issued, ExpiresAt: issued.Add(time.Minute)}
	if err := tok.Check(issued.Add(time.Hour), "B"); !errors.Is(err, checkintoken.ErrExpired) {
		t.Errorf("expected ErrExpired first, got %v", err)
	}
}

// TestEncodeRoundTrip tests that encoded tokens parse back.
func TestEncodeRoundTrip(t *testing.T) {
	tok := checkintoken.Token{MemberID: "12345678K", IssuedAt: issued, ExpiresAt: issued.Add(5 * time.Minute), Nonce: uuid.NewString()}
	encoded, err := tok.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := checkintoken.Parse(encoded)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.MemberID != tok.MemberID || got.Nonce != tok.Nonce || !got.ExpiresAt.Equal(tok.ExpiresAt) {
		t.Errorf("round trip mismatch: %+v vs %+v", got, tok)
	}
}

// TestCheck_FreshnessIsMonotonic: valid strictly before expiry, invalid strictly after.
func TestCheck_FreshnessIsMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lifetime := time.Duration(rapid.Int64Range(1, int64(30*time.Minute)).Draw(t, "lifetime"))
		offset := time.Duration(rapid.Int64Range(-int64(time.Hour), int64(time.Hour)).Draw(t, "offset"))
		tok := checkintoken.Token{MemberID: "X", IssuedAt: issued, ExpiresAt: issued.Add(lifetime)}
		now := tok.ExpiresAt.Add(offset)
		err := tok.Check(now, "X")
		if offset <= 0 && err != nil {
			t.Fatalf("expected valid at expiry%+v, got %v", offset, err)
		}
		if offset > 0 && !errors.Is(err, checkintoken.ErrExpired) {
			t.Fatalf("expected expired at expiry+%v, got %v", offset, err)
		}
	})
}
