package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRateLimiter_BurstThenBlock(t *testing.T) {
	rl := NewRateLimiter(2)
	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("1.1.1.1") || !rl.Allow("1.1.1.1") {
		t.Fatal("burst should be allowed")
	}
	if rl.Allow("1.1.1.1") {
		t.Error("third request in the same instant should be blocked")
	}
	if !rl.Allow("2.2.2.2") {
		t.Error("other IPs have their own bucket")
	}

	now = now.Add(time.Second)
	if !rl.Allow("1.1.1.1") {
		t.Error("tokens should refill after a second")
	}

	now = now.Add(10 * time.Minute)
	if n := rl.Sweep(5 * time.Minute); n != 2 {
		t.Errorf("Sweep removed %d, want 2", n)
	}
}

func TestRateLimit_Middleware(t *testing.T) {
	h := RateLimit(NewRateLimiter(1))(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/health", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	first := httptest.NewRecorder()
	h.ServeHTTP(first, req)
	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)

	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("codes = %d, %d", first.Code, second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
}

func TestRateLimiter_ClientIP(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8"), netip.MustParsePrefix("192.168.1.1/32")}
	tests := []struct {
		name      string
		trusted   []netip.Prefix
		remote    string
		forwarded []string
		want      string
	}{
		{name: "no proxies configured", remote: "10.0.0.5:443", forwarded: []string{"203.0.113.7"}, want: "10.0.0.5"},
		{name: "untrusted peer ignores header", trusted: proxies, remote: "198.51.100.9:443", forwarded: []string{"203.0.113.7"}, want: "198.51.100.9"},
		{name: "trusted peer uses last hop", trusted: proxies, remote: "10.0.0.5:443", forwarded: []string{"203.0.113.7"}, want: "203.0.113.7"},
		{name: "spoofed leftmost hop is skipped", trusted: proxies, remote: "10.0.0.5:443", forwarded: []string{"1.2.3.4, 203.0.113.7"}, want: "203.0.113.7"},
		{name: "proxy chain", trusted: proxies, remote: "10.0.0.5:443", forwarded: []string{"203.0.113.7, 192.168.1.1"}, want: "203.0.113.7"},
		{name: "repeated headers", trusted: proxies, remote: "10.0.0.5:443", forwarded: []string{"203.0.113.7", "10.1.1.1"}, want: "203.0.113.7"},
		{name: "garbage hop stops the walk", trusted: proxies, remote: "10.0.0.5:443", forwarded: []string{"203.0.113.7, nonsense"}, want: "10.0.0.5"},
		{name: "trusted peer without header", trusted: proxies, remote: "10.0.0.5:443", want: "10.0.0.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := NewRateLimiter(1, tt.trusted...)
			req := httptest.NewRequest("GET", "/checkin", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.forwarded {
				req.Header.Add("X-Forwarded-For", v)
			}
			if got := rl.ClientIP(req); got != tt.want {
				t.Errorf("ClientIP = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRateLimit_BehindProxyKeepsKiosksApart(t *testing.T) {
	h := RateLimit(NewRateLimiter(1, netip.MustParsePrefix("10.0.0.0/8")))(http.HandlerFunc(okHandler))

	send := func(client string) int {
		req := httptest.NewRequest("POST", "/checkin", nil)
		req.RemoteAddr = "10.0.0.2:5555"
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if got := send("203.0.113.1"); got != http.StatusOK {
		t.Fatalf("first kiosk = %d", got)
	}
	if got := send("203.0.113.2"); got != http.StatusOK {
		t.Errorf("second kiosk shares the proxy but not the bucket, got %d", got)
	}
	if got := send("203.0.113.1"); got != http.StatusTooManyRequests {
		t.Errorf("first kiosk again = %d, want 429", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	for _, h := range []string{"Content-Security-Policy", "X-Frame-Options", "X-Content-Type-Options"} {
		if rr.Header().Get(h) == "" {
			t.Errorf("missing %s", h)
		}
	}
}

func TestCSRF_JSONExempt(t *testing.T) {
	key := []byte(strings.Repeat("k", 32))
	h := CSRF(key, false, nil)(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("POST", "/checkin", strings.NewReader(`{"memberId":"1"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("JSON post status = %d, want 200", rr.Code)
	}

	form := httptest.NewRequest("POST", "/checkin", strings.NewReader("memberId=1"))
	form.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, form)
	if rr.Code != http.StatusForbidden {
		t.Errorf("form post without token status = %d, want 403", rr.Code)
	}
}

func TestActor(t *testing.T) {
	var seen string
	h := Actor("/admin/")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
	}))

	tests := []struct {
		name      string
		path      string
		actor     string
		wantCode  int
		wantActor string
	}{
		{"public without actor", "/checkin", "", http.StatusOK, ""},
		{"admin without actor", "/admin/renewals", "", http.StatusUnauthorized, ""},
		{"admin with actor", "/admin/renewals", " alice ", http.StatusOK, "alice"},
		{"actor too long", "/checkin", strings.Repeat("a", MaxActorLength+1), http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest("POST", tt.path, nil)
			if tt.actor != "" {
				req.Header.Set(ActorHeader, tt.actor)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tt.wantCode)
			}
			if seen != tt.wantActor {
				t.Errorf("actor = %q, want %q", seen, tt.wantActor)
			}
		})
	}
}
