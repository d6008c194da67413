package quota_test

import (
	"testing"

	"frontdesk/internal/domain/quota"

	"pgregory.net/rapid"
)

// TestParse tests normalization of quota input.
func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    quota.Quota
		wantErr bool
	}{
		{raw: "unlimited", want: quota.Unlimited},
		{raw: " UNLIMITED ", want: quota.Unlimited},
		{raw: "12", want: quota.Twelve},
		{raw: "8", want: quota.Eight},
		{raw: "10", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := quota.Parse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

// TestEffective tests the throttling protocol.
func TestEffective(t *testing.T) {
	tests := []struct {
		name      string
		q         quota.Quota
		remaining int
		inCycle   int
		want      int
	}{
		{name: "twelve early in cycle", q: quota.Twelve, remaining: 20, inCycle: 26, want: 12},
		{name: "eight with one day left", q: quota.Eight, remaining: 1, inCycle: 26, want: 1},
		{name: "twelve with no days left", q: quota.Twelve, remaining: 0, inCycle: 26, want: 0},
		{name: "negative remaining floors at zero", q: quota.Eight, remaining: -3, inCycle: 26, want: 0},
		{name: "unlimited capped by cycle business days", q: quota.Unlimited, remaining: 2, inCycle: 26, want: 26},
		{name: "invalid quota", q: quota.Quota("5"), remaining: 10, inCycle: 26, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quota.Effective(tt.q, tt.remaining, tt.inCycle); got != tt.want {
				t.Errorf("Effective() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestEffective_NeverAboveNominal checks the effective quota is bounded by [0, nominal].
func TestEffective_NeverAboveNominal(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		q := rapid.SampledFrom([]quota.Quota{quota.Unlimited, quota.Twelve, quota.Eight}).Draw(t, "quota")
		remaining := rapid.IntRange(-40, 400).Draw(t, "remaining")
		inCycle := rapid.IntRange(0, 30).Draw(t, "inCycle")

		eff := quota.Effective(q, remaining, inCycle)
		if eff < 0 {
			t.Fatalf("effective quota %d is negative", eff)
		}
		if eff > q.Nominal() {
			t.Fatalf("effective quota %d exceeds nominal %d", eff, q.Nominal())
		}
	})
}
