package orchestrators

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"frontdesk/internal/domain/member"
	"frontdesk/internal/domain/notice"

	"golang.org/x/sync/errgroup"
)

// DefaultExpiryThresholds are the days-before-expiry that trigger a notice.
var DefaultExpiryThresholds = []int{3, 1}

// ActiveMemberLister lists members eligible for scheduled notices.
type ActiveMemberLister interface {
	ListActive(ctx context.Context) ([]member.Member, error)
}

// ExpiryScanDeps holds dependencies for ExpiryScan.
type ExpiryScanDeps struct {
	MemberStore ActiveMemberLister
	Notices     SendAutomaticNoticeDeps
	Thresholds  []int // defaults to DefaultExpiryThresholds
	Workers     int   // defaults to 4
}

// ExpiryScanResult summarizes one scan.
type ExpiryScanResult struct {
	Scanned    int
	Sent       int
	Suppressed int
	Invalid    int // members whose plan dates do not parse
}

// ExecuteExpiryScan sends an automatic notice to every active member whose plan
// ends in exactly one of the threshold day counts.
// PRE: Notices deps are complete
// POST: At most one notice per (member, reason) per cooldown, however often the scan runs
func ExecuteExpiryScan(ctx context.Context, deps ExpiryScanDeps) (ExpiryScanResult, error) {
	thresholds := deps.Thresholds
	if len(thresholds) == 0 {
		thresholds = DefaultExpiryThresholds
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = 4
	}

	members, err := deps.MemberStore.ListActive(ctx)
	if err != nil {
		return ExpiryScanResult{}, storeFailure("list active members", err)
	}

	now := deps.Notices.Now()
	var sent, suppressed, invalid int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, m := range members {
		g.Go(func() error {
			days, err := m.DaysUntilExpiry(now)
			if err != nil {
				atomic.AddInt64(&invalid, 1)
				slog.Warn("scan_event", "event", "plan_dates_invalid", "member_id", m.ID, "error", err)
				return nil
			}
			if !containsInt(thresholds, days) {
				return nil
			}
			title, content := expiryMessage(m, days)
			_, created, err := ExecuteSendAutomaticNotice(gctx, SendAutomaticNoticeInput{
				Recipient:  m,
				ReasonCode: notice.ExpiryReason(days),
				Title:      title,
				Content:    content,
			}, deps.Notices)
			if err != nil {
				return fmt.Errorf("notify %s: %w", m.ID, err)
			}
			if created {
				atomic.AddInt64(&sent, 1)
			} else {
				atomic.AddInt64(&suppressed, 1)
			}
			return nil
		})
	}
	err = g.Wait()

	result := ExpiryScanResult{
		Scanned:    len(members),
		Sent:       int(sent),
		Suppressed: int(suppressed),
		Invalid:    int(invalid),
	}
	slog.Info("scan_event", "event", "expiry_scan_complete", "scanned", result.Scanned, "sent", result.Sent,
		"suppressed", result.Suppressed, "invalid", result.Invalid, "error", err)
	return result, err
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func expiryMessage(m member.Member, days int) (string, string) {
	when := fmt.Sprintf("in %d days", days)
	if days == 1 {
		when = "tomorrow"
	}
	title := fmt.Sprintf("Your plan ends %s", when)
	content := fmt.Sprintf("Hi %s,\n\nYour plan **%s** ends on **%s**.\n\nAsk at the front desk or request a renewal from the app to keep training without a break.",
		m.Name, m.PlanName, m.PlanEnd)
	return title, content
}

// StartExpiryScanner runs ExecuteExpiryScan on a ticker until ctx is cancelled.
// PRE: interval > 0
// POST: Returns immediately; the scanner stops when ctx is done
func StartExpiryScanner(ctx context.Context, deps ExpiryScanDeps, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("scan_event", "event", "expiry_scanner_stopped")
				return
			case <-ticker.C:
				scanCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
				if _, err := ExecuteExpiryScan(scanCtx, deps); err != nil {
					slog.Error("scan_event", "event", "expiry_scan_failed", "error", err)
				}
				cancel()
			}
		}
	}()
}
