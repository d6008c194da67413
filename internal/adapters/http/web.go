// Package web is the HTTP adapter: JSON handlers over the orchestrators and
// projections, plus the middleware chain.
package web

import (
	"context"
	"net/http"
	"net/netip"
	"time"

	"frontdesk/internal/adapters/http/middleware"
	"frontdesk/internal/adapters/http/perf"
	attendanceStore "frontdesk/internal/adapters/storage/attendance"
	memberStore "frontdesk/internal/adapters/storage/member"
	noticeStore "frontdesk/internal/adapters/storage/notice"
	outboxStore "frontdesk/internal/adapters/storage/outbox"
	planStore "frontdesk/internal/adapters/storage/plan"
	"frontdesk/internal/application/keylock"
	"frontdesk/internal/application/orchestrators"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Stores holds all storage dependencies.
type Stores struct {
	MemberStore     memberStore.Store
	PlanStore       planStore.Store
	AttendanceStore attendanceStore.Store
	NoticeStore     noticeStore.Store
	OutboxStore     outboxStore.Store
}

// Pinger reports database liveness for /health.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures a Server. Zero values pick the defaults noted per field.
type Options struct {
	Location           *time.Location // day boundaries; UTC
	CSRFKey            []byte         // nil disables CSRF for form posts
	SecureCookies      bool
	TrustedOrigins     []string
	RateLimitPerSecond int            // 10
	TrustedProxies     []netip.Prefix // peers whose X-Forwarded-For is believed; none by default
	SlowRequest        time.Duration  // middleware.DefaultSlowRequest
	NoticeCooldown     time.Duration  // notice.DefaultCooldown
	ExpiryThresholds   []int          // orchestrators.DefaultExpiryThresholds
	ScanWorkers        int            // 4
	Executors          map[string]orchestrators.ActionExecutor
	DB                 Pinger // nil skips the database check
	Now                func() time.Time
	GenerateID         func() string
}

// Server owns the dependencies shared by all handlers.
type Server struct {
	stores    *Stores
	collector *perf.Collector
	locks     *keylock.Locker
	opts      Options
	validate  *validator.Validate
	outbox    *orchestrators.OutboxProcessor
}

// NewServer wires handlers to stores. locks must be shared with any
// background job that touches the same members.
func NewServer(s *Stores, collector *perf.Collector, locks *keylock.Locker, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RateLimitPerSecond <= 0 {
		opts.RateLimitPerSecond = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerateID == nil {
		opts.GenerateID = uuid.NewString
	}
	srv := &Server{
		stores:    s,
		collector: collector,
		locks:     locks,
		opts:      opts,
		validate:  newValidator(),
	}
	srv.outbox = orchestrators.NewOutboxProcessor(s.OutboxStore, opts.Executors, srv.now)
	return srv
}

// now is the wall clock in the gym's timezone.
func (s *Server) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// OutboxProcessor returns the processor used by the admin outbox endpoints,
// for the background worker to share.
func (s *Server) OutboxProcessor() *orchestrators.OutboxProcessor {
	return s.outbox
}

func (s *Server) checkInDeps() orchestrators.CheckInMemberDeps {
	return orchestrators.CheckInMemberDeps{
		MemberStore:     s.stores.MemberStore,
		AttendanceStore: s.stores.AttendanceStore,
		Locks:           s.locks,
		Now:             s.now,
		GenerateID:      s.opts.GenerateID,
	}
}

func (s *Server) renewalDeps() orchestrators.RenewalDeps {
	return orchestrators.RenewalDeps{
		MemberStore: s.stores.MemberStore,
		PlanStore:   s.stores.PlanStore,
		Locks:       s.locks,
		Now:         s.now,
		GenerateID:  s.opts.GenerateID,
	}
}

func (s *Server) automaticNoticeDeps() orchestrators.SendAutomaticNoticeDeps {
	return orchestrators.SendAutomaticNoticeDeps{
		NoticeStore: s.stores.NoticeStore,
		Outbox:      s.stores.OutboxStore,
		Locks:       s.locks,
		Cooldown:    s.opts.NoticeCooldown,
		GenerateID:  s.opts.GenerateID,
		Now:         s.now,
	}
}

// ExpiryScanDeps returns the dependencies for the expiry scan, shared by the
// admin endpoint and the background scanner.
func (s *Server) ExpiryScanDeps() orchestrators.ExpiryScanDeps {
	return orchestrators.ExpiryScanDeps{
		MemberStore: s.stores.MemberStore,
		Notices:     s.automaticNoticeDeps(),
		Thresholds:  s.opts.ExpiryThresholds,
		Workers:     s.opts.ScanWorkers,
	}
}

// Routes registers every endpoint on a new ServeMux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /checkin", s.handleCheckIn)
	mux.HandleFunc("GET /members/{id}/cycle", s.handleCycleStatus)
	mux.HandleFunc("GET /members/{id}/renewals", s.handleRenewalHistory)
	mux.HandleFunc("POST /members/{id}/renewal-request", s.handleRenewalRequest)
	mux.HandleFunc("GET /notices", s.handleListNotices)

	mux.HandleFunc("POST /admin/renewals", s.handleAdminRenew)
	mux.HandleFunc("POST /admin/renewals/{id}/processing", s.handleAdminRenewalProcessing)
	mux.HandleFunc("POST /admin/renewals/{id}/revert", s.handleAdminRenewalRevert)
	mux.HandleFunc("POST /admin/notices", s.handleAdminCreateNotice)
	mux.HandleFunc("POST /admin/scan/expiry", s.handleAdminExpiryScan)
	mux.HandleFunc("GET /admin/attendance/export", s.handleAdminAttendanceExport)
	mux.HandleFunc("GET /admin/plans", s.handleAdminListPlans)
	mux.HandleFunc("GET /admin/members", s.handleAdminListMembers)
	mux.HandleFunc("POST /admin/members/import", s.handleAdminImportMembers)
	mux.HandleFunc("GET /admin/outbox", s.handleAdminListOutbox)
	mux.HandleFunc("POST /admin/outbox/{id}/retry", s.handleAdminOutboxRetry)
	mux.HandleFunc("POST /admin/outbox/{id}/abandon", s.handleAdminOutboxAbandon)

	mux.HandleFunc("GET /health", s.handleHealth)
	if s.collector != nil {
		mux.Handle("GET /metrics", s.collector.Handler())
	}
	return mux
}

// NewMux wraps Routes in the middleware chain. The returned limiter's sweeper
// runs until ctx is done.
func NewMux(ctx context.Context, s *Server) http.Handler {
	limiter := middleware.NewRateLimiter(s.opts.RateLimitPerSecond, s.opts.TrustedProxies...)
	limiter.StartSweeper(ctx)

	// Innermost first: Timing must see the matched mux pattern.
	chain := []func(http.Handler) http.Handler{
		middleware.Timing(s.collector, s.opts.SlowRequest),
		middleware.Actor("/admin/"),
	}
	if s.opts.CSRFKey != nil {
		chain = append(chain, middleware.CSRF(s.opts.CSRFKey, s.opts.SecureCookies, s.opts.TrustedOrigins))
	}
	chain = append(chain, middleware.SecurityHeaders, middleware.RateLimit(limiter))
	return middleware.Chain(s.Routes(), chain...)
}
