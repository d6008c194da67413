package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"frontdesk/internal/adapters/catalog"
	"frontdesk/internal/adapters/email"
	web "frontdesk/internal/adapters/http"
	"frontdesk/internal/adapters/http/perf"
	"frontdesk/internal/adapters/logger"
	"frontdesk/internal/adapters/storage"
	attendanceStore "frontdesk/internal/adapters/storage/attendance"
	memberStore "frontdesk/internal/adapters/storage/member"
	noticeStore "frontdesk/internal/adapters/storage/notice"
	outboxStore "frontdesk/internal/adapters/storage/outbox"
	planStore "frontdesk/internal/adapters/storage/plan"
	"frontdesk/internal/application/keylock"
	"frontdesk/internal/application/orchestrators"
	"frontdesk/internal/config"
	"frontdesk/internal/domain/outbox"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	configPath := flag.String("config", os.Getenv("FRONTDESK_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("startup_failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(logger.New(cfg.App.Env))

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	csrfKey, err := cfg.CSRFKey()
	if err != nil {
		return err
	}
	proxies, err := cfg.TrustedProxies()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.OpenDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	if err := storage.MigrateDB(ctx, db); err != nil {
		return err
	}
	schema, err := storage.SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	collector := perf.NewCollector()
	timedDB := storage.NewTimedDB(db, collector, time.Duration(cfg.DB.SlowQueryMs)*time.Millisecond)

	stores := &web.Stores{
		MemberStore:     memberStore.NewSQLiteStore(timedDB),
		PlanStore:       planStore.NewSQLiteStore(timedDB),
		AttendanceStore: attendanceStore.NewSQLiteStore(timedDB),
		NoticeStore:     noticeStore.NewSQLiteStore(timedDB),
		OutboxStore:     outboxStore.NewSQLiteStore(timedDB),
	}

	if cfg.Catalog.Path != "" {
		plans, err := catalog.LoadPlans(cfg.Catalog.Path)
		if err != nil {
			return err
		}
		if err := catalog.Seed(ctx, stores.PlanStore, plans); err != nil {
			return err
		}
	}

	var sender email.Sender
	if cfg.Email.ResendKey != "" {
		sender = email.NewResendSender(cfg.Email.ResendKey, cfg.Email.From)
		slog.Info("email_event", "event", "sender_configured", "provider", "resend")
	} else {
		sender = email.NewNoopSender()
		if cfg.IsProduction() {
			slog.Warn("email_event", "event", "sender_configured", "provider", "noop", "detail", "FRONTDESK_EMAIL_RESEND_KEY is not set; e-mail delivery is disabled")
		} else {
			slog.Info("email_event", "event", "sender_configured", "provider", "noop")
		}
	}

	// One locker for handlers and background jobs so per-member writes stay serialized.
	locks := keylock.New()
	srv := web.NewServer(stores, collector, locks, web.Options{
		Location:           loc,
		CSRFKey:            csrfKey,
		SecureCookies:      cfg.IsProduction(),
		RateLimitPerSecond: cfg.HTTP.RateLimitPerSecond,
		TrustedProxies:     proxies,
		NoticeCooldown:     cfg.Notices.Cooldown,
		ExpiryThresholds:   cfg.Scan.ThresholdsDays,
		ScanWorkers:        cfg.Scan.Workers,
		DB:                 timedDB,
		Executors: map[string]orchestrators.ActionExecutor{
			outbox.ActionTypeNoticeEmail: &orchestrators.NoticeEmailExecutor{
				Sender:  sender,
				From:    cfg.Email.From,
				ReplyTo: cfg.Email.ReplyTo,
			},
		},
	})

	outboxStopCh := make(chan struct{})
	orchestrators.StartBackgroundWorker(srv.OutboxProcessor(), cfg.Outbox.Interval, outboxStopCh)
	defer close(outboxStopCh)
	orchestrators.StartExpiryScanner(ctx, srv.ExpiryScanDeps(), cfg.Scan.Interval)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewMux(ctx, srv),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server_event", "event", "listening", "addr", cfg.HTTP.Addr, "version", version,
			"env", cfg.App.Env, "timezone", loc.String(), "schema", schema)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server_event", "event", "shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
