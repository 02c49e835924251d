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
	"strings"
	"syscall"
	"time"

	"github.com/edgeandnode/graph-ixi/internal/alert"
	"github.com/edgeandnode/graph-ixi/internal/config"
	"github.com/edgeandnode/graph-ixi/internal/discovery"
	"github.com/edgeandnode/graph-ixi/internal/monitor"
	"github.com/edgeandnode/graph-ixi/internal/ops"
	"github.com/edgeandnode/graph-ixi/internal/store"
	"github.com/edgeandnode/graph-ixi/pkg/db"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional, env overrides)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	log.Info("starting poi monitor",
		"check_interval", cfg.CheckInterval.String(),
		"retention_days", cfg.RetentionDays)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	if err := store.Migrate(ctx, pool); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	notifier, err := alert.NewWebhookNotifier(cfg.SlackWebhookURL, cfg.WebhookSecret, log)
	if err != nil {
		return fmt.Errorf("build notifier: %w", err)
	}

	submissions := store.NewSubmissionStore(pool)
	ledger := store.NewNotificationLedger(pool)
	m := &monitor.Monitor{
		Discovery:   discovery.New(cfg.GraphixAPIURL, cfg.IndexerPageSize, log),
		Detector:    &monitor.Detector{Submissions: submissions, Ledger: ledger},
		Reuse:       &monitor.ReuseAnalyzer{Submissions: submissions, Log: log},
		Notifier:    notifier,
		Ledger:      ledger,
		Log:         log,
		Retention:   cfg.Retention(),
		StepTimeout: cfg.StepTimeout,
	}

	opsSrv := &http.Server{
		Addr:    cfg.OpsListenAddr,
		Handler: (&ops.Server{Monitor: m, Log: log}).Router(),
	}
	go func() {
		log.Info("ops server listening", "addr", cfg.OpsListenAddr)
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("ops server", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsSrv.Shutdown(shutdownCtx)
	}()

	ticker := time.NewTicker(cfg.CheckInterval)
	defer ticker.Stop()

	if err := runOnce(ctx, m, log); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return nil
		case <-ticker.C:
			if err := runOnce(ctx, m, log); err != nil {
				return err
			}
		}
	}
}

// runOnce executes one cycle. Per-key failures live inside the report;
// cycle-level errors (unreachable discovery, a concurrent manual run) are
// logged and retried on the next tick. Invariant violations stop the
// process rather than risk double-notifying.
func runOnce(ctx context.Context, m *monitor.Monitor, log *slog.Logger) error {
	_, err := m.RunCycle(ctx)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, store.ErrAmbiguousIdentity):
		return fmt.Errorf("ledger invariant violated: %w", err)
	case errors.Is(err, monitor.ErrCycleInProgress):
		log.Warn("skipping tick, cycle still running")
	default:
		log.Error("cycle failed", "err", err)
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
