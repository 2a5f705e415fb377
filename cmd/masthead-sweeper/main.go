// Command masthead-sweeper promotes scheduled content whose publication time
// has passed. It runs on a cron schedule or, with --run-once, a single time.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/config"
	"github.com/platinummonkey/masthead/pkg/content"
	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
	"github.com/platinummonkey/masthead/pkg/storage"
)

var (
	schedule = flag.String("schedule", getEnv("MASTHEAD_SWEEP_SCHEDULE", "* * * * *"), "Cron schedule for publication sweeps (default: every minute)")
	runOnce  = flag.Bool("run-once", false, "Run a single sweep and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.Default().WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "masthead-sweeper")
	observability.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.WithError(err).Error("masthead-sweeper exited with error")
		os.Exit(1)
	}
	logger.Info("Sweeper stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	db, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("create audit logger: %w", err)
	}
	defer auditLogger.Close()

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.Notify.URL != "" {
		retry := notify.NewRetryPolicy(notify.RetryConfig{MaxAttempts: cfg.Notify.MaxAttempts})
		dispatcher = notify.NewRelayDispatcher(cfg.Notify.URL, cfg.Notify.Secret, cfg.Notify.Timeout, retry)
	}

	sweeper := content.NewSweeper(content.NewStore(db), rbac.NewStore(db), dispatcher, auditLogger, nil)

	if *runOnce {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		result, err := sweeper.Sweep(runCtx)
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		logger.Infof("Sweep completed: %d promoted", result.Modified)
		return nil
	}

	c := cron.New()
	if _, err := sweeper.Schedule(c, *schedule); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", *schedule, err)
	}

	c.Start()
	logger.Infof("Sweeper started with schedule %s", *schedule)

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	<-c.Stop().Done()
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
