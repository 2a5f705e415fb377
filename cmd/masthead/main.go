// Command masthead serves the publication workflow API
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/config"
	"github.com/platinummonkey/masthead/pkg/content"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/middleware"
	"github.com/platinummonkey/masthead/pkg/notify"
	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/rbac"
	"github.com/platinummonkey/masthead/pkg/storage"
)

var (
	version = "dev"

	seedProtected  = flag.Bool("seed-protected", false, "Also apply roles file entries for the default and superuser roles")
	bootstrapAdmin = flag.String("bootstrap-admin", "", "Make this email a superuser, print a fresh API token and exit")
)

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.Default().WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).WithField("service", "masthead")
	observability.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("masthead exited with error")
		os.Exit(1)
	}
	logger.Info("masthead stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = observability.ShutdownOTel(shutdownCtx, providers, logger)
	}()

	db, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrate(ctx, db, cfg.Storage.Driver); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Storage.RedisURL != "" {
		redisClient, err = storage.NewRedisClient(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var assets content.AssetStore
	if cfg.Storage.S3Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		assets = content.NewS3AssetStore(s3Client)
	} else {
		logger.Warn("No S3 bucket configured, asset removal is skipped")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	rbacStore := rbac.NewStore(db)
	if err := seedRoles(ctx, cfg.Roles, rbacStore, logger); err != nil {
		return err
	}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	defer auditLogger.Close()

	guard := rbac.NewGuard(rbacStore, auditLogger, metrics)
	tokens := auth.NewTokenManager(db)

	if *bootstrapAdmin != "" {
		user, token, err := rbac.BootstrapSuperuser(ctx, rbacStore, tokens, *bootstrapAdmin)
		if err != nil {
			return fmt.Errorf("bootstrap %s: %w", *bootstrapAdmin, err)
		}
		logger.WithField("user_id", user.ID).Info("Bootstrapped superuser")
		fmt.Fprintln(os.Stdout, token)
		return nil
	}

	service := content.NewService(content.ServiceDeps{
		Store:       content.NewStore(db),
		Guard:       guard,
		Users:       rbacStore,
		Notifier:    newDispatcher(cfg.Notify, metrics, logger),
		Assets:      assets,
		AuditLogger: auditLogger,
		Metrics:     metrics,
	})

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(
		httputil.RequestIDMiddleware(logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		middleware.NewAuthMiddleware(tokens, true).Handler,
		middleware.RateLimit(newLimiter(cfg, redisClient), "api", metrics),
	)
	if metrics != nil {
		api.Use(observability.HTTPMetricsMiddleware(metrics))
	}

	rbacHandlers := rbac.NewHandlers(rbacStore, guard, auditLogger)
	rbacHandlers.RegisterRoutes(api)
	rbac.NewAccountHandlers(rbacHandlers, tokens).RegisterRoutes(api)
	content.NewHandlers(service).RegisterRoutes(api)
	audit.NewHandlers(auditLogger).RegisterRoutes(api,
		rbac.NewPermissionMiddleware(guard).Require(rbac.RequireAll(rbac.ReadUser, rbac.ReadRole)))

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      otelhttp.NewHandler(router, "masthead"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, version))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           httputil.Chain(httputil.RequestIDMiddleware(logger), httputil.RecoveryMiddleware)(healthMux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	scheduler := cron.New()
	if cfg.Sweep.Schedule != "" {
		if _, err := service.Sweeper().Schedule(scheduler, cfg.Sweep.Schedule); err != nil {
			return err
		}
		logger.Infof("Scheduled publication sweep: %s", cfg.Sweep.Schedule)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Roles.File != "" && cfg.Roles.Watch {
		if err := rbac.WatchSeedFile(observability.WithLogger(gctx, logger), rbacStore, cfg.Roles.File, *seedProtected); err != nil {
			return err
		}
	}

	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		<-scheduler.Stop().Done()
		return errors.Join(apiServer.Shutdown(shutdownCtx), healthServer.Shutdown(shutdownCtx))
	})

	return g.Wait()
}

// migrate applies schemas in dependency order: content and audit reference users
func migrate(ctx context.Context, db *sql.DB, driver storage.Dialect) error {
	components := []struct {
		name       string
		migrations []storage.Migration
	}{
		{"rbac", rbac.Migrations()},
		{"auth", auth.Migrations()},
		{"content", content.Migrations()},
		{"audit", audit.Migrations()},
	}
	for _, c := range components {
		if err := storage.Migrate(ctx, db, driver, c.name, c.migrations); err != nil {
			return fmt.Errorf("migrate %s: %w", c.name, err)
		}
	}
	return nil
}

func seedRoles(ctx context.Context, cfg config.RolesConfig, store *rbac.Store, logger *observability.Logger) error {
	if cfg.File == "" {
		return nil
	}
	roles, err := rbac.LoadSeedFile(cfg.File)
	if err != nil {
		return err
	}
	applied, err := rbac.ApplySeeds(ctx, store, roles, *seedProtected)
	if err != nil {
		return err
	}
	logger.Infof("Applied %d roles from %s", applied, cfg.File)
	return nil
}

func newDispatcher(cfg config.NotifyConfig, metrics *observability.Metrics, logger *observability.Logger) notify.Dispatcher {
	var next notify.Dispatcher = notify.LogDispatcher{}
	if cfg.URL != "" {
		retry := notify.NewRetryPolicy(notify.RetryConfig{MaxAttempts: cfg.MaxAttempts})
		next = notify.NewRelayDispatcher(cfg.URL, cfg.Secret, cfg.Timeout, retry)
		logger.Infof("Notifications relayed to %s", cfg.URL)
	}
	// each attempt may take the full timeout
	return notify.NewAsyncDispatcher(next, cfg.Timeout*time.Duration(max(cfg.MaxAttempts, 1)+1), metrics)
}

func newLimiter(cfg *config.Config, redisClient *redis.Client) middleware.Limiter {
	limits := middleware.DefaultRateLimitConfig()
	limits.RequestsPerWindow = cfg.RateLimit.Requests
	limits.WindowDuration = cfg.RateLimit.Window
	if redisClient != nil {
		return middleware.NewDistributedRateLimiter(redisClient, limits, "")
	}
	return middleware.NewRateLimiter(limits)
}
