// Package observability provides structured logging, Prometheus metrics, OpenTelemetry setup
// and health checks.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.ParseLevel("info"), os.Stdout)
//	logger.WithField("item_id", id).Info("item published")
//
// Request-scoped logging picks up request, user and trace identifiers:
//
//	observability.FromContext(ctx).WithError(err).Warn("notification dispatch failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordTransition("blog", "approve", "success")
//
// The Record* helpers accept a nil *Metrics so library code can run without a registry.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
