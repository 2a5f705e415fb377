package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Rate limiting
	RateLimit RateLimitConfig

	// Scheduled publication sweeps
	Sweep SweepConfig

	// Notification relay
	Notify NotifyConfig

	// Role seed file
	Roles RolesConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// RateLimitConfig bounds requests per caller
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// SweepConfig controls the in-process sweeper. An empty schedule disables it.
type SweepConfig struct {
	Schedule string
}

// NotifyConfig points at the notification relay. Without a URL
// notifications are only logged.
type NotifyConfig struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// RolesConfig names the YAML role seed file
type RolesConfig struct {
	File  string
	Watch bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel logrus.Level

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:    loadServerConfig(),
		Storage:   loadStorageConfig(),
		RateLimit: loadRateLimitConfig(),
		Sweep: SweepConfig{
			Schedule: getEnv("MASTHEAD_SWEEP_SCHEDULE", ""),
		},
		Notify: NotifyConfig{
			URL:         getEnv("MASTHEAD_NOTIFY_URL", ""),
			Secret:      getEnv("MASTHEAD_NOTIFY_SECRET", ""),
			Timeout:     getEnvDuration("MASTHEAD_NOTIFY_TIMEOUT", 10*time.Second),
			MaxAttempts: getEnvInt("MASTHEAD_NOTIFY_MAX_ATTEMPTS", 3),
		},
		Roles: RolesConfig{
			File:  getEnv("MASTHEAD_ROLES_FILE", ""),
			Watch: getEnvBool("MASTHEAD_ROLES_WATCH", false),
		},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MASTHEAD_HOST", "0.0.0.0"),
		Port:            getEnv("MASTHEAD_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MASTHEAD_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MASTHEAD_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MASTHEAD_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MASTHEAD_SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MASTHEAD_MAX_BODY_BYTES", 1<<20),
		HealthPort:      getEnv("MASTHEAD_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	// SQL config
	if driver := getEnv("MASTHEAD_DB_DRIVER", ""); driver != "" {
		cfg.Driver = storage.Dialect(strings.ToLower(driver))
	}
	if dbURL := getEnv("MASTHEAD_DB_URL", ""); dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if maxOpen := getEnvInt("MASTHEAD_DB_MAX_OPEN_CONNS", 0); maxOpen > 0 {
		cfg.MaxOpenConns = maxOpen
	}
	if maxIdle := getEnvInt("MASTHEAD_DB_MAX_IDLE_CONNS", 0); maxIdle > 0 {
		cfg.MaxIdleConns = maxIdle
	}
	if lifetime := getEnvDuration("MASTHEAD_DB_CONN_MAX_LIFETIME", 0); lifetime > 0 {
		cfg.ConnMaxLifetime = lifetime
	}

	// Redis config
	cfg.RedisURL = getEnv("MASTHEAD_REDIS_URL", "")
	if poolSize := getEnvInt("MASTHEAD_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	// S3 config
	cfg.S3Bucket = getEnv("MASTHEAD_S3_BUCKET", "")
	cfg.S3Endpoint = getEnv("MASTHEAD_S3_ENDPOINT", "")
	cfg.S3AccessKey = getEnv("MASTHEAD_S3_ACCESS_KEY", "")
	cfg.S3SecretKey = getEnv("MASTHEAD_S3_SECRET_KEY", "")
	cfg.S3Region = getEnv("MASTHEAD_S3_REGION", cfg.S3Region)
	cfg.S3UsePathStyle = getEnvBool("MASTHEAD_S3_USE_PATH_STYLE", false)

	return cfg
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Requests: getEnvInt("MASTHEAD_RATE_LIMIT_REQUESTS", 600),
		Window:   getEnvDuration("MASTHEAD_RATE_LIMIT_WINDOW", time.Minute),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLevel(getEnv("MASTHEAD_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("MASTHEAD_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MASTHEAD_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MASTHEAD_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MASTHEAD_OTEL_SERVICE_NAME", "masthead"),
		OTelServiceVersion: getEnv("MASTHEAD_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("MASTHEAD_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Driver {
	case storage.DialectPostgres, storage.DialectSQLite:
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Storage.Driver)
	}
	if c.Storage.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if (c.Storage.S3AccessKey == "") != (c.Storage.S3SecretKey == "") {
		return fmt.Errorf("S3 access key and secret key must be set together")
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit requests and window must be positive")
	}

	if c.Sweep.Schedule != "" {
		if _, err := cron.ParseStandard(c.Sweep.Schedule); err != nil {
			return fmt.Errorf("invalid sweep schedule %q: %w", c.Sweep.Schedule, err)
		}
	}

	if c.Notify.URL != "" && c.Notify.Secret == "" {
		return fmt.Errorf("notification secret is required when a notification URL is set")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("notification max attempts must be at least 1")
	}

	if c.Roles.Watch && c.Roles.File == "" {
		return fmt.Errorf("roles file is required when watching roles")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
