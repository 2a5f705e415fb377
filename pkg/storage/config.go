package storage

import "time"

// Dialect names a supported SQL backend
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// Config for the storage backends
type Config struct {
	// SQL config
	Driver          Dialect
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	// Redis config (optional)
	RedisURL        string
	RedisPoolSize   int
	RedisMaxRetries int

	// S3 config (optional, asset removal is skipped without a bucket)
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		Driver:          DialectPostgres,
		DatabaseURL:     "postgres://localhost/masthead?sslmode=disable",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
		RedisPoolSize:   10,
		RedisMaxRetries: 3,
		S3Region:        "us-east-1",
	}
}
