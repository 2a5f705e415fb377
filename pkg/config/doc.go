// Package config loads masthead configuration from environment variables.
//
// Server settings:
//
//	MASTHEAD_HOST="0.0.0.0"
//	MASTHEAD_PORT="8080"
//	MASTHEAD_HEALTH_PORT="9090"
//	MASTHEAD_READ_TIMEOUT="15s"
//	MASTHEAD_WRITE_TIMEOUT="15s"
//
// Database settings:
//
//	MASTHEAD_DB_DRIVER="postgres"  # postgres or sqlite3
//	MASTHEAD_DB_URL="postgres://localhost/masthead?sslmode=disable"
//	MASTHEAD_DB_MAX_OPEN_CONNS="20"
//
// Optional backends:
//
//	MASTHEAD_REDIS_URL="redis://localhost:6379/0"   # shared rate limits
//	MASTHEAD_S3_BUCKET="masthead-assets"            # asset removal on delete
//	MASTHEAD_S3_REGION="us-east-1"
//	MASTHEAD_S3_ENDPOINT="http://minio:9000"
//
// Workflow settings:
//
//	MASTHEAD_SWEEP_SCHEDULE="@every 1m"  # empty disables the in-process sweeper
//	MASTHEAD_NOTIFY_URL="https://relay.internal/notify"
//	MASTHEAD_NOTIFY_SECRET="..."
//	MASTHEAD_ROLES_FILE="/etc/masthead/roles.yaml"
//	MASTHEAD_ROLES_WATCH="true"
//
// Observability settings:
//
//	MASTHEAD_LOG_LEVEL="info"  # debug, info, warn, error
//	MASTHEAD_METRICS_ENABLED="true"
//	MASTHEAD_OTEL_ENABLED="true"
//	MASTHEAD_OTEL_ENDPOINT="otel-collector:4317"
package config
