// Package storage provides the persistence plumbing shared by the rbac, auth, content
// and audit stores.
//
// # Connections
//
// Open returns a pooled *sql.DB for postgres (lib/pq) or sqlite3 (mattn/go-sqlite3).
// Postgres is the production backend; sqlite backs local development and tests. All
// stores issue $N placeholders, which both drivers accept as long as the first
// occurrence of each placeholder appears in increasing order.
//
// # Migrations
//
// Each package contributes a []Migration slice with SQL per dialect. Migrate applies
// pending versions per component inside a transaction and records them in
// schema_migrations.
//
// # Redis and S3
//
// NewRedisClient parses a redis URL (go-redis v8). NewS3Client builds an aws-sdk-go-v2
// client for content assets, supporting MinIO style path addressing.
package storage
