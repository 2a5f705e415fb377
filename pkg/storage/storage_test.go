package storage

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Driver = DialectSQLite
	cfg.DatabaseURL = ":memory:"

	db, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Driver = "mysql"

	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestMigrate_AppliesOnce(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	migrations := []Migration{
		{
			Version:     1,
			Description: "create widgets",
			Postgres:    "CREATE TABLE widgets (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL UNIQUE)",
			SQLite:      "CREATE TABLE widgets (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)",
		},
		{
			Version:     2,
			Description: "seed widgets",
			Postgres:    "INSERT INTO widgets (name) VALUES ('a')",
			SQLite:      "INSERT INTO widgets (name) VALUES ('a')",
		},
	}

	require.NoError(t, Migrate(ctx, db, DialectSQLite, "widgets", migrations))
	require.NoError(t, Migrate(ctx, db, DialectSQLite, "widgets", migrations))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM widgets").Scan(&count))
	assert.Equal(t, 1, count, "second run must not re-apply the seed")

	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE component = $1", "widgets").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	db := openSQLite(t)

	err := Migrate(context.Background(), db, DialectSQLite, "broken", []Migration{
		{Version: 1, Description: "bad", SQLite: "CREATE TABLE"},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Zero(t, count)
}

func TestIsUniqueViolation(t *testing.T) {
	db := openSQLite(t)
	_, err := db.Exec("CREATE TABLE names (name TEXT NOT NULL UNIQUE)")
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO names (name) VALUES ('x')")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO names (name) VALUES ('x')")

	assert.True(t, IsUniqueViolation(err))
	assert.False(t, IsUniqueViolation(sql.ErrNoRows))
	assert.False(t, IsUniqueViolation(nil))
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", time.Minute).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RedisURL = "not a url"

	_, err := NewRedisClient(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid redis URL")
}

func newTestS3(t *testing.T, handler http.HandlerFunc) *S3Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.S3Endpoint = server.URL
	cfg.S3Bucket = "assets"
	cfg.S3AccessKey = "test"
	cfg.S3SecretKey = "test"
	cfg.S3UsePathStyle = true

	client, err := NewS3Client(context.Background(), cfg)
	require.NoError(t, err)
	return client
}

func TestS3Client_DeleteObject(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	client := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteObject(context.Background(), "blogs/1/cover.png"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"DELETE /assets/blogs/1/cover.png"}, paths)
	assert.Equal(t, "assets", client.Bucket())
}

func TestS3Client_DeleteObjectError(t *testing.T) {
	client := newTestS3(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	})

	err := client.DeleteObject(context.Background(), "k")
	assert.ErrorContains(t, err, "failed to delete s3 object k")
}

func TestNewS3Client_RequiresBucket(t *testing.T) {
	_, err := NewS3Client(context.Background(), DefaultConfig())
	assert.Error(t, err)
}
