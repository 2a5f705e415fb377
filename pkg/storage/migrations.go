package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one versioned schema change with SQL per dialect
type Migration struct {
	Version     int
	Description string
	Postgres    string
	SQLite      string
}

func (m Migration) statement(dialect Dialect) string {
	if dialect == DialectSQLite {
		return m.SQLite
	}
	return m.Postgres
}

// Migrate applies the pending migrations of one component in version order.
// Each migration runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, component string, migrations []Migration) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			component VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			PRIMARY KEY (component, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations WHERE component = $1", component)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, migration := range migrations {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.statement(dialect)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute %s migration %d: %w", component, migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (component, version, description, applied_at) VALUES ($1, $2, $3, $4)",
			component, migration.Version, migration.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record %s migration %d: %w", component, migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit %s migration %d: %w", component, migration.Version, err)
		}
	}

	return nil
}
