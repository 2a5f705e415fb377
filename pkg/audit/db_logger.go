package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/platinummonkey/masthead/pkg/storage"
)

// DBLogger implements audit logging to the application database
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a new database-based audit logger.
// The audit_logs table is created by Migrations.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Migrations returns the audit_logs schema
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create audit_logs",
			Postgres: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					user_id BIGINT,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					request_id VARCHAR(100),
					message TEXT,
					metadata JSONB
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					timestamp TIMESTAMP NOT NULL,
					event_type TEXT NOT NULL,
					status TEXT NOT NULL,
					user_id INTEGER,
					resource_type TEXT,
					resource_id TEXT,
					request_id TEXT,
					message TEXT,
					metadata TEXT
				);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
		},
	}
}

// Log logs an audit event to the database
func (l *DBLogger) Log(ctx context.Context, event *AuditEvent) error {
	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		data, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}

	err := l.db.QueryRowContext(ctx, `
		INSERT INTO audit_logs (
			timestamp, event_type, status, user_id,
			resource_type, resource_id, request_id, message, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		event.Timestamp.UTC(), string(event.EventType), string(event.Status), event.UserID,
		string(event.ResourceType), event.ResourceID, event.RequestID, event.Message, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// Search returns audit events matching filter, newest first
func (l *DBLogger) Search(ctx context.Context, filter SearchFilter) ([]*AuditEvent, error) {
	query := `
		SELECT id, timestamp, event_type, status, user_id,
			resource_type, resource_id, request_id, message, metadata
		FROM audit_logs
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, filter.StartTime.UTC())
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, filter.EndTime.UTC())
		argCount++
	}

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argCount)
		args = append(args, string(filter.EventType))
		argCount++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, string(filter.Status))
		argCount++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, string(filter.ResourceType))
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	query += " ORDER BY timestamp DESC, id DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	args = append(args, limit, filter.Offset)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit logs: %w", err)
	}
	defer rows.Close()

	events := make([]*AuditEvent, 0)
	for rows.Next() {
		event := &AuditEvent{}
		var (
			userID       sql.NullInt64
			resourceType sql.NullString
			resourceID   sql.NullString
			requestID    sql.NullString
			message      sql.NullString
			metadata     sql.NullString
		)

		err := rows.Scan(
			&event.ID, &event.Timestamp, &event.EventType, &event.Status, &userID,
			&resourceType, &resourceID, &requestID, &message, &metadata,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		if userID.Valid {
			event.UserID = &userID.Int64
		}
		event.ResourceType = ResourceType(resourceType.String)
		event.ResourceID = resourceID.String
		event.RequestID = requestID.String
		event.Message = message.String

		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return events, nil
}

// Close is a no-op; the database handle is owned by the caller
func (l *DBLogger) Close() error {
	return nil
}
