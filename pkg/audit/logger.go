package audit

import (
	"context"
	"time"

	"github.com/platinummonkey/masthead/pkg/contextkeys"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *AuditEvent) error

	// Close closes the logger and flushes any buffered logs
	Close() error
}

// NewNoOpLogger returns a logger that drops every event
func NewNoOpLogger() Logger {
	return noOpLogger{}
}

type noOpLogger struct{}

func (noOpLogger) Log(ctx context.Context, event *AuditEvent) error { return nil }
func (noOpLogger) Close() error                                      { return nil }

// NewEvent creates an event stamped with the current time and the request id from ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus, userID *int64) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		UserID:    userID,
		RequestID: contextkeys.GetRequestID(ctx),
		Metadata:  make(map[string]interface{}),
	}
}

// Record logs event to logger. Audit failures never fail the audited operation;
// they are written to the application log instead.
func Record(ctx context.Context, logger Logger, event *AuditEvent) {
	if logger == nil {
		return
	}
	if err := logger.Log(ctx, event); err != nil {
		observability.FromContext(ctx).
			WithError(err).
			WithField("event_type", string(event.EventType)).
			Warn("failed to write audit event")
	}
}
