package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzRoleCreate      EventType = "authz.role_create"
	EventTypeAuthzRoleUpdate      EventType = "authz.role_update"
	EventTypeAuthzRoleDelete      EventType = "authz.role_delete"
	EventTypeAuthzPermissionGrant EventType = "authz.permission_grant"
	EventTypeAuthzRoleChange      EventType = "authz.role_change"
	EventTypeAuthzAccessDenied    EventType = "authz.access_denied"

	// Account events
	EventTypeAuthUserCreate  EventType = "auth.user_create"
	EventTypeAuthTokenCreate EventType = "auth.token_create"
	EventTypeAuthTokenRevoke EventType = "auth.token_revoke"

	// Content events
	EventTypeContentCreate     EventType = "content.create"
	EventTypeContentUpdate     EventType = "content.update"
	EventTypeContentTransition EventType = "content.transition"
	EventTypeContentDelete     EventType = "content.delete"
	EventTypeContentSweep      EventType = "content.sweep"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being accessed
type ResourceType string

const (
	ResourceTypeRole    ResourceType = "role"
	ResourceTypeUser    ResourceType = "user"
	ResourceTypeToken   ResourceType = "token"
	ResourceTypeBlog    ResourceType = "blog"
	ResourceTypeEdition ResourceType = "edition"
)

// AuditEvent represents a single audit log entry
type AuditEvent struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	UserID *int64 `json:"user_id,omitempty"`

	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	RequestID string `json:"request_id,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchFilter represents filters for searching audit logs
type SearchFilter struct {
	StartTime    *time.Time
	EndTime      *time.Time
	UserID       *int64
	EventType    EventType
	Status       EventStatus
	ResourceType ResourceType
	ResourceID   string

	Limit  int
	Offset int
}
