// Package contextkeys provides centralized context key definitions
//
// IMPORTANT: All context keys used across the application must be defined here.
// This prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	import "github.com/platinummonkey/masthead/pkg/contextkeys"
//	ctx = contextkeys.WithIdentity(ctx, identity)
//	identity, _ := ctx.Value(contextkeys.IdentityKey).(*auth.Identity)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// IdentityKey contains *auth.Identity
	// Set by: middleware.AuthMiddleware (pkg/middleware/auth.go)
	// Required by: rbac.PermissionMiddleware, content handlers
	// Type: *auth.Identity
	IdentityKey Key = "identity"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, audit trail
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains user ID string
	// Set by: Auth middleware after the identity is resolved
	// Used by: Logger, audit trail
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, identity interface{}) context.Context {
	return context.WithValue(ctx, IdentityKey, identity)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
