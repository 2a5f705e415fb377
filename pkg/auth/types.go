package auth

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/masthead/pkg/contextkeys"
)

var (
	// ErrInvalidToken is returned for malformed or unknown tokens
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a token is past its expiry
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when a token has been revoked
	ErrTokenRevoked = errors.New("token revoked")
)

// Identity is a resolved, authenticated caller. Authorization decisions are
// made separately against the user's role and overlays.
type Identity struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// APIToken represents an API token
type APIToken struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	TokenHash   string     `json:"-"` // Never expose hash
	TokenPrefix string     `json:"token_prefix"`
	Name        string     `json:"name"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsExpired reports whether the token has expired at now
func (t *APIToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}

// IsRevoked reports whether the token has been revoked
func (t *APIToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// WithIdentity adds the resolved identity to the context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return contextkeys.WithIdentity(ctx, identity)
}

// IdentityFromContext returns the identity set by the auth middleware, or nil
func IdentityFromContext(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(contextkeys.IdentityKey).(*Identity); ok {
		return identity
	}
	return nil
}
