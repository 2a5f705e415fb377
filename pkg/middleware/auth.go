package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/contextkeys"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// IdentityResolver turns a bearer token into the identity it was issued to
type IdentityResolver interface {
	ResolveToken(ctx context.Context, token string) (*auth.Identity, error)
}

// AuthMiddleware provides authentication middleware
type AuthMiddleware struct {
	resolver IdentityResolver
	optional bool // If true, allow requests without auth
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(resolver IdentityResolver, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		resolver: resolver,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication. A request that carries
// a token is always rejected when the token does not resolve, even when
// authentication is optional.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		identity, err := m.resolver.ResolveToken(r.Context(), parts[1])
		switch {
		case errors.Is(err, auth.ErrTokenExpired):
			httputil.WriteUnauthorized(w, "token expired")
			return
		case errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrInvalidToken):
			httputil.WriteUnauthorized(w, "invalid or revoked token")
			return
		case err != nil:
			observability.FromContext(r.Context()).WithError(err).Error("token resolution failed")
			httputil.WriteInternalError(w)
			return
		}

		ctx := auth.WithIdentity(r.Context(), identity)
		ctx = contextkeys.WithUserID(ctx, strconv.FormatInt(identity.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
