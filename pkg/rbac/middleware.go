package rbac

import (
	"net/http"

	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// PermissionMiddleware guards routes with permission requirements
type PermissionMiddleware struct {
	guard *Guard
}

// NewPermissionMiddleware creates a new permission middleware
func NewPermissionMiddleware(guard *Guard) *PermissionMiddleware {
	return &PermissionMiddleware{guard: guard}
}

// Require creates middleware that passes only identities satisfying req.
// A missing identity gives 401, an unmet requirement 403.
func (pm *PermissionMiddleware) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := auth.IdentityFromContext(r.Context())
			if identity == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			decision, err := pm.guard.Authorize(r.Context(), identity, req)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w)
				return
			}

			if !decision.Allowed {
				writeDenied(w, decision)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuthenticated creates middleware that only checks for an identity
func (pm *PermissionMiddleware) RequireAuthenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.IdentityFromContext(r.Context()) == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeDenied(w http.ResponseWriter, decision Decision) {
	switch decision.Reason {
	case ReasonUnauthenticated:
		httputil.WriteUnauthorized(w, "authentication required")
	case ReasonLocked:
		httputil.WriteLocked(w, "the default and superuser roles cannot be modified")
	default:
		httputil.WriteForbidden(w, "insufficient permissions")
	}
}
