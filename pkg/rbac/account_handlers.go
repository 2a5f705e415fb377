package rbac

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/httputil"
)

// AccountHandlers provides HTTP handlers for users and their API tokens.
// Callers manage their own tokens freely; acting on another user's tokens
// takes update_user_permissions (read_user for listing).
type AccountHandlers struct {
	*Handlers
	tokens *auth.TokenManager
}

// NewAccountHandlers creates account handlers backed by tokens
func NewAccountHandlers(handlers *Handlers, tokens *auth.TokenManager) *AccountHandlers {
	return &AccountHandlers{Handlers: handlers, tokens: tokens}
}

// RegisterRoutes registers user and token routes
func (h *AccountHandlers) RegisterRoutes(router *mux.Router) {
	authenticated := func(fn http.HandlerFunc) http.Handler {
		return h.permissions.RequireAuthenticated()(fn)
	}

	router.Handle("/users", h.permissions.Require(RequireAll(ReadUser, AssignRole))(http.HandlerFunc(h.CreateUser))).Methods(http.MethodPost)
	router.Handle("/users/{id:[0-9]+}", authenticated(h.GetUser)).Methods(http.MethodGet)

	router.Handle("/tokens", authenticated(h.CreateToken)).Methods(http.MethodPost)
	router.Handle("/tokens", authenticated(h.ListTokens)).Methods(http.MethodGet)
	router.Handle("/tokens/{id:[0-9]+}", authenticated(h.RevokeToken)).Methods(http.MethodDelete)
}

// CreateUser registers a user. A missing role_id assigns the default role.
func (h *AccountHandlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"display_name"`
		RoleID      int64  `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	if !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "email is invalid")
		return
	}
	if req.RoleID != 0 {
		if _, err := h.store.GetRole(r.Context(), req.RoleID); errors.Is(err, ErrRoleNotFound) {
			httputil.WriteBadRequest(w, "role does not exist")
			return
		} else if err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	user := &User{
		Email:              req.Email,
		DisplayName:        req.DisplayName,
		RoleID:             req.RoleID,
		ExtraPermissions:   PermissionSet{},
		RemovedPermissions: PermissionSet{},
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, ErrUserExists) {
			httputil.WriteConflict(w, "email is already registered")
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthUserCreate, audit.ResourceTypeUser, user.ID, map[string]interface{}{
		"email":   user.Email,
		"role_id": user.RoleID,
	})
	httputil.WriteCreated(w, user)
}

// GetUser returns a user. Users may always read themselves.
func (h *AccountHandlers) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if !h.allowFor(w, r, userID, ReadUser) {
		return
	}

	user, err := h.store.GetUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, user)
}

// CreateToken issues a token. The plaintext token is only ever in this response.
func (h *AccountHandlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    int64      `json:"user_id"`
		Name      string     `json:"name"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	if req.UserID == 0 {
		req.UserID = identity.UserID
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(time.Now()) {
		httputil.WriteBadRequest(w, "expires_at must be in the future")
		return
	}
	if !h.allowFor(w, r, req.UserID, UpdateUserPermissions) {
		return
	}
	if _, err := h.store.GetUser(r.Context(), req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}

	record, token, err := h.tokens.CreateToken(r.Context(), req.UserID, req.Name, req.ExpiresAt)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthTokenCreate, audit.ResourceTypeToken, record.ID, map[string]interface{}{
		"user_id":      record.UserID,
		"token_prefix": record.TokenPrefix,
		"name":         record.Name,
	})
	httputil.WriteCreated(w, map[string]interface{}{
		"id":           record.ID,
		"user_id":      record.UserID,
		"token":        token,
		"token_prefix": record.TokenPrefix,
		"name":         record.Name,
		"expires_at":   record.ExpiresAt,
		"created_at":   record.CreatedAt,
	})
}

// ListTokens lists unrevoked tokens for ?user_id=, defaulting to the caller
func (h *AccountHandlers) ListTokens(w http.ResponseWriter, r *http.Request) {
	userID := auth.IdentityFromContext(r.Context()).UserID
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httputil.WriteBadRequest(w, "user_id must be an integer")
			return
		}
		userID = parsed
	}
	if !h.allowFor(w, r, userID, ReadUser) {
		return
	}

	tokens, err := h.tokens.ListTokens(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, tokens)
}

// RevokeToken revokes a token by id
func (h *AccountHandlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	record, err := h.tokens.GetToken(r.Context(), tokenID)
	if errors.Is(err, auth.ErrInvalidToken) {
		httputil.WriteNotFound(w, "token not found")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.allowFor(w, r, record.UserID, UpdateUserPermissions) {
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), tokenID); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthTokenRevoke, audit.ResourceTypeToken, tokenID, map[string]interface{}{
		"user_id": record.UserID,
	})
	httputil.WriteNoContent(w)
}

// allowFor passes when the caller is userID or holds p, writing the denial otherwise
func (h *AccountHandlers) allowFor(w http.ResponseWriter, r *http.Request, userID int64, p Permission) bool {
	identity := auth.IdentityFromContext(r.Context())
	if identity.UserID == userID {
		return true
	}
	if err := h.guard.Require(r.Context(), identity, RequireAll(p)); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}
