package rbac

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/httputil"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// Handlers provides HTTP handlers for role and user permission administration
type Handlers struct {
	store       *Store
	guard       *Guard
	permissions *PermissionMiddleware
	auditLogger audit.Logger
}

// NewHandlers creates new RBAC handlers. auditLogger may be nil.
func NewHandlers(store *Store, guard *Guard, auditLogger audit.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{
		store:       store,
		guard:       guard,
		permissions: NewPermissionMiddleware(guard),
		auditLogger: auditLogger,
	}
}

// RegisterRoutes registers all RBAC routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	require := func(p Permission, fn http.HandlerFunc) http.Handler {
		return h.permissions.Require(RequireAll(p))(fn)
	}

	router.Handle("/roles", require(ReadRole, h.ListRoles)).Methods(http.MethodGet)
	router.Handle("/roles", require(CreateRole, h.CreateRole)).Methods(http.MethodPost)
	router.Handle("/roles/{id:[0-9]+}", require(ReadRole, h.GetRole)).Methods(http.MethodGet)
	router.Handle("/roles/{id:[0-9]+}", h.protectRole(require(UpdateRole, h.UpdateRole))).Methods(http.MethodPut)
	router.Handle("/roles/{id:[0-9]+}", h.protectRole(require(DeleteRole, h.DeleteRole))).Methods(http.MethodDelete)

	router.Handle("/users/{id:[0-9]+}/permissions", h.permissions.RequireAuthenticated()(http.HandlerFunc(h.GetUserPermissions))).Methods(http.MethodGet)
	router.Handle("/users/{id:[0-9]+}/permissions", require(UpdateUserPermissions, h.UpdateUserPermissions)).Methods(http.MethodPut)
	router.Handle("/users/{id:[0-9]+}/role", require(AssignRole, h.AssignRole)).Methods(http.MethodPut)
}

// protectRole answers Locked for the sentinel roles before the permission
// check runs, so the reason does not depend on what the caller holds
func (h *Handlers) protectRole(next http.Handler) http.Handler {
	return h.permissions.RequireAuthenticated()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
		if !ok {
			return
		}
		if decision := NeverModifyProtectedRole(roleID); !decision.Allowed {
			writeDenied(w, decision)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

type roleRequest struct {
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"permissions"`
}

// ListRoles lists all roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a new role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	role := &Role{Name: req.Name, Permissions: req.Permissions}
	if role.Permissions == nil {
		role.Permissions = PermissionSet{}
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthzRoleCreate, audit.ResourceTypeRole, role.ID, map[string]interface{}{
		"name":        role.Name,
		"permissions": role.Permissions.Names(),
	})
	httputil.WriteCreated(w, role)
}

// GetRole returns a single role
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeRoleError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole replaces a role's name and permissions
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if decision := NeverModifyProtectedRole(roleID); !decision.Allowed {
		writeDenied(w, decision)
		return
	}

	var req roleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" {
		httputil.WriteBadRequest(w, "name is required")
		return
	}

	role := &Role{ID: roleID, Name: req.Name, Permissions: req.Permissions}
	if role.Permissions == nil {
		role.Permissions = PermissionSet{}
	}
	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		h.writeRoleError(w, r, err)
		return
	}

	updated, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		h.writeRoleError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthzRoleUpdate, audit.ResourceTypeRole, roleID, map[string]interface{}{
		"name":        updated.Name,
		"permissions": updated.Permissions.Names(),
	})
	httputil.WriteSuccess(w, updated)
}

// DeleteRole deletes a role no user references
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if decision := NeverModifyProtectedRole(roleID); !decision.Allowed {
		writeDenied(w, decision)
		return
	}

	if err := h.store.DeleteRole(r.Context(), roleID); err != nil {
		h.writeRoleError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthzRoleDelete, audit.ResourceTypeRole, roleID, nil)
	httputil.WriteNoContent(w)
}

// GetUserPermissions returns a user's role, overlays and effective set.
// Users may always read their own.
func (h *Handlers) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	identity := auth.IdentityFromContext(r.Context())
	if identity.UserID != userID {
		if err := h.guard.Require(r.Context(), identity, RequireAll(ReadUser)); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	effective, err := h.guard.Effective(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, effective)
}

// UpdateUserPermissions replaces a user's extra and removed overlays
func (h *Handlers) UpdateUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		ExtraPermissions   PermissionSet `json:"extra_permissions"`
		RemovedPermissions PermissionSet `json:"removed_permissions"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.UpdateOverlays(r.Context(), userID, req.ExtraPermissions, req.RemovedPermissions)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthzPermissionGrant, audit.ResourceTypeUser, userID, map[string]interface{}{
		"extra_permissions":   user.ExtraPermissions.Names(),
		"removed_permissions": user.RemovedPermissions.Names(),
	})
	httputil.WriteSuccess(w, user)
}

// AssignRole changes a user's role
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		RoleID int64 `json:"role_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.AssignRole(r.Context(), userID, req.RoleID)
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteBadRequest(w, "role does not exist")
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.logAudit(r.Context(), audit.EventTypeAuthzRoleChange, audit.ResourceTypeUser, userID, map[string]interface{}{
		"role_id": req.RoleID,
	})
	httputil.WriteSuccess(w, user)
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		httputil.WriteUnauthorized(w, "authentication required")
	case errors.Is(err, ErrForbidden):
		httputil.WriteForbidden(w, "insufficient permissions")
	case errors.Is(err, ErrLocked):
		httputil.WriteLocked(w, "the default and superuser roles cannot be modified")
	case errors.Is(err, ErrInvalidPermission):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrRoleExists), errors.Is(err, ErrRoleInUse):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrUserNotFound):
		httputil.WriteNotFound(w, "user not found")
	default:
		observability.FromContext(r.Context()).WithError(err).Error("rbac request failed")
		httputil.WriteInternalError(w)
	}
}

// writeRoleError reports a missing role as 404. Elsewhere a missing role is a
// dangling reference and falls through to 500.
func (h *Handlers) writeRoleError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrRoleNotFound) {
		httputil.WriteNotFound(w, "role not found")
		return
	}
	h.writeError(w, r, err)
}

func (h *Handlers) logAudit(ctx context.Context, eventType audit.EventType, resourceType audit.ResourceType, resourceID int64, metadata map[string]interface{}) {
	var actor *int64
	if identity := auth.IdentityFromContext(ctx); identity != nil {
		actor = &identity.UserID
	}
	event := audit.NewEvent(ctx, eventType, audit.EventStatusSuccess, actor)
	event.ResourceType = resourceType
	event.ResourceID = strconv.FormatInt(resourceID, 10)
	for k, v := range metadata {
		event.Metadata[k] = v
	}
	audit.Record(ctx, h.auditLogger, event)
}
