package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/masthead/pkg/audit"
	"github.com/platinummonkey/masthead/pkg/auth"
	"github.com/platinummonkey/masthead/pkg/observability"
)

// DenyReason explains a denied decision
type DenyReason string

const (
	ReasonUnauthenticated DenyReason = "unauthenticated"
	ReasonForbidden       DenyReason = "forbidden"
	ReasonLocked          DenyReason = "locked"
)

// Decision is the outcome of an authorization check
type Decision struct {
	Allowed bool       `json:"allowed"`
	Reason  DenyReason `json:"reason,omitempty"`
}

// Allow returns an allowing decision
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with reason
func Deny(reason DenyReason) Decision {
	return Decision{Reason: reason}
}

// Err maps a denial to its sentinel error; an allowed decision returns nil
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	switch d.Reason {
	case ReasonUnauthenticated:
		return ErrUnauthenticated
	case ReasonLocked:
		return ErrLocked
	default:
		return ErrForbidden
	}
}

func (d Decision) result() string {
	if d.Allowed {
		return "allow"
	}
	return string(d.Reason)
}

// NeverModifyProtectedRole denies any update or delete aimed at a sentinel role,
// whatever the caller holds
func NeverModifyProtectedRole(roleID int64) Decision {
	if IsProtectedRole(roleID) {
		return Deny(ReasonLocked)
	}
	return Allow()
}

// Directory loads the user and role records the guard resolves against
type Directory interface {
	GetUser(ctx context.Context, userID int64) (*User, error)
	GetRole(ctx context.Context, roleID int64) (*Role, error)
}

// Guard decides whether an identity satisfies a permission requirement.
// Nothing is cached; every call reads the current user and role.
type Guard struct {
	directory   Directory
	auditLogger audit.Logger
	metrics     *observability.Metrics
}

// NewGuard creates a guard. auditLogger and metrics may be nil.
func NewGuard(directory Directory, auditLogger audit.Logger, metrics *observability.Metrics) *Guard {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Guard{
		directory:   directory,
		auditLogger: auditLogger,
		metrics:     metrics,
	}
}

// Authorize evaluates req for identity. The error is non-nil only when the
// stores fail or the user's role no longer exists; denials are reported
// through the Decision.
func (g *Guard) Authorize(ctx context.Context, identity *auth.Identity, req Requirement) (Decision, error) {
	decision, err := g.authorize(ctx, identity, req)
	if err != nil {
		g.metrics.RecordAuthz("error")
		return Decision{}, err
	}

	g.metrics.RecordAuthz(decision.result())
	if !decision.Allowed {
		var userID *int64
		if identity != nil {
			userID = &identity.UserID
		}
		event := audit.NewEvent(ctx, audit.EventTypeAuthzAccessDenied, audit.EventStatusDenied, userID)
		event.Message = fmt.Sprintf("access denied: %s", decision.Reason)
		event.Metadata["requirement"] = req.String()
		audit.Record(ctx, g.auditLogger, event)
	}
	return decision, nil
}

func (g *Guard) authorize(ctx context.Context, identity *auth.Identity, req Requirement) (Decision, error) {
	if req.IsEmpty() {
		return Allow(), nil
	}
	if identity == nil {
		return Deny(ReasonUnauthenticated), nil
	}

	user, err := g.directory.GetUser(ctx, identity.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return Deny(ReasonUnauthenticated), nil
	}
	if err != nil {
		return Decision{}, err
	}

	if user.IsSuperuser() {
		return Allow(), nil
	}

	effective, err := g.resolve(ctx, user)
	if err != nil {
		return Decision{}, err
	}
	if effective.Satisfies(req) {
		return Allow(), nil
	}
	return Deny(ReasonForbidden), nil
}

// Require is Authorize folded into a single error: nil when allowed,
// ErrUnauthenticated or ErrForbidden when denied, or the store error
func (g *Guard) Require(ctx context.Context, identity *auth.Identity, req Requirement) error {
	decision, err := g.Authorize(ctx, identity, req)
	if err != nil {
		return err
	}
	return decision.Err()
}

// Has reports whether identity holds p without recording a denial. It is used
// to pick between code paths rather than to gate them.
func (g *Guard) Has(ctx context.Context, identity *auth.Identity, p Permission) (bool, error) {
	decision, err := g.authorize(ctx, identity, RequireAll(p))
	if err != nil {
		return false, err
	}
	return decision.Allowed, nil
}

// Effective loads user userID and describes their effective permission set
func (g *Guard) Effective(ctx context.Context, userID int64) (*EffectivePermissions, error) {
	user, err := g.directory.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := &EffectivePermissions{
		UserID:             user.ID,
		RoleID:             user.RoleID,
		Superuser:          user.IsSuperuser(),
		ExtraPermissions:   user.ExtraPermissions,
		RemovedPermissions: user.RemovedPermissions,
	}

	role, err := g.directory.GetRole(ctx, user.RoleID)
	switch {
	case err == nil:
		out.RoleName = role.Name
		out.RolePermissions = role.Permissions
	case errors.Is(err, ErrRoleNotFound) && out.Superuser:
	default:
		return nil, err
	}

	if out.Superuser {
		out.Effective = NewPermissionSet(AllPermissions()...)
		return out, nil
	}

	out.Effective, err = Resolve(user, role)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Guard) resolve(ctx context.Context, user *User) (PermissionSet, error) {
	role, err := g.directory.GetRole(ctx, user.RoleID)
	if err != nil {
		return nil, err
	}
	return Resolve(user, role)
}
