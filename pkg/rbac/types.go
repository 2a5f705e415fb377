package rbac

import (
	"errors"
	"time"
)

const (
	// DefaultRoleID is the role new users receive
	DefaultRoleID int64 = 1
	// SuperuserRoleID bypasses every permission check
	SuperuserRoleID int64 = 2
)

var (
	// ErrInvalidPermission is returned for ids or names outside the catalog
	ErrInvalidPermission = errors.New("invalid permission")
	// ErrUnauthenticated is returned when no identity accompanies a request
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the effective set does not satisfy a requirement
	ErrForbidden = errors.New("forbidden")
	// ErrLocked is returned for attempts to modify the default or superuser role
	ErrLocked = errors.New("role is locked")
	// ErrRoleNotFound is returned when a role id does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrUserNotFound is returned when a user id does not exist
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when an email is already registered
	ErrUserExists = errors.New("user already exists")
	// ErrRoleExists is returned when a role name is already taken
	ErrRoleExists = errors.New("role already exists")
	// ErrRoleInUse is returned when deleting a role that users still reference
	ErrRoleInUse = errors.New("role is assigned to users")
)

// Role is a named default permission set shared by many users
type Role struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Permissions PermissionSet `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsProtected reports whether the role is one of the sentinel roles
func (r *Role) IsProtected() bool {
	return IsProtectedRole(r.ID)
}

// IsProtectedRole reports whether roleID is the default or superuser role
func IsProtectedRole(roleID int64) bool {
	return roleID == DefaultRoleID || roleID == SuperuserRoleID
}

// User holds the authorization-relevant fields of an account. The overlays are
// applied on top of the role at resolution time and never merged into it.
type User struct {
	ID                 int64         `json:"id"`
	Email              string        `json:"email"`
	DisplayName        string        `json:"display_name,omitempty"`
	RoleID             int64         `json:"role_id"`
	ExtraPermissions   PermissionSet `json:"extra_permissions"`
	RemovedPermissions PermissionSet `json:"removed_permissions"`
	CreatedAt          time.Time     `json:"created_at"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// IsSuperuser reports whether the user holds the superuser role
func (u *User) IsSuperuser() bool {
	return u.RoleID == SuperuserRoleID
}

// Resolve computes the effective permission set of user under role.
// Removals are applied after additions, so a removed permission is never
// granted by either the role or the extra overlay.
func Resolve(user *User, role *Role) (PermissionSet, error) {
	if role == nil || role.ID != user.RoleID {
		return nil, ErrRoleNotFound
	}
	effective := role.Permissions.Union(user.ExtraPermissions)
	return effective.Difference(user.RemovedPermissions), nil
}

// EffectivePermissions describes how a user's effective set was derived
type EffectivePermissions struct {
	UserID             int64         `json:"user_id"`
	RoleID             int64         `json:"role_id"`
	RoleName           string        `json:"role_name"`
	Superuser          bool          `json:"superuser"`
	RolePermissions    PermissionSet `json:"role_permissions"`
	ExtraPermissions   PermissionSet `json:"extra_permissions"`
	RemovedPermissions PermissionSet `json:"removed_permissions"`
	Effective          PermissionSet `json:"effective"`
}
