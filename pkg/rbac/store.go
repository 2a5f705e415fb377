package rbac

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/masthead/pkg/observability"
	"github.com/platinummonkey/masthead/pkg/storage"
)

// Store handles role and user persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func encodeSet(set PermissionSet) (string, error) {
	data, err := json.Marshal(set)
	if err != nil {
		return "", fmt.Errorf("failed to marshal permissions: %w", err)
	}
	return string(data), nil
}

func decodeSet(raw string) (PermissionSet, error) {
	var set PermissionSet
	if err := json.Unmarshal([]byte(raw), &set); err != nil {
		return nil, err
	}
	if set == nil {
		set = PermissionSet{}
	}
	return set, nil
}

const roleColumns = "id, name, permissions, created_at, updated_at"

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	var permissionsJSON string
	if err := row.Scan(&role.ID, &role.Name, &permissionsJSON, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	permissions, err := decodeSet(permissionsJSON)
	if err != nil {
		return nil, fmt.Errorf("role %d: %w", role.ID, err)
	}
	role.Permissions = permissions
	return &role, nil
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := encodeSet(role.Permissions)
	if err != nil {
		return err
	}

	now := s.timestamp()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO roles (name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, role.Name, permissionsJSON, now, now).Scan(&role.ID)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrRoleExists, role.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// UpsertSeedRole inserts role with its explicit id, or overwrites the name and
// permissions of the role already holding that id
func (s *Store) UpsertSeedRole(ctx context.Context, role *Role) error {
	permissionsJSON, err := encodeSet(role.Permissions)
	if err != nil {
		return err
	}

	now := s.timestamp()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO roles (id, name, permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			permissions = excluded.permissions,
			updated_at = excluded.updated_at
	`, role.ID, role.Name, permissionsJSON, now)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrRoleExists, role.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert role %d: %w", role.ID, err)
	}
	return nil
}

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+roleColumns+" FROM roles WHERE id = $1", roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role ordered by id
func (s *Store) ListRoles(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+roleColumns+" FROM roles ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	roles := make([]*Role, 0)
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

// UpdateRole replaces a role's name and permissions. Sentinel roles are refused.
func (s *Store) UpdateRole(ctx context.Context, role *Role) error {
	if IsProtectedRole(role.ID) {
		return ErrLocked
	}

	permissionsJSON, err := encodeSet(role.Permissions)
	if err != nil {
		return err
	}

	now := s.timestamp()
	result, err := s.db.ExecContext(ctx,
		"UPDATE roles SET name = $1, permissions = $2, updated_at = $3 WHERE id = $4",
		role.Name, permissionsJSON, now, role.ID,
	)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrRoleExists, role.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRoleNotFound, role.ID)
	}

	role.UpdatedAt = now
	return nil
}

// DeleteRole removes a role no user references. Sentinel roles are refused.
func (s *Store) DeleteRole(ctx context.Context, roleID int64) error {
	if IsProtectedRole(roleID) {
		return ErrLocked
	}

	var users int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role_id = $1", roleID).Scan(&users); err != nil {
		return fmt.Errorf("failed to count role users: %w", err)
	}
	if users > 0 {
		return fmt.Errorf("%w: %d users", ErrRoleInUse, users)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM roles WHERE id = $1", roleID)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrRoleNotFound, roleID)
	}
	return nil
}

const userColumns = "id, email, display_name, role_id, extra_permissions, removed_permissions, created_at, updated_at"

func scanUser(row rowScanner) (*User, error) {
	var user User
	var extraJSON, removedJSON string
	err := row.Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.RoleID,
		&extraJSON, &removedJSON, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if user.ExtraPermissions, err = decodeSet(extraJSON); err != nil {
		return nil, fmt.Errorf("user %d extra_permissions: %w", user.ID, err)
	}
	if user.RemovedPermissions, err = decodeSet(removedJSON); err != nil {
		return nil, fmt.Errorf("user %d removed_permissions: %w", user.ID, err)
	}
	return &user, nil
}

// CreateUser creates a user. A zero RoleID assigns the default role.
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	if user.RoleID == 0 {
		user.RoleID = DefaultRoleID
	}
	extraJSON, err := encodeSet(user.ExtraPermissions)
	if err != nil {
		return err
	}
	removedJSON, err := encodeSet(user.RemovedPermissions)
	if err != nil {
		return err
	}

	now := s.timestamp()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, display_name, role_id, extra_permissions, removed_permissions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, user.Email, user.DisplayName, user.RoleID, extraJSON, removedJSON, now).Scan(&user.ID)
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrUserExists, user.Email)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateOverlays replaces a user's extra and removed permission overlays
func (s *Store) UpdateOverlays(ctx context.Context, userID int64, extra, removed PermissionSet) (*User, error) {
	extraJSON, err := encodeSet(extra)
	if err != nil {
		return nil, err
	}
	removedJSON, err := encodeSet(removed)
	if err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET extra_permissions = $1, removed_permissions = $2, updated_at = $3 WHERE id = $4",
		extraJSON, removedJSON, s.timestamp(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update user permissions: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return s.GetUser(ctx, userID)
}

// AssignRole points a user at roleID, which must exist
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) (*User, error) {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE users SET role_id = $1, updated_at = $2 WHERE id = $3",
		roleID, s.timestamp(), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to assign role: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	return s.GetUser(ctx, userID)
}

// ListHolders returns every user whose effective set contains p, superusers
// included. Users whose role no longer exists are skipped and logged.
func (s *Store) ListHolders(ctx context.Context, p Permission) ([]*User, error) {
	roles, err := s.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]*Role, len(roles))
	for _, role := range roles {
		byID[role.ID] = role
	}

	rows, err := s.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	holders := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if user.IsSuperuser() {
			holders = append(holders, user)
			continue
		}
		effective, err := Resolve(user, byID[user.RoleID])
		if err != nil {
			observability.FromContext(ctx).
				WithFields(map[string]interface{}{"user_id": user.ID, "role_id": user.RoleID}).
				Warn("skipping user with missing role")
			continue
		}
		if effective.Contains(p) {
			holders = append(holders, user)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return holders, nil
}
