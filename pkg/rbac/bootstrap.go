package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/masthead/pkg/auth"
)

// BootstrapSuperuser makes email a superuser, creating the account when it
// does not exist, and issues it a fresh token. The plaintext token is
// returned once.
func BootstrapSuperuser(ctx context.Context, store *Store, tokens *auth.TokenManager, email string) (*User, string, error) {
	user, err := store.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user = &User{
			Email:              email,
			RoleID:             SuperuserRoleID,
			ExtraPermissions:   PermissionSet{},
			RemovedPermissions: PermissionSet{},
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return nil, "", err
		}
	case err != nil:
		return nil, "", err
	case !user.IsSuperuser():
		if user, err = store.AssignRole(ctx, user.ID, SuperuserRoleID); err != nil {
			return nil, "", err
		}
	}

	_, token, err := tokens.CreateToken(ctx, user.ID, "bootstrap", nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to issue bootstrap token: %w", err)
	}
	return user, token, nil
}
