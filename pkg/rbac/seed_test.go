package rbac

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
roles:
  - id: 1
    name: default
    permissions: [read_blog]
  - id: 3
    name: editor
    permissions: [read_blog, create_blog, submit_blog]
  - id: 4
    name: publisher
    permissions: [approve_blog, publish_blog, approve_edition, publish_edition]
`

func TestParseSeeds(t *testing.T) {
	roles, err := ParseSeeds([]byte(seedYAML))
	require.NoError(t, err)
	require.Len(t, roles, 3)
	assert.Equal(t, "editor", roles[1].Name)
	assert.Equal(t, NewPermissionSet(ReadBlog, CreateBlog, SubmitBlog), roles[1].Permissions)
}

func TestParseSeeds_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown permission", "roles:\n  - {id: 3, name: x, permissions: [fly]}\n", "invalid permission"},
		{"id out of range", "roles:\n  - {id: 150, name: x}\n", "id must be between"},
		{"missing name", "roles:\n  - {id: 3}\n", "name is required"},
		{"duplicate id", "roles:\n  - {id: 3, name: a}\n  - {id: 3, name: b}\n", "duplicate id"},
		{"malformed", "roles: [", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeeds([]byte(tt.yaml))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApplySeeds_SkipsProtectedRoles(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	roles, err := ParseSeeds([]byte(seedYAML))
	require.NoError(t, err)

	applied, err := ApplySeeds(ctx, store, roles, false)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	def, err := store.GetRole(ctx, DefaultRoleID)
	require.NoError(t, err)
	assert.Equal(t, NewPermissionSet(ReadBlog, ReadEdition), def.Permissions)

	applied, err = ApplySeeds(ctx, store, roles, true)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	def, err = store.GetRole(ctx, DefaultRoleID)
	require.NoError(t, err)
	assert.Equal(t, NewPermissionSet(ReadBlog), def.Permissions)
}

func TestWatchSeedFile_ReappliesOnWrite(t *testing.T) {
	store, _ := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	path := filepath.Join(t.TempDir(), "roles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - {id: 3, name: editor, permissions: [read_blog]}\n"), 0o644))

	require.NoError(t, WatchSeedFile(ctx, store, path, false))

	require.NoError(t, os.WriteFile(path, []byte("roles:\n  - {id: 3, name: editor, permissions: [read_blog, publish_blog]}\n"), 0o644))

	assert.Eventually(t, func() bool {
		role, err := store.GetRole(context.Background(), 3)
		return err == nil && role.Permissions.Contains(PublishBlog)
	}, 5*time.Second, 50*time.Millisecond)
}
