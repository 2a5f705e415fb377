package rbac

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/masthead/pkg/observability"
)

// maxSeedRoleID bounds seeded ids below the range handed out by the database
const maxSeedRoleID = 99

// RoleSeed is one role entry of a roles file
type RoleSeed struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

// SeedFile is the document read from MASTHEAD_ROLES_FILE
type SeedFile struct {
	Roles []RoleSeed `yaml:"roles"`
}

// LoadSeedFile reads and validates a roles file. Every permission name must
// exist in the catalog.
func LoadSeedFile(path string) ([]*Role, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roles file: %w", err)
	}
	return ParseSeeds(data)
}

// ParseSeeds parses roles file content
func ParseSeeds(data []byte) ([]*Role, error) {
	var file SeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse roles file: %w", err)
	}

	seen := make(map[int64]bool, len(file.Roles))
	roles := make([]*Role, 0, len(file.Roles))
	for _, seed := range file.Roles {
		if seed.ID < 1 || seed.ID > maxSeedRoleID {
			return nil, fmt.Errorf("role %q: id must be between 1 and %d", seed.Name, maxSeedRoleID)
		}
		if seed.Name == "" {
			return nil, fmt.Errorf("role %d: name is required", seed.ID)
		}
		if seen[seed.ID] {
			return nil, fmt.Errorf("role %d: duplicate id", seed.ID)
		}
		seen[seed.ID] = true

		set := PermissionSet{}
		for _, name := range seed.Permissions {
			p, err := ParsePermissionName(name)
			if err != nil {
				return nil, fmt.Errorf("role %q: %w", seed.Name, err)
			}
			set[p] = struct{}{}
		}
		roles = append(roles, &Role{ID: seed.ID, Name: seed.Name, Permissions: set})
	}
	return roles, nil
}

// ApplySeeds upserts roles. Sentinel roles are skipped unless includeProtected is set.
// It returns the number of roles written.
func ApplySeeds(ctx context.Context, store *Store, roles []*Role, includeProtected bool) (int, error) {
	logger := observability.FromContext(ctx)
	applied := 0
	for _, role := range roles {
		if role.IsProtected() && !includeProtected {
			logger.WithField("role_id", role.ID).Warn("skipping seed for protected role")
			continue
		}
		if err := store.UpsertSeedRole(ctx, role); err != nil {
			return applied, err
		}
		applied++
	}
	logger.WithField("roles", applied).Info("role seeds applied")
	return applied, nil
}

// WatchSeedFile re-applies the roles file whenever it is written, until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func WatchSeedFile(ctx context.Context, store *Store, path string, includeProtected bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return fmt.Errorf("failed to resolve roles file path: %w", err)
	}
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	logger := observability.FromContext(ctx).WithField("roles_file", target)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				roles, err := LoadSeedFile(target)
				if err != nil {
					logger.WithError(err).Error("roles file reload failed")
					continue
				}
				if _, err := ApplySeeds(ctx, store, roles, includeProtected); err != nil {
					logger.WithError(err).Error("roles file reload failed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("roles file watcher error")
			}
		}
	}()
	return nil
}
