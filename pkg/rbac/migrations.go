package rbac

import "github.com/platinummonkey/masthead/pkg/storage"

// Migrations returns the roles and users schema together with the two
// sentinel roles. Ids below 100 are reserved for seeded roles.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create roles",
			Postgres: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					permissions JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS roles (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					permissions TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "seed default and superuser roles",
			Postgres: `
				INSERT INTO roles (id, name, permissions, created_at, updated_at) VALUES
					(1, 'default', '[1, 9]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
					(2, 'superuser', '[]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				ON CONFLICT (id) DO NOTHING;
				SELECT setval(pg_get_serial_sequence('roles', 'id'), GREATEST((SELECT MAX(id) FROM roles), 100));
			`,
			SQLite: `
				INSERT INTO roles (id, name, permissions, created_at, updated_at) VALUES
					(1, 'default', '[1, 9]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP),
					(2, 'superuser', '[]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
				ON CONFLICT (id) DO NOTHING;
				INSERT INTO sqlite_sequence (name, seq)
					SELECT 'roles', 100 WHERE NOT EXISTS (SELECT 1 FROM sqlite_sequence WHERE name = 'roles');
				UPDATE sqlite_sequence SET seq = MAX(seq, 100) WHERE name = 'roles';
			`,
		},
		{
			Version:     3,
			Description: "create users",
			Postgres: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					role_id BIGINT NOT NULL DEFAULT 1 REFERENCES roles(id),
					extra_permissions JSONB NOT NULL DEFAULT '[]',
					removed_permissions JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					email TEXT NOT NULL UNIQUE,
					display_name TEXT NOT NULL DEFAULT '',
					role_id INTEGER NOT NULL DEFAULT 1 REFERENCES roles(id),
					extra_permissions TEXT NOT NULL DEFAULT '[]',
					removed_permissions TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_users_role_id ON users(role_id);
			`,
		},
	}
}
