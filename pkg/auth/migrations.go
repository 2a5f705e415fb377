package auth

import "github.com/platinummonkey/masthead/pkg/storage"

// Migrations returns the api_tokens schema. It references the users table,
// so the rbac migrations must run first.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create api_tokens",
			Postgres: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(32) NOT NULL,
					name VARCHAR(255) NOT NULL,
					expires_at TIMESTAMP WITH TIME ZONE,
					last_used_at TIMESTAMP WITH TIME ZONE,
					revoked_at TIMESTAMP WITH TIME ZONE,
					created_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash TEXT NOT NULL UNIQUE,
					token_prefix TEXT NOT NULL,
					name TEXT NOT NULL,
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					revoked_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
	}
}
