package content

import "github.com/platinummonkey/masthead/pkg/storage"

// Migrations returns the content schema. It references users, so the rbac
// migrations must be applied first.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version:     1,
			Description: "create content items",
			Postgres: `
				CREATE TABLE IF NOT EXISTS content_items (
					id BIGSERIAL PRIMARY KEY,
					kind VARCHAR(32) NOT NULL,
					owner_id BIGINT NOT NULL REFERENCES users(id),
					title VARCHAR(500) NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					status SMALLINT NOT NULL DEFAULT 0 CHECK (status BETWEEN 0 AND 3),
					published_at TIMESTAMP WITH TIME ZONE,
					asset_keys JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP WITH TIME ZONE NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_content_items_kind_status ON content_items(kind, status);
				CREATE INDEX IF NOT EXISTS idx_content_items_due ON content_items(status, published_at);
				CREATE INDEX IF NOT EXISTS idx_content_items_owner ON content_items(owner_id);
			`,
			SQLite: `
				CREATE TABLE IF NOT EXISTS content_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					kind TEXT NOT NULL,
					owner_id INTEGER NOT NULL REFERENCES users(id),
					title TEXT NOT NULL,
					body TEXT NOT NULL DEFAULT '',
					status INTEGER NOT NULL DEFAULT 0 CHECK (status BETWEEN 0 AND 3),
					published_at TIMESTAMP,
					asset_keys TEXT NOT NULL DEFAULT '[]',
					created_at TIMESTAMP NOT NULL,
					updated_at TIMESTAMP NOT NULL
				);
				CREATE INDEX IF NOT EXISTS idx_content_items_kind_status ON content_items(kind, status);
				CREATE INDEX IF NOT EXISTS idx_content_items_due ON content_items(status, published_at);
				CREATE INDEX IF NOT EXISTS idx_content_items_owner ON content_items(owner_id);
			`,
		},
	}
}
