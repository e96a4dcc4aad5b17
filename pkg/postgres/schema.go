package postgres

import (
	"context"
	"fmt"
)

// schema is applied in order by EnsureSchema. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS prompts (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id     TEXT,
		title       TEXT NOT NULL,
		prompt_text TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT 'General',
		tags        TEXT[] NOT NULL DEFAULT '{}',
		is_public   BOOLEAN NOT NULL DEFAULT TRUE,
		copies      INTEGER NOT NULL DEFAULT 0 CHECK (copies >= 0),
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS prompts_public_copies_idx ON prompts (is_public, copies DESC)`,
	`CREATE INDEX IF NOT EXISTS prompts_owner_created_idx ON prompts (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS prompts_tags_idx ON prompts USING GIN (tags)`,
	`CREATE TABLE IF NOT EXISTS waitlist (
		email      TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash   TEXT NOT NULL UNIQUE,
		name       TEXT NOT NULL,
		rate_limit INTEGER NOT NULL DEFAULT 100,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates the PromptVault tables and indexes if they are
// missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i, err)
		}
	}
	return nil
}
