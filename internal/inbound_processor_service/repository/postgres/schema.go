package postgres

import (
	"context"
	"fmt"
	"log/slog"
)

// schemaStatements create the inbox tables. Every statement is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id BIGSERIAL PRIMARY KEY,
		address TEXT NOT NULL,
		normalized_address TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id UUID PRIMARY KEY,
		thread_id BIGINT NOT NULL REFERENCES threads(id),
		subscription_id INTEGER NOT NULL DEFAULT -1,
		address TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		timestamp_millis BIGINT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		direction TEXT NOT NULL,
		content_locator TEXT UNIQUE
	)`,
	`CREATE INDEX IF NOT EXISTS messages_thread_direction_ts_idx ON messages (thread_id, direction, timestamp_millis DESC)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT PRIMARY KEY REFERENCES threads(id),
		blocked BOOLEAN NOT NULL DEFAULT FALSE,
		blocking_client TEXT,
		block_reason TEXT,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		last_message_id UUID,
		snippet TEXT,
		last_message_at_millis BIGINT,
		unread_count INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS blocking_rules (
		normalized_address TEXT PRIMARY KEY,
		action TEXT NOT NULL CHECK (action IN ('block', 'unblock', 'none')),
		reason TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY,
		number TEXT NOT NULL,
		normalized_number TEXT NOT NULL,
		display_name TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS contacts_normalized_number_idx ON contacts (normalized_number)`,
}

// EnsureSchema creates any missing inbox tables and indexes.
func EnsureSchema(ctx context.Context, db DBTX, logger *slog.Logger) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying schema statement %d: %w", i+1, err)
		}
	}
	logger.InfoContext(ctx, "Inbox schema ensured", "statements", len(schemaStatements))
	return nil
}
