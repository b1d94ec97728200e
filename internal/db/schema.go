package db

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id       TEXT PRIMARY KEY,
		points        BIGINT NOT NULL DEFAULT 0,
		last_point_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS point_history (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		amount     BIGINT NOT NULL,
		reason     TEXT NOT NULL,
		awarded_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS point_history_user_idx
		ON point_history (user_id, awarded_at DESC)`,
}

// Migrate creates the tables this service owns. Every statement is
// idempotent, so it runs on each boot.
func Migrate(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
