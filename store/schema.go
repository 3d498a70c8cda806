package store

import (
	"context"
	"database/sql"

	"satukanvas/pkg/logger"
)

// Schema creates the tables behind the session lifecycle API.
const Schema = `
CREATE TABLE IF NOT EXISTS collab_sessions (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	owner_id    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	ended_at    TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS session_members (
	session_id   TEXT NOT NULL REFERENCES collab_sessions (id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL,
	color        TEXT NOT NULL DEFAULT '',
	joined_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (session_id, user_id)
);
`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		logger.Sugar.Errorf("Failed to apply schema: %v", err)
		return err
	}
	return nil
}
