package batterystudy

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix milliseconds so range queries and
// ORDER BY compare correctly regardless of precision.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_address ON sessions(address, started_at)`,
	`CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		address TEXT NOT NULL,
		recorded_at INTEGER NOT NULL,
		left_level INTEGER NOT NULL,
		left_charging INTEGER NOT NULL DEFAULT 0,
		right_level INTEGER NOT NULL,
		right_charging INTEGER NOT NULL DEFAULT 0,
		case_level INTEGER NOT NULL,
		case_charging INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_address_time ON samples(address, recorded_at)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_session ON samples(session_id, recorded_at)`,
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", int(defaultBusyTimeout.Milliseconds())),
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("batterystudy: apply pragma %q: %w", pragma, err)
		}
	}

	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("batterystudy: apply schema: %w", err)
		}
	}
	return nil
}
