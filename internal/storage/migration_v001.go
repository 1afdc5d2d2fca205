package storage

import "database/sql"

// migrateV001 creates the profile and history tables.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		// ── Filter profiles ────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS filter_profiles (
			name        TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS profile_rules (
			profile TEXT NOT NULL REFERENCES filter_profiles(name) ON DELETE CASCADE,
			kind    TEXT NOT NULL CHECK (kind IN ('class', 'method', 'package')),
			value   TEXT NOT NULL,
			PRIMARY KEY (profile, kind, value)
		)`,

		// ── Trace loads ────────────────────────────────────────

		`CREATE TABLE IF NOT EXISTS trace_history (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			path      TEXT NOT NULL,
			loaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			events    INTEGER NOT NULL DEFAULT 0,
			vertices  INTEGER NOT NULL DEFAULT 0,
			edges     INTEGER NOT NULL DEFAULT 0,
			start_ts  INTEGER NOT NULL DEFAULT 0,
			end_ts    INTEGER NOT NULL DEFAULT 0
		)`,

		// ── Indexes ────────────────────────────────────────────

		`CREATE INDEX IF NOT EXISTS idx_profile_rules_kind  ON profile_rules(profile, kind)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_history_ts    ON trace_history(loaded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trace_history_path  ON trace_history(path)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
