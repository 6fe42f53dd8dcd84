package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations are applied in order; each entry's version is recorded in
// schema_versions once it commits.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS incidents (
    id            TEXT PRIMARY KEY,
    triggered_at  INTEGER NOT NULL,
    window_start  INTEGER NOT NULL,
    window_end    INTEGER NOT NULL,
    created_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS anomalies (
    incident_id     TEXT NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
    seq             INTEGER NOT NULL,
    metric_name     TEXT NOT NULL,
    value           REAL NOT NULL,
    threshold       REAL NOT NULL,
    timestamp       INTEGER NOT NULL,
    window_seconds  INTEGER NOT NULL,
    PRIMARY KEY (incident_id, seq)
);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_incidents_triggered_at ON incidents(triggered_at DESC);
CREATE INDEX IF NOT EXISTS idx_anomalies_metric ON anomalies(metric_name);
`,
	},
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_versions (version) VALUES (?)", m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}
