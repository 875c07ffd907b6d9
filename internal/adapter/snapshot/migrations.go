package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "Initial snapshot schema",
		SQL: `
CREATE TABLE IF NOT EXISTS snapshot_meta (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    format_version INTEGER NOT NULL,
    source TEXT NOT NULL,
    saved_at TEXT NOT NULL,
    row_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
    seq INTEGER PRIMARY KEY,
    element_key INTEGER NOT NULL,
    region TEXT NOT NULL,
    observed_at TEXT NOT NULL,
    unit_desc TEXT NOT NULL,
    parking_spaces REAL NOT NULL,
    vehicle_count REAL NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "Nullable counts and load stats",
		SQL: `
CREATE TABLE observations_v2 (
    seq INTEGER PRIMARY KEY,
    element_key INTEGER NOT NULL,
    region TEXT NOT NULL,
    observed_at TEXT NOT NULL,
    unit_desc TEXT NOT NULL,
    parking_spaces REAL,
    vehicle_count REAL
);

INSERT INTO observations_v2 SELECT * FROM observations;
DROP TABLE observations;
ALTER TABLE observations_v2 RENAME TO observations;

ALTER TABLE snapshot_meta ADD COLUMN rows_read INTEGER NOT NULL DEFAULT 0;
ALTER TABLE snapshot_meta ADD COLUMN dropped TEXT NOT NULL DEFAULT '{}';
`,
	},
}

// FormatVersion is the newest snapshot schema this build reads and writes.
var FormatVersion = migrations[len(migrations)-1].Version

func migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("ensure migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		return fmt.Errorf("get applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}

		logger.Debug("applying snapshot migration", "version", m.Version, "description", m.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Description, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at TEXT
		)
	`)
	return err
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// schemaVersion returns the highest applied migration, or 0 when the file
// carries no migrations table.
func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'",
	).Scan(&exists)
	if err != nil || exists == 0 {
		return 0, err
	}

	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}
