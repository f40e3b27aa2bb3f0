// Package db provides database schema migration management.
package db

import (
	"database/sql"
	"fmt"
	"time"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
)

// Migration represents a database schema migration. The store ships embedded
// in the driver app, so migrations are compiled in rather than read from
// disk.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order; never reorder or edit a shipped entry.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		SQL: `
		CREATE TABLE IF NOT EXISTS cached_jobs (
			id TEXT PRIMARY KEY,
			customer_name TEXT NOT NULL DEFAULT '',
			delivery_address TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			scheduled_date TEXT NOT NULL DEFAULT '',
			driver_name TEXT NOT NULL DEFAULT '',
			pod_files TEXT NOT NULL DEFAULT '[]',
			notes TEXT NOT NULL DEFAULT '',
			cached_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS cached_assignments (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL,
			driver_id TEXT NOT NULL DEFAULT '',
			driver_name TEXT NOT NULL DEFAULT '',
			slot_date TEXT NOT NULL DEFAULT '',
			slot_window TEXT NOT NULL DEFAULT '',
			cached_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS outbox (
			queue_id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0
		);

		CREATE INDEX IF NOT EXISTS idx_outbox_timestamp ON outbox(timestamp);
		CREATE INDEX IF NOT EXISTS idx_outbox_job_id ON outbox(job_id);

		CREATE TABLE IF NOT EXISTS sync_metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		`,
	},
}

// Migrate creates the schema_migrations table if needed and applies all
// pending migrations, each inside its own transaction.
func Migrate(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0)
	);`
	if _, err := db.Exec(query); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize schema_migrations", err)
	}

	current, err := CurrentVersion(db)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to read schema version", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return apperrors.Wrap(apperrors.ErrMigration,
				fmt.Sprintf("failed to apply migration v%d (%s)", m.Version, m.Description), err)
		}
	}

	return nil
}

// CurrentVersion returns the current schema version.
func CurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// applyMigration applies a single migration inside a transaction.
func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}

	record := `INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)`
	if _, err := tx.Exec(record, m.Version, time.Now().Unix(), m.Description); err != nil {
		return err
	}

	return tx.Commit()
}
