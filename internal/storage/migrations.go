package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a schema migration. Each dialect carries its own DDL.
type Migration struct {
	Version  int
	Name     string
	SQLite   string
	Postgres string
}

// migrations holds all schema migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		SQLite: `
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				name_key TEXT NOT NULL,
				color TEXT NOT NULL,
				archived BOOLEAN NOT NULL DEFAULT 0,
				created_at TIMESTAMP NOT NULL,
				updated_at TIMESTAMP NOT NULL,
				UNIQUE (user_id, name_key)
			);

			-- One row per quarter hour and user.
			CREATE TABLE IF NOT EXISTS time_slots (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				date TEXT NOT NULL,
				time_slot REAL NOT NULL,
				note TEXT,
				UNIQUE (user_id, date, time_slot)
			);

			CREATE TABLE IF NOT EXISTS user_settings (
				id TEXT PRIMARY KEY,
				user_id TEXT UNIQUE NOT NULL,
				day_start_hour INTEGER NOT NULL,
				day_end_hour INTEGER NOT NULL,
				time_increment INTEGER NOT NULL,
				stats_start_date TEXT,
				stats_end_date TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_time_slots_project ON time_slots(user_id, project_id);
		`,
		Postgres: `
			CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				name_key TEXT NOT NULL,
				color TEXT NOT NULL,
				archived BOOLEAN NOT NULL DEFAULT FALSE,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				UNIQUE (user_id, name_key)
			);

			CREATE TABLE IF NOT EXISTS time_slots (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				project_id TEXT NOT NULL,
				date TEXT NOT NULL,
				time_slot DOUBLE PRECISION NOT NULL,
				note TEXT,
				UNIQUE (user_id, date, time_slot)
			);

			CREATE TABLE IF NOT EXISTS user_settings (
				id TEXT PRIMARY KEY,
				user_id TEXT UNIQUE NOT NULL,
				day_start_hour INTEGER NOT NULL,
				day_end_hour INTEGER NOT NULL,
				time_increment INTEGER NOT NULL,
				stats_start_date TEXT,
				stats_end_date TEXT
			);

			CREATE INDEX IF NOT EXISTS idx_time_slots_project ON time_slots(user_id, project_id);
		`,
	},
}

// runMigrations applies all pending migrations to a SQLite database.
func runMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQLite); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
