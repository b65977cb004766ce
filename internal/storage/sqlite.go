package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteBackend implements Backend on a single SQLite file.
type SQLiteBackend struct {
	path string
	db   *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return &SQLiteBackend{path: path, db: db}, nil
}

// ForUser implements Backend.
func (b *SQLiteBackend) ForUser(userID string) Store {
	return &sqliteStore{
		sqliteSlotRepo:     &sqliteSlotRepo{db: b.db, userID: userID},
		sqliteProjectRepo:  &sqliteProjectRepo{db: b.db, userID: userID},
		sqliteSettingsRepo: &sqliteSettingsRepo{db: b.db, userID: userID},
	}
}

// Migrate implements Backend.
func (b *SQLiteBackend) Migrate(ctx context.Context) error {
	return runMigrations(ctx, b.db)
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

// DB returns the underlying database connection for health checks.
func (b *SQLiteBackend) DB() *sql.DB {
	return b.db
}

type sqliteStore struct {
	*sqliteSlotRepo
	*sqliteProjectRepo
	*sqliteSettingsRepo
}

// isSQLiteUnique reports whether err is a UNIQUE constraint violation.
func isSQLiteUnique(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
