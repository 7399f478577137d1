package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
// Foreign keys are declared but intentionally left unenforced.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// FileStore opens a fresh connection for every operation. The fetch
// pipeline uses it so no connection outlives a single batch flush.
type FileStore struct {
	Path string
}

// EnsureSchema creates or migrates the store. Idempotent.
func (s FileStore) EnsureSchema(ctx context.Context) error {
	db, err := Open(s.Path)
	if err != nil {
		return err
	}
	return db.Close()
}

// SaveBatch writes games and reviews in one transaction on a new connection.
func (s FileStore) SaveBatch(ctx context.Context, games []Game, reviews []Review) error {
	db, err := Open(s.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.SaveBatch(ctx, games, reviews)
}
