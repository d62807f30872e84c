package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS state (
    key        TEXT PRIMARY KEY,
    value      BLOB NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// SQLiteStore implements Store on a local SQLite database. This is the
// default backend when no Redis is configured: a single file, no
// external service, durable across restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get retrieves the value for a key.
// Returns ErrNotFound if the key doesn't exist.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	storeOperationsTotal.WithLabelValues("sqlite", "get").Inc()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		storeErrorsTotal.WithLabelValues("sqlite", "get").Inc()
		return nil, fmt.Errorf("sqlite get: %w", err)
	}
	return value, nil
}

// Set durably stores the value, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	storeOperationsTotal.WithLabelValues("sqlite", "set").Inc()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO state (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now(),
	)
	if err != nil {
		storeErrorsTotal.WithLabelValues("sqlite", "set").Inc()
		return fmt.Errorf("sqlite set: %w", err)
	}
	return nil
}

// Remove deletes the key.
func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	storeOperationsTotal.WithLabelValues("sqlite", "remove").Inc()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM state WHERE key = ?`, key); err != nil {
		storeErrorsTotal.WithLabelValues("sqlite", "remove").Inc()
		return fmt.Errorf("sqlite delete: %w", err)
	}
	return nil
}
