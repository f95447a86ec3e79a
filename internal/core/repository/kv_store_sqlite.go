package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/duynhne/codeyard/internal/core/domain"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

// SQLiteKeyValueStore implements domain.KeyValueStore on a local sqlite file.
// It is the default store of the CLI.
type SQLiteKeyValueStore struct {
	conn *sql.DB
}

var _ domain.KeyValueStore = (*SQLiteKeyValueStore)(nil)

// NewSQLiteKeyValueStore opens (or creates) the database at path and runs
// migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteKeyValueStore(path string) (*SQLiteKeyValueStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases alive across calls.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	s := &SQLiteKeyValueStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteKeyValueStore) migrate() error {
	_, err := s.conn.Exec(`CREATE TABLE IF NOT EXISTS client_kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// Get returns the value stored under key.
// Returns ("", nil) when the key is not present.
func (s *SQLiteKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx, "SELECT value FROM client_kv WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Set upserts value under key.
func (s *SQLiteKeyValueStore) Set(ctx context.Context, key, value string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO client_kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	return err
}

// Delete removes key.
func (s *SQLiteKeyValueStore) Delete(ctx context.Context, key string) error {
	_, err := s.conn.ExecContext(ctx, "DELETE FROM client_kv WHERE key = ?", key)
	return err
}

// Close closes the database connection.
func (s *SQLiteKeyValueStore) Close() error {
	return s.conn.Close()
}
