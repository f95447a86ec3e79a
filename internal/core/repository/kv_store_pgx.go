package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/codeyard/internal/core/domain"
)

// PgxKeyValueStore implements domain.KeyValueStore using pgxpool.
// It lets several client processes share one session, e.g. a fleet of bots.
type PgxKeyValueStore struct {
	pool *pgxpool.Pool
}

var _ domain.KeyValueStore = (*PgxKeyValueStore)(nil)

// NewPgxKeyValueStore creates the backing table if needed.
// The store takes ownership of pool.
func NewPgxKeyValueStore(ctx context.Context, pool *pgxpool.Pool) (*PgxKeyValueStore, error) {
	query := `
		CREATE TABLE IF NOT EXISTS client_kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	if _, err := pool.Exec(ctx, query); err != nil {
		return nil, err
	}
	return &PgxKeyValueStore{pool: pool}, nil
}

// Get returns the value stored under key.
// Returns ("", nil) when the key is not present.
func (r *PgxKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM client_kv WHERE key = $1`

	var value string
	err := r.pool.QueryRow(ctx, query, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Set upserts value under key.
func (r *PgxKeyValueStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO client_kv (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.pool.Exec(ctx, query, key, value)
	return err
}

// Delete removes key.
func (r *PgxKeyValueStore) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM client_kv WHERE key = $1`, key)
	return err
}

// Close closes the pool.
func (r *PgxKeyValueStore) Close() error {
	r.pool.Close()
	return nil
}
