package domain

import "context"

// AccessTokenKey is the key under which the session access token is persisted.
const AccessTokenKey = "access_token"

// KeyValueStore is the durable client-side store that keeps the session token
// between process restarts. Implementations live in internal/core/repository.
type KeyValueStore interface {
	// Get returns the stored value.
	// Returns ("", nil) when the key is not present.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying resources.
	Close() error
}
