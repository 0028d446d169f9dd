package storage

import (
	"context"
	"time"
)

// NoExpiry is returned by TTL for a key that exists without an expiration.
const NoExpiry time.Duration = -1

// KVStore is the key-value store used for sessions, CSRF tokens and login
// attempt counters. Implementations must be safe for concurrent use; every
// call may block on I/O and honours ctx.
type KVStore interface {
	// Set stores value under key. A ttl <= 0 stores the key without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Replace overwrites value and ttl only if key is live, reporting whether it did.
	Replace(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get returns the value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes the keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Consume deletes key if it exists and reports whether it did, as a
	// single operation. Two concurrent calls for one key never both see true.
	Consume(ctx context.Context, key string) (bool, error)
	// Incr increments the integer at key, creating it at 1 without expiry.
	Incr(ctx context.Context, key string) (int64, error)
	// Expire sets the key's TTL; a missing key is a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	// TTL returns the remaining lifetime, NoExpiry, or ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
	Close() error
	// Driver names the backend ("redis", "memory") for logs and metrics.
	Driver() string
}
