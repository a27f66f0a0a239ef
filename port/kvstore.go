// Package port defines interfaces for external dependencies.
package port

import (
	"context"
	"time"
)

// KVStore is the shared cache store contract. All managers treat the store
// as the source of truth; in-process copies are performance optimizations
// only. Implementations must map a missing key to domain.ErrCacheMiss and
// connectivity failures to domain.ErrCacheUnavailable.
type KVStore interface {
	// Get returns the value stored under key.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key with the given TTL. A zero TTL stores the
	// key without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Incr atomically increments the integer value under key by one and
	// returns the result. A missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error
}
