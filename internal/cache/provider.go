package cache

import (
	"context"
	"time"
)

// Provider is the minimal byte store with TTLs that the content cache
// is layered over. Implementations must be safe for concurrent use
// and byte-for-byte transparent: Get must return exactly the []byte
// previously passed to Set for the same key.
//
// TTL enforcement belongs to the provider; a key whose TTL has lapsed
// must behave as absent.
type Provider interface {
	// Get returns (value, true, nil) on hit and (nil, false, nil) on
	// miss. Transport errors are returned as (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for the provided TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes a key. Deleting an absent key is not an error.
	Del(ctx context.Context, key string) (bool, error)

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources held by the provider.
	Close() error
}
