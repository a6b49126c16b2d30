// The cache package provides the namespaced, TTL-based content cache
// that accelerates the acquisition pipeline. Values are opaque to the
// cache itself - callers provide and receive their own structures,
// which are transported as msgpack.
//
// This is a pure TTL cache: entries disappear when their TTL lapses
// and there is no eviction policy beyond that. The cache must never
// be treated as the source of truth for object existence; it is a
// pointer/metadata accelerator over the object store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/DINO060/mediasink/pkg/logger"
	"github.com/vmihailenco/msgpack/v5"
)

var log = logger.Get("Cache")

// Keys longer than this are replaced with their SHA-256 digest to
// bound the key size in the backing store.
const maxRawKeyLength = 200

type Cache struct {
	provider Provider
}

func New(provider Provider) *Cache {
	return &Cache{provider: provider}
}

// Get looks up the value for key within namespace and, on a hit,
// decodes it in to dest. Returns false on a miss (including expired
// entries, which the provider treats as absent).
func (cache *Cache) Get(ctx context.Context, namespace string, key string, dest any) (bool, error) {
	raw, ok, err := cache.provider.Get(ctx, makeKey(namespace, key))
	if err != nil {
		return false, fmt.Errorf("cache get for '%s' failed: %w", key, err)
	}
	if !ok {
		return false, nil
	}

	if err := msgpack.Unmarshal(raw, dest); err != nil {
		// An undecodable entry is useless; drop it so the caller
		// falls back to the full pipeline instead of erroring forever.
		log.Emit(logger.WARNING, "Dropping undecodable cache entry in namespace '%s': %v\n", namespace, err)
		_, _ = cache.provider.Del(ctx, makeKey(namespace, key))
		return false, nil
	}

	return true, nil
}

// Set stores value under key within namespace for the provided TTL.
// The TTL is always supplied by the caller; use-case defaults belong
// to the caller, not the cache.
func (cache *Cache) Set(ctx context.Context, namespace string, key string, value any, ttl time.Duration) error {
	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache set for '%s' failed to encode value: %w", key, err)
	}

	if err := cache.provider.Set(ctx, makeKey(namespace, key), encoded, ttl); err != nil {
		return fmt.Errorf("cache set for '%s' failed: %w", key, err)
	}

	return nil
}

// Delete removes the entry for key within namespace, reporting
// whether an entry was actually removed.
func (cache *Cache) Delete(ctx context.Context, namespace string, key string) (bool, error) {
	return cache.provider.Del(ctx, makeKey(namespace, key))
}

// Exists reports whether an unexpired entry exists for key within
// namespace.
func (cache *Cache) Exists(ctx context.Context, namespace string, key string) (bool, error) {
	return cache.provider.Exists(ctx, makeKey(namespace, key))
}

// Close releases the backing provider.
func (cache *Cache) Close() error {
	return cache.provider.Close()
}

// makeKey builds the storage key 'cache:{namespace}:{key}', hashing
// oversized keys first.
func makeKey(namespace string, key string) string {
	return fmt.Sprintf("cache:%s:%s", namespace, hashLongKey(key))
}

func hashLongKey(key string) string {
	if len(key) <= maxRawKeyLength {
		return key
	}

	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
