package ratelimit

import (
	"context"
	"sync"
	"time"
)

// memoryWindowStore is the in-process WindowStore used by tests and
// by single-node deployments running without Redis. Atomicity of the
// slide is provided by a plain mutex, which is sufficient when the
// store is not shared between processes.
type memoryWindowStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	timestamps []time.Time
	expiresAt  time.Time
}

var _ WindowStore = (*memoryWindowStore)(nil)

func NewMemoryWindowStore() *memoryWindowStore {
	return &memoryWindowStore{windows: make(map[string]*window)}
}

func (store *memoryWindowStore) Slide(_ context.Context, key string, cutoff time.Time, now time.Time, expiry time.Duration) (int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, ok := store.windows[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &window{}
		store.windows[key] = entry
	}

	// Prune everything at-or-before the cutoff; the ordered slice
	// makes this a single index scan.
	firstLive := 0
	for firstLive < len(entry.timestamps) && !entry.timestamps[firstLive].After(cutoff) {
		firstLive++
	}
	entry.timestamps = entry.timestamps[firstLive:]

	count := int64(len(entry.timestamps))
	entry.timestamps = append(entry.timestamps, now)
	entry.expiresAt = now.Add(expiry)

	return count, nil
}

func (store *memoryWindowStore) Reset(_ context.Context, key string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	delete(store.windows, key)
	return nil
}
