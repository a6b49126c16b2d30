package cache

import (
	"context"
	"sync"
	"time"
)

// memoryProvider is an in-process Provider used by tests and by
// single-node deployments that run without Redis. Expiry is enforced
// lazily on access; there is no background sweeper.
type memoryProvider struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

var _ Provider = (*memoryProvider)(nil)

func NewMemoryProvider() *memoryProvider {
	return &memoryProvider{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryProviderWithClock allows tests to control the providers
// notion of time, which makes TTL behaviour deterministic.
func NewMemoryProviderWithClock(now func() time.Time) *memoryProvider {
	return &memoryProvider{
		entries: make(map[string]memoryEntry),
		now:     now,
	}
}

func (p *memoryProvider) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()

	if !ok || p.expired(entry) {
		return nil, false, nil
	}

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true, nil
}

func (p *memoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	entry := memoryEntry{value: stored}
	if ttl > 0 {
		entry.expiresAt = p.now().Add(ttl)
	}

	p.mu.Lock()
	p.entries[key] = entry
	p.mu.Unlock()
	return nil
}

func (p *memoryProvider) Del(_ context.Context, key string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.entries[key]; !ok {
		return false, nil
	}

	delete(p.entries, key)
	return true, nil
}

func (p *memoryProvider) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := p.Get(ctx, key)
	return ok, err
}

func (p *memoryProvider) Close() error {
	p.mu.Lock()
	p.entries = make(map[string]memoryEntry)
	p.mu.Unlock()
	return nil
}

func (p *memoryProvider) expired(entry memoryEntry) bool {
	return !entry.expiresAt.IsZero() && !p.now().Before(entry.expiresAt)
}
