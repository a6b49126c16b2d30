// The ratelimit package implements a sliding-window request throttle.
// Each identity key owns an ordered set of request timestamps; a
// check prunes entries older than the window, counts the remainder,
// records the current attempt and refreshes the keys expiry - as one
// atomic unit against the shared store, so two concurrent checks can
// never both observe a stale count and both pass the limit.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Slack added to the keys own expiry beyond the window so that an
// idle keys bookkeeping disappears shortly after it stops mattering.
const expirySlack = time.Minute

type (
	// WindowStore is the shared ordered-set store the limiter counts
	// against. Slide must execute its four steps (prune, count,
	// insert, refresh expiry) atomically. The returned count is the
	// number of entries within the window BEFORE the new insertion.
	WindowStore interface {
		Slide(ctx context.Context, key string, cutoff time.Time, now time.Time, expiry time.Duration) (int64, error)
		Reset(ctx context.Context, key string) error
	}

	Limiter struct {
		store WindowStore
		now   func() time.Time
	}
)

func New(store WindowStore) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// NewWithClock is used by tests to control the limiters clock.
func NewWithClock(store WindowStore, now func() time.Time) *Limiter {
	return &Limiter{store: store, now: now}
}

// Check records an attempt for key and reports whether it is within
// the limit. The limit is inclusive: exactly 'limit' requests within
// any trailing window are allowed and the limit+1-th is denied.
// Capacity replenishes continuously as the oldest timestamps age out
// of the window; there are no fixed buckets.
//
// Denied attempts are still recorded - a client hammering a full
// window keeps pushing its own recovery further out.
func (limiter *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := limiter.now()
	count, err := limiter.store.Slide(ctx, storeKey(key), now.Add(-window), now, window+expirySlack)
	if err != nil {
		return false, fmt.Errorf("rate limit check for '%s' failed: %w", key, err)
	}

	return count < int64(limit), nil
}

// Reset clears all recorded attempts for key.
func (limiter *Limiter) Reset(ctx context.Context, key string) error {
	return limiter.store.Reset(ctx, storeKey(key))
}

func storeKey(key string) string {
	return "rate_limit:" + key
}
