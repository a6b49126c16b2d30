package ratelimit_test

import (
	"context"
	"testing"
	"time"

	"github.com/DINO060/mediasink/internal/ratelimit"
	"github.com/stretchr/testify/assert"
)

func TestLimiterAllowsUpToLimitInclusive(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())

	for i := 0; i < 10; i++ {
		allowed, err := limiter.Check(ctx, "user:1", 10, time.Minute)
		assert.Nil(t, err)
		assert.True(t, allowed, "attempt %d should be within the limit", i+1)
	}

	allowed, err := limiter.Check(ctx, "user:1", 10, time.Minute)
	assert.Nil(t, err)
	assert.False(t, allowed, "attempt 11 must be denied")
}

func TestLimiterDeniedAttemptsStillCount(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Check(ctx, "user:2", 2, time.Minute)
		assert.Nil(t, err)
		assert.Equal(t, i < 2, allowed)
	}

	// The two denied attempts above were recorded too, so the window
	// still holds more entries than the limit.
	allowed, err := limiter.Check(ctx, "user:2", 2, time.Minute)
	assert.Nil(t, err)
	assert.False(t, allowed)
}

func TestLimiterKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())

	allowed, err := limiter.Check(ctx, "user:3", 1, time.Minute)
	assert.Nil(t, err)
	assert.True(t, allowed)
	allowed, err = limiter.Check(ctx, "user:3", 1, time.Minute)
	assert.Nil(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Check(ctx, "user:4", 1, time.Minute)
	assert.Nil(t, err)
	assert.True(t, allowed, "an exhausted key must not affect other keys")
}

func TestLimiterAttemptsAgeOutOfTheWindow(t *testing.T) {
	ctx := context.Background()
	current := time.Now()
	limiter := ratelimit.NewWithClock(ratelimit.NewMemoryWindowStore(), func() time.Time { return current })

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Check(ctx, "user:5", 5, time.Minute)
		assert.Nil(t, err)
		assert.True(t, allowed)
	}

	allowed, err := limiter.Check(ctx, "user:5", 5, time.Minute)
	assert.Nil(t, err)
	assert.False(t, allowed)

	// Advance past the window; every prior attempt (including the
	// denied one) falls outside the trailing window and is pruned.
	current = current.Add(time.Minute + time.Second)
	allowed, err = limiter.Check(ctx, "user:5", 5, time.Minute)
	assert.Nil(t, err)
	assert.True(t, allowed)
}

func TestLimiterReset(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(ratelimit.NewMemoryWindowStore())

	allowed, err := limiter.Check(ctx, "user:6", 1, time.Minute)
	assert.Nil(t, err)
	assert.True(t, allowed)
	allowed, err = limiter.Check(ctx, "user:6", 1, time.Minute)
	assert.Nil(t, err)
	assert.False(t, allowed)

	assert.Nil(t, limiter.Reset(ctx, "user:6"))

	allowed, err = limiter.Check(ctx, "user:6", 1, time.Minute)
	assert.Nil(t, err)
	assert.True(t, allowed)
}
