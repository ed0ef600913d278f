package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spencerjireh/portfoliobridge/internal/cache"
)

func TestConsumeAllowsWithinCapacity(t *testing.T) {
	c := cache.NewInProcess()
	l := New(c, Config{Capacity: 2, RefillRate: 1, TTL: time.Minute})
	ctx := context.Background()

	r1 := l.Consume(ctx, "visitor-1")
	assert.True(t, r1.Allowed)
	r2 := l.Consume(ctx, "visitor-1")
	assert.True(t, r2.Allowed)
}

func TestConsumeRejectsOverCapacity(t *testing.T) {
	c := cache.NewInProcess()
	l := New(c, Config{Capacity: 1, RefillRate: 1, TTL: time.Minute})
	ctx := context.Background()

	require.True(t, l.Consume(ctx, "visitor-1").Allowed)
	r := l.Consume(ctx, "visitor-1")
	assert.False(t, r.Allowed)
	assert.Greater(t, r.RetryAfter, 0)
}

func TestConsumeIsolatesKeys(t *testing.T) {
	c := cache.NewInProcess()
	l := New(c, Config{Capacity: 1, RefillRate: 1, TTL: time.Minute})
	ctx := context.Background()

	require.True(t, l.Consume(ctx, "a").Allowed)
	assert.True(t, l.Consume(ctx, "b").Allowed)
}

func TestPeekDoesNotConsume(t *testing.T) {
	c := cache.NewInProcess()
	l := New(c, Config{Capacity: 1, RefillRate: 1, TTL: time.Minute})
	ctx := context.Background()

	p := l.Peek(ctx, "visitor-1")
	assert.True(t, p.Allowed)

	// Peek must not have spent the token: Consume should still succeed once.
	assert.True(t, l.Consume(ctx, "visitor-1").Allowed)
	assert.False(t, l.Consume(ctx, "visitor-1").Allowed)
}

type erroringCache struct{ cache.Cache }

func (erroringCache) GetTokenBucket(context.Context, string) (cache.TokenBucketState, bool, error) {
	return cache.TokenBucketState{}, false, assertErr
}

var assertErr = &cacheErr{}

type cacheErr struct{}

func (*cacheErr) Error() string { return "cache unavailable" }

func TestConsumeFailsOpenOnCacheError(t *testing.T) {
	l := New(erroringCache{}, Config{Capacity: 1, RefillRate: 1, TTL: time.Minute})
	r := l.Consume(context.Background(), "visitor-1")
	assert.True(t, r.Allowed)
}
