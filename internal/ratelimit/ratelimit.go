// Package ratelimit implements the distributed token-bucket limiter from
// spec.md §4.4, adapted from the teacher's in-memory TokenBucket/RateLimiter
// (internal/httpapi/ratelimit.go) to read and write bucket state through the
// shared cache instead of a process-local map, with fail-open semantics on
// cache errors.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/spencerjireh/portfoliobridge/internal/cache"
)

// Config holds the process-global bucket parameters (spec.md §3 TokenBucket).
type Config struct {
	Capacity   float64
	RefillRate float64 // tokens per second
	TTL        time.Duration
}

// DefaultConfig mirrors spec.md's suggested defaults (capacity/refill are
// normally supplied from config.Config; TTL of 300s is the "typical" value
// spec.md §4.4 names).
var DefaultConfig = Config{
	Capacity:   10,
	RefillRate: 1.0,
	TTL:        300 * time.Second,
}

// Result is returned by Consume and Peek.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter int // seconds, populated only when !Allowed
}

// Limiter is a cache-backed token bucket keyed by an opaque string (ipHash).
type Limiter struct {
	cache cache.Cache
	cfg   Config
}

func New(c cache.Cache, cfg Config) *Limiter {
	return &Limiter{cache: c, cfg: cfg}
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// refill loads (or initializes) the bucket for key and applies elapsed-time
// refill, returning the post-refill state without writing it back.
func (l *Limiter) refill(ctx context.Context, key string) (cache.TokenBucketState, error, bool) {
	state, found, err := l.cache.GetTokenBucket(ctx, key)
	if err != nil {
		return cache.TokenBucketState{}, err, false
	}

	now := nowMs()
	if !found {
		return cache.TokenBucketState{Tokens: l.cfg.Capacity, LastRefill: now}, nil, true
	}

	elapsedSeconds := float64(now-state.LastRefill) / 1000.0
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	tokens := state.Tokens + elapsedSeconds*l.cfg.RefillRate
	if tokens > l.cfg.Capacity {
		tokens = l.cfg.Capacity
	}

	return cache.TokenBucketState{Tokens: tokens, LastRefill: now}, nil, true
}

// Consume attempts to take one token for key. On cache failure it fails
// open: the caller is allowed through, since availability of the portfolio
// API must not depend on the rate limiter's backing store.
func (l *Limiter) Consume(ctx context.Context, key string) Result {
	state, err, _ := l.refill(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ratelimit: cache read failed, failing open")
		return Result{Allowed: true, Remaining: 0}
	}

	if state.Tokens >= 1 {
		state.Tokens -= 1
		if werr := l.cache.SetTokenBucket(ctx, key, state, l.cfg.TTL); werr != nil {
			log.Warn().Err(werr).Str("key", key).Msg("ratelimit: cache write failed")
		}
		return Result{Allowed: true, Remaining: int(math.Floor(state.Tokens))}
	}

	retryAfter := int(math.Ceil((1 - state.Tokens) / l.cfg.RefillRate))
	if werr := l.cache.SetTokenBucket(ctx, key, state, l.cfg.TTL); werr != nil {
		log.Warn().Err(werr).Str("key", key).Msg("ratelimit: cache write failed")
	}
	return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
}

// Peek forecasts the bucket's state without decrementing or writing back.
func (l *Limiter) Peek(ctx context.Context, key string) Result {
	state, err, _ := l.refill(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ratelimit: cache read failed, failing open")
		return Result{Allowed: true, Remaining: 0}
	}

	if state.Tokens >= 1 {
		return Result{Allowed: true, Remaining: int(math.Floor(state.Tokens))}
	}
	retryAfter := int(math.Ceil((1 - state.Tokens) / l.cfg.RefillRate))
	return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
}
