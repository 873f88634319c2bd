// Package ratelimit provides a token bucket rate limiter.
// It paces requests sent to the object store so that a large batch of
// downloads stays below the request rate a public bucket tolerates.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/satfetch/satfetch/lib/metrics"
)

// Rate limiter metrics.
var (
	RateLimitWaits = metrics.NewCounter(
		"satfetch_ratelimit_waits_total",
		"Total requests delayed by the request rate limiter",
	)
	RateLimitWaitSeconds = metrics.NewHistogram(
		"satfetch_ratelimit_wait_seconds",
		"Time requests spent waiting for the rate limiter",
		metrics.DefaultLatencyBuckets,
	)
)

// Limiter is a token bucket rate limiter. A nil *Limiter allows everything.
type Limiter struct {
	mu       sync.Mutex
	rate     float64   // tokens per second
	capacity float64   // max tokens
	tokens   float64   // current tokens, negative while callers are queued
	lastTime time.Time // last refill time
}

// New creates a new rate limiter.
// rate is tokens per second, capacity is the maximum burst size.
// A rate of zero or less disables limiting and returns nil.
func New(rate float64, capacity int) *Limiter {
	if rate <= 0 {
		return nil
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		lastTime: time.Now(),
	}
}

// Allow returns true if a request is allowed, consuming one token.
// Returns false if rate limit is exceeded.
func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

// AllowN returns true if n requests are allowed.
func (l *Limiter) AllowN(n int) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()

	needed := float64(n)
	if l.tokens >= needed {
		l.tokens -= needed
		return true
	}
	return false
}

// Wait blocks until a token is available or ctx is done. A token taken by a
// cancelled wait is returned to the bucket.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	l.refill()
	l.tokens--
	var delay time.Duration
	if l.tokens < 0 {
		delay = time.Duration(-l.tokens / l.rate * float64(time.Second))
	}
	l.mu.Unlock()

	if delay <= 0 {
		return nil
	}

	RateLimitWaits.Inc()
	start := time.Now()
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		l.refill()
		l.tokens++
		if l.tokens > l.capacity {
			l.tokens = l.capacity
		}
		l.mu.Unlock()
		return ctx.Err()
	}
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (l *Limiter) refill() {
	now := time.Now()
	elapsed := now.Sub(l.lastTime).Seconds()
	l.tokens += elapsed * l.rate
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	l.lastTime = now
}

// Tokens returns the current number of available tokens. It is negative
// while callers are waiting.
func (l *Limiter) Tokens() float64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// Rate returns the refill rate in tokens per second, or 0 for a nil Limiter.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return l.rate
}
