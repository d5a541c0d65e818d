// Per-client rate limiting middleware for the API server.

package api

import (
	"strconv"
	"sync"
	"time"
)

// Stale bucket cleanup parameters.
const (
	rateLimitCleanupInterval = 1 * time.Minute
	rateLimitEntryTTL        = 1 * time.Minute
)

// tokenBucket tracks the budget for a single client.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastUpdate time.Time
}

// rateLimiter implements per-client token bucket rate limiting.
type rateLimiter struct {
	rps   float64
	burst int

	mu      sync.RWMutex
	buckets map[string]*tokenBucket

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

// newRateLimiter creates a limiter from configuration and starts its
// cleanup loop.
func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRateLimitConfig().RequestsPerSecond
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = DefaultRateLimitConfig().BurstSize
	}

	rl := &rateLimiter{
		rps:       rps,
		burst:     burst,
		buckets:   make(map[string]*tokenBucket),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// allow checks whether a request from the given client is allowed.
// Returns (allowed, remaining tokens, retry-after seconds).
func (rl *rateLimiter) allow(client string) (bool, int, int64) {
	now := time.Now()

	rl.mu.RLock()
	bucket, exists := rl.buckets[client]
	rl.mu.RUnlock()

	if !exists {
		rl.mu.Lock()
		bucket, exists = rl.buckets[client]
		if !exists {
			bucket = &tokenBucket{tokens: float64(rl.burst), lastUpdate: now}
			rl.buckets[client] = bucket
		}
		rl.mu.Unlock()
	}

	bucket.mu.Lock()
	defer bucket.mu.Unlock()

	elapsed := now.Sub(bucket.lastUpdate).Seconds()
	bucket.tokens += elapsed * rl.rps
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastUpdate = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		remaining := int(bucket.tokens)
		if remaining < 0 {
			remaining = 0
		}
		return true, remaining, 0
	}

	retryAfter := int64((1 - bucket.tokens) / rl.rps)
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// cleanup periodically drops buckets with no recent activity.
func (rl *rateLimiter) cleanup() {
	ticker := time.NewTicker(rateLimitCleanupInterval)
	defer ticker.Stop()
	defer close(rl.stoppedCh)

	for {
		select {
		case <-ticker.C:
			rl.removeStaleEntries()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *rateLimiter) removeStaleEntries() {
	cutoff := time.Now().Add(-rateLimitEntryTTL)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for client, bucket := range rl.buckets {
		bucket.mu.Lock()
		if bucket.lastUpdate.Before(cutoff) {
			delete(rl.buckets, client)
		}
		bucket.mu.Unlock()
	}
}

// Stop terminates the cleanup goroutine. Safe to call more than once.
func (rl *rateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
		<-rl.stoppedCh
	})
}

// handle is the rate limiting middleware body. Exhausted clients get a
// structured 429 with a retry hint; allowed requests carry the standard
// X-RateLimit headers.
func (rl *rateLimiter) handle(req *Request, res *Response, next func() error) error {
	allowed, remaining, retryAfter := rl.allow(req.ClientID)

	h := res.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

	if allowed {
		return next()
	}

	h.Set("Retry-After", strconv.FormatInt(retryAfter, 10))
	return RateLimitedError("too many requests").
		WithDetails(map[string]int64{"retryAfterSeconds": retryAfter})
}
