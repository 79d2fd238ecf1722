// ratelimit.go enforces per-client token-bucket limits and answers 429 when a
// bucket is empty. Two limiters share one middleware: an in-process bucket map
// and a Redis-backed limiter for deployments with more than one replica.
package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/runledger/runledger/internal/api/respond"
	"github.com/runledger/runledger/internal/safego"
)

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// BurstSize is the bucket capacity.
	BurstSize int
	// CleanupInterval is how often idle buckets are evicted (memory limiter only).
	CleanupInterval time.Duration
}

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryRateLimiter is a token-bucket limiter held in process memory.
type MemoryRateLimiter struct {
	config  RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	stopped sync.Once
}

// NewMemoryRateLimiter creates a limiter and starts its eviction goroutine.
// Call Stop during shutdown.
func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &MemoryRateLimiter{
		config:  config,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	safego.Go("ratelimit-cleanup", rl.cleanup)
	return rl
}

func (rl *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(10 * time.Minute)
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *MemoryRateLimiter) evictIdle(idle time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key, b := range rl.buckets {
		if now.Sub(b.lastUpdate) > idle {
			delete(rl.buckets, key)
		}
	}
}

// Stop stops the eviction goroutine. It is safe to call more than once.
func (rl *MemoryRateLimiter) Stop() {
	rl.stopped.Do(func() { close(rl.stopCh) })
}

// Allow takes one token from key's bucket.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	burst := float64(rl.config.BurstSize)
	perSecond := float64(rl.config.RequestsPerMinute) / 60.0

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: burst, lastUpdate: now}
		rl.buckets[key] = b
	} else {
		b.tokens = min(burst, b.tokens+now.Sub(b.lastUpdate).Seconds()*perSecond)
		b.lastUpdate = now
	}

	d := Decision{Limit: rl.config.RequestsPerMinute}
	if b.tokens >= 1 {
		b.tokens--
		d.Allowed = true
		d.Remaining = int(b.tokens)
		return d, nil
	}

	if perSecond > 0 {
		d.RetryAfter = time.Duration((1 - b.tokens) / perSecond * float64(time.Second))
	} else {
		d.RetryAfter = time.Minute
	}
	return d, nil
}

// RateLimitMiddleware rejects requests whose bucket is empty.
// A limiter error fails open: the request proceeds and the error is logged,
// so a Redis outage cannot take ingestion down with it.
func RateLimitMiddleware(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request",
				"error", err, "key", key, "request_id", c.GetString(RequestIDKey))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		if !d.Allowed {
			respond.RateLimited(c, d.RetryAfter)
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated project and falls back to the client IP.
func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(ProjectIDKey); id != "" {
		return "project:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
