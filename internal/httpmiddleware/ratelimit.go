package httpmiddleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Limiter decides whether one more request for key is allowed now.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// SimpleTokenBucket is an in-memory rate limiter refilling capacity tokens
// every window.
type SimpleTokenBucket struct {
	capacity int
	window   time.Duration
	now      func() time.Time
	mu       sync.Mutex
	state    map[string]*bucket
	swept    time.Time
}

type bucket struct {
	tokens int
	last   time.Time
}

// NewSimpleTokenBucket creates a limiter with capacity tokens per window.
func NewSimpleTokenBucket(capacity int, window time.Duration) *SimpleTokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SimpleTokenBucket{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		state:    make(map[string]*bucket),
	}
}

// NewPerMinute creates a limiter of perMinute requests per minute.
func NewPerMinute(perMinute int) *SimpleTokenBucket {
	return NewSimpleTokenBucket(perMinute, time.Minute)
}

// Allow takes a token for key.
func (l *SimpleTokenBucket) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.sweep(now)
	b, ok := l.state[key]
	if !ok {
		l.state[key] = &bucket{tokens: l.capacity - 1, last: now}
		return true, nil
	}
	refill := l.capacity
	if elapsed := now.Sub(b.last); elapsed < l.window {
		refill = int(elapsed * time.Duration(l.capacity) / l.window)
	}
	if refill > 0 {
		b.tokens += refill
		if b.tokens > l.capacity {
			b.tokens = l.capacity
		}
		b.last = now
	}
	if b.tokens <= 0 {
		return false, nil
	}
	b.tokens--
	return true, nil
}

// sweep drops buckets idle for a full window, at most once per window. A
// dropped bucket would have refilled completely anyway.
func (l *SimpleTokenBucket) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	for key, b := range l.state {
		if now.Sub(b.last) >= l.window {
			delete(l.state, key)
		}
	}
	l.swept = now
}

// GinMiddleware returns gin handler enforcing per-IP limits.
func (l *SimpleTokenBucket) GinMiddleware() gin.HandlerFunc {
	return Limit(l, "api")
}

// Limit rejects requests over the limiter's budget with 429. Requests are
// keyed by scope and client IP. Limiter failures let the request through.
func Limit(l Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		ok, err := l.Allow(c.Request.Context(), scope+":"+ip)
		if err != nil {
			zerolog.Ctx(c.Request.Context()).Warn().Err(err).Str("scope", scope).Msg("rate limiter unavailable")
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "too many requests, try again later",
			})
			return
		}
		c.Next()
	}
}
