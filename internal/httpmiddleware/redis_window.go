package httpmiddleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow is a fixed-window counter shared by every api replica.
type RedisWindow struct {
	client *redis.Client
	prefix string
	limit  int64
	window time.Duration
}

// NewRedisWindow allows limit hits per key per window.
func NewRedisWindow(client *redis.Client, prefix string, limit int, window time.Duration) *RedisWindow {
	if prefix == "" {
		prefix = "paie:ratelimit"
	}
	return &RedisWindow{client: client, prefix: prefix, limit: int64(limit), window: window}
}

// Allow counts one hit for key.
func (r *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	k := r.prefix + ":" + key
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return incr.Val() <= r.limit, nil
}

// Fallback tries primary and uses secondary when primary errors.
type Fallback struct {
	Primary   Limiter
	Secondary Limiter
}

// Allow implements Limiter.
func (f Fallback) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.Primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}
	return f.Secondary.Allow(ctx, key)
}
