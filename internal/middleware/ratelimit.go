package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/apperr"
)

// RedisCounter is the subset of *redis.Client the limiter uses.
type RedisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// Limiter is a fixed-window counter per key kept in Redis, so every API
// instance shares the same budget.
type Limiter struct {
	client RedisCounter
	limit  int64
	window time.Duration
}

func NewLimiter(client RedisCounter, limit int, window time.Duration) *Limiter {
	return &Limiter{client: client, limit: int64(limit), window: window}
}

// Allow counts one hit against key and reports whether it is within the limit.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	// first hit opens the window
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return count <= l.limit, nil
}

// RateLimit limits requests per client IP under scope. A nil limiter or a
// non-positive limit disables it; Redis errors let the request through.
func RateLimit(l *Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.client == nil || l.limit <= 0 {
			c.Next()
			return
		}
		key := "rate_limit:" + scope + ":" + c.ClientIP()
		ok, err := l.Allow(c.Request.Context(), key)
		if err != nil {
			rlog.Warnf("[api] rate limiter unavailable, allowing request: %v", err)
			c.Next()
			return
		}
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(l.window.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":          "rate_limited",
				"kind":           "rate_limited",
				"message":        "too many requests",
				"correlation_id": c.GetString(apperr.RequestIDKey),
			})
			return
		}
		c.Next()
	}
}
