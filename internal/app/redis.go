package app

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/romana/rlog"
)

const rateLimitWindow = time.Minute

// ConnectRedis returns a client for addr, or nil when addr is empty or the
// server does not answer a ping. Rate limiting is skipped without it.
func ConnectRedis(ctx context.Context, addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		rlog.Warnf("[api] redis at %s unavailable, rate limiting disabled: %v", addr, err)
		_ = client.Close()
		return nil
	}
	rlog.Infof("[api] redis connected at %s", addr)
	return client
}
