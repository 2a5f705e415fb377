package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter is a fixed-window counter in Redis, shared by
// every instance behind the load balancer. Each window gets its own key.
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
	now    func() time.Time
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "masthead:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
		now:    time.Now,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	window := rl.now().UnixNano() / int64(rl.config.WindowDuration)
	return fmt.Sprintf("%s:%s:%d", rl.prefix, key, window)
}

// Allow counts one request for key in the current window. On a Redis error
// it returns true together with the error.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis error: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow+rl.config.BurstSize), nil
}

// Remaining returns the number of remaining requests in the window
func (rl *DistributedRateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := rl.redis.Get(ctx, rl.key(key)).Int()
	if errors.Is(err, redis.Nil) {
		return rl.config.RequestsPerWindow + rl.config.BurstSize, nil
	} else if err != nil {
		return 0, err
	}

	remaining := rl.config.RequestsPerWindow + rl.config.BurstSize - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Limit returns the configured requests per window
func (rl *DistributedRateLimiter) Limit() int { return rl.config.RequestsPerWindow }

// Window returns the configured window
func (rl *DistributedRateLimiter) Window() time.Duration { return rl.config.WindowDuration }
