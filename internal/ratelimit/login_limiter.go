package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	internalsettings "github.com/zapdesk-io/zapdesk/internal/settings"
)

// LoginLimiter throttles login attempts per client key using a Redis
// sliding window. A nil limiter or nil Redis client allows everything,
// and Redis failures fail open so an outage never locks users out.
type LoginLimiter struct {
	client *redis.Client
}

// NewLoginLimiter creates a login rate limiter. client may be nil.
func NewLoginLimiter(client *redis.Client) *LoginLimiter {
	if client == nil {
		return nil
	}
	return &LoginLimiter{client: client}
}

// Allow reports whether another login attempt is permitted for key.
func (l *LoginLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	limit := internalsettings.IntValue(internalsettings.LoginRateLimitPerMinuteKey, internalsettings.DefaultLoginRateLimitPerMinute)
	if limit <= 0 {
		return true
	}

	window := time.Minute
	now := time.Now()
	redisKey := fmt.Sprintf("zapdesk:login:%s", key)
	windowStart := now.Add(-window).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart))
	zcard := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, redisKey, window+time.Minute)

	if _, errExec := pipe.Exec(ctx); errExec != nil {
		log.WithError(errExec).Warn("login rate limiter: redis pipeline failed")
		return true
	}

	return zcard.Val() < int64(limit)
}

// Reset clears the attempt window for key, typically after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	redisKey := fmt.Sprintf("zapdesk:login:%s", key)
	if errDel := l.client.Del(ctx, redisKey).Err(); errDel != nil {
		log.WithError(errDel).Warn("login rate limiter: reset failed")
	}
}
