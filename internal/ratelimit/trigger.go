package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	triggerKey   = "guildpass:ratelimit:sweep_trigger"
	triggerRate  = 1.0 / 60.0
	triggerBurst = 3
)

// TriggerLimiter throttles manual sweep triggers to a small burst and then
// one per minute. It allows everything when Redis is not configured or
// unreachable.
type TriggerLimiter struct {
	bucket *TokenBucket
	log    *zap.Logger
}

func NewTriggerLimiter(client redis.UniversalClient, log *zap.Logger) *TriggerLimiter {
	return &TriggerLimiter{
		bucket: NewTokenBucket(client),
		log:    log.Named("ratelimit.trigger"),
	}
}

// Allow reports whether a trigger may run and, if not, how long to wait.
func (l *TriggerLimiter) Allow(ctx context.Context) (bool, time.Duration) {
	if l == nil || l.bucket == nil {
		return true, 0
	}
	res, err := l.bucket.Allow(ctx, triggerKey, triggerRate, triggerBurst)
	if err != nil {
		l.log.Warn("trigger rate limit check failed, allowing", zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
