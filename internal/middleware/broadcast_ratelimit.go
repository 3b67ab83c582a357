package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// BroadcastRateLimitConfig holds configuration for broadcast rate limiting
type BroadcastRateLimitConfig struct {
	// Max broadcasts per hour per residency
	ResidencyHourlyLimit int
	// Max broadcasts per day per residency
	ResidencyDailyLimit int
	// Prefix for Redis keys
	RedisKeyPrefix string
}

// DefaultBroadcastRateLimitConfig returns sensible defaults
func DefaultBroadcastRateLimitConfig() BroadcastRateLimitConfig {
	return BroadcastRateLimitConfig{
		ResidencyHourlyLimit: 60,
		ResidencyDailyLimit:  500,
		RedisKeyPrefix:       "broadcast:ratelimit:",
	}
}

// BroadcastRateLimiter caps how often a residency can push broadcast
// notifications to all its residents. Redis-backed when available, with an
// in-memory fallback so a missing Redis never blocks sends entirely.
type BroadcastRateLimiter struct {
	config      BroadcastRateLimitConfig
	redisClient *redis.Client
	logger      *logrus.Entry

	localCounters map[string]*counterState
	localMu       sync.RWMutex
}

type counterState struct {
	Count     int
	ExpiresAt time.Time
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed       bool          `json:"allowed"`
	Remaining     int           `json:"remaining"`
	ResetAfter    time.Duration `json:"resetAfter"`
	LimitType     string        `json:"limitType"`
	RetryAfterSec int           `json:"retryAfterSec"`
}

// NewBroadcastRateLimiter creates a new broadcast rate limiter
func NewBroadcastRateLimiter(redisClient *redis.Client, logger *logrus.Logger) *BroadcastRateLimiter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BroadcastRateLimiter{
		config:        DefaultBroadcastRateLimitConfig(),
		redisClient:   redisClient,
		logger:        logger.WithField("component", "broadcast_rate_limiter"),
		localCounters: make(map[string]*counterState),
	}
}

// NewBroadcastRateLimiterWithConfig creates a new limiter with custom config
func NewBroadcastRateLimiterWithConfig(redisClient *redis.Client, logger *logrus.Logger, config BroadcastRateLimitConfig) *BroadcastRateLimiter {
	limiter := NewBroadcastRateLimiter(redisClient, logger)
	limiter.config = config
	return limiter
}

// CheckLimit checks whether a broadcast for the residency is allowed
func (r *BroadcastRateLimiter) CheckLimit(ctx context.Context, residencyID string) (*RateLimitResult, error) {
	result, err := r.checkLimit(ctx, r.hourlyKey(residencyID), r.config.ResidencyHourlyLimit, "residency_hourly_limit")
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}
	return r.checkLimit(ctx, r.dailyKey(residencyID), r.config.ResidencyDailyLimit, "residency_daily_limit")
}

// RecordSend records a performed broadcast for rate limiting
func (r *BroadcastRateLimiter) RecordSend(ctx context.Context, residencyID string) error {
	if err := r.incrementCounter(ctx, r.hourlyKey(residencyID), time.Hour); err != nil {
		return err
	}
	return r.incrementCounter(ctx, r.dailyKey(residencyID), 24*time.Hour)
}

func (r *BroadcastRateLimiter) checkLimit(ctx context.Context, key string, limit int, limitType string) (*RateLimitResult, error) {
	count, err := r.getCounter(ctx, key)
	if err != nil {
		return nil, err
	}

	remaining := limit - count
	if remaining <= 0 {
		ttl := r.getTTL(ctx, key)
		return &RateLimitResult{
			Allowed:       false,
			Remaining:     0,
			ResetAfter:    ttl,
			LimitType:     limitType,
			RetryAfterSec: int(ttl.Seconds()),
		}, nil
	}

	return &RateLimitResult{
		Allowed:   true,
		Remaining: remaining,
		LimitType: limitType,
	}, nil
}

func (r *BroadcastRateLimiter) incrementCounter(ctx context.Context, key string, window time.Duration) error {
	if r.redisClient != nil {
		pipe := r.redisClient.Pipeline()
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, window)
		_, err := pipe.Exec(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("Redis increment failed, using local fallback")
		} else {
			return nil
		}
	}

	r.localMu.Lock()
	defer r.localMu.Unlock()

	state, exists := r.localCounters[key]
	if !exists || time.Now().After(state.ExpiresAt) {
		state = &counterState{Count: 1, ExpiresAt: time.Now().Add(window)}
	} else {
		state.Count++
	}
	r.localCounters[key] = state

	return nil
}

func (r *BroadcastRateLimiter) getCounter(ctx context.Context, key string) (int, error) {
	if r.redisClient != nil {
		val, err := r.redisClient.Get(ctx, key).Int()
		if err == redis.Nil {
			return 0, nil
		}
		if err != nil {
			r.logger.WithError(err).Warn("Redis get failed, using local fallback")
		} else {
			return val, nil
		}
	}

	r.localMu.RLock()
	defer r.localMu.RUnlock()

	state, exists := r.localCounters[key]
	if !exists || time.Now().After(state.ExpiresAt) {
		return 0, nil
	}
	return state.Count, nil
}

func (r *BroadcastRateLimiter) getTTL(ctx context.Context, key string) time.Duration {
	if r.redisClient != nil {
		ttl, err := r.redisClient.TTL(ctx, key).Result()
		if err == nil && ttl > 0 {
			return ttl
		}
	}

	r.localMu.RLock()
	defer r.localMu.RUnlock()

	state, exists := r.localCounters[key]
	if exists && state.ExpiresAt.After(time.Now()) {
		return time.Until(state.ExpiresAt)
	}

	return 0
}

func (r *BroadcastRateLimiter) hourlyKey(residencyID string) string {
	return fmt.Sprintf("%s%s:hourly", r.config.RedisKeyPrefix, residencyID)
}

func (r *BroadcastRateLimiter) dailyKey(residencyID string) string {
	return fmt.Sprintf("%s%s:daily", r.config.RedisKeyPrefix, residencyID)
}
