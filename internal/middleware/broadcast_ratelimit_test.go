package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocalLimiter(hourly, daily int) *BroadcastRateLimiter {
	return NewBroadcastRateLimiterWithConfig(nil, nil, BroadcastRateLimitConfig{
		ResidencyHourlyLimit: hourly,
		ResidencyDailyLimit:  daily,
		RedisKeyPrefix:       "test:",
	})
}

func TestCheckLimit_AllowsUnderLimit(t *testing.T) {
	limiter := newLocalLimiter(2, 10)
	ctx := context.Background()

	result, err := limiter.CheckLimit(ctx, "res-1")
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestCheckLimit_BlocksAtHourlyLimit(t *testing.T) {
	limiter := newLocalLimiter(2, 10)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.CheckLimit(ctx, "res-1")
		require.NoError(t, err)
		require.True(t, result.Allowed)
		require.NoError(t, limiter.RecordSend(ctx, "res-1"))
	}

	result, err := limiter.CheckLimit(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "residency_hourly_limit", result.LimitType)
	assert.Greater(t, result.RetryAfterSec, 0)
}

func TestCheckLimit_BlocksAtDailyLimit(t *testing.T) {
	limiter := newLocalLimiter(100, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.RecordSend(ctx, "res-1"))
	}

	result, err := limiter.CheckLimit(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "residency_daily_limit", result.LimitType)
}

func TestCheckLimit_PerResidencyIsolation(t *testing.T) {
	limiter := newLocalLimiter(1, 10)
	ctx := context.Background()

	require.NoError(t, limiter.RecordSend(ctx, "res-1"))

	blocked, err := limiter.CheckLimit(ctx, "res-1")
	require.NoError(t, err)
	assert.False(t, blocked.Allowed)

	allowed, err := limiter.CheckLimit(ctx, "res-2")
	require.NoError(t, err)
	assert.True(t, allowed.Allowed)
}
