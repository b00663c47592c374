package httpclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitConfig_Default(t *testing.T) {
	t.Parallel()

	cfg := DefaultRateLimitConfig()

	assert.InDelta(t, float64(100), cfg.RequestsPerSecond, 0.0001)
	assert.Equal(t, 10, cfg.Burst)
	assert.True(t, cfg.WaitOnLimit)
}

func TestNewRateLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		cfg       *RateLimitConfig
		wantNil   bool
		wantBurst int
	}{
		{name: "given no config, then nil", cfg: nil, wantNil: true},
		{name: "given a zero rate, then nil", cfg: &RateLimitConfig{Burst: 5}, wantNil: true},
		{name: "given a zero burst, then burst is one", cfg: &RateLimitConfig{RequestsPerSecond: 10}, wantBurst: 1},
		{name: "given a burst, then it is kept", cfg: &RateLimitConfig{RequestsPerSecond: 10, Burst: 4}, wantBurst: 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := newRateLimiter(tt.cfg)
			if tt.wantNil {
				assert.Nil(t, rl)
				return
			}
			require.NotNil(t, rl)
			assert.Equal(t, tt.wantBurst, rl.stats().Burst)
		})
	}
}

func TestRateLimiter_NilAllowsEverything(t *testing.T) {
	t.Parallel()

	var rl *rateLimiter
	assert.NoError(t, rl.acquire(context.Background()))
}

func TestRateLimiter_FailFast(t *testing.T) {
	t.Parallel()

	rl := newRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})

	require.NoError(t, rl.acquire(context.Background()))
	require.NoError(t, rl.acquire(context.Background()))

	err := rl.acquire(context.Background())
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestRateLimiter_Wait(t *testing.T) {
	t.Parallel()

	t.Run("given a token arrives in time, then waits for it", func(t *testing.T) {
		rl := newRateLimiter(&RateLimitConfig{RequestsPerSecond: 50, Burst: 1, WaitOnLimit: true})
		require.NoError(t, rl.acquire(context.Background()))

		start := time.Now()
		require.NoError(t, rl.acquire(context.Background()))
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})

	t.Run("given the deadline cannot be met, then a rate limited transport error", func(t *testing.T) {
		rl := newRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, WaitOnLimit: true})
		require.NoError(t, rl.acquire(context.Background()))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := rl.acquire(ctx)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, ErrRateLimited)
		assert.True(t, te.Timeout())
	})

	t.Run("given a canceled context, then the context error", func(t *testing.T) {
		rl := newRateLimiter(&RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1, WaitOnLimit: true})
		require.NoError(t, rl.acquire(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := rl.acquire(ctx)
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.True(t, te.Canceled())
	})
}

func TestClient_RateLimiterStats(t *testing.T) {
	t.Parallel()

	_, ok := New().RateLimiterStats()
	assert.False(t, ok)

	client := New(WithRateLimit(RateLimitConfig{RequestsPerSecond: 20, Burst: 5}))
	stats, ok := client.RateLimiterStats()
	require.True(t, ok)
	assert.InDelta(t, 20, stats.Limit, 0.0001)
	assert.Equal(t, 5, stats.Burst)
	assert.InDelta(t, 5, stats.TokensAvailable, 0.01)
}
