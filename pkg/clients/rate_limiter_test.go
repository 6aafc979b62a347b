package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Interval(t *testing.T) {
	rl := NewRateLimiter(10)
	assert.Equal(t, 100*time.Millisecond, rl.Interval())

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	// first call is free, the next two wait one interval each
	assert.GreaterOrEqual(t, time.Since(start), 180*time.Millisecond)

	stats := rl.GetStats()
	assert.Equal(t, int64(3), stats.AllowedRequests)
	assert.Equal(t, 10.0, stats.Rate)
}

func TestRateLimiter_Unlimited(t *testing.T) {
	rl := NewRateLimiter(0)
	assert.Zero(t, rl.Interval())

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, rl.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestRateLimiter_SetRate(t *testing.T) {
	rl := NewRateLimiter(0)
	rl.SetRate(2)
	assert.Equal(t, 500*time.Millisecond, rl.Interval())
}

func TestRateLimiter_ContextCanceled(t *testing.T) {
	rl := NewRateLimiter(1)
	require.NoError(t, rl.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, rl.Wait(ctx))
}

func TestRetryPolicy_Delay(t *testing.T) {
	rp := NewRetryPolicy(3, 100*time.Millisecond)
	rp.RandomizeFactor = 0

	assert.Equal(t, 4, rp.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, rp.Delay(0))
	assert.Equal(t, 200*time.Millisecond, rp.Delay(1))
	assert.Equal(t, 400*time.Millisecond, rp.Delay(2))

	rp.MaxDelay = 250 * time.Millisecond
	assert.Equal(t, 250*time.Millisecond, rp.Delay(2))
}
