package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesTokens(t *testing.T) {
	rl := NewRateLimiter(10, 2)
	assert.True(t, rl.Allow())
	assert.True(t, rl.Allow())
	assert.False(t, rl.Allow(), "burst of 2 should be exhausted")
}

func TestAllowRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(100, 1)
	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	time.Sleep(20 * time.Millisecond)
	assert.True(t, rl.Allow(), "100/s should refill within 20ms")
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	require.True(t, rl.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	err := rl.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReserveAndCancelRefundsToken(t *testing.T) {
	rl := NewRateLimiter(10, 1)
	res := rl.Reserve()
	require.True(t, res.OK())
	assert.False(t, rl.Allow(), "bucket should be empty after reservation")

	res.Cancel()
	assert.True(t, rl.Allow(), "cancel should refund the token")
}

func TestDefaultsAppliedForInvalidInputs(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, 10.0, rl.Rate())
	assert.Equal(t, 20.0, rl.Burst())
}
