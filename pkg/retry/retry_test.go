package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return nil
	}, DefaultConfig())

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	cfg := Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}

	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsAtMaxRetries(t *testing.T) {
	calls := 0
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	sentinel := errors.New("persistent failure")

	err := Do(context.Background(), func() error {
		calls++
		return sentinel
	}, cfg)

	assert.Equal(t, sentinel, err)
	assert.Equal(t, 3, calls)
}

func TestDoHonorsRetryIf(t *testing.T) {
	calls := 0
	permanent := errors.New("unauthorized")
	cfg := Config{
		MaxRetries:   5,
		InitialDelay: time.Millisecond,
		RetryIf: func(err error) bool {
			return err != permanent
		},
	}

	err := Do(context.Background(), func() error {
		calls++
		return permanent
	}, cfg)

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, calls)
}

func TestDoCallsOnRetryWithAttemptAndDelay(t *testing.T) {
	var attempts []int
	cfg := Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
	}

	_ = Do(context.Background(), func() error {
		return errors.New("retry me")
	}, cfg)

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxRetries: 0, InitialDelay: 5 * time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 1}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func() error {
		calls++
		return errors.New("always fails")
	}, cfg)

	assert.Error(t, err)
	assert.Greater(t, calls, 0)
}

func TestDoWithResultReturnsValueOnSuccess(t *testing.T) {
	calls := 0
	result, err := DoWithResult(context.Background(), func() (float64, error) {
		calls++
		if calls < 2 {
			return 0, errors.New("timeout")
		}
		return 42.5, nil
	}, Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	require.NoError(t, err)
	assert.Equal(t, 42.5, result)
}

func TestDoWithResultReturnsZeroOnExhaustion(t *testing.T) {
	result, err := DoWithResult(context.Background(), func() (int, error) {
		return 0, errors.New("still failing")
	}, Config{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	assert.Error(t, err)
	assert.Equal(t, 0, result)
}

func TestCalculateDelayExponentialWithoutJitter(t *testing.T) {
	cfg := Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0}
	cfg.validate()

	assert.Equal(t, 100*time.Millisecond, cfg.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, cfg.calculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, cfg.calculateDelay(2))
}

func TestCalculateDelayCapsAtMaxDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 2 * time.Second, Multiplier: 10, JitterFactor: 0}
	cfg.validate()

	assert.Equal(t, 2*time.Second, cfg.calculateDelay(5))
}

func TestIsRetryableChecksRetryableErrorInterface(t *testing.T) {
	assert.False(t, IsRetryable(Permanent(errors.New("bad request"))))
	assert.True(t, IsRetryable(Temporary(errors.New("connection reset"))))
	assert.True(t, IsRetryable(errors.New("unclassified")))
}

func TestRetryIfTemporary(t *testing.T) {
	assert.True(t, RetryIfTemporary(Temporary(errors.New("timeout"))))
	assert.False(t, RetryIfTemporary(errors.New("plain error")))
}

func TestRetryIfNotContext(t *testing.T) {
	assert.False(t, RetryIfNotContext(context.Canceled))
	assert.False(t, RetryIfNotContext(context.DeadlineExceeded))
	assert.True(t, RetryIfNotContext(errors.New("network blip")))
}

func TestPermanentAndTemporaryWrapNilAsNil(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	assert.Nil(t, Temporary(nil))
}

func TestPermanentErrorUnwraps(t *testing.T) {
	inner := errors.New("root cause")
	wrapped := Permanent(inner)
	assert.True(t, errors.Is(wrapped, inner))
}

func TestRetryerReusesConfigAcrossCalls(t *testing.T) {
	r := NewRetryer(Config{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1})

	calls := 0
	err := r.Do(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("blip")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryerWithRetryIfReturnsNewInstance(t *testing.T) {
	base := NewRetryer(DefaultConfig())
	derived := base.WithRetryIf(func(err error) bool { return false })

	assert.NotSame(t, base, derived)
	assert.Nil(t, base.cfg.RetryIf)
	assert.NotNil(t, derived.cfg.RetryIf)
}

func TestRetryNOverridesMaxRetries(t *testing.T) {
	calls := 0
	err := RetryN(context.Background(), func() error {
		calls++
		return errors.New("fails")
	}, 2)

	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
