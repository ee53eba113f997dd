// Package retry implements exponential backoff with jitter for the
// transient REST failures a connector's discovery and snapshot calls hit -
// nothing here fires for parse errors or closed-circuit-breaker rejections,
// which the caller handles separately.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config controls backoff timing:
//
//	delay = min(InitialDelay * Multiplier^attempt, MaxDelay) + jitter
//
// Jitter adds randomness so many connectors retrying the same outage don't
// all hammer the venue back in lockstep.
type Config struct {
	// MaxRetries is the maximum number of attempts including the first.
	// <= 0 retries forever - not recommended outside REST-poll fallbacks.
	MaxRetries int

	InitialDelay time.Duration // default 100ms
	MaxDelay     time.Duration // default 30s
	Multiplier   float64       // default 2.0
	JitterFactor float64       // 0..1; 0 disables jitter (DefaultConfig uses 0.1)

	// RetryIf decides whether an error should be retried. Defaults to
	// retrying everything; errors wrapped by Permanent are never retried.
	RetryIf func(error) bool

	// OnRetry is called before each retry, useful for structured logging.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig suits most symbol-discovery and ticker-snapshot REST calls:
// 4 attempts, waiting 100ms, 200ms, 400ms between them (+ jitter).
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConservativeConfig suits low-priority calls like periodic symbol refresh:
// 3 attempts, waiting 500ms, 1s between them (+ jitter).
func ConservativeConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// NetworkConfig is for transport-level failures (dial/read timeouts): 4
// attempts, waiting 1s, 2s, 4s between them (+ jitter).
func NetworkConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

func (c *Config) calculateDelay(attempt int) time.Duration {
	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.JitterFactor > 0 {
		jitter := delay * c.JitterFactor * (rand.Float64()*2 - 1)
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Do runs operation with backoff until it succeeds, is rejected by RetryIf,
// exhausts MaxRetries, or ctx is done. Returns the last error on exhaustion.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	cfg.validate()

	var lastErr error
	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return lastErr
			}
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return err
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return err
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}

// DoWithResult is the generic variant of Do for operations returning a value.
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var lastErr error
	var zero T
	for attempt := 0; cfg.MaxRetries <= 0 || attempt < cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, ctx.Err()
		default:
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *PermanentError
		if errors.As(err, &perm) {
			return zero, err
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if cfg.MaxRetries > 0 && attempt >= cfg.MaxRetries-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// RetryableError is implemented by errors that know whether they should be retried.
type RetryableError interface {
	error
	Retryable() bool
}

// IsRetryable checks RetryableError first, then the standard net-style
// Temporary() bool interface, defaulting to true (retry) otherwise.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var retryable RetryableError
	if errors.As(err, &retryable) {
		return retryable.Retryable()
	}
	type temporary interface{ Temporary() bool }
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return true
}

// RetryIfTemporary retries only errors reporting Temporary() == true.
func RetryIfTemporary(err error) bool {
	type temporary interface{ Temporary() bool }
	var temp temporary
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}

// RetryIfNotContext never retries context cancellation/deadline errors.
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError wraps an error that must not be retried.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string  { return e.Err.Error() }
func (e *PermanentError) Unwrap() error  { return e.Err }
func (e *PermanentError) Retryable() bool { return false }

// Permanent wraps err so RetryIf/IsRetryable treat it as non-retryable.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// TemporaryError wraps an error that should be retried.
type TemporaryError struct{ Err error }

func (e *TemporaryError) Error() string  { return e.Err.Error() }
func (e *TemporaryError) Unwrap() error  { return e.Err }
func (e *TemporaryError) Retryable() bool { return true }
func (e *TemporaryError) Temporary() bool { return true }

// Temporary wraps err so RetryIf/IsRetryable treat it as retryable.
func Temporary(err error) error {
	if err == nil {
		return nil
	}
	return &TemporaryError{Err: err}
}

// Retryer bundles a Config for reuse across many calls with the same policy.
type Retryer struct {
	cfg Config
}

func NewRetryer(cfg Config) *Retryer {
	cfg.validate()
	return &Retryer{cfg: cfg}
}

func (r *Retryer) Do(ctx context.Context, operation func() error) error {
	return Do(ctx, operation, r.cfg)
}

func (r *Retryer) DoWithResult(ctx context.Context, operation func() (interface{}, error)) (interface{}, error) {
	return DoWithResult(ctx, operation, r.cfg)
}

func (r *Retryer) WithOnRetry(onRetry func(attempt int, err error, delay time.Duration)) *Retryer {
	newCfg := r.cfg
	newCfg.OnRetry = onRetry
	return &Retryer{cfg: newCfg}
}

func (r *Retryer) WithRetryIf(retryIf func(error) bool) *Retryer {
	newCfg := r.cfg
	newCfg.RetryIf = retryIf
	return &Retryer{cfg: newCfg}
}

// Retry runs operation with DefaultConfig.
func Retry(ctx context.Context, operation func() error) error {
	return Do(ctx, operation, DefaultConfig())
}

// RetryN runs operation with DefaultConfig but a custom attempt count.
func RetryN(ctx context.Context, operation func() error, maxRetries int) error {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	return Do(ctx, operation, cfg)
}
