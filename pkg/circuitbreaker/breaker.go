// Package circuitbreaker implements the closed/open/half-open breaker that
// guards every outbound REST call a connector makes: threshold consecutive
// network/5xx failures trips it open; after a recovery timeout it allows one
// probe through (half-open); success closes it, failure re-opens it. Parse
// failures never count toward the threshold - only the caller decides that,
// by only ever calling RecordFailure for transport-level failures.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type state int32

const (
	closed state = iota
	open
	halfOpen
)

func (s state) String() string {
	switch s {
	case closed:
		return "closed"
	case open:
		return "open"
	case halfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Do when the breaker is open and not yet due for
// a half-open probe.
var ErrOpen = errors.New("circuitbreaker: open")

// Config tunes the breaker. Zero values fall back to the documented defaults.
type Config struct {
	FailureThreshold int           // consecutive failures before tripping, default 5
	RecoveryTimeout  time.Duration // how long it stays open, default 30s
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 30 * time.Second
	}
	return c
}

// Breaker is safe for concurrent use by many callers guarding the same
// outbound dependency (one Breaker per connector's REST client).
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	st              state
	consecutiveFail int
	openedAt        time.Time
	probeInFlight   bool
}

// New builds a closed breaker.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg.withDefaults(), st: closed}
}

// Allow reports whether a call may proceed right now, and marks a half-open
// probe as in-flight if this call is that probe. Call RecordSuccess or
// RecordFailure exactly once after every Allow==true call.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case closed:
		return true
	case open:
		if time.Since(b.openedAt) < b.cfg.RecoveryTimeout {
			return false
		}
		b.st = halfOpen
		b.probeInFlight = true
		return true
	case halfOpen:
		return false // one probe at a time
	default:
		return true
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st = closed
	b.consecutiveFail = 0
	b.probeInFlight = false
}

// RecordFailure should be called only for network/5xx failures - parse
// failures must never reach it, per the breaker's contract.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == halfOpen {
		b.trip()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.cfg.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.st = open
	b.openedAt = time.Now()
	b.probeInFlight = false
}

// State returns the current state as a string, for stats/metrics exposition.
func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.st.String()
}

// Do runs fn if the breaker allows it, recording the outcome. isFailure
// classifies the returned error: only failures it reports true for count
// toward the breaker (network/5xx); parse errors should make isFailure
// return false so they never trip the breaker.
func (b *Breaker) Do(ctx context.Context, isFailure func(error) bool, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}

	err := fn(ctx)
	if err == nil {
		b.RecordSuccess()
		return nil
	}
	if isFailure == nil || isFailure(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}
