// Package retry provides a capped exponential backoff policy with jitter.
//
// The policy is decoupled from what it retries: the sync engine uses Delay
// and Exhausted to schedule queued operations across cycles, and the
// document store client uses Do for blocking reads.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mschirtzinger/famtasks/internal/model"
)

// RandomSource yields uniformly distributed values in [0, 1).
type RandomSource interface {
	Float64() float64
}

// RandomFunc adapts a function to RandomSource.
type RandomFunc func() float64

// Float64 implements RandomSource.
func (f RandomFunc) Float64() float64 { return f() }

// Fixed returns a RandomSource that always yields v.
func Fixed(v float64) RandomSource {
	return RandomFunc(func() float64 { return v })
}

// Policy is a bounded retry policy.
type Policy struct {
	// MaxAttempts is the number of failed attempts after which an
	// operation is given up.
	MaxAttempts int

	// BaseDelay is the delay before the first retry, doubled per attempt.
	BaseDelay time.Duration

	// MaxDelay caps the un-jittered delay.
	MaxDelay time.Duration

	// Rand is the jitter source. Nil uses math/rand/v2.
	Rand RandomSource
}

// DefaultPolicy returns 3 attempts, 1s base delay and a 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the wait before retry number attempt (0-based):
// min(MaxDelay, BaseDelay*2^attempt) scaled by a jitter factor in [0.5, 1.5).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxDelay > 0 && backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}
	return time.Duration(backoff * (0.5 + p.random()))
}

// Exhausted reports whether retryCount failed attempts reach the ceiling.
func (p Policy) Exhausted(retryCount int) bool {
	return retryCount >= p.MaxAttempts
}

func (p Policy) random() float64 {
	if p.Rand == nil {
		return rand.Float64()
	}
	return p.Rand.Float64()
}

// Do calls fn until it succeeds, the policy is exhausted or ctx is done.
// Fatal and not-found errors are returned without retrying. It sleeps
// Delay(n) on clk between attempts and returns the last error.
func (p Policy) Do(ctx context.Context, clk clock.Clock, fn func(ctx context.Context) error) error {
	if clk == nil {
		clk = clock.New()
	}
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(ctx); err == nil || model.IsFatal(err) || errors.Is(err, model.ErrNotFound) {
			return err
		}
		if p.Exhausted(attempt + 1) {
			return err
		}

		timer := clk.Timer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
