// Package retry drives bounded attempts with exponential backoff and jitter.
//
// An attempt reports its result as an Outcome: a value, a transient failure
// to retry with the standard step, or a throttled failure whose backoff is
// multiplied by Policy.ThrottleFactor.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// ErrExhausted is returned when every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

type kind int

const (
	kindSuccess kind = iota
	kindRetry
	kindThrottle
)

// Outcome is the result of a single attempt.
type Outcome[T any] struct {
	kind   kind
	value  T
	reason error
}

// Success ends the loop with v.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{kind: kindSuccess, value: v}
}

// Retry asks for another attempt after the standard backoff.
func Retry[T any](reason error) Outcome[T] {
	return Outcome[T]{kind: kindRetry, reason: reason}
}

// Throttle asks for another attempt after the scaled backoff.
func Throttle[T any](reason error) Outcome[T] {
	return Outcome[T]{kind: kindThrottle, reason: reason}
}

// Policy configures the loop.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	ThrottleFactor float64
	JitterMin      time.Duration
	JitterMax      time.Duration

	// Sleep waits for d or until ctx is done. Defaults to SleepContext.
	Sleep func(ctx context.Context, d time.Duration) error
	// Float64 returns a value in [0, 1). Defaults to math/rand/v2.
	Float64 func() float64
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, throttled bool, delay time.Duration, reason error)
}

// DefaultPolicy mirrors the storefront client defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    5,
		BaseDelay:      time.Second,
		ThrottleFactor: 30,
		JitterMin:      500 * time.Millisecond,
		JitterMax:      1500 * time.Millisecond,
	}
}

// Delay returns the backoff before the attempt following attempt (0-based),
// excluding jitter.
func (p Policy) Delay(attempt int, throttled bool) time.Duration {
	step := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if throttled {
		step *= p.ThrottleFactor
	}
	return time.Duration(step)
}

// Jitter maps r in [0, 1) onto [JitterMin, JitterMax).
func (p Policy) Jitter(r float64) time.Duration {
	return p.JitterMin + time.Duration(r*float64(p.JitterMax-p.JitterMin))
}

// Do runs fn until it succeeds or MaxAttempts is reached. No sleep follows
// the final attempt. A cancelled context during a sleep ends the loop with
// the context error.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) Outcome[T]) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	random := p.Float64
	if random == nil {
		random = rand.Float64
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 0; attempt < attempts; attempt++ {
		out := fn(ctx, attempt)
		if out.kind == kindSuccess {
			return out.value, nil
		}
		last = out.reason

		if attempt == attempts-1 {
			break
		}

		throttled := out.kind == kindThrottle
		delay := p.Delay(attempt, throttled) + p.Jitter(random())
		if p.OnRetry != nil {
			p.OnRetry(attempt, throttled, delay, out.reason)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempts, last)
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
