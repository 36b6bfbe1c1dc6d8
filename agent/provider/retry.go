package provider

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/coreagent/runtime/agent/core"
	"github.com/coreagent/runtime/agent/telemetry"
)

// RetryPolicy configures the exponential-backoff retry executor
// (spec.md §4.4: "delay = min(initial·mult^(attempt-1), max) + jitter·rand").
type RetryPolicy struct {
	MaxAttempts        int
	InitialDelay       time.Duration
	MaxDelay           time.Duration
	Multiplier         float64
	Jitter             float64
	RespectRetryAfter  bool
}

// DefaultRetryPolicy matches the teacher's conservative defaults: a handful
// of attempts with doubling backoff capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       5,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		Multiplier:        2.0,
		Jitter:            0.2,
		RespectRetryAfter: true,
	}
}

// delay computes the backoff for the given 1-indexed attempt.
func (p RetryPolicy) delay(attempt int, rng *rand.Rand) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	base := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if max := float64(p.MaxDelay); max > 0 && base > max {
		base = max
	}
	jitter := base * p.Jitter * rng.Float64()
	return time.Duration(base + jitter)
}

// AttemptTelemetry is invoked once per failed attempt; the call for the
// attempt after which Retry gives up (attempts used up, or a non-retryable
// error) carries exhausted=true, and no separate exhaustion call is made.
type AttemptTelemetry func(ctx context.Context, attempt int, err error, exhausted bool)

// Retry runs fn under the retry policy, retrying only errors classified as
// retryable (spec.md §7: Retryable, RateLimitExceeded, NetworkError).
// A *core.RuntimeError with a suggested Delay and RespectRetryAfter enabled
// waits that long instead of the computed backoff.
func Retry(ctx context.Context, policy RetryPolicy, log telemetry.Logger, onAttempt AttemptTelemetry, fn func(ctx context.Context) error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var lastErr error
	attempts := policy.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		retryable := core.IsRetryable(err)
		exhausted := attempt == attempts || !retryable
		if onAttempt != nil {
			onAttempt(ctx, attempt, err, exhausted)
		}
		if !retryable {
			return err
		}
		if exhausted {
			break
		}
		wait := policy.delay(attempt, rng)
		if policy.RespectRetryAfter {
			var re *core.RuntimeError
			if errors.As(err, &re) && re.Delay != nil {
				wait = time.Duration(*re.Delay) * time.Millisecond
			}
		}
		if log != nil {
			log.Warn(ctx, "provider request retrying", "attempt", attempt, "wait_ms", wait.Milliseconds(), "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return lastErr
}
