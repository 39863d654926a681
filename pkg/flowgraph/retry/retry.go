package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy configures retry behavior.
type Policy struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	MaxAttempts int

	// InitialBackoff is the starting backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to backoff after each attempt.
	BackoffFactor float64

	// Jitter is the random jitter factor (0.0-1.0).
	Jitter float64

	// Retryable optionally overrides IsRetryable.
	Retryable func(error) bool

	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// DefaultPolicy is the standard retry configuration.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	BackoffFactor:  2.0,
	Jitter:         0.1,
}

// NoRetry disables retries.
var NoRetry = Policy{MaxAttempts: 1}

// Result contains the result of a retried call.
type Result[T any] struct {
	// Value is the result if successful.
	Value T

	// Err is the final error if all attempts failed.
	Err error

	// Attempts is the number of attempts made.
	Attempts int

	// Duration is the total time spent.
	Duration time.Duration
}

// Do calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx is done. A failed Result carries a *CategorizedError wrapping
// the last error.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) Result[T] {
	start := time.Now()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	backoff := p.InitialBackoff
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result[T]{
				Err:      &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt, Context: "context cancelled"},
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}

		value, err := fn(ctx)
		if err == nil {
			return Result[T]{Value: value, Attempts: attempt + 1, Duration: time.Since(start)}
		}
		lastErr = err

		if !retryable(err) {
			return Result[T]{
				Err:      &CategorizedError{Err: err, Category: CategoryPermanent, Attempts: attempt + 1},
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		}

		// Don't sleep after the last attempt
		if attempt == p.MaxAttempts-1 {
			break
		}
		sleep := calculateBackoff(backoff, p.Jitter)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, sleep)
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result[T]{
				Err:      &CategorizedError{Err: ctx.Err(), Category: CategoryPermanent, Attempts: attempt + 1, Context: "context cancelled during backoff"},
				Attempts: attempt + 1,
				Duration: time.Since(start),
			}
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}

	return Result[T]{
		Err: &CategorizedError{
			Err:      lastErr,
			Category: CategoryTransient,
			Attempts: p.MaxAttempts,
			Context:  "max retries exceeded",
		},
		Attempts: p.MaxAttempts,
		Duration: time.Since(start),
	}
}

// calculateBackoff returns base +/- (base * jitter * random).
func calculateBackoff(base time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return base
	}
	jitterAmount := float64(base) * jitter * (rand.Float64()*2 - 1)
	return time.Duration(float64(base) + jitterAmount)
}
