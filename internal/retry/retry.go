package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// Kind selects how the delay grows between attempts.
type Kind string

const (
	// Linear waits Backoff, 2*Backoff, 3*Backoff, ...
	Linear Kind = "linear"
	// Exponential waits Backoff, 2*Backoff, 4*Backoff, ...
	Exponential Kind = "exponential"
)

// ParseKind parses a policy name. The empty string selects Linear.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", Linear:
		return Linear, nil
	case Exponential:
		return Exponential, nil
	default:
		return "", fmt.Errorf("retry: unknown policy %q", s)
	}
}

// Policy describes how failed operations are retried.
type Policy struct {
	// Attempts is the number of retries after the first attempt.
	// Zero means the operation runs exactly once.
	Attempts int

	// Backoff is the base delay.
	Backoff time.Duration

	// MaxBackoff caps the delay. Zero means no cap.
	MaxBackoff time.Duration

	// Kind selects linear or exponential growth. Default: Linear.
	Kind Kind

	// Jitter scales each delay by a random factor in [0.5, 1.5).
	Jitter bool
}

// DefaultPolicy returns 5 retries with a linear 1s backoff capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   5,
		Backoff:    time.Second,
		MaxBackoff: 30 * time.Second,
		Kind:       Linear,
	}
}

// Delay returns how long to wait before the given retry (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.Backoff <= 0 {
		return 0
	}

	var d time.Duration
	switch p.Kind {
	case Exponential:
		shift := attempt - 1
		if shift > 30 {
			shift = 30
		}
		d = p.Backoff * time.Duration(1<<uint(shift))
	default:
		d = p.Backoff * time.Duration(attempt)
	}

	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}

	if p.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()))
	}
	return d
}

// Wait sleeps for Delay(attempt) or until ctx is done.
func (p Policy) Wait(ctx context.Context, attempt int) error {
	d := p.Delay(attempt)
	if d == 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// unchanged.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls fn until it succeeds, returns a permanent error, the policy is
// exhausted, or ctx is done. fn receives the 0-based attempt number.
// The number of calls made is returned alongside the final error.
func Do(ctx context.Context, p Policy, fn func(attempt int) error) (int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			if err := p.Wait(ctx, attempt); err != nil {
				return attempts, err
			}
		}

		attempts++
		err := fn(attempt)
		if err == nil {
			return attempts, nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return attempts, pe.err
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}
		lastErr = err
	}

	return attempts, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}
