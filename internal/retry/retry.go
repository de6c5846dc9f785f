package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Policy is a reusable retry policy: max attempts, exponential backoff with
// jitter, and a predicate for errors that must never be retried.
type Policy struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on the exponential delay
	JitterMax  time.Duration // uniform random addition per delay
	Permanent  func(error) bool
}

// Default matches the store writer's tuning: up to 3 retries,
// min(1s * 2^attempt, 30s) + random(0, 1s).
func Default(permanent func(error) bool) Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		JitterMax:  time.Second,
		Permanent:  permanent,
	}
}

// Delay returns the backoff before retry number attempt (0-based).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if p.JitterMax > 0 {
		d += time.Duration(rand.Int63n(int64(p.JitterMax)))
	}
	return d
}

// Do runs fn, retrying per the policy. Permanent errors and context
// cancellation propagate immediately. The returned error is the last
// failure once retries are exhausted.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if p.Permanent != nil && p.Permanent(lastErr) {
			return lastErr
		}
		if attempt >= p.MaxRetries {
			return fmt.Errorf("%s: %d retries exhausted: %w", op, p.MaxRetries, lastErr)
		}

		delay := p.Delay(attempt)
		logger.Warn("retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", p.MaxRetries,
			"delay", delay,
			"error", lastErr,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
