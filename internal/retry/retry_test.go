package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func testPolicy(maxRetries int, permanent func(error) bool) Policy {
	return Policy{
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
		JitterMax:  time.Millisecond,
		Permanent:  permanent,
	}
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	err := testPolicy(3, nil).Do(context.Background(), slog.Default(), "update", func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Two failures, success on the third attempt → exactly 2 retries.
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	attempts := 0
	err := testPolicy(3, nil).Do(context.Background(), slog.Default(), "update", func() error {
		attempts++
		return errors.New("still down")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 4 { // initial + 3 retries
		t.Errorf("expected 4 attempts, got %d", attempts)
	}
}

func TestDo_PermanentFailsFast(t *testing.T) {
	permanent := errors.New("bad credentials")
	attempts := 0
	err := testPolicy(3, func(err error) bool { return errors.Is(err, permanent) }).
		Do(context.Background(), slog.Default(), "update", func() error {
			attempts++
			return permanent
		})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt for permanent error, got %d", attempts)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := testPolicy(3, nil).Do(ctx, slog.Default(), "update", func() error {
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestDelay_CappedAndJittered(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, JitterMax: time.Second}
	for attempt := 0; attempt < 10; attempt++ {
		d := p.Delay(attempt)
		if d > 31*time.Second {
			t.Errorf("attempt %d: delay %v exceeds cap+jitter", attempt, d)
		}
		if d < time.Second {
			t.Errorf("attempt %d: delay %v below base", attempt, d)
		}
	}
	// Exponential below the cap.
	noJitter := Policy{BaseDelay: time.Second, MaxDelay: 30 * time.Second}
	if got := noJitter.Delay(2); got != 4*time.Second {
		t.Errorf("expected 4s for attempt 2, got %v", got)
	}
}
