package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())

	var calls int
	err := b.Execute(context.Background(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}

	if b.State() != BreakerOpen {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	err := b.Execute(context.Background(), func(_ context.Context) error {
		t.Error("must not run while open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	_ = b.Execute(context.Background(), func(_ context.Context) error { return nil })

	// Two fresh failures must not reach the threshold of three.
	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after counter reset, got %s", b.State())
	}
}

func TestBreaker_HalfOpenProbeCloses(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, ResetTimeout: 100 * time.Millisecond})
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		_ = b.Execute(context.Background(), func(_ context.Context) error {
			return errors.New("fail")
		})
	}
	if b.State() != BreakerOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	b.now = func() time.Time { return now.Add(200 * time.Millisecond) }

	if b.State() != BreakerHalfOpen {
		t.Fatalf("expected half-open after reset timeout, got %s", b.State())
	}

	if err := b.Execute(context.Background(), func(_ context.Context) error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})

	b.now = func() time.Time { return now.Add(2 * time.Second) }

	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("probe fails")
	})
	// The probe failure moved lastFailureAt forward, so the circuit is open
	// again from the probe's timestamp.
	if b.State() != BreakerOpen {
		t.Errorf("expected open after failed probe, got %s", b.State())
	}
}

func TestBreaker_ShouldTripFilter(t *testing.T) {
	permanent := errors.New("permanent")
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       IsTransient,
	})

	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return permanent
	})
	if b.State() != BreakerClosed {
		t.Errorf("non-transient error must not trip the breaker, got %s", b.State())
	}

	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return Transient(errors.New("upstream 503"), 503)
	})
	if b.State() != BreakerOpen {
		t.Errorf("transient error should trip the breaker, got %s", b.State())
	}
}

func TestBreaker_ExecuteVal(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig())

	got, err := ExecuteVal(context.Background(), b, func(_ context.Context) (string, error) {
		return "payload", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "payload" {
		t.Errorf("expected payload, got %q", got)
	}
}

func TestBreaker_Reset(t *testing.T) {
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		OnStateChange: func(from, to BreakerState) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(context.Background(), func(_ context.Context) error {
		return errors.New("fail")
	})
	b.Reset()

	if b.State() != BreakerClosed {
		t.Errorf("expected closed after reset, got %s", b.State())
	}
	if len(transitions) != 2 {
		t.Errorf("expected 2 transitions, got %v", transitions)
	}
}
