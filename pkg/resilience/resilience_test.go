package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicySucceedsAfterFailures(t *testing.T) {
	p := NewRetryPolicy(2, time.Millisecond)
	attempts := 0
	err := p.Do(context.Background(), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryPolicyStopsOnPermanent(t *testing.T) {
	p := NewRetryPolicy(5, time.Millisecond)
	attempts := 0
	base := errors.New("bad request")
	err := p.Do(context.Background(), func(context.Context) error {
		attempts++
		return Permanent(base)
	})
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped base error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestRetryPolicyHonorsContext(t *testing.T) {
	p := NewRetryPolicy(10, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := p.Do(ctx, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(2, time.Minute)
	cb.now = func() time.Time { return now }

	upstream := UpstreamError{Provider: "weather", Status: 503}
	_ = cb.Call(func() error { return upstream })
	if !cb.Allow() {
		t.Fatalf("expected breaker closed after one failure")
	}
	_ = cb.Call(func() error { return upstream })
	if err := cb.Call(func() error { return nil }); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open circuit, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if err := cb.Call(func() error { return nil }); err != nil {
		t.Fatalf("expected breaker closed after cooldown, got %v", err)
	}
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	cb.OnError(UpstreamError{Provider: "weather", Status: 404})
	if !cb.Allow() {
		t.Fatalf("expected 4xx not to open the breaker")
	}
	cb.OnError(RateLimitError{Provider: "weather"})
	if cb.Allow() {
		t.Fatalf("expected rate limit to open the breaker")
	}
}
