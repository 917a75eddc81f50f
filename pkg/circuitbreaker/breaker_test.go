package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 2
	cfg.Timeout = time.Hour
	cb, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		if _, err := cb.Execute(ctx, func() (string, error) { return "", boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d err = %v, want boom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("state = %s, want open", cb.State())
	}

	called := false
	_, err = cb.Execute(ctx, func() (string, error) {
		called = true
		return "ok", nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if called {
		t.Error("open breaker must not run the call")
	}

	h := cb.Health()
	if h.Healthy || h.State != StateOpen || h.Name != "test" {
		t.Errorf("health = %+v", h)
	}
}

func TestBreakerPassesResults(t *testing.T) {
	cb, err := New(DefaultConfig("ok"), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := cb.Execute(context.Background(), func() (string, error) { return "answer", nil })
	if err != nil || out != "answer" {
		t.Errorf("Execute = %q, %v", out, err)
	}
	if !cb.Health().Healthy {
		t.Error("breaker should be healthy")
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	cfg := DefaultConfig("cancel")
	cfg.FailureThreshold = 1
	cb, _ := New(cfg, nil)

	_, err := cb.Execute(context.Background(), func() (string, error) { return "", context.Canceled })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("cancellation should not open the breaker")
	}
}
