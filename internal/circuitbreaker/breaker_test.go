package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitOpensAfterThresholdAndRejects(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 3, Cooldown: 500 * time.Millisecond, HalfOpenMaxInFlight: 1})

	for i := 0; i < 3; i++ {
		p, err := b.TryAcquire()
		if err != nil {
			t.Fatalf("unexpected rejection before threshold: %v", err)
		}
		p.Release(false)
	}

	if b.State() != Open {
		t.Fatalf("expected Open after 3 failures, got %s", b.State())
	}

	_, err := b.TryAcquire()
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if openErr.RetryAfter <= 0 || openErr.RetryAfter > 500*time.Millisecond {
		t.Fatalf("unexpected retry_after: %v", openErr.RetryAfter)
	}
}

func TestCircuitSafetyNoPermitWhileOpen(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, Cooldown: time.Hour})
	p, _ := b.TryAcquire()
	p.Release(false)
	if b.State() != Open {
		t.Fatalf("expected open")
	}
	for i := 0; i < 100; i++ {
		if _, err := b.TryAcquire(); err == nil {
			t.Fatal("try_acquire returned a permit while circuit is open")
		}
	}
}

func TestHalfOpenProbeThenClose(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	p, _ := b.TryAcquire()
	p.Release(false)

	time.Sleep(15 * time.Millisecond)

	probe, err := b.TryAcquire()
	if err != nil {
		t.Fatalf("expected probe to be admitted after cooldown: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("expected HalfOpen, got %s", b.State())
	}
	probe.Release(true)
	if b.State() != Closed {
		t.Fatalf("expected Closed after successful probe, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("llm", Config{FailureThreshold: 1, Cooldown: 10 * time.Millisecond})
	p, _ := b.TryAcquire()
	p.Release(false)
	time.Sleep(15 * time.Millisecond)

	probe, _ := b.TryAcquire()
	probe.Release(false)
	if b.State() != Open {
		t.Fatalf("expected Open after failed probe, got %s", b.State())
	}
}

func TestRegistryReusesBreakerPerName(t *testing.T) {
	reg := NewRegistry(DefaultConfig())
	a := reg.Get("browser")
	b := reg.Get("browser")
	if a != b {
		t.Fatal("registry created two breakers for the same name")
	}
	other := reg.Get("llm")
	if other == a {
		t.Fatal("registry returned same breaker for different names")
	}
}
