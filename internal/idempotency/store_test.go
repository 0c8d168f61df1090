package idempotency

import (
	"errors"
	"testing"
	"time"
)

func TestTryAcquireThenAlreadyHeld(t *testing.T) {
	s := NewInMemoryStore()
	tok, err := s.TryAcquire("job-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tok.Key != "job-1" {
		t.Fatalf("unexpected token: %+v", tok)
	}

	_, err = s.TryAcquire("job-1", time.Minute)
	var already *ErrAlreadyHeld
	if !errors.As(err, &already) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
}

func TestReleaseFreesKey(t *testing.T) {
	s := NewInMemoryStore()
	tok, _ := s.TryAcquire("job-1", time.Minute)
	s.Release(tok)
	if s.Exists("job-1") {
		t.Fatal("expected key released")
	}
	if _, err := s.TryAcquire("job-1", time.Minute); err != nil {
		t.Fatalf("expected re-acquire after release, got %v", err)
	}
}

func TestExpiryIsAuthoritative(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	_, err := s.TryAcquire("job-1", time.Second)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	now = now.Add(2 * time.Second)

	if s.Exists("job-1") {
		t.Fatal("expected expired token to no longer exist")
	}
	if _, err := s.TryAcquire("job-1", time.Minute); err != nil {
		t.Fatalf("expected reclaim of expired key, got %v", err)
	}
}

func TestReleaseOfStaleTokenIsNoop(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	first, _ := s.TryAcquire("job-1", time.Second)
	now = now.Add(2 * time.Second)
	second, err := s.TryAcquire("job-1", time.Minute)
	if err != nil {
		t.Fatalf("expected reclaim: %v", err)
	}

	s.Release(first)
	if !s.Exists("job-1") {
		t.Fatal("stale release must not clear the newer holder's lock")
	}
	s.Release(second)
	if s.Exists("job-1") {
		t.Fatal("expected current holder's release to clear the key")
	}
}

func TestTTLReportsRemainingLifetime(t *testing.T) {
	s := NewInMemoryStore()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	if _, ok := s.TTL("job-1"); ok {
		t.Fatal("expected no ttl before acquire")
	}
	s.TryAcquire("job-1", 10*time.Second)
	ttl, ok := s.TTL("job-1")
	if !ok || ttl != 10*time.Second {
		t.Fatalf("expected 10s ttl, got %v ok=%v", ttl, ok)
	}
}

func TestStoreAndGetResultReplay(t *testing.T) {
	s := NewInMemoryStore()
	s.StoreResult("job-1", []byte("payload"), time.Minute)

	got, ok := s.GetResult("job-1")
	if !ok || string(got) != "payload" {
		t.Fatalf("expected replay payload, got %q ok=%v", got, ok)
	}
}

func TestGetResultMissingIsFalse(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok := s.GetResult("never-stored"); ok {
		t.Fatal("expected miss for key never stored")
	}
}
