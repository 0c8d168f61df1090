// Package idempotency implements at-most-once request semantics: a
// distributed-shaped key lock with TTL, behind a Store port so a
// process-local map (the reference implementation here) and a Redis-backed
// store can share call sites. Sharding follows the same fnv-hashed,
// per-shard-mutex technique used throughout this module
// (internal/timeoutprofile, grounded on // engine/internal/ratelimit.AdaptiveRateLimiter).
package idempotency

import (
	"hash/fnv"
	"sync"
	"time"

	"riptide/models"
)

// Store is the port every idempotency backend implements.
type Store interface {
	TryAcquire(key string, ttl time.Duration) (models.IdempotencyToken, error)
	Release(token models.IdempotencyToken)
	Exists(key string) bool
	TTL(key string) (time.Duration, bool)
	StoreResult(key string, result []byte, ttl time.Duration)
	GetResult(key string) ([]byte, bool)
}

// ErrAlreadyHeld is returned by TryAcquire when key is currently held by an
// unexpired token.
type ErrAlreadyHeld struct{ Key string }

func (e *ErrAlreadyHeld) Error() string { return "idempotency key already held: " + e.Key }

type record struct {
	mu sync.Mutex
	token models.IdempotencyToken
	held bool
	result []byte
	hasRes bool
}

type shard struct {
	mu sync.Mutex
	records map[string]*record
}

const shardCount = 16

// InMemoryStore is the reference Store: sharded map with expiry checked
// lazily on every access (no background sweep is required for correctness,
// since Expired() is authoritative on every read).
type InMemoryStore struct {
	shards [shardCount]*shard
	now func() time.Time
}

// NewInMemoryStore constructs a ready-to-use in-process Store.
func NewInMemoryStore() *InMemoryStore {
	s := &InMemoryStore{now: time.Now}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]*record)}
	}
	return s
}

func (s *InMemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *InMemoryStore) recordFor(key string) *record {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	r, ok := sh.records[key]
	if !ok {
		r = &record{}
		sh.records[key] = r
	}
	return r
}

// TryAcquire atomically claims key for ttl, or returns ErrAlreadyHeld if an
// unexpired token already holds it. A token past its expiry is treated as
// released and is silently reclaimed.
func (s *InMemoryStore) TryAcquire(key string, ttl time.Duration) (models.IdempotencyToken, error) {
	r := s.recordFor(key)
	r.mu.Lock()
	defer r.mu.Unlock()

	now := s.now()
	if r.held && !r.token.Expired(now) {
		return models.IdempotencyToken{}, &ErrAlreadyHeld{Key: key}
	}
	tok := models.IdempotencyToken{Key: key, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	r.token = tok
	r.held = true
	return tok, nil
}

// Release marks token's key free, unless a newer token has since reclaimed
// it. Releasing an already-expired token is a no-op, since expiry alone
// already freed the key.
func (s *InMemoryStore) Release(token models.IdempotencyToken) {
	r := s.recordFor(token.Key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.held && r.token.AcquiredAt.Equal(token.AcquiredAt) {
		r.held = false
	}
}

// Exists reports whether key is currently held by an unexpired token.
func (s *InMemoryStore) Exists(key string) bool {
	r := s.recordFor(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held && !r.token.Expired(s.now())
}

// TTL returns the remaining lifetime of key's current hold, if any.
func (s *InMemoryStore) TTL(key string) (time.Duration, bool) {
	r := s.recordFor(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.held {
		return 0, false
	}
	now := s.now()
	if r.token.Expired(now) {
		return 0, false
	}
	return r.token.ExpiresAt.Sub(now), true
}

// StoreResult saves result bytes for key so duplicate requests can be
// answered from the replay buffer instead of re-executing.
func (s *InMemoryStore) StoreResult(key string, result []byte, ttl time.Duration) {
	r := s.recordFor(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.result = append([]byte(nil), result...)
	r.hasRes = true
	// Reuse the token's expiry window for the replay buffer entry so a
	// single TTL sweep policy governs both.
	now := s.now()
	if !r.held || r.token.Expired(now) {
		r.token = models.IdempotencyToken{Key: key, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
		r.held = true
	}
}

// GetResult returns a previously stored replay result, if still live.
func (s *InMemoryStore) GetResult(key string) ([]byte, bool) {
	r := s.recordFor(key)
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasRes || r.token.Expired(s.now()) {
		return nil, false
	}
	return r.result, true
}
