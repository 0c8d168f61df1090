// Package timeoutprofile implements per-domain adaptive timeouts with
// exponential backoff on failure and EWMA-smoothed latency tracking,
// grounded on the sharded-domain-state technique of
// engine/internal/ratelimit.AdaptiveRateLimiter (fnv-hashed shard index,
// per-shard RWMutex, lazily created per-domain state).
package timeoutprofile

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	// MinTimeout and MaxTimeout bound the timeout a Profiler will ever report.
	MinTimeout = 5 * time.Second
	MaxTimeout = 60 * time.Second

	defaultInitial = 30 * time.Second
	timeoutGrowthFactor = 1.5
	timeoutShrinkFactor = 0.9
	successesBeforeShrink = 3
	ewmaAlpha = 0.2
	defaultShards = 16
)

// Profile is a read-only snapshot of one domain's adaptive timeout state.
type Profile struct {
	Domain string
	CurrentTimeout time.Duration
	Total int64
	Success int64
	Failure int64
	ConsecutiveSuccess int
	ConsecutiveFailure int
	EWMAResponseMs float64
	UpdatedAt time.Time
}

type domainState struct {
	mu sync.Mutex
	currentTimeout time.Duration
	total int64
	success int64
	failure int64
	consecutiveSuccess int
	consecutiveFailure int
	ewmaResponseMs float64
	updatedAt time.Time
}

func newDomainState(initial time.Duration, now time.Time) *domainState {
	return &domainState{currentTimeout: initial, updatedAt: now}
}

func clamp(d time.Duration) time.Duration {
	if d < MinTimeout {
		return MinTimeout
	}
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

type shard struct {
	mu sync.RWMutex
	domains map[string]*domainState
}

// Profiler tracks a TimeoutProfile per domain and adapts it in response to
// recorded outcomes.
type Profiler struct {
	shards []*shard
	mask uint64
	initial time.Duration
	now func() time.Time
}

// Option customizes a Profiler at construction.
type Option func(*Profiler)

// WithInitialTimeout overrides the default 30s starting timeout.
func WithInitialTimeout(d time.Duration) Option {
	return func(p *Profiler) { p.initial = clamp(d) }
}

// WithClock injects a deterministic clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Profiler) { p.now = now }
}

// New constructs a Profiler with defaultShards shards.
func New(opts ...Option) *Profiler {
	p := &Profiler{initial: defaultInitial, now: time.Now}
	p.shards = make([]*shard, defaultShards)
	for i := range p.shards {
		p.shards[i] = &shard{domains: make(map[string]*domainState)}
	}
	p.mask = uint64(defaultShards - 1)
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Profiler) shardFor(domain string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(domain))
	return p.shards[uint64(h.Sum32())&p.mask]
}

func (p *Profiler) stateFor(domain string) *domainState {
	sh := p.shardFor(domain)
	sh.mu.RLock()
	st := sh.domains[domain]
	sh.mu.RUnlock()
	if st != nil {
		return st
	}
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if st = sh.domains[domain]; st == nil {
		st = newDomainState(p.initial, p.now())
		sh.domains[domain] = st
	}
	return st
}

// TimeoutFor returns the current adaptive deadline for domain, creating a
// fresh profile lazily if this is the first time the domain is seen.
func (p *Profiler) TimeoutFor(domain string) time.Duration {
	st := p.stateFor(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.currentTimeout
}

// RecordSuccess records a successful call and its observed latency,
// shrinking the timeout by timeoutShrinkFactor after
// successesBeforeShrink consecutive successes. Consecutive successes never
// increase current_timeout_s (testable property 5).
func (p *Profiler) RecordSuccess(domain string, latency time.Duration) {
	st := p.stateFor(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.total++
	st.success++
	st.consecutiveSuccess++
	st.consecutiveFailure = 0
	st.updatedAt = p.now()

	ms := float64(latency.Milliseconds())
	if st.ewmaResponseMs == 0 {
		st.ewmaResponseMs = ms
	} else {
		st.ewmaResponseMs = ewmaAlpha*ms + (1-ewmaAlpha)*st.ewmaResponseMs
	}

	if st.consecutiveSuccess >= successesBeforeShrink {
		st.currentTimeout = clamp(time.Duration(float64(st.currentTimeout) * timeoutShrinkFactor))
		st.consecutiveSuccess = 0
	}
}

// RecordTimeout records a timeout/failure, growing the timeout by
// timeoutGrowthFactor. Consecutive timeouts never decrease current_timeout_s
// (testable property 5).
func (p *Profiler) RecordTimeout(domain string) {
	st := p.stateFor(domain)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.total++
	st.failure++
	st.consecutiveFailure++
	st.consecutiveSuccess = 0
	st.updatedAt = p.now()
	st.currentTimeout = clamp(time.Duration(float64(st.currentTimeout) * timeoutGrowthFactor))
}

// Snapshot returns a read-only copy of the named domain's profile, or the
// zero Profile with an empty Domain if it has never been observed.
func (p *Profiler) Snapshot(domain string) Profile {
	sh := p.shardFor(domain)
	sh.mu.RLock()
	st, ok := sh.domains[domain]
	sh.mu.RUnlock()
	if !ok {
		return Profile{}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Profile{
		Domain: domain,
		CurrentTimeout: st.currentTimeout,
		Total: st.total,
		Success: st.success,
		Failure: st.failure,
		ConsecutiveSuccess: st.consecutiveSuccess,
		ConsecutiveFailure: st.consecutiveFailure,
		EWMAResponseMs: st.ewmaResponseMs,
		UpdatedAt: st.updatedAt,
	}
}
