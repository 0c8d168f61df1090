// Package circuitbreaker implements per-dependency fault isolation
// (closed/open/half-open) with lock-free state transitions, grounded on the
// breaker state machine in engine/internal/ratelimit.limiter.go
// domainState, generalized into its own component and made atomic per spec
// §5 ("no global locks on the hot path").
package circuitbreaker

import (
	"sync/atomic"
	"time"
)

// State is the externally observable circuit state.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Config controls failure/recovery thresholds for one Breaker.
type Config struct {
	FailureThreshold int
	Cooldown time.Duration
	HalfOpenMaxInFlight int32
	// Window is reserved for a future rolling-window counting mode; the
	// current implementation always uses lifetime counts reset on Closed
	// re-entry (Open Question (a)).
	Window time.Duration
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown: 30 * time.Second,
		HalfOpenMaxInFlight: 1,
	}
}

// packed state word layout (all in one atomic uint64 for lock-free CAS):
// bits 0-1 : State
// bits 2-21 : fail count (20 bits)
// bits 22-63 : opened_at as Unix milliseconds (42 bits, enough until
// the year 2109; millisecond resolution keeps sub-second
// cooldowns exact)
const (
	stateBits = 2
	stateMask = (1 << stateBits) - 1
	failBits = 20
	failShift = stateBits
	failMask = (uint64(1)<<failBits - 1) << failShift
	timeShift = stateBits + failBits
)

func pack(state State, fails uint32, openedAtUnix int64) uint64 {
	return uint64(state)&stateMask | (uint64(fails) << failShift & failMask) | (uint64(openedAtUnix) << timeShift)
}

func unpack(word uint64) (state State, fails uint32, openedAtUnix int64) {
	state = State(word & stateMask)
	fails = uint32((word & failMask) >> failShift)
	openedAtUnix = int64(word >> timeShift)
	return
}

// Breaker is a single per-dependency circuit breaker. Zero value is not
// usable; construct with New.
type Breaker struct {
	name string
	cfg Config
	word atomic.Uint64
	inFlight atomic.Int32

	totalCalls atomic.Int64
	totalSuccess atomic.Int64
	totalFailures atomic.Int64
	totalOpens atomic.Int64

	now func() time.Time
}

// New constructs a Breaker for the named dependency (e.g. "llm", "browser",
// "search:serper", or an upstream hostname).
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.HalfOpenMaxInFlight <= 0 {
		cfg.HalfOpenMaxInFlight = 1
	}
	b := &Breaker{name: name, cfg: cfg, now: time.Now}
	b.word.Store(pack(Closed, 0, 0))
	return b
}

// Name returns the dependency this breaker guards.
func (b *Breaker) Name() string { return b.name }

// Permit is returned by TryAcquire; call Release exactly once when the
// guarded call completes, reporting its outcome.
type Permit struct {
	b *Breaker
	halfOpen bool
	released atomic.Bool
}

// Release records the outcome of the guarded call and transitions the
// breaker accordingly. Calling Release more than once is a no-op.
func (p *Permit) Release(success bool) {
	if p == nil || !p.released.CompareAndSwap(false, true) {
		return
	}
	if success {
		p.b.onSuccess(p.halfOpen)
	} else {
		p.b.onFailure()
	}
	if p.halfOpen {
		p.b.inFlight.Add(-1)
	}
}

// TryAcquire attempts to admit one call through the breaker. It returns a
// Permit to release with the outcome, or an *OpenError carrying the
// retry delay if the circuit currently rejects new work.
func (b *Breaker) TryAcquire() (*Permit, error) {
	now := b.now()
	for {
		word := b.word.Load()
		state, fails, openedAtUnix := unpack(word)
		switch state {
		case Closed:
			return &Permit{b: b}, nil
		case Open:
			openedAt := time.UnixMilli(openedAtUnix)
			if now.Before(openedAt.Add(b.cfg.Cooldown)) {
				return nil, &OpenError{Dependency: b.name, RetryAfter: openedAt.Add(b.cfg.Cooldown).Sub(now)}
			}
			// Cooldown elapsed: exactly one probe transitions Open->HalfOpen.
			next := pack(HalfOpen, 0, 0)
			if b.word.CompareAndSwap(word, next) {
				b.inFlight.Store(1)
				return &Permit{b: b, halfOpen: true}, nil
			}
			// Someone else raced us; retry the loop against fresh state.
			continue
		case HalfOpen:
			if b.inFlight.Add(1) <= b.cfg.HalfOpenMaxInFlight {
				return &Permit{b: b, halfOpen: true}, nil
			}
			b.inFlight.Add(-1)
			return nil, &OpenError{Dependency: b.name, RetryAfter: b.cfg.Cooldown}
		default:
			_ = fails
			_ = openedAtUnix
			return &Permit{b: b}, nil
		}
	}
}

func (b *Breaker) onSuccess(wasHalfOpen bool) {
	b.totalCalls.Add(1)
	b.totalSuccess.Add(1)
	if wasHalfOpen {
		// First success in HalfOpen closes the breaker and resets counters.
		b.word.Store(pack(Closed, 0, 0))
		return
	}
	for {
		word := b.word.Load()
		state, _, _ := unpack(word)
		if state != Closed {
			return
		}
		// A success in Closed state does not reset the failure counter by
		// itself; lifetime counting only resets on Closed (re-)entry.
		return
	}
}

func (b *Breaker) onFailure() {
	b.totalCalls.Add(1)
	b.totalFailures.Add(1)
	for {
		word := b.word.Load()
		state, fails, _ := unpack(word)
		switch state {
		case HalfOpen:
			next := pack(Open, fails+1, b.now().UnixMilli())
			if b.word.CompareAndSwap(word, next) {
				b.totalOpens.Add(1)
				return
			}
		case Closed:
			newFails := fails + 1
			if int(newFails) >= b.cfg.FailureThreshold {
				next := pack(Open, newFails, b.now().UnixMilli())
				if b.word.CompareAndSwap(word, next) {
					b.totalOpens.Add(1)
					return
				}
			} else {
				next := pack(Closed, newFails, 0)
				if b.word.CompareAndSwap(word, next) {
					return
				}
			}
		case Open:
			return
		}
	}
}

// State returns a linearizable snapshot of the current state.
func (b *Breaker) State() State {
	state, _, _ := unpack(b.word.Load())
	return state
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Name string
	State State
	Calls int64
	Success int64
	Failures int64
	Opens int64
}

// Snapshot returns the current counters.
func (b *Breaker) Snapshot() Stats {
	return Stats{
		Name: b.name,
		State: b.State(),
		Calls: b.totalCalls.Load(),
		Success: b.totalSuccess.Load(),
		Failures: b.totalFailures.Load(),
		Opens: b.totalOpens.Load(),
	}
}

// OpenError is returned by TryAcquire when the circuit rejects new work.
type OpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return "circuit open for " + e.Dependency
}
