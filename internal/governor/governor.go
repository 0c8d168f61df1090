// Package governor implements per-tenant rate limiting and budget
// enforcement (C12): a token-bucket admission gate plus a USD budget
// ledger, both sharded by tenant the same way // engine/internal/ratelimit shards by domain.
package governor

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"riptide/internal/riptideerr"
	"riptide/models"
)

const shardCount = 16

// DefaultRateLimits returns conservative defaults used when a tenant has
// no explicit configuration.
func DefaultRateLimits() models.RateLimits {
	return models.RateLimits{PerMinute: 60, PerHour: 1000, PerDay: 10000, BurstAllowance: 10}
}

// DefaultBudgetLimits returns conservative defaults used when a tenant
// has no explicit configuration.
func DefaultBudgetLimits() models.BudgetLimits {
	return models.BudgetLimits{PerJobUSD: 1.0, PerTenantMonthlyUSD: 100.0, WarningThresholdPct: 0.8, GracePeriod: 10 * time.Minute}
}

// Config is the global governor configuration: defaults applied to any
// tenant not explicitly registered via WithTenantLimits, plus the
// global monthly ceiling shared across every tenant.
type Config struct {
	DefaultRate models.RateLimits
	DefaultBudget models.BudgetLimits
	GlobalMonthlyUSD float64
}

// DefaultConfig returns the governor's out-of-the-box configuration.
func DefaultConfig() Config {
	return Config{DefaultRate: DefaultRateLimits(), DefaultBudget: DefaultBudgetLimits()}
}

type shard struct {
	mu sync.Mutex
	tenants map[string]*tenantState
}

// tenantState mirrors domainState's token bucket, generalized here to
// one bucket per rate window, each refilled at its configured fixed
// rate, and a monthly USD ledger alongside it.
type tenantState struct {
	rate models.RateLimits
	budget models.BudgetLimits

	minuteTokens float64
	hourTokens float64
	dayTokens float64
	lastRefill time.Time

	monthlySpentUSD float64
	monthResetAt time.Time
	warnedThisMonth bool
	graceDeadline time.Time
	overBudget bool

	lastActivity time.Time
}

// Governor is the per-tenant admission gate and budget ledger. Zero
// value is not usable; construct with New.
type Governor struct {
	cfg Config
	shards []*shard
	mask uint64
	now func() time.Time

	overrides map[string]tenantLimits
	overridesMu sync.RWMutex

	globalMu sync.Mutex
	globalSpentUSD float64
	globalResetAt time.Time
}

type tenantLimits struct {
	rate models.RateLimits
	budget models.BudgetLimits
}

// New constructs a Governor with shardCount shards (a power of two, same
// technique as AdaptiveRateLimiter).
func New(cfg Config) *Governor {
	if (cfg.DefaultRate == models.RateLimits{}) {
		cfg.DefaultRate = DefaultRateLimits()
	}
	if (cfg.DefaultBudget == models.BudgetLimits{}) {
		cfg.DefaultBudget = DefaultBudgetLimits()
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{tenants: make(map[string]*tenantState)}
	}
	return &Governor{cfg: cfg, shards: shards, mask: uint64(shardCount - 1), now: time.Now, overrides: make(map[string]tenantLimits)}
}

// WithClock overrides the time source for deterministic tests.
func (g *Governor) WithClock(now func() time.Time) *Governor {
	if now != nil {
		g.now = now
	}
	return g
}

// WithTenantLimits registers explicit limits for one tenant, overriding
// the governor's defaults for that tenant going forward.
func (g *Governor) WithTenantLimits(tenantID string, rate models.RateLimits, budget models.BudgetLimits) *Governor {
	g.overridesMu.Lock()
	g.overrides[tenantID] = tenantLimits{rate: rate, budget: budget}
	g.overridesMu.Unlock()
	return g
}

func (g *Governor) shardFor(tenantID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(tenantID))
	return g.shards[uint64(h.Sum32())&g.mask]
}

func (g *Governor) limitsFor(tenantID string) (models.RateLimits, models.BudgetLimits) {
	g.overridesMu.RLock()
	ov, ok := g.overrides[tenantID]
	g.overridesMu.RUnlock()
	if ok {
		return ov.rate, ov.budget
	}
	return g.cfg.DefaultRate, g.cfg.DefaultBudget
}

func (g *Governor) getOrCreate(tenantID string) *tenantState {
	sh := g.shardFor(tenantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	st, ok := sh.tenants[tenantID]
	if ok {
		return st
	}
	rate, budget := g.limitsFor(tenantID)
	now := g.now()
	st = &tenantState{
		rate: rate, budget: budget,
		minuteTokens: rate.BurstAllowance, hourTokens: rate.BurstAllowance, dayTokens: rate.BurstAllowance,
		lastRefill: now, monthResetAt: now.AddDate(0, 1, 0), lastActivity: now,
	}
	sh.tenants[tenantID] = st
	return st
}

// Permit is returned by AcquireRequestPermit; callers report the
// downstream outcome via ServiceFeedback.RecordSuccess/RecordFailure,
// keyed by service name, not by releasing the permit itself.
type Permit struct {
	TenantID string
}

// CheckRateLimits reports whether tenantID may issue one more request
// right now, refilling all three token-bucket windows first. It does
// not consume a token; AcquireRequestPermit does both in one step.
func (g *Governor) CheckRateLimits(tenantID string) error {
	sh := g.shardFor(tenantID)
	st := g.getOrCreate(tenantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	g.refillLocked(st)
	if st.minuteTokens < 1 || st.hourTokens < 1 || st.dayTokens < 1 {
		return riptideerr.AdmissionDenied("rate limit exceeded", g.retryAfterLocked(st))
	}
	return nil
}

// AcquireRequestPermit checks and consumes one token across all
// configured windows, or returns a retryable AdmissionDenied error.
func (g *Governor) AcquireRequestPermit(ctx context.Context, tenantID string) (*Permit, error) {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
	sh := g.shardFor(tenantID)
	st := g.getOrCreate(tenantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	g.refillLocked(st)
	if st.minuteTokens < 1 || st.hourTokens < 1 || st.dayTokens < 1 {
		return nil, riptideerr.AdmissionDenied("rate limit exceeded", g.retryAfterLocked(st))
	}
	st.minuteTokens--
	st.hourTokens--
	st.dayTokens--
	st.lastActivity = g.now()
	return &Permit{TenantID: tenantID}, nil
}

func (g *Governor) refillLocked(st *tenantState) {
	now := g.now()
	elapsed := now.Sub(st.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	ceiling := func(limit float64) float64 {
		if limit <= 0 {
			return st.rate.BurstAllowance + 1 // not reached: refill returns early for a window with no limit, so that window never refills
		}
		return st.rate.BurstAllowance
	}
	refill := func(tokens, perUnit, seconds float64) float64 {
		if perUnit <= 0 {
			return tokens
		}
		tokens += elapsed / seconds * perUnit
		if max := ceiling(perUnit); tokens > max {
			tokens = max
		}
		return tokens
	}
	st.minuteTokens = refill(st.minuteTokens, st.rate.PerMinute, 60)
	st.hourTokens = refill(st.hourTokens, st.rate.PerHour, 3600)
	st.dayTokens = refill(st.dayTokens, st.rate.PerDay, 86400)
	st.lastRefill = now
}

func (g *Governor) retryAfterLocked(st *tenantState) time.Duration {
	// Based on the minute window only: the time it needs to produce one
	// more token (1s when that window has no limit or is not short).
	deficit := 1 - st.minuteTokens
	if st.rate.PerMinute <= 0 || deficit <= 0 {
		return time.Second
	}
	seconds := deficit * 60 / st.rate.PerMinute
	return time.Duration(seconds * float64(time.Second))
}

// ChargeBudget debits amountUSD from tenantID's monthly ledger, denying
// the charge if it would exceed the per-job ceiling, the tenant's
// monthly ceiling past its grace period, or the governor-wide global
// monthly ceiling. Matches the signature internal/extract.LLMStrategy
// expects.
func (g *Governor) ChargeBudget(tenantID string, amountUSD float64) error {
	if err := g.chargeGlobal(amountUSD); err != nil {
		return err
	}

	sh := g.shardFor(tenantID)
	st := g.getOrCreate(tenantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := g.now()
	if now.After(st.monthResetAt) {
		st.monthlySpentUSD = 0
		st.monthResetAt = now.AddDate(0, 1, 0)
		st.warnedThisMonth = false
		st.overBudget = false
	}

	if st.budget.PerJobUSD > 0 && amountUSD > st.budget.PerJobUSD {
		return riptideerr.New(riptideerr.CodeAdmissionDenied, "charge exceeds per-job budget ceiling")
	}

	projected := st.monthlySpentUSD + amountUSD
	if st.budget.PerTenantMonthlyUSD > 0 && projected > st.budget.PerTenantMonthlyUSD {
		if !st.overBudget {
			st.overBudget = true
			st.graceDeadline = now.Add(st.budget.GracePeriod)
		}
		if now.After(st.graceDeadline) {
			return riptideerr.AdmissionDenied("monthly budget ceiling exceeded", 0)
		}
		// Within grace period: allow in-flight work to finish.
	}

	st.monthlySpentUSD = projected
	if st.budget.PerTenantMonthlyUSD > 0 && !st.warnedThisMonth {
		if projected/st.budget.PerTenantMonthlyUSD >= st.budget.WarningThresholdPct {
			st.warnedThisMonth = true
		}
	}
	return nil
}

// chargeGlobal enforces the governor-wide monthly ceiling, independent
// of any one tenant's ceiling. It resets one month after its window
// opened (the first charge, or the first charge after a reset), the
// same rolling rule tenant ledgers use.
func (g *Governor) chargeGlobal(amountUSD float64) error {
	if g.cfg.GlobalMonthlyUSD <= 0 {
		return nil
	}
	g.globalMu.Lock()
	defer g.globalMu.Unlock()

	now := g.now()
	if g.globalResetAt.IsZero() || now.After(g.globalResetAt) {
		g.globalSpentUSD = 0
		g.globalResetAt = now.AddDate(0, 1, 0)
	}
	if g.globalSpentUSD+amountUSD > g.cfg.GlobalMonthlyUSD {
		return riptideerr.AdmissionDenied("global monthly budget ceiling exceeded", 0)
	}
	g.globalSpentUSD += amountUSD
	return nil
}

// BudgetStatus is a point-in-time view of one tenant's monthly ledger.
type BudgetStatus struct {
	TenantID string
	SpentUSD float64
	CeilingUSD float64
	Warned bool
	OverBudget bool
}

// Status returns the current budget ledger snapshot for tenantID.
func (g *Governor) Status(tenantID string) BudgetStatus {
	sh := g.shardFor(tenantID)
	st := g.getOrCreate(tenantID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return BudgetStatus{
		TenantID: tenantID,
		SpentUSD: st.monthlySpentUSD,
		CeilingUSD: st.budget.PerTenantMonthlyUSD,
		Warned: st.warnedThisMonth,
		OverBudget: st.overBudget,
	}
}
