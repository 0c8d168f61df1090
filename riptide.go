// Package riptide composes every internal component (C1-C13) behind a
// single embeddable facade, grounded on engine.Engine /
// engine.New aggregation in engine/engine.go: one Config in, one Engine
// out, with Start/Snapshot/Stop as the stable lifecycle surface and
// telemetry wiring folded in rather than left to the caller.
package riptide

import (
	"context"
	"sync"
	"time"

	"riptide/internal/cache"
	"riptide/internal/circuitbreaker"
	"riptide/internal/fetch"
	"riptide/internal/governor"
	"riptide/internal/idempotency"
	"riptide/internal/pipeline"
	"riptide/internal/resourcepool"
	"riptide/internal/telemetry"
	"riptide/internal/timeoutprofile"
	"riptide/models"
)

// Snapshot is a unified, JSON-friendly view of engine state, mirroring
// engine.Snapshot composition of per-subsystem snapshots
// into one struct for a single /healthz or CLI `riptide health` read.
type Snapshot struct {
	StartedAt time.Time `json:"started_at"`
	Uptime time.Duration `json:"uptime"`
	Cache cache.Stats `json:"cache"`
	Resources resourcepool.Stats `json:"resources"`
	Breakers []circuitbreaker.Stats `json:"breakers,omitempty"`
	Health telemetry.Snapshot `json:"health"`
}

// Engine wires every component into the C11 Orchestrator and exposes the
// subset of lifecycle operations an embedder (CLI or HTTP server) needs.
// Zero value is not usable; construct with New.
type Engine struct {
	cfg Config
	orch *pipeline.Orchestrator
	pool *resourcepool.Manager
	breakers *circuitbreaker.Registry
	gov *governor.Governor
	cacheSt *cache.Cache
	tel *telemetry.Telemetry
	health *telemetryHealthEval
	startedAt time.Time

	mu sync.Mutex
	started bool
}

// telemetryHealthEval is the small subset of telemetry.Evaluator the
// facade needs; kept as a named field type so Engine.HealthSnapshot below
// reads as the facade's own operation rather than a passthrough.
type telemetryHealthEval = telemetry.Evaluator

// New assembles every component per cfg and returns a ready-to-use
// Engine. strategies supplies the C8 extractor set DefaultSelector
// dispatches across; pass a zero Strategies to run with whatever
// NewDefaultStrategies(nil, nil, nil, nil, "") provides (CSS/Regex/
// JSONLD/ICS only — no PDF, WASM or LLM).
func New(cfg Config, strategies Strategies) (*Engine, error) {
	cfg = cfg.applyEnv()

	pool := resourcepool.New(cfg.ResourcePool)
	breakers := circuitbreaker.NewRegistry(cfg.Breaker)
	gov := governor.New(cfg.Governor)
	cacheSt := cache.New(cfg.Cache)
	idem := idempotency.NewInMemoryStore()
	profiler := timeoutprofile.New()
	renderer := fetch.NewStubRenderer(pool)
	fetcher := fetch.New(cfg.Fetch, profiler, renderer)

	selector := pipeline.DefaultSelector(strategies.toPipelineSet())
	orch := pipeline.New(fetcher, cacheSt, idem, gov, pool, breakers, selector, cfg.toPipelineConfig())

	tel := buildTelemetry(cfg.Telemetry)
	orch.WithTelemetry(tel)

	e := &Engine{
		cfg: cfg,
		orch: orch,
		pool: pool,
		breakers: breakers,
		gov: gov,
		cacheSt: cacheSt,
		tel: tel,
		startedAt: time.Now(),
	}
	if cfg.Telemetry.EnableHealth {
		e.health = e.buildHealthEvaluator()
	}
	e.started = true
	return e, nil
}

// buildTelemetry assembles the C13 bundle per opts, defaulting to a noop
// bundle when metrics/events/tracing are all disabled so callers never
// have to nil-check Engine.tel.
func buildTelemetry(opts TelemetryOptions) *telemetry.Telemetry {
	if !opts.EnableMetrics && !opts.EnableEvents && !opts.EnableTracing {
		return telemetry.NewNoop()
	}
	var provider telemetry.Provider
	if opts.EnableMetrics {
		switch opts.MetricsBackend {
		case "otel":
			provider = telemetry.NewOTelProvider(telemetry.OTelProviderOptions{ServiceName: "riptide"})
		case "noop":
			provider = telemetry.NewNoopProvider()
		default:
			provider = telemetry.NewPrometheusProvider(telemetry.PrometheusProviderOptions{})
		}
	} else {
		provider = telemetry.NewNoopProvider()
	}
	var bus telemetry.Bus
	if opts.EnableEvents {
		bus = telemetry.NewBus(provider)
	} else {
		bus = telemetry.NewBus(nil)
	}
	var tracer telemetry.Tracer
	if opts.EnableTracing {
		pct := opts.SamplingPercent
		tracer = telemetry.NewAdaptiveTracer(func() float64 { return pct })
	} else {
		tracer = telemetry.NewTracer(false)
	}
	return telemetry.New(provider, bus, tracer, telemetry.NewLogger(nil))
}

// buildHealthEvaluator wires C13's rollup over this engine's own
// failure-prone subsystems (resource pool, circuit breakers) the
// way engine.healthProbes rolls up rate limiter / resources / pipeline
// in engine/engine.go.
func (e *Engine) buildHealthEvaluator() *telemetry.Evaluator {
	poolProbe := telemetry.ProbeFunc(func(ctx context.Context) telemetry.ProbeResult {
		if e.pool == nil {
			return telemetry.Healthy("resources")
		}
		if e.pool.UnderPressure() {
			return telemetry.Degraded("resources", "memory ceiling approached")
		}
		return telemetry.Healthy("resources")
	})
	breakerProbe := telemetry.ProbeFunc(func(ctx context.Context) telemetry.ProbeResult {
		if e.breakers == nil {
			return telemetry.Healthy("breakers")
		}
		open := 0
		stats := e.breakers.Snapshot()
		for _, s := range stats {
			if s.State == circuitbreaker.Open {
				open++
			}
		}
		if open == 0 {
			return telemetry.Healthy("breakers")
		}
		if open < len(stats) {
			return telemetry.Degraded("breakers", "some circuits open")
		}
		return telemetry.Unhealthy("breakers", "all circuits open")
	})
	return telemetry.NewEvaluator(5*time.Second, poolProbe, breakerProbe)
}

// Extract runs the full pipeline for a single URL and returns its
// outcome synchronously; this is the operation `riptide extract` and the
// HTTP `/extract` handler both call into.
func (e *Engine) Extract(ctx context.Context, tenantID, rawURL string, opts models.CrawlOptions) pipeline.Result {
	return e.orch.Execute(ctx, tenantID, rawURL, opts)
}

// Crawl fans a seed list out across cfg.Concurrency workers and streams
// results back on the returned channel, closed once every seed has been
// processed or ctx is done. This is what `riptide crawl` and the
// `/crawl/stream` handler both drive.
func (e *Engine) Crawl(ctx context.Context, tenantID string, seeds []string, opts models.CrawlOptions) <-chan pipeline.Result {
	out := make(chan pipeline.Result)
	concurrency := e.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for url := range work {
				select {
				case out <- e.Extract(ctx, tenantID, url, opts):
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		defer close(work)
		for _, s := range seeds {
			select {
			case work <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Snapshot returns a unified view of cache, resource pool, breaker, and
// health state, the same shape the CLI's `riptide health --json` and the
// HTTP `/healthz` handler render.
func (e *Engine) Snapshot(ctx context.Context) Snapshot {
	snap := Snapshot{StartedAt: e.startedAt, Uptime: time.Since(e.startedAt)}
	if e.cacheSt != nil {
		snap.Cache = e.cacheSt.Stats()
	}
	if e.pool != nil {
		snap.Resources = e.pool.Snapshot()
	}
	if e.breakers != nil {
		snap.Breakers = e.breakers.Snapshot()
	}
	if e.health != nil {
		snap.Health = e.health.Evaluate(ctx)
	}
	return snap
}

// Telemetry exposes the C13 bundle this Engine was built with, so
// internal/httpapi can register its own spans/counters/events on the
// same bundle instead of constructing a second one.
func (e *Engine) Telemetry() *telemetry.Telemetry { return e.tel }

// Governor exposes the C12 tenant governor so internal/httpapi can admit
// or reject requests before they ever reach the pipeline.
func (e *Engine) Governor() *governor.Governor { return e.gov }

// Cache exposes the C4 response cache so the CLI's `cache status`/`cache
// clear` subcommands can inspect or reset it directly.
func (e *Engine) Cache() *cache.Cache { return e.cacheSt }

// Stop releases every subsystem. Safe to call once; not idempotent,
// matching engine.Engine.Stop contract.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.started {
		return nil
	}
	e.started = false
	return nil
}
