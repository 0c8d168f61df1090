// Package pipeline implements the end-to-end per-URL state machine (C11):
// Admit -> CacheProbe -> Fetch -> Gate -> Extract -> PostProcess ->
// CacheWrite -> Emit, plus batch scheduling across a bounded worker pool.
// The fixed-stage shape is grounded on engine/internal/pipeline.Pipeline,
// generalized from that pipeline's four decoupled worker-pool stages wired
// by channels into one linear state machine run end to end per URL, since
// every stage here composes a single result rather than handing partial
// work to the next stage's own queue.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"riptide/internal/cache"
	"riptide/internal/chunk"
	"riptide/internal/circuitbreaker"
	"riptide/internal/compose"
	"riptide/internal/extract"
	"riptide/internal/fetch"
	"riptide/internal/gate"
	"riptide/internal/governor"
	"riptide/internal/idempotency"
	"riptide/internal/resourcepool"
	"riptide/internal/riptideerr"
	"riptide/internal/telemetry"
	"riptide/models"
)

// ExtractorSelector maps a gate decision to the composer candidates that
// should run against it. Built by DefaultSelector or supplied directly by
// a caller that wants a different strategy assignment.
type ExtractorSelector func(decision models.GateDecision) []compose.Candidate

// Config configures one Orchestrator.
type Config struct {
	Concurrency int
	ComposePolicy compose.Policy
	AcceptThreshold float64
	ChunkOptions chunk.Options
	GateThresholds gate.Thresholds
	CacheTTL time.Duration
	IdempotencyTTL time.Duration
	StrategyProfile string
	RendererFlags string
	RetryOnce bool
	RetryBackoff time.Duration
}

// DefaultConfig returns conservative defaults matching the rest of this
// module's component defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 8,
		ComposePolicy: compose.Sequential,
		AcceptThreshold: 0.6,
		ChunkOptions: chunk.DefaultOptions(),
		GateThresholds: gate.DefaultThresholds(),
		CacheTTL: time.Hour,
		IdempotencyTTL: 5 * time.Minute,
		StrategyProfile: "auto",
		RetryOnce: true,
		RetryBackoff: 100 * time.Millisecond,
	}
}

// Orchestrator wires together every other component into the C11 state
// machine. Zero value is not usable; construct with New.
type Orchestrator struct {
	fetcher *fetch.Fetcher
	cache *cache.Cache
	idem idempotency.Store
	gov *governor.Governor
	pool *resourcepool.Manager
	breakers *circuitbreaker.Registry
	tel *telemetry.Telemetry
	selector ExtractorSelector
	cfg Config
	now func() time.Time

	metricsOnce sync.Once
	urlsTotal telemetry.Counter
	errorsTotal telemetry.Counter
	executeMs telemetry.Histogram
}

// New constructs an Orchestrator. breakers may be nil to skip the
// renderer-dependency circuit guard (tests substituting a stub renderer
// rarely need it).
func New(fetcher *fetch.Fetcher, cacheStore *cache.Cache, idem idempotency.Store, gov *governor.Governor, pool *resourcepool.Manager, breakers *circuitbreaker.Registry, selector ExtractorSelector, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Orchestrator{
		fetcher: fetcher,
		cache: cacheStore,
		idem: idem,
		gov: gov,
		pool: pool,
		breakers: breakers,
		tel: telemetry.NewNoop(),
		selector: selector,
		cfg: cfg,
		now: time.Now,
	}
}

// WithClock overrides the time source for deterministic tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// WithTelemetry swaps in a concrete C13 bundle (metrics, events, tracing,
// logging) in place of the no-op default New constructs.
func (o *Orchestrator) WithTelemetry(tel *telemetry.Telemetry) *Orchestrator {
	if tel != nil {
		o.tel = tel
	}
	return o
}

func (o *Orchestrator) initMetrics() {
	o.metricsOnce.Do(func() {
		o.urlsTotal = o.tel.Counter(telemetry.CounterOpts{CommonOpts: telemetry.CommonOpts{
			Namespace: "riptide", Subsystem: "pipeline", Name: "urls_total", Help: "URLs processed by the pipeline orchestrator", Labels: []string{"outcome"},
		}})
		o.errorsTotal = o.tel.Counter(telemetry.CounterOpts{CommonOpts: telemetry.CommonOpts{
			Namespace: "riptide", Subsystem: "pipeline", Name: "errors_total", Help: "Pipeline execution errors by code", Labels: []string{"code"},
		}})
		o.executeMs = o.tel.Histogram(telemetry.HistogramOpts{CommonOpts: telemetry.CommonOpts{
			Namespace: "riptide", Subsystem: "pipeline", Name: "execute_duration_ms", Help: "End-to-end Execute duration in milliseconds",
		}})
	})
}

// Result is one URL's outcome from Execute or ExecuteBatch.
type Result struct {
	URL string
	Artifact models.Artifact
	Chunks []chunk.Chunk
	FromCache bool
	Degraded bool
	Err *riptideerr.Error
}

func (o *Orchestrator) since(start time.Time) int64 {
	return o.now().Sub(start).Milliseconds()
}

// backoff pauses before the single strategy retry, per spec step 6
// ("retried once with backoff"), returning early if ctx is cancelled
// first so a client disconnect doesn't add dead wait time.
func (o *Orchestrator) backoff(ctx context.Context) {
	if o.cfg.RetryBackoff <= 0 {
		return
	}
	t := time.NewTimer(o.cfg.RetryBackoff)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Execute runs the full Admit -> CacheProbe -> Fetch -> Gate -> Extract ->
// PostProcess -> CacheWrite -> Emit state machine for a single URL.
func (o *Orchestrator) Execute(ctx context.Context, tenantID, rawURL string, opts models.CrawlOptions) Result {
	o.initMetrics()
	start := o.now()
	ctx, span := o.tel.StartSpan(ctx, "pipeline.Execute")
	defer span.End()
	defer func() {
		o.executeMs.Observe(float64(o.since(start)))
	}()

	result := o.execute(ctx, tenantID, rawURL, opts)

	outcome := "ok"
	if result.Err != nil {
		outcome = "error"
		o.errorsTotal.Inc(1, string(result.Err.Code))
		o.tel.LogError(ctx, "pipeline execute failed", "url", rawURL, "tenant", tenantID, "code", result.Err.Code)
		o.tel.PublishEvent(ctx, telemetry.Event{Category: telemetry.CategoryError, Type: "pipeline_execute_failed", Labels: map[string]string{"tenant": tenantID, "code": string(result.Err.Code)}})
	} else if result.Degraded {
		outcome = "degraded"
		o.tel.PublishEvent(ctx, telemetry.Event{Category: telemetry.CategoryPipeline, Type: "pipeline_degraded", Labels: map[string]string{"tenant": tenantID}})
	}
	o.urlsTotal.Inc(1, outcome)

	return result
}

// execute runs the actual Admit -> ... -> Emit state machine; split from
// Execute so the telemetry wrapper above stays a thin, uniform shell.
func (o *Orchestrator) execute(ctx context.Context, tenantID, rawURL string, opts models.CrawlOptions) Result {
	if o.pool != nil && o.pool.UnderPressure() {
		return Result{URL: rawURL, Err: riptideerr.AdmissionDenied("memory ceiling exceeded", time.Second)}
	}
	if _, err := o.gov.AcquireRequestPermit(ctx, tenantID); err != nil {
		e, _ := riptideerr.AsError(err)
		return Result{URL: rawURL, Err: e}
	}
	ctx = extract.WithTenant(ctx, tenantID)

	idemKey := tenantID + "|" + models.NormalizeURL(rawURL)
	token, err := o.idem.TryAcquire(idemKey, o.cfg.IdempotencyTTL)
	if err != nil {
		return Result{URL: rawURL, Err: riptideerr.AdmissionDenied("duplicate request in flight", time.Second)}
	}
	defer o.idem.Release(token)

	fp := models.ComputeFingerprint(models.NormalizeURL(rawURL), o.cfg.StrategyProfile, o.cfg.RendererFlags, models.CurrentSchemaVersion)
	if art, ok := o.cache.Get(fp); ok {
		return Result{URL: rawURL, Artifact: art, FromCache: true}
	}

	var timings models.PhaseTimings
	var decision models.GateDecision
	var degraded bool
	var chunks []chunk.Chunk

	art, err := o.cache.GetOrCompute(fp, func() (models.Artifact, time.Duration, error) {
		env, fetchMs, ferr := o.timedFetch(ctx, rawURL, opts)
		timings.FetchMs = fetchMs
		if ferr != nil {
			return models.Artifact{}, 0, ferr
		}
		if env.FromBrowser {
			navMs := env.NavTimeMs
			timings.RenderMs = &navMs
		}

		gstart := o.now()
		decision = gate.Classify(env, o.cfg.GateThresholds)
		timings.GateMs = o.since(gstart)

		if decision.Kind == models.GateSkip {
			return models.Artifact{
				SchemaVersion: models.CurrentSchemaVersion,
				FetchEnvelopeDigest: env.Digest(),
				GateDecision: decision,
				PhaseTimings: timings,
				CreatedAt: o.now(),
			}, o.cfg.CacheTTL, nil
		}

		candidates := o.selector(decision)
		if len(candidates) == 0 {
			return models.Artifact{}, 0, riptideerr.Newf(riptideerr.CodeStrategy, "no extraction strategy configured for gate decision %q", decision.Kind)
		}

		estart := o.now()
		extraction, eerr := compose.Compose(ctx, candidates, env, opts, compose.Options{Policy: o.cfg.ComposePolicy, AcceptThreshold: o.cfg.AcceptThreshold})
		if eerr != nil && o.cfg.RetryOnce && riptideerr.IsRetryable(eerr) {
			o.backoff(ctx)
			extraction, eerr = compose.Compose(ctx, candidates, env, opts, compose.Options{Policy: o.cfg.ComposePolicy, AcceptThreshold: o.cfg.AcceptThreshold})
		}
		timings.ExtractMs = o.since(estart)
		if eerr != nil {
			return models.Artifact{}, 0, eerr
		}

		extraction, chunks, degraded = o.postProcess(extraction, opts)

		return models.Artifact{
			SchemaVersion: models.CurrentSchemaVersion,
			FetchEnvelopeDigest: env.Digest(),
			Extraction: extraction,
			PhaseTimings: timings,
			GateDecision: decision,
			CreatedAt: o.now(),
		}, o.cfg.CacheTTL, nil
	})
	if err != nil {
		e, ok := riptideerr.AsError(err)
		if !ok {
			e = riptideerr.Wrap(riptideerr.CodeInternal, "pipeline execution failed", err)
		}
		return Result{URL: rawURL, Err: e}
	}

	return Result{URL: rawURL, Artifact: art, Chunks: chunks, Degraded: degraded}
}

// timedFetch calls the fetcher, routing Headless navigations through the
// renderer circuit breaker first since headless rendering is the
// expensive, failure-prone path.
func (o *Orchestrator) timedFetch(ctx context.Context, rawURL string, opts models.CrawlOptions) (models.FetchEnvelope, int64, error) {
	start := o.now()
	req := fetch.Request{URL: rawURL, RendererHint: opts.RendererHint, Timeout: opts.Timeout}

	if opts.RendererHint != models.RendererHeadless || o.breakers == nil {
		env, err := o.fetcher.Fetch(ctx, req)
		return env, o.since(start), err
	}

	breaker := o.breakers.Get("renderer")
	permit, err := breaker.TryAcquire()
	if err != nil {
		var openErr *circuitbreaker.OpenError
		if errors.As(err, &openErr) {
			return models.FetchEnvelope{}, o.since(start), riptideerr.CircuitOpen(openErr.Dependency, openErr.RetryAfter)
		}
		return models.FetchEnvelope{}, o.since(start), riptideerr.Wrap(riptideerr.CodeDependency, "renderer breaker", err)
	}
	env, ferr := o.fetcher.Fetch(ctx, req)
	permit.Release(ferr == nil)
	return env, o.since(start), ferr
}

// postProcess strips PII from every user-facing string unconditionally,
// then chunks the sanitized text if requested. A chunking failure
// degrades the artifact to extract-only rather than failing the whole
// URL, per spec step 6 / the §7 failure summary; sanitization is kept out
// of the recover boundary so a chunking panic can never leak unredacted
// text into the degraded artifact.
func (o *Orchestrator) postProcess(res models.ExtractionResult, opts models.CrawlOptions) (models.ExtractionResult, []chunk.Chunk, bool) {
	res.Text = o.tel.Redact(res.Text)
	res.Markdown = o.tel.Redact(res.Markdown)
	res.Metadata.Description = o.tel.Redact(res.Metadata.Description)
	res.Metadata.Author = o.tel.Redact(res.Metadata.Author)

	if opts.ChunkStrategy == "" {
		return res, nil, false
	}
	chunks, degraded := o.safeChunk(res.Text, opts)
	return res, chunks, degraded
}

func (o *Orchestrator) safeChunk(text string, opts models.CrawlOptions) (chunks []chunk.Chunk, degraded bool) {
	defer func() {
		if r := recover(); r != nil {
			chunks, degraded = nil, true
		}
	}()
	chunkOpts := o.cfg.ChunkOptions
	chunkOpts.Strategy = chunk.Strategy(opts.ChunkStrategy)
	return chunk.Split(text, chunkOpts), false
}

// Stats summarizes one ExecuteBatch call per spec step "stats include
// per-gate-decision counts and per-phase p50/p95".
type Stats struct {
	Total int
	CacheHits int
	Errors int
	GateCounts map[models.GateKind]int

	FetchP50Ms, FetchP95Ms int64
	GateP50Ms, GateP95Ms int64
	ExtractP50Ms, ExtractP95Ms int64
}

// ExecuteBatch runs every record through Execute, bounded by
// min(config.concurrency, C3's available headroom). Result order always
// matches input order, per §5's ordering guarantee, regardless of
// completion order; fairness across tenants comes from each tenant's own
// token bucket in the governor rather than from reordering within one
// batch, since one ExecuteBatch call is already scoped to a single tenant.
func (o *Orchestrator) ExecuteBatch(ctx context.Context, tenantID string, records []models.URLRecord) ([]Result, Stats) {
	limit := o.cfg.Concurrency
	if o.pool != nil {
		if avail := o.pool.AvailableConcurrency(); avail > 0 && avail < limit {
			limit = avail
		}
	}
	if limit <= 0 {
		limit = 1
	}

	results := make([]Result, len(records))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup

	for i, rec := range records {
		i, rec := i, rec
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = o.Execute(ctx, tenantID, rec.URL, rec.Options)
		}()
	}
	wg.Wait()

	return results, summarize(results)
}

func summarize(results []Result) Stats {
	stats := Stats{Total: len(results), GateCounts: make(map[models.GateKind]int)}
	var fetchSamples, gateSamples, extractSamples []int64

	for _, r := range results {
		if r.Err != nil {
			stats.Errors++
			continue
		}
		if r.FromCache {
			stats.CacheHits++
		}
		if r.Artifact.GateDecision.Kind != "" {
			stats.GateCounts[r.Artifact.GateDecision.Kind]++
		}
		fetchSamples = append(fetchSamples, r.Artifact.PhaseTimings.FetchMs)
		gateSamples = append(gateSamples, r.Artifact.PhaseTimings.GateMs)
		extractSamples = append(extractSamples, r.Artifact.PhaseTimings.ExtractMs)
	}

	stats.FetchP50Ms, stats.FetchP95Ms = percentile(fetchSamples, 0.5), percentile(fetchSamples, 0.95)
	stats.GateP50Ms, stats.GateP95Ms = percentile(gateSamples, 0.5), percentile(gateSamples, 0.95)
	stats.ExtractP50Ms, stats.ExtractP95Ms = percentile(extractSamples, 0.5), percentile(extractSamples, 0.95)
	return stats
}

func percentile(samples []int64, p float64) int64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]int64(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// StrategySet names every configured C8 strategy once so DefaultSelector
// can assign each to the gate decisions it applies to. A nil field means
// that strategy is not configured; DefaultSelector skips it.
type StrategySet struct {
	CSS compose.Strategy
	Regex compose.Strategy
	JSONLD compose.Strategy
	ICS compose.Strategy
	PDF compose.Strategy
	WASM compose.Strategy
	LLM compose.Strategy
}

// DefaultSelector maps a GateDecision to candidates per spec step 5: PDF
// and ICS gates go straight to their single matching strategy; Raw prefers
// the cheap structural extractors (JSON-LD, then CSS, then regex);
// ProbesFirst and Headless fall back through the WASM readability
// heuristic and finally the LLM strategy as the costliest last resort.
func DefaultSelector(set StrategySet) ExtractorSelector {
	return func(decision models.GateDecision) []compose.Candidate {
		switch decision.Kind {
		case models.GatePdf:
			return onlyIfSet(set.PDF, 1)
		case models.GateIcs:
			return onlyIfSet(set.ICS, 1)
		case models.GateRaw:
			return candidatesOf(cand(set.JSONLD, 3), cand(set.CSS, 2), cand(set.Regex, 1))
		case models.GateHeadless:
			return candidatesOf(cand(set.WASM, 2), cand(set.LLM, 1))
		case models.GateProbesFirst:
			return candidatesOf(cand(set.CSS, 3), cand(set.WASM, 2), cand(set.LLM, 1))
		default:
			return nil
		}
	}
}

func cand(s compose.Strategy, priority int) compose.Candidate {
	return compose.Candidate{Strategy: s, Priority: priority}
}

func onlyIfSet(s compose.Strategy, priority int) []compose.Candidate {
	if s == nil {
		return nil
	}
	return []compose.Candidate{{Strategy: s, Priority: priority}}
}

func candidatesOf(cands ...compose.Candidate) []compose.Candidate {
	out := make([]compose.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Strategy != nil {
			out = append(out, c)
		}
	}
	return out
}
