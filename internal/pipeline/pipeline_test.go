package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"riptide/internal/cache"
	"riptide/internal/circuitbreaker"
	"riptide/internal/extract"
	"riptide/internal/fetch"
	"riptide/internal/governor"
	"riptide/internal/idempotency"
	"riptide/models"
)

type fakeStrategy struct {
	name       string
	confidence float64
	text       string
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(_ context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	return models.ExtractionResult{
		StrategyName: f.name,
		Text:         f.text,
		Confidence:   f.confidence,
		Success:      true,
		WordCount:    len(strings.Fields(f.text)),
	}, nil
}

type failingStrategy struct{ name string }

func (f *failingStrategy) Name() string { return f.name }
func (f *failingStrategy) Extract(context.Context, models.FetchEnvelope, models.CrawlOptions) (models.ExtractionResult, error) {
	return models.ExtractionResult{}, errors.New("strategy boom")
}

func newTestOrchestrator(t *testing.T, selector ExtractorSelector) (*Orchestrator, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body><article>` + strings.Repeat("word ", 200) + `</article></body></html>`))
	}))
	t.Cleanup(srv.Close)

	f := fetch.New(fetch.Policy{UserAgent: "test", RespectRobots: false}, nil, nil)
	c := cache.New(cache.Config{})
	idem := idempotency.NewInMemoryStore()
	gov := governor.New(governor.Config{
		DefaultRate:   models.RateLimits{PerMinute: 1000, PerHour: 10000, PerDay: 100000, BurstAllowance: 1000},
		DefaultBudget: governor.DefaultBudgetLimits(),
	})
	cfg := DefaultConfig()
	cfg.AcceptThreshold = 0.5

	orch := New(f, c, idem, gov, nil, nil, selector, cfg)
	return orch, srv
}

func TestExecuteFetchesGatesExtractsAndCaches(t *testing.T) {
	selector := DefaultSelector(StrategySet{CSS: &fakeStrategy{name: "css", confidence: 0.9, text: "hello world"}})
	orch, srv := newTestOrchestrator(t, selector)

	res := orch.Execute(context.Background(), "tenant-a", srv.URL, models.CrawlOptions{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.FromCache {
		t.Fatal("expected a live computation, not a cache hit")
	}
	if res.Artifact.Extraction.StrategyName != "css" {
		t.Fatalf("expected css strategy to win, got %q", res.Artifact.Extraction.StrategyName)
	}
	if res.Artifact.GateDecision.Kind != models.GateRaw {
		t.Fatalf("expected Raw gate decision, got %q", res.Artifact.GateDecision.Kind)
	}

	second := orch.Execute(context.Background(), "tenant-a", srv.URL, models.CrawlOptions{})
	if second.Err != nil {
		t.Fatalf("unexpected error on second call: %v", second.Err)
	}
	if !second.FromCache {
		t.Fatal("expected second call to hit the cache")
	}
}

func TestExecuteGateSkipEmitsEmptyArtifact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte{0x00, 0x01, 0x02})
	}))
	t.Cleanup(srv.Close)

	f := fetch.New(fetch.Policy{UserAgent: "test", RespectRobots: false}, nil, nil)
	c := cache.New(cache.Config{})
	idem := idempotency.NewInMemoryStore()
	gov := governor.New(governor.DefaultConfig())
	orch := New(f, c, idem, gov, nil, nil, DefaultSelector(StrategySet{}), DefaultConfig())

	res := orch.Execute(context.Background(), "tenant-b", srv.URL, models.CrawlOptions{})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Artifact.GateDecision.Kind != models.GateSkip {
		t.Fatalf("expected Skip gate decision, got %q", res.Artifact.GateDecision.Kind)
	}
	if res.Artifact.Extraction.StrategyName != "" {
		t.Fatalf("expected no extraction on skip, got %+v", res.Artifact.Extraction)
	}
}

func TestExecuteNoStrategyConfiguredErrors(t *testing.T) {
	orch, srv := newTestOrchestrator(t, DefaultSelector(StrategySet{}))
	res := orch.Execute(context.Background(), "tenant-c", srv.URL, models.CrawlOptions{})
	if res.Err == nil {
		t.Fatal("expected an error when no strategy is configured for the gate decision")
	}
}

func TestExecuteAllStrategiesFailErrors(t *testing.T) {
	selector := DefaultSelector(StrategySet{CSS: &failingStrategy{name: "css"}})
	orch, srv := newTestOrchestrator(t, selector)
	res := orch.Execute(context.Background(), "tenant-d", srv.URL, models.CrawlOptions{})
	if res.Err == nil {
		t.Fatal("expected an error when every strategy fails")
	}
}

func TestExecuteAdmissionDeniedWhenRateLimited(t *testing.T) {
	f := fetch.New(fetch.Policy{UserAgent: "test"}, nil, nil)
	c := cache.New(cache.Config{})
	idem := idempotency.NewInMemoryStore()
	gov := governor.New(governor.Config{
		DefaultRate:   models.RateLimits{PerMinute: 0, BurstAllowance: 0},
		DefaultBudget: governor.DefaultBudgetLimits(),
	})
	// New replaces an all-zero DefaultRate with DefaultRateLimits(), so the
	// zero limits are registered for the tenant explicitly.
	gov.WithTenantLimits("tenant-e", models.RateLimits{}, governor.DefaultBudgetLimits())
	orch := New(f, c, idem, gov, nil, nil, DefaultSelector(StrategySet{}), DefaultConfig())

	res := orch.Execute(context.Background(), "tenant-e", "https://example.invalid/", models.CrawlOptions{})
	if res.Err == nil || res.Err.Code != "ADMISSION_DENIED" {
		t.Fatalf("expected admission denied, got %+v", res.Err)
	}
}

func TestExecuteDuplicateIdempotencyKeyDenied(t *testing.T) {
	orch, srv := newTestOrchestrator(t, DefaultSelector(StrategySet{CSS: &fakeStrategy{name: "css", confidence: 0.9, text: "x"}}))

	key := "tenant-f|" + models.NormalizeURL(srv.URL)
	if _, err := orch.idem.TryAcquire(key, time.Minute); err != nil {
		t.Fatalf("setup: unexpected error acquiring token: %v", err)
	}

	res := orch.Execute(context.Background(), "tenant-f", srv.URL, models.CrawlOptions{})
	if res.Err == nil {
		t.Fatal("expected duplicate in-flight request to be denied")
	}
}

func TestExecutePostProcessChunksWhenRequested(t *testing.T) {
	selector := DefaultSelector(StrategySet{CSS: &fakeStrategy{name: "css", confidence: 0.9, text: strings.Repeat("word ", 300)}})
	orch, srv := newTestOrchestrator(t, selector)

	res := orch.Execute(context.Background(), "tenant-g", srv.URL, models.CrawlOptions{ChunkStrategy: "sliding"})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.Degraded {
		t.Fatal("did not expect postprocess to degrade")
	}
	if len(res.Chunks) == 0 {
		t.Fatal("expected chunking to produce at least one chunk")
	}
}

func TestExecuteBatchPreservesOrderAndSummarizesStats(t *testing.T) {
	selector := DefaultSelector(StrategySet{CSS: &fakeStrategy{name: "css", confidence: 0.9, text: "hello"}})
	orch, srv := newTestOrchestrator(t, selector)

	records := []models.URLRecord{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/b"},
		{URL: srv.URL + "/c"},
	}
	results, stats := orch.ExecuteBatch(context.Background(), "tenant-h", records)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, rec := range records {
		if results[i].URL != rec.URL {
			t.Fatalf("expected result order to match input order at index %d: got %q want %q", i, results[i].URL, rec.URL)
		}
	}
	if stats.Total != 3 {
		t.Fatalf("expected stats.Total == 3, got %d", stats.Total)
	}
	if stats.Errors != 0 {
		t.Fatalf("expected no errors, got %d", stats.Errors)
	}
	if stats.GateCounts[models.GateRaw] != 3 {
		t.Fatalf("expected 3 Raw gate decisions, got %d", stats.GateCounts[models.GateRaw])
	}
}

func TestTimedFetchHeadlessGoesThroughCircuitBreaker(t *testing.T) {
	renderCalls := 0
	renderer := rendererFunc(func(_ context.Context, _ string, _ time.Duration) ([]byte, int64, error) {
		renderCalls++
		return []byte(`<html><body><article>` + strings.Repeat("word ", 200) + `</article></body></html>`), 5, nil
	})
	f := fetch.New(fetch.Policy{UserAgent: "test"}, nil, renderer)
	c := cache.New(cache.Config{})
	idem := idempotency.NewInMemoryStore()
	gov := governor.New(governor.Config{
		DefaultRate:   models.RateLimits{PerMinute: 1000, BurstAllowance: 1000},
		DefaultBudget: governor.DefaultBudgetLimits(),
	})
	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	selector := DefaultSelector(StrategySet{
		CSS:  &fakeStrategy{name: "css", confidence: 0.9, text: "hi"},
		WASM: &fakeStrategy{name: "wasm", confidence: 0.9, text: "hi"},
	})
	orch := New(f, c, idem, gov, nil, breakers, selector, DefaultConfig())

	res := orch.Execute(context.Background(), "tenant-i", "https://example.invalid/headless", models.CrawlOptions{RendererHint: models.RendererHeadless})
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if renderCalls != 1 {
		t.Fatalf("expected renderer to be called once, got %d", renderCalls)
	}
}

type rendererFunc func(ctx context.Context, rawURL string, settleTimeout time.Duration) ([]byte, int64, error)

func (f rendererFunc) Render(ctx context.Context, rawURL string, settleTimeout time.Duration) ([]byte, int64, error) {
	return f(ctx, rawURL, settleTimeout)
}

func TestDefaultSelectorMapsGateKindsToConfiguredStrategies(t *testing.T) {
	set := StrategySet{
		CSS:    &fakeStrategy{name: "css"},
		Regex:  &fakeStrategy{name: "regex"},
		JSONLD: &fakeStrategy{name: "jsonld"},
		ICS:    &fakeStrategy{name: "ics"},
		PDF:    &fakeStrategy{name: "pdf"},
		WASM:   &fakeStrategy{name: "wasm"},
		LLM:    &fakeStrategy{name: "llm"},
	}
	selector := DefaultSelector(set)

	cases := []struct {
		kind     models.GateKind
		wantLen  int
		wantName string
	}{
		{models.GatePdf, 1, "pdf"},
		{models.GateIcs, 1, "ics"},
		{models.GateRaw, 3, "jsonld"},
		{models.GateHeadless, 2, "wasm"},
		{models.GateProbesFirst, 3, "css"},
		{models.GateSkip, 0, ""},
	}
	for _, tc := range cases {
		got := selector(models.GateDecision{Kind: tc.kind})
		if len(got) != tc.wantLen {
			t.Fatalf("%s: expected %d candidates, got %d", tc.kind, tc.wantLen, len(got))
		}
		if tc.wantLen > 0 && got[0].Strategy.Name() != tc.wantName {
			t.Fatalf("%s: expected top candidate %q, got %q", tc.kind, tc.wantName, got[0].Strategy.Name())
		}
	}
}

func TestExecuteLLMCallRejectedAtTenantBudgetCeiling(t *testing.T) {
	renderer := rendererFunc(func(_ context.Context, _ string, _ time.Duration) ([]byte, int64, error) {
		return []byte(`<html><body><article>` + strings.Repeat("word ", 200) + `</article></body></html>`), 5, nil
	})
	f := fetch.New(fetch.Policy{UserAgent: "test"}, nil, renderer)
	c := cache.New(cache.Config{})
	idem := idempotency.NewInMemoryStore()
	gov := governor.New(governor.Config{
		DefaultRate:   models.RateLimits{PerMinute: 1000, BurstAllowance: 1000},
		DefaultBudget: governor.DefaultBudgetLimits(),
	})
	const tenant = "tenant-over-budget"
	gov.WithTenantLimits(tenant, models.RateLimits{PerMinute: 1000, BurstAllowance: 1000}, models.BudgetLimits{PerJobUSD: 0.01, PerTenantMonthlyUSD: 100})

	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
	llm := extract.NewLLMStrategy(nil, "gpt-4o-mini", breakers, gov, 0.05)
	selector := DefaultSelector(StrategySet{LLM: llm})
	orch := New(f, c, idem, gov, nil, breakers, selector, DefaultConfig())

	res := orch.Execute(context.Background(), tenant, "https://example.invalid/headless", models.CrawlOptions{RendererHint: models.RendererHeadless})
	if res.Err == nil {
		t.Fatal("expected the LLM call to be rejected at the tenant's per-job budget ceiling")
	}
	if res.Err.Code != "ADMISSION_DENIED" {
		t.Fatalf("expected ADMISSION_DENIED, got %q: %v", res.Err.Code, res.Err)
	}
}

func TestAvailableConcurrencyBoundsBatchWorkers(t *testing.T) {
	// Smoke test: a nil pool means ExecuteBatch falls back to cfg.Concurrency
	// alone and completes without blocking.
	selector := DefaultSelector(StrategySet{CSS: &fakeStrategy{name: "css", confidence: 0.9, text: "x"}})
	orch, srv := newTestOrchestrator(t, selector)
	orch.cfg.Concurrency = 1

	records := make([]models.URLRecord, 5)
	for i := range records {
		records[i] = models.URLRecord{URL: srv.URL + "/" + string(rune('a'+i))}
	}
	results, stats := orch.ExecuteBatch(context.Background(), "tenant-j", records)
	if len(results) != 5 || stats.Total != 5 {
		t.Fatalf("expected 5 results, got %d (stats.Total=%d)", len(results), stats.Total)
	}
}
