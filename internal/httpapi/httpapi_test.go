package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"riptide"
	"riptide/models"
)

type fakeStrategy struct{ name, text string }

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Extract(_ context.Context, _ models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	return models.ExtractionResult{StrategyName: f.name, Text: f.text, Confidence: 0.9, Success: true}, nil
}

func newTestHandler(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><article>` + strings.Repeat("word ", 200) + `</article></body></html>`))
	}))
	t.Cleanup(origin.Close)

	cfg := riptide.Defaults()
	cfg.Telemetry = riptide.TelemetryOptions{}
	eng, err := riptide.New(cfg, riptide.Strategies{CSS: &fakeStrategy{name: "css", text: "hello"}})
	if err != nil {
		t.Fatalf("New engine: %v", err)
	}
	t.Cleanup(func() { _ = eng.Stop() })

	return NewHandler(eng, nil), origin
}

func TestHandleExtractReturnsResult(t *testing.T) {
	h, origin := newTestHandler(t)
	body, _ := json.Marshal(extractRequest{URL: origin.URL})
	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp extractResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.StrategyUsed != "css" {
		t.Fatalf("expected strategy css, got %q", resp.StrategyUsed)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected X-Request-Id header to be set")
	}
}

func TestHandleExtractRejectsMissingURL(t *testing.T) {
	h, _ := newTestHandler(t)
	body, _ := json.Marshal(extractRequest{})
	req := httptest.NewRequest(http.MethodPost, "/extract", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleCrawlStreamWritesNDJSONLines(t *testing.T) {
	h, origin := newTestHandler(t)
	body, _ := json.Marshal(crawlRequest{URLs: []string{origin.URL + "/a", origin.URL + "/b"}})
	req := httptest.NewRequest(http.MethodPost, "/crawl/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 4 { // metadata + 2 results + summary
		t.Fatalf("expected 4 NDJSON lines, got %d: %q", len(lines), rec.Body.String())
	}
}

func TestHandleDeepsearchStreamRejectsWithoutBackend(t *testing.T) {
	h, _ := newTestHandler(t)
	body, _ := json.Marshal(deepsearchRequest{Query: "golang concurrency"})
	req := httptest.NewRequest(http.MethodPost, "/deepsearch/stream", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when no search backend is wired, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleHealthzReportsStatus(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestResolveTenantPrefersAPIKeyOverForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	req.Header.Set("X-API-Key", "key-123")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	tc := resolveTenant(req)
	if tc.TenantID != "key-123" {
		t.Fatalf("expected tenant resolved from X-API-Key, got %q", tc.TenantID)
	}
}

func TestResolveTenantFallsBackToAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/extract", nil)
	tc := resolveTenant(req)
	if tc.TenantID != "anonymous" {
		t.Fatalf("expected anonymous tenant, got %q", tc.TenantID)
	}
}
