package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"riptide/internal/riptideerr"
	"riptide/internal/timeoutprofile"
	"riptide/models"
)

func TestFetchSuccessRecordsProfilerSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	profiler := timeoutprofile.New()
	f := New(Policy{UserAgent: "test", RespectRobots: false}, profiler, nil)

	env, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if env.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d", env.Status)
	}

	u, _ := url.Parse(srv.URL)
	snap := profiler.Snapshot(u.Host)
	if snap.Success != 1 {
		t.Fatalf("expected 1 recorded success, got %+v", snap)
	}
}

func TestFetch4xxIsNotRetried(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(Policy{UserAgent: "test", RespectRobots: false, MaxRetries: 3}, nil, nil)
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if hits != 1 {
		t.Fatalf("expected exactly 1 request for a 4xx, got %d", hits)
	}
}

func TestFetch5xxIsRetriedUpToMaxRetries(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := New(Policy{UserAgent: "test", RespectRobots: false, MaxRetries: 2}, nil, nil)
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL, Timeout: time.Second})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if hits != 3 {
		t.Fatalf("expected 1 initial + 2 retries = 3 requests, got %d", hits)
	}
}

func TestFetchTooLargeBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := New(Policy{UserAgent: "test", RespectRobots: false, MaxBodyBytes: 100}, nil, nil)
	_, err := f.Fetch(context.Background(), Request{URL: srv.URL})
	if err == nil {
		t.Fatal("expected too-large error")
	}
	e, ok := riptideerr.AsError(err)
	if !ok || e.Code != riptideerr.CodeValidation {
		t.Fatalf("unexpected error shape: %v", err)
	}
}

func TestFetchHeadlessUsesRenderer(t *testing.T) {
	stub := &stubRenderer{html: []byte("<html>rendered</html>"), navMs: 42}
	f := New(Policy{UserAgent: "test", RespectRobots: false}, nil, stub)

	env, err := f.Fetch(context.Background(), Request{URL: "https://example.com", RendererHint: models.RendererHeadless})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !env.FromBrowser || env.NavTimeMs != 42 {
		t.Fatalf("expected headless envelope, got %+v", env)
	}
}

func TestFetchHeadlessWithoutRendererFails(t *testing.T) {
	f := New(Policy{UserAgent: "test", RespectRobots: false}, nil, nil)
	_, err := f.Fetch(context.Background(), Request{URL: "https://example.com", RendererHint: models.RendererHeadless})
	if err == nil {
		t.Fatal("expected error when no renderer is configured")
	}
}

func TestDiscoverLinksResolvesRelativeURLs(t *testing.T) {
	base, _ := url.Parse("https://example.com/articles/")
	body := []byte(`<html><body><a href="foo">foo</a><a href="mailto:a@b.com">mail</a><a href="https://other.com/x">x</a></body></html>`)

	links, err := DiscoverLinks(body, base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(links) != 2 {
		t.Fatalf("expected 2 links (mailto filtered), got %v", links)
	}
	if links[0] != "https://example.com/articles/foo" {
		t.Fatalf("expected relative link resolved, got %s", links[0])
	}
}

type stubRenderer struct {
	html  []byte
	navMs int64
}

func (s *stubRenderer) Render(ctx context.Context, rawURL string, settle time.Duration) ([]byte, int64, error) {
	return s.html, s.navMs, nil
}
