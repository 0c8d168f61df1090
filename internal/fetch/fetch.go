// Package fetch implements the HTTP(S) fetch layer (C6): robots.txt
// enforcement, retry-with-jitter, charset normalization, and a Renderer
// port for headless navigation. The collector setup and stats-by-atomics
// shape are grounded on // engine/internal/crawler/colly_fetcher.go CollyFetcher.
package fetch

import (
	"bytes"
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/temoto/robotstxt"
	"golang.org/x/net/html/charset"

	"riptide/internal/riptideerr"
	"riptide/internal/timeoutprofile"
	"riptide/models"
)

// MaxBodyBytes bounds how much of a response body is read before the
// fetch is aborted with a VALIDATION error ("response body too large").
const MaxBodyBytes = 32 << 20 // 32MiB

// Policy controls one Fetcher's behavior.
type Policy struct {
	UserAgent string
	MaxRetries int
	RespectRobots bool
	MaxBodyBytes int64
}

// DefaultPolicy returns conservative, robots-respecting defaults.
func DefaultPolicy() Policy {
	return Policy{
		UserAgent: "riptide/1.0 (+https://riptide.invalid/bot)",
		MaxRetries: 2,
		RespectRobots: true,
		MaxBodyBytes: MaxBodyBytes,
	}
}

// Renderer is the port C6 calls into for headless navigation when the
// gate (or a prior pass) requests RendererHeadless. A real implementation
// drives a browser tab checked out from C3; tests substitute a stub.
type Renderer interface {
	Render(ctx context.Context, rawURL string, settleTimeout time.Duration) (html []byte, navTimeMs int64, err error)
}

// Fetcher performs HTTP(S) fetches honoring robots.txt, retrying bounded
// transient failures with jittered backoff, and normalizing charset to
// UTF-8.
type Fetcher struct {
	policy Policy
	client *http.Client
	profiler *timeoutprofile.Profiler
	renderer Renderer

	robotsMu sync.Mutex
	robotsCache map[string]*robotstxt.RobotsData

	stats fetchStats
	rand *rand.Rand
	randMu sync.Mutex
}

type fetchStats struct {
	completed int64
	failed int64
	bytesRead int64
}

// New constructs a Fetcher. profiler supplies per-domain adaptive
// timeouts (C2); renderer may be nil if headless rendering is unsupported.
func New(policy Policy, profiler *timeoutprofile.Profiler, renderer Renderer) *Fetcher {
	if policy.MaxBodyBytes <= 0 {
		policy.MaxBodyBytes = MaxBodyBytes
	}
	return &Fetcher{
		policy: policy,
		client: &http.Client{},
		profiler: profiler,
		renderer: renderer,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		rand: rand.New(rand.NewSource(1)),
	}
}

// Request bundles the inputs to one fetch.
type Request struct {
	URL string
	Headers map[string]string
	RendererHint models.RendererHint
	Timeout time.Duration // overrides the profiler's adaptive timeout when > 0
}

// Fetch performs one fetch, honoring ctx cancellation, robots.txt, and
// retry policy, and records the outcome into the timeout profiler.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (models.FetchEnvelope, error) {
	u, err := parseURL(req.URL)
	if err != nil {
		return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeValidation, "invalid url", err)
	}

	if f.policy.RespectRobots {
		allowed, err := f.checkRobots(ctx, u)
		if err != nil {
			// robots.txt fetch failure is permissive: proceed as allowed,
			// per common crawler practice when the robots.txt itself is
			// unreachable.
		} else if !allowed {
			return models.FetchEnvelope{}, riptideerr.New(riptideerr.CodeValidation, "robots disallowed: "+req.URL)
		}
	}

	if req.RendererHint == models.RendererHeadless {
		return f.fetchHeadless(ctx, req)
	}

	domain := hostOf(u)
	timeout := req.Timeout
	if timeout <= 0 && f.profiler != nil {
		timeout = f.profiler.TimeoutFor(domain)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var lastErr error
	retries := f.policy.MaxRetries
	for attempt := 0; attempt <= retries; attempt++ {
		start := time.Now()
		env, err := f.fetchOnce(ctx, req, timeout)
		if err == nil {
			if f.profiler != nil {
				f.profiler.RecordSuccess(domain, time.Since(start))
			}
			atomic.AddInt64(&f.stats.completed, 1)
			return env, nil
		}
		lastErr = err
		atomic.AddInt64(&f.stats.failed, 1)

		if e, ok := riptideerr.AsError(err); ok {
			if e.Code == riptideerr.CodeTimeout && f.profiler != nil {
				f.profiler.RecordTimeout(domain)
			}
			if !isRetryableCode(e.Code) {
				break
			}
		}
		if attempt < retries {
			f.sleepBackoff(ctx, attempt)
		}
	}
	return models.FetchEnvelope{}, lastErr
}

func isRetryableCode(code riptideerr.Code) bool {
	switch code {
	case riptideerr.CodeTimeout, riptideerr.CodeDependency:
		return true
	default:
		return false
	}
}

func (f *Fetcher) sleepBackoff(ctx context.Context, attempt int) {
	base := time.Duration(1<<uint(attempt)) * 200 * time.Millisecond
	f.randMu.Lock()
	jitter := time.Duration(f.rand.Int63n(int64(base) + 1))
	f.randMu.Unlock()
	delay := base + jitter
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func (f *Fetcher) fetchOnce(ctx context.Context, req Request, timeout time.Duration) (models.FetchEnvelope, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeValidation, "build request", err)
	}
	httpReq.Header.Set("User-Agent", f.policy.UserAgent)
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeTimeout, "fetch timed out", err)
		}
		return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeDependency, "connect failed", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, f.policy.MaxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeDependency, "read body", err)
	}
	if int64(len(body)) > f.policy.MaxBodyBytes {
		return models.FetchEnvelope{}, riptideerr.New(riptideerr.CodeValidation, "response body too large")
	}

	if resp.StatusCode >= 500 {
		return models.FetchEnvelope{}, (&riptideerr.Error{Code: riptideerr.CodeDependency, Message: "upstream 5xx"}).WithRetry(time.Second)
	}
	if resp.StatusCode >= 400 {
		return models.FetchEnvelope{}, riptideerr.Newf(riptideerr.CodeValidation, "upstream %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	normalized, err := normalizeCharset(body, contentType)
	if err == nil {
		body = normalized
	}

	atomic.AddInt64(&f.stats.bytesRead, int64(len(body)))
	return models.FetchEnvelope{
		FinalURL: resp.Request.URL.String(),
		Status: resp.StatusCode,
		Headers: resp.Header,
		Body: body,
		ContentType: contentType,
		FetchedAt: time.Now(),
		FromBrowser: false,
	}, nil
}

func (f *Fetcher) fetchHeadless(ctx context.Context, req Request) (models.FetchEnvelope, error) {
	if f.renderer == nil {
		return models.FetchEnvelope{}, riptideerr.New(riptideerr.CodeDependency, "headless rendering not configured")
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	start := time.Now()
	html, navMs, err := f.renderer.Render(ctx, req.URL, timeout)
	if err != nil {
		return models.FetchEnvelope{}, riptideerr.Wrap(riptideerr.CodeDependency, "headless render failed", err)
	}
	return models.FetchEnvelope{
		FinalURL: req.URL,
		Status: http.StatusOK,
		Headers: http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body: html,
		ContentType: "text/html; charset=utf-8",
		FetchedAt: start,
		FromBrowser: true,
		NavTimeMs: navMs,
	}, nil
}

func (f *Fetcher) checkRobots(ctx context.Context, u *urlParts) (bool, error) {
	f.robotsMu.Lock()
	data, ok := f.robotsCache[u.host]
	f.robotsMu.Unlock()
	if ok {
		return data.TestAgent(u.path, f.policy.UserAgent), nil
	}

	robotsURL := u.scheme + "://" + u.host + "/robots.txt"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return true, err
	}
	httpReq.Header.Set("User-Agent", f.policy.UserAgent)
	resp, err := f.client.Do(httpReq)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return true, err
	}
	data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return true, err
	}

	f.robotsMu.Lock()
	f.robotsCache[u.host] = data
	f.robotsMu.Unlock()
	return data.TestAgent(u.path, f.policy.UserAgent), nil
}

// Stats returns a point-in-time view of the fetcher's counters.
type Stats struct {
	Completed int64
	Failed int64
	BytesRead int64
}

// Snapshot returns current counters.
func (f *Fetcher) Snapshot() Stats {
	return Stats{
		Completed: atomic.LoadInt64(&f.stats.completed),
		Failed: atomic.LoadInt64(&f.stats.failed),
		BytesRead: atomic.LoadInt64(&f.stats.bytesRead),
	}
}

type urlParts struct {
	scheme string
	host string
	path string
}

func parseURL(raw string) (*urlParts, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return &urlParts{scheme: u.Scheme, host: u.Host, path: path}, nil
}

func normalizeCharset(body []byte, contentType string) ([]byte, error) {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

func hostOf(u *urlParts) string { return u.host }

// DiscoverLinks extracts and resolves every href in an HTML document,
// mirroring CollyFetcher.Discover but reusable standalone
// against an already-fetched envelope instead of inline in a collector
// callback.
func DiscoverLinks(body []byte, base *url.URL) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, riptideerr.Wrap(riptideerr.CodeStrategy, "parse html for link discovery", err)
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" {
			return
		}
		if hasScheme(href, "mailto:") || hasScheme(href, "javascript:") || hasScheme(href, "tel:") {
			return
		}
		linkURL, err := url.Parse(href)
		if err != nil {
			return
		}
		if !linkURL.IsAbs() && base != nil {
			linkURL = base.ResolveReference(linkURL)
		}
		links = append(links, linkURL.String())
	})
	return links, nil
}

func hasScheme(href, scheme string) bool {
	return len(href) >= len(scheme) && href[:len(scheme)] == scheme
}
