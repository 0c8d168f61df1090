// Package models defines the core wire and domain types shared by every
// pipeline component: URL records, fetch envelopes, gate decisions,
// extraction results, pipeline artifacts, and the fingerprint that ties
// them together in the cache.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// CurrentSchemaVersion is bumped whenever the Artifact wire shape changes
// in a way that old cached entries can no longer be trusted to match.
const CurrentSchemaVersion = 1

// URLRecord is a single crawl input.
type URLRecord struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Options CrawlOptions      `json:"options,omitempty"`
	Depth   int               `json:"depth"`
}

// CrawlOptions customizes how a single URL is fetched and extracted.
type CrawlOptions struct {
	Strategy         string        `json:"strategy,omitempty"` // "auto", "css", "regex", "wasm", "llm", "pdf", "ics", "jsonld"
	RendererHint     RendererHint  `json:"renderer_hint,omitempty"`
	Timeout          time.Duration `json:"timeout,omitempty"`
	KeepHTML         bool          `json:"keep_html,omitempty"`
	QualityThreshold float64       `json:"quality_threshold,omitempty"`
	ChunkStrategy    string        `json:"chunk_strategy,omitempty"`
}

// RendererHint tells the fetch layer whether a navigation should go through
// the headless browser pool.
type RendererHint string

const (
	RendererAuto     RendererHint = ""
	RendererHeadless RendererHint = "headless"
	RendererRaw      RendererHint = "raw"
)

// FetchEnvelope is the immutable result of a single fetch.
type FetchEnvelope struct {
	FinalURL     string      `json:"final_url"`
	Status       int         `json:"status"`
	Headers      http.Header `json:"headers"`
	Body         []byte      `json:"-"`
	ContentType  string      `json:"content_type"`
	FetchedAt    time.Time   `json:"fetched_at"`
	FromBrowser  bool        `json:"from_browser"`
	NavTimeMs    int64       `json:"nav_time_ms,omitempty"`
}

// Digest returns a stable content digest of the envelope, used as the fetch
// component of a pipeline artifact's identity for cache invalidation.
func (f *FetchEnvelope) Digest() string {
	h := sha256.New()
	h.Write([]byte(f.FinalURL))
	h.Write(f.Body)
	return hex.EncodeToString(h.Sum(nil))
}

// GateKind is the classification a Gate assigns to a fetched document.
type GateKind string

const (
	GateRaw         GateKind = "raw"
	GateProbesFirst GateKind = "probes_first"
	GateHeadless    GateKind = "headless"
	GatePdf         GateKind = "pdf"
	GateIcs         GateKind = "ics"
	GateSkip        GateKind = "skip"
)

// GateDecision is the output of the Gate component (C7).
type GateDecision struct {
	Kind       GateKind `json:"kind"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason,omitempty"`
}

// ExtractionMetadata carries the soft, strategy-dependent fields of an
// extraction result.
type ExtractionMetadata struct {
	Author      string    `json:"author,omitempty"`
	Published   time.Time `json:"published,omitempty"`
	Language    string    `json:"language,omitempty"`
	SiteName    string    `json:"site_name,omitempty"`
	Description string    `json:"description,omitempty"`
}

// MediaRef is a discovered image/video/asset reference.
type MediaRef struct {
	URL  string `json:"url"`
	Kind string `json:"kind,omitempty"` // image, video, audio, other
	Alt  string `json:"alt,omitempty"`
}

// ExtractionResult is the unified output of any C8 extraction strategy.
type ExtractionResult struct {
	StrategyName     string              `json:"strategy_name"`
	Title            string              `json:"title,omitempty"`
	Text             string              `json:"text"`
	Markdown         string              `json:"markdown,omitempty"`
	Links            []string            `json:"links,omitempty"`
	Media            []MediaRef          `json:"media,omitempty"`
	Metadata         ExtractionMetadata  `json:"metadata"`
	Confidence       float64             `json:"confidence"`
	WordCount        int                 `json:"word_count"`
	QualityScore     float64             `json:"quality_score"`
	FallbackOccurred bool                `json:"fallback_occurred"`
	PrimaryError     string              `json:"primary_error,omitempty"`
	Success          bool                `json:"success"`
	RunnersUp        []RunnerUp          `json:"runners_up,omitempty"`
}

// RunnerUp records a non-winning candidate from Composer "best" mode, kept
// for observability only.
type RunnerUp struct {
	StrategyName string  `json:"strategy_name"`
	Confidence   float64 `json:"confidence"`
}

// ClampConfidence normalizes a raw score into [0,1]; callers should run every
// computed confidence through this before storing it, never re-derive the
// clamp ad hoc at the call site.
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ClampQuality normalizes a raw quality score into [0,100].
func ClampQuality(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// PhaseTimings records, in milliseconds, how long each pipeline phase took.
// RenderMs is present (non-zero pointer) iff the gate chose Headless.
type PhaseTimings struct {
	FetchMs   int64  `json:"fetch_ms"`
	GateMs    int64  `json:"gate_ms"`
	ExtractMs int64  `json:"extract_ms"`
	RenderMs  *int64 `json:"render_ms,omitempty"`
}

// Total sums the recorded phases.
func (p PhaseTimings) Total() int64 {
	total := p.FetchMs + p.GateMs + p.ExtractMs
	if p.RenderMs != nil {
		total += *p.RenderMs
	}
	return total
}

// Artifact is the cached unit produced by one pipeline invocation.
type Artifact struct {
	SchemaVersion       int              `json:"schema_version"`
	FetchEnvelopeDigest string           `json:"fetch_envelope_digest"`
	Extraction          ExtractionResult `json:"extraction"`
	PhaseTimings        PhaseTimings     `json:"phase_timings"`
	GateDecision        GateDecision     `json:"gate_decision"`
	CreatedAt           time.Time        `json:"created_at"`
}

// Fingerprint is a content address over the normalized inputs that would
// produce a given Artifact. It is a pure function of its inputs: no wall
// clock, no RNG.
type Fingerprint [32]byte

// String renders the fingerprint as a hex string, suitable for map keys,
// log lines, and JSON.
func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// IsZero reports whether the fingerprint was never computed.
func (f Fingerprint) IsZero() bool { return f == Fingerprint{} }

// MarshalJSON renders the fingerprint as its hex string rather than a raw
// byte array, so cache snapshots and API responses stay human-readable.
func (f Fingerprint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

// UnmarshalJSON parses the hex string produced by MarshalJSON.
func (f *Fingerprint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("fingerprint: invalid hex: %w", err)
	}
	if len(decoded) != len(f) {
		return fmt.Errorf("fingerprint: expected %d bytes, got %d", len(f), len(decoded))
	}
	copy(f[:], decoded)
	return nil
}

// ComputeFingerprint hashes the normalized URL, the extraction strategy
// profile, the renderer flags, and the schema version. Two requests that
// would produce the same artifact must map to the same fingerprint; two
// that could differ must not — so every contributing field is written in
// a fixed, sorted order with explicit separators.
func ComputeFingerprint(normalizedURL, strategyProfile, rendererFlags string, schemaVersion int) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\x00%s\x00%s\x00%s", schemaVersion, normalizedURL, strategyProfile, rendererFlags)
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// NormalizeURL lowercases the scheme/host, strips a trailing slash on the
// path, and sorts query parameters so that equivalent URLs fingerprint
// identically. It does not perform network access.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	schemeSep := strings.Index(raw, "://")
	if schemeSep < 0 {
		return raw
	}
	scheme := strings.ToLower(raw[:schemeSep])
	rest := raw[schemeSep+3:]
	pathSep := strings.IndexAny(rest, "/?#")
	host := rest
	tail := ""
	if pathSep >= 0 {
		host = rest[:pathSep]
		tail = rest[pathSep:]
	}
	host = strings.ToLower(host)

	query := ""
	if qi := strings.Index(tail, "?"); qi >= 0 {
		frag := ""
		path := tail[:qi]
		if path != "/" {
			path = strings.TrimSuffix(path, "/")
		}
		q := tail[qi+1:]
		if fi := strings.Index(q, "#"); fi >= 0 {
			frag = q[fi:]
			q = q[:fi]
		}
		params := strings.Split(q, "&")
		sort.Strings(params)
		query = path + "?" + strings.Join(params, "&") + frag
	} else {
		query = tail
	}
	if query != "/" {
		query = strings.TrimSuffix(query, "/")
	}
	return scheme + "://" + host + query
}

// TenantContext identifies the caller for rate limiting, budgeting, and
// audit purposes.
type TenantContext struct {
	TenantID     string        `json:"tenant_id"`
	APIKeyID     string        `json:"api_key_id,omitempty"`
	Scopes       []string      `json:"scopes,omitempty"`
	IP           string        `json:"ip,omitempty"`
	RequestID    string        `json:"request_id,omitempty"`
	RateLimits   RateLimits    `json:"rate_limits"`
	BudgetLimits BudgetLimits  `json:"budget_limits"`
}

// RateLimits is the per-tenant token-bucket configuration (C12).
type RateLimits struct {
	PerMinute      float64 `json:"per_minute"`
	PerHour        float64 `json:"per_hour"`
	PerDay         float64 `json:"per_day"`
	BurstAllowance float64 `json:"burst_allowance"`
}

// BudgetLimits is the per-tenant cost ceiling configuration (C12).
type BudgetLimits struct {
	PerJobUSD           float64       `json:"per_job_usd"`
	PerTenantMonthlyUSD float64       `json:"per_tenant_monthly_usd"`
	GlobalMonthlyUSD    float64       `json:"global_monthly_usd"`
	WarningThresholdPct float64       `json:"warning_threshold_percent"`
	GracePeriod         time.Duration `json:"grace_period_minutes"`
}

// IdempotencyToken proves a caller holds the right to execute a request
// exactly once.
type IdempotencyToken struct {
	Key        string    `json:"key"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
// A token past ExpiresAt is considered released, authoritatively.
func (t IdempotencyToken) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}
