// Package httpapi implements the HTTP/NDJSON surface names:
// /crawl, /crawl/stream, /deepsearch/stream, /extract, /healthz, and
// /metrics as thin net/http handlers over a *riptide.Engine. Grounded on
// engine/adapters/telemetryhttp (stdlib net/http, no
// router dependency) and the inline http.ServeMux wiring in
// cli/cmd/ariadne/main.go.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"riptide"
	"riptide/internal/riptideerr"
	"riptide/models"
)

// Handler serves every endpoint in over a single Engine.
type Handler struct {
	engine *riptide.Engine
	mux *http.ServeMux
	search SearchProvider
}

// NewHandler builds the HTTP surface for engine. search may be nil, in
// which case /deepsearch/stream always rejects with a VALIDATION error
// (see NoneSearchProvider).
func NewHandler(engine *riptide.Engine, search SearchProvider) *Handler {
	if search == nil {
		search = NoneSearchProvider{}
	}
	h := &Handler{engine: engine, mux: http.NewServeMux(), search: search}
	h.mux.HandleFunc("/crawl", h.handleCrawl)
	h.mux.HandleFunc("/crawl/stream", h.handleCrawlStream)
	h.mux.HandleFunc("/deepsearch/stream", h.handleDeepsearchStream)
	h.mux.HandleFunc("/extract", h.handleExtract)
	h.mux.HandleFunc("/healthz", h.handleHealthz)
	h.mux.HandleFunc("/metrics", h.handleMetrics)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// resolveTenant implements header precedence: X-API-Key
// first, then Authorization: Bearer, falling back to the caller's
// forwarded IP so even unauthenticated traffic is still governed (just
// bucketed by address instead of key).
func resolveTenant(r *http.Request) models.TenantContext {
	tc := models.TenantContext{RequestID: requestID(r)}
	if key := r.Header.Get("X-API-Key"); key != "" {
		tc.TenantID = key
		tc.APIKeyID = key
		return tc
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		tok := strings.TrimPrefix(auth, "Bearer ")
		tc.TenantID = tok
		tc.APIKeyID = tok
		return tc
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		tc.TenantID = strings.TrimSpace(strings.Split(fwd, ",")[0])
		tc.IP = tc.TenantID
		return tc
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		tc.TenantID = ip
		tc.IP = ip
		return tc
	}
	tc.TenantID = "anonymous"
	return tc
}

// requestID echoes X-Request-Id if the caller supplied one, otherwise
// generates a fresh one so every response still carries the header.
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	var b [8]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// statusFor maps a *riptideerr.Error's Code to the HTTP status // §7's taxonomy implies: admission/budget denial is a client-visible
// backpressure signal (429), dependency and circuit failures are
// service-level (503), a deadline exceeded is a gateway timeout (504),
// malformed input is a client error (400), and anything else falls
// back to 500 rather than leaking internal detail.
func statusFor(code riptideerr.Code) int {
	switch code {
	case riptideerr.CodeAdmissionDenied:
		return http.StatusTooManyRequests
	case riptideerr.CodeCircuitOpen, riptideerr.CodeDependency:
		return http.StatusServiceUnavailable
	case riptideerr.CodeTimeout:
		return http.StatusGatewayTimeout
	case riptideerr.CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON body and sets Retry-After on 429/503,
// pulling the delay straight from the typed error.
func writeError(w http.ResponseWriter, requestID string, err error) {
	code := riptideerr.CodeInternal
	msg := err.Error()
	var retryAfter time.Duration
	if e, ok := riptideerr.AsError(err); ok {
		code = e.Code
		retryAfter = e.RetryAfter
	}
	status := statusFor(code)
	w.Header().Set("X-Request-Id", requestID)
	if (status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable) && retryAfter > 0 {
		w.Header().Set("Retry-After", formatRetryAfterSeconds(retryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func formatRetryAfterSeconds(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
