package httpapi

import (
	"bufio"
	"encoding/json"
	"net/http"
	"time"

	"riptide/internal/pipeline"
	"riptide/internal/riptideerr"
	"riptide/internal/telemetry"
	"riptide/models"
)

// extractRequest is POST /extract's request body.
type extractRequest struct {
	URL string `json:"url"`
	Mode string `json:"mode,omitempty"`
	Options extractRequestOpts `json:"options"`
}

type extractRequestOpts struct {
	Strategy string `json:"strategy,omitempty"`
	QualityThreshold float64 `json:"quality_threshold,omitempty"`
	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

func (o extractRequestOpts) toCrawlOptions() models.CrawlOptions {
	opts := models.CrawlOptions{Strategy: o.Strategy, QualityThreshold: o.QualityThreshold}
	if o.TimeoutMs > 0 {
		opts.Timeout = time.Duration(o.TimeoutMs) * time.Millisecond
	}
	return opts
}

// extractResponse is /extract's success body.
type extractResponse struct {
	URL string `json:"url"`
	Title string `json:"title,omitempty"`
	Content string `json:"content"`
	Metadata models.ExtractionMetadata `json:"metadata"`
	StrategyUsed string `json:"strategy_used"`
	QualityScore float64 `json:"quality_score"`
	ExtractionTimeMs int64 `json:"extraction_time_ms"`
}

func resultToExtractResponse(res pipeline.Result) extractResponse {
	ext := res.Artifact.Extraction
	return extractResponse{
		URL: res.URL,
		Title: ext.Title,
		Content: ext.Text,
		Metadata: ext.Metadata,
		StrategyUsed: ext.StrategyName,
		QualityScore: ext.QualityScore,
		ExtractionTimeMs: res.Artifact.PhaseTimings.Total(),
	}
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tc := resolveTenant(r)
	ctx, span := h.engine.Telemetry().StartSpan(r.Context(), "httpapi.extract")
	defer span.End()

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tc.RequestID, validationError("decode request body: "+err.Error()))
		return
	}
	if req.URL == "" {
		writeError(w, tc.RequestID, validationError("url is required"))
		return
	}

	res := h.engine.Extract(ctx, tc.TenantID, req.URL, req.Options.toCrawlOptions())
	if res.Err != nil {
		writeError(w, tc.RequestID, res.Err)
		return
	}
	w.Header().Set("X-Request-Id", tc.RequestID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resultToExtractResponse(res))
}

// crawlRequest is POST /crawl and /crawl/stream's shared body shape.
type crawlRequest struct {
	URLs []string `json:"urls"`
	Options extractRequestOpts `json:"options"`
}

// crawlStats summarizes a batch per `{results[], stats}`.
type crawlStats struct {
	Total int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed int `json:"failed"`
	Degraded int `json:"degraded"`
	FromCache int `json:"from_cache"`
}

func (h *Handler) handleCrawl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tc := resolveTenant(r)
	ctx, span := h.engine.Telemetry().StartSpan(r.Context(), "httpapi.crawl")
	defer span.End()

	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tc.RequestID, validationError("decode request body: "+err.Error()))
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, tc.RequestID, validationError("urls must be non-empty"))
		return
	}

	opts := req.Options.toCrawlOptions()
	results := make([]extractResponse, 0, len(req.URLs))
	stats := crawlStats{Total: len(req.URLs)}
	for res := range h.engine.Crawl(ctx, tc.TenantID, req.URLs, opts) {
		tallyResult(&stats, res)
		if res.Err == nil {
			results = append(results, resultToExtractResponse(res))
		}
	}

	w.Header().Set("X-Request-Id", tc.RequestID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"results": results, "stats": stats})
}

func tallyResult(stats *crawlStats, res pipeline.Result) {
	switch {
	case res.Err != nil:
		stats.Failed++
	case res.Degraded:
		stats.Succeeded++
		stats.Degraded++
	default:
		stats.Succeeded++
	}
	if res.FromCache {
		stats.FromCache++
	}
}

// ndjsonWriter writes one JSON value per line and flushes immediately,
// the same technique cli/cmd/ariadne/main.go uses streaming
// json.NewEncoder(os.Stdout) over a results channel, applied here to an
// http.ResponseWriter instead of stdout.
type ndjsonWriter struct {
	w *bufio.Writer
	flusher http.Flusher
}

func newNDJSONWriter(w http.ResponseWriter) ndjsonWriter {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return ndjsonWriter{w: bufio.NewWriter(w), flusher: f}
}

func (n ndjsonWriter) writeLine(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := n.w.Write(b); err != nil {
		return err
	}
	if err := n.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := n.w.Flush(); err != nil {
		return err
	}
	if n.flusher != nil {
		n.flusher.Flush()
	}
	return nil
}

func (h *Handler) handleCrawlStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tc := resolveTenant(r)
	ctx, span := h.engine.Telemetry().StartSpan(r.Context(), "httpapi.crawl_stream")
	defer span.End()

	var req crawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tc.RequestID, validationError("decode request body: "+err.Error()))
		return
	}
	if len(req.URLs) == 0 {
		writeError(w, tc.RequestID, validationError("urls must be non-empty"))
		return
	}

	w.Header().Set("X-Request-Id", tc.RequestID)
	nd := newNDJSONWriter(w)
	_ = nd.writeLine(map[string]any{"metadata": map[string]any{"total": len(req.URLs), "request_id": tc.RequestID}})

	opts := req.Options.toCrawlOptions()
	stats := crawlStats{Total: len(req.URLs)}
	processed := 0
	for res := range h.engine.Crawl(ctx, tc.TenantID, req.URLs, opts) {
		processed++
		tallyResult(&stats, res)
		line := map[string]any{"progress": map[string]any{"done": processed, "total": len(req.URLs)}}
		if res.Err != nil {
			line["result"] = map[string]any{"url": res.URL, "error": map[string]any{"code": res.Err.Code, "message": res.Err.Error()}}
		} else {
			line["result"] = resultToExtractResponse(res)
		}
		if err := nd.writeLine(line); err != nil {
			return
		}
	}
	_ = nd.writeLine(map[string]any{"summary": stats})
}

// deepsearchRequest is POST /deepsearch/stream's request body.
type deepsearchRequest struct {
	Query string `json:"query"`
	Limit int `json:"limit,omitempty"`
	IncludeContent bool `json:"include_content,omitempty"`
	CrawlOptions extractRequestOpts `json:"crawl_options"`
}

func (h *Handler) handleDeepsearchStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	tc := resolveTenant(r)
	ctx, span := h.engine.Telemetry().StartSpan(r.Context(), "httpapi.deepsearch_stream")
	defer span.End()

	var req deepsearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, tc.RequestID, validationError("decode request body: "+err.Error()))
		return
	}
	if req.Query == "" {
		writeError(w, tc.RequestID, validationError("query is required"))
		return
	}

	hits, err := h.search.Search(ctx, req.Query, req.Limit)
	if err != nil {
		writeError(w, tc.RequestID, err)
		return
	}

	w.Header().Set("X-Request-Id", tc.RequestID)
	nd := newNDJSONWriter(w)
	_ = nd.writeLine(map[string]any{"metadata": map[string]any{"query": req.Query, "hit_count": len(hits), "request_id": tc.RequestID}})

	if !req.IncludeContent {
		for _, hit := range hits {
			_ = nd.writeLine(map[string]any{"result": hit})
		}
		_ = nd.writeLine(map[string]any{"summary": map[string]any{"total": len(hits)}})
		return
	}

	urls := make([]string, len(hits))
	for i, hit := range hits {
		urls[i] = hit.URL
	}
	opts := req.CrawlOptions.toCrawlOptions()
	stats := crawlStats{Total: len(urls)}
	for res := range h.engine.Crawl(ctx, tc.TenantID, urls, opts) {
		tallyResult(&stats, res)
		if res.Err != nil {
			_ = nd.writeLine(map[string]any{"result": map[string]any{"url": res.URL, "error": map[string]any{"code": res.Err.Code, "message": res.Err.Error()}}})
			continue
		}
		_ = nd.writeLine(map[string]any{"result": resultToExtractResponse(res)})
	}
	_ = nd.writeLine(map[string]any{"summary": stats})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	tc := resolveTenant(r)
	snap := h.engine.Snapshot(r.Context())
	w.Header().Set("X-Request-Id", tc.RequestID)
	w.Header().Set("Content-Type", "application/json")
	status := http.StatusOK
	if snap.Health.Overall == telemetry.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": snap.Health.Overall,
		"probes": snap.Health.Probes,
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if mh, ok := h.engine.Telemetry().Metrics.(interface{ MetricsHandler() http.Handler }); ok {
		mh.MetricsHandler().ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func validationError(msg string) error { return riptideerr.New(riptideerr.CodeValidation, msg) }
