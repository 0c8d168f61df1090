package extract

import (
	"context"
	"strings"
	"testing"

	"riptide/internal/resourcepool"
	"riptide/models"
)

func TestWASMStrategyExtractsArticleNode(t *testing.T) {
	html := `<html><head><title>A Long Read</title></head><body>
		<nav>home about</nav>
		<article>` + strings.Repeat("word ", 80) + `</article>
	</body></html>`
	s := NewWASMStrategy(nil)
	res, err := s.Extract(context.Background(), models.FetchEnvelope{Body: []byte(html)}, models.CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.Title != "A Long Read" {
		t.Fatalf("unexpected title: %q", res.Title)
	}
	if res.Confidence < 0.8 {
		t.Fatalf("expected high confidence for <article> match, got %f", res.Confidence)
	}
}

func TestWASMStrategyNoCandidateNodeFails(t *testing.T) {
	s := NewWASMStrategy(nil)
	res, err := s.Extract(context.Background(), models.FetchEnvelope{Body: []byte("")}, models.CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for empty document")
	}
}

func TestWASMStrategyUsesPooledInstance(t *testing.T) {
	pool := resourcepool.New(resourcepool.Config{BrowserTabs: 1, WasmInstances: 1, PDFSlots: 1, MemoryCeilingMB: 64, WasmMaxUseCount: 5, WasmMaxFailureCount: 3})
	s := NewWASMStrategy(pool)
	html := `<article>` + strings.Repeat("content ", 60) + `</article>`
	_, err := s.Extract(context.Background(), models.FetchEnvelope{Body: []byte(html)}, models.CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The instance should have been returned to the free list after use.
	snap := pool.Snapshot()
	if snap.WasmFree != 1 {
		t.Fatalf("expected instance returned to free pool, got %+v", snap)
	}
}
