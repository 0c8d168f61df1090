package fetch

import (
	"context"
	"strings"
	"testing"
	"time"

	"riptide/internal/resourcepool"
)

func TestStubRendererAcquiresAndReleasesBrowserTab(t *testing.T) {
	pool := resourcepool.New(resourcepool.Config{BrowserTabs: 1, WasmInstances: 1, PDFSlots: 1, MemoryCeilingMB: 64, WasmMaxUseCount: 5, WasmMaxFailureCount: 3})
	r := NewStubRenderer(pool)

	html, _, err := r.Render(context.Background(), "https://example.com", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(html), "example.com") {
		t.Fatalf("unexpected html: %s", html)
	}
	if pool.ActiveHeadless() != 0 {
		t.Fatal("expected tab to be released after render")
	}
}

func TestStubRendererWithoutPoolFails(t *testing.T) {
	r := NewStubRenderer(nil)
	_, _, err := r.Render(context.Background(), "https://example.com", time.Second)
	if err == nil {
		t.Fatal("expected error without a configured pool")
	}
}
