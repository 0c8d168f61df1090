package fetch

import (
	"context"
	"time"

	"riptide/internal/resourcepool"
	"riptide/internal/riptideerr"
)

// StubRenderer is an in-process default Renderer: the actual browser
// process is an external collaborator (Out-of-scope), but
// this implementation still exercises the real C3 browser-tab pool so
// the admission/backpressure contract is observable without one. A
// production deployment substitutes a Renderer backed by a real CDP
// client instead.
type StubRenderer struct {
	pool *resourcepool.Manager
}

// NewStubRenderer builds a StubRenderer bound to pool's browser tabs.
func NewStubRenderer(pool *resourcepool.Manager) *StubRenderer {
	return &StubRenderer{pool: pool}
}

// Render checks out a browser tab, reports the time it spent as
// navigation time (the stub does not actually navigate), and releases
// the tab before returning. Callers needing real rendered HTML must
// substitute a Renderer backed by an actual browser.
func (r *StubRenderer) Render(ctx context.Context, rawURL string, settleTimeout time.Duration) ([]byte, int64, error) {
	if r.pool == nil {
		return nil, 0, riptideerr.New(riptideerr.CodeDependency, "stub renderer: no browser tab pool configured")
	}
	guard, err := r.pool.AcquireBrowserTab(ctx)
	if err != nil {
		return nil, 0, riptideerr.Wrap(riptideerr.CodeDependency, "stub renderer: acquire browser tab", err)
	}
	defer guard.Release()

	start := time.Now()
	html := []byte("<html><body>stub render: " + rawURL + "</body></html>")
	navTimeMs := time.Since(start).Milliseconds()
	return html, navTimeMs, nil
}
