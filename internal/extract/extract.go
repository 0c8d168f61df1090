// Package extract implements the C8 extraction strategies: CSS, regex,
// WASM article, LLM, PDF, JSON-LD, and ICS. Every strategy satisfies the
// uniform Strategy interface so the Composer (C9) can run them
// interchangeably. The unified-result shape is grounded on // engine/business/processor/content.go post-processing pipeline, which
// likewise normalizes heterogeneous extraction outputs into one Page
// shape before downstream consumers see it.
package extract

import (
	"context"

	"riptide/models"
)

// Strategy is implemented by every extraction backend.
type Strategy interface {
	// Name returns the strategy_name recorded on every ExtractionResult
	// this strategy produces.
	Name() string
	// Extract runs the strategy against a fetched envelope and returns a
	// populated ExtractionResult, or a *riptideerr.Error on failure.
	Extract(ctx context.Context, env models.FetchEnvelope, opts models.CrawlOptions) (models.ExtractionResult, error)
}

// Input bundles what every strategy needs beyond the envelope itself.
// Kept as a type alias point so Composer call sites read uniformly even
// though most strategies only need env+opts today.
type Input struct {
	Envelope models.FetchEnvelope
	Options models.CrawlOptions
}
