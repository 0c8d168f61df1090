package main

import (
	"fmt"

	"riptide"
	"riptide/internal/envconfig"
)

// buildEngine wires a default Engine from Defaults()+env overrides and the
// dependency-free strategy set, the same construction every subcommand
// needs before it can call Extract/Crawl/Snapshot. No PDF/WASM/LLM
// extractor is wired here since the CLI has no resource pool or LLM
// client of its own to hand them; those only become reachable once this
// binary grows flags for them.
func buildEngine() (*riptide.Engine, error) {
	return buildEngineWithSelector("")
}

// buildEngineWithSelector wires the CSS strategy's article selector, what
// `riptide tables` uses to aim the same extractor at table elements instead
// of the default article-body heuristic.
func buildEngineWithSelector(selector string) (*riptide.Engine, error) {
	cfg := riptide.Defaults()
	cfg.Env = envconfig.Load()
	strategies := riptide.NewDefaultStrategies(nil, nil, nil, nil, selector)
	eng, err := riptide.New(cfg, strategies)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}
	return eng, nil
}
