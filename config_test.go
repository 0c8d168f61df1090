package riptide

import (
	"testing"
	"time"
)

func TestDefaultsProducesUsableConfig(t *testing.T) {
	cfg := Defaults()
	if cfg.Concurrency <= 0 {
		t.Fatalf("expected positive default concurrency, got %d", cfg.Concurrency)
	}
	if cfg.CacheTTL <= 0 {
		t.Fatalf("expected positive default cache TTL, got %v", cfg.CacheTTL)
	}
}

func TestApplyEnvOverridesFromEnvconfig(t *testing.T) {
	cfg := Defaults()
	cfg.Env.MaxConcurrency = 32
	cfg.Env.CacheTTLSeconds = 120
	cfg.Env.GateHiThreshold = 0.9
	cfg.Env.GateLoThreshold = 0.1

	applied := cfg.applyEnv()
	if applied.Concurrency != 32 {
		t.Fatalf("expected Concurrency overridden to 32, got %d", applied.Concurrency)
	}
	if applied.CacheTTL != 120*time.Second {
		t.Fatalf("expected CacheTTL overridden to 120s, got %v", applied.CacheTTL)
	}
	if applied.GateThresholds.GateHi != 0.9 || applied.GateThresholds.GateLo != 0.1 {
		t.Fatalf("expected gate thresholds overridden, got %+v", applied.GateThresholds)
	}
}

func TestApplyEnvLeavesConfigUntouchedWhenEnvZero(t *testing.T) {
	cfg := Defaults()
	cfg.Env.MaxConcurrency = 0
	cfg.Concurrency = 3
	want := cfg.Concurrency
	applied := cfg.applyEnv()
	if applied.Concurrency != want {
		t.Fatalf("expected Concurrency unchanged at %d, got %d", want, applied.Concurrency)
	}
}

func TestToPipelineConfigCarriesOverFields(t *testing.T) {
	cfg := Defaults()
	cfg.Concurrency = 4
	cfg.AcceptThreshold = 0.75
	pcfg := cfg.toPipelineConfig()
	if pcfg.Concurrency != 4 {
		t.Fatalf("expected pipeline Concurrency 4, got %d", pcfg.Concurrency)
	}
	if pcfg.AcceptThreshold != 0.75 {
		t.Fatalf("expected pipeline AcceptThreshold 0.75, got %v", pcfg.AcceptThreshold)
	}
}
