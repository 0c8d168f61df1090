package envconfig

import "testing"

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"REDIS_URL", "WASM_EXTRACTOR_PATH", "MAX_CONCURRENCY", "CACHE_TTL",
		"GATE_HI_THRESHOLD", "GATE_LO_THRESHOLD", "HEADLESS_URL",
		"SEARCH_BACKEND", "API_KEYS", "REQUIRE_AUTH", "SERPER_API_KEY",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFallsBackToDefaultsWhenEnvEmpty(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	want := Defaults()
	if cfg.MaxConcurrency != want.MaxConcurrency {
		t.Fatalf("expected default MaxConcurrency %d, got %d", want.MaxConcurrency, cfg.MaxConcurrency)
	}
	if cfg.SearchBackend != SearchBackendNone {
		t.Fatalf("expected default search backend none, got %q", cfg.SearchBackend)
	}
}

func TestApplyEnvOverridesNumericFields(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONCURRENCY", "32")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("GATE_HI_THRESHOLD", "0.9")
	t.Setenv("GATE_LO_THRESHOLD", "0.2")

	cfg := Load()
	if cfg.MaxConcurrency != 32 {
		t.Fatalf("expected MaxConcurrency 32, got %d", cfg.MaxConcurrency)
	}
	if cfg.CacheTTLSeconds != 120 {
		t.Fatalf("expected CacheTTLSeconds 120, got %d", cfg.CacheTTLSeconds)
	}
	if cfg.GateHiThreshold != 0.9 || cfg.GateLoThreshold != 0.2 {
		t.Fatalf("expected gate thresholds overridden, got %v/%v", cfg.GateHiThreshold, cfg.GateLoThreshold)
	}
}

func TestApplyEnvIgnoresMalformedNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONCURRENCY", "not-a-number")
	cfg := Load()
	if cfg.MaxConcurrency != Defaults().MaxConcurrency {
		t.Fatalf("expected malformed MAX_CONCURRENCY to be ignored, got %d", cfg.MaxConcurrency)
	}
}

func TestApplyEnvParsesAPIKeysList(t *testing.T) {
	clearEnv(t)
	t.Setenv("API_KEYS", "key-a, key-b ,key-c")
	cfg := Load()
	if len(cfg.APIKeys) != 3 || cfg.APIKeys[1] != "key-b" {
		t.Fatalf("expected three trimmed API keys, got %+v", cfg.APIKeys)
	}
}

func TestApplyEnvRequireAuthToggle(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUIRE_AUTH", "false")
	cfg := Load()
	if cfg.RequireAuth {
		t.Fatal("expected REQUIRE_AUTH=false to disable auth requirement")
	}
}

func TestApplyEnvRejectsUnknownSearchBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("SEARCH_BACKEND", "bogus")
	cfg := Load()
	if cfg.SearchBackend != SearchBackendNone {
		t.Fatalf("expected unknown backend to fall back to default, got %q", cfg.SearchBackend)
	}
}
