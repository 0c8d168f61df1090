// Package envconfig loads riptide's process-environment settings once at
// startup, in the style of hyperifyio-goresearch's
// internal/app.ApplyEnvOverrides: stdlib os.Getenv, a small per-field
// helper, explicit parse-failure-is-ignored semantics.
package envconfig

import (
	"os"
	"strconv"
	"strings"
)

// Config is every environment-sourced setting this package knows how to load.
type Config struct {
	RedisURL string
	WasmExtractorPath string
	MaxConcurrency int
	CacheTTLSeconds int
	GateHiThreshold float64
	GateLoThreshold float64
	HeadlessURL string
	SearchBackend string
	APIKeys []string
	RequireAuth bool
	SerperAPIKey string
}

// SearchBackend values, per `serper|none|searxng` enum.
const (
	SearchBackendSerper = "serper"
	SearchBackendNone = "none"
	SearchBackendSearxNG = "searxng"
)

// Defaults returns the configuration this repo runs with absent any
// environment override.
func Defaults() Config {
	return Config{
		MaxConcurrency: 8,
		CacheTTLSeconds: 3600,
		GateHiThreshold: 0.75,
		GateLoThreshold: 0.35,
		SearchBackend: SearchBackendNone,
		RequireAuth: true,
	}
}

// Load reads every environment variable, falling back to
// Defaults() for anything unset or unparsable. Call once at process
// startup; nothing here watches for change.
func Load() Config {
	cfg := Defaults()
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv overrides cfg's fields with any environment variables that are
// present and well-formed, leaving cfg unchanged field-by-field otherwise
// (a malformed MAX_CONCURRENCY, say, does not zero out the rest of cfg).
func ApplyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("WASM_EXTRACTOR_PATH"); v != "" {
		cfg.WasmExtractorPath = v
	}
	if v := os.Getenv("HEADLESS_URL"); v != "" {
		cfg.HeadlessURL = v
	}
	if v := os.Getenv("SERPER_API_KEY"); v != "" {
		cfg.SerperAPIKey = v
	}

	if v := strings.ToLower(strings.TrimSpace(os.Getenv("SEARCH_BACKEND"))); v != "" {
		switch v {
		case SearchBackendSerper, SearchBackendNone, SearchBackendSearxNG:
			cfg.SearchBackend = v
		}
	}

	if v := os.Getenv("MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrency = n
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("GATE_HI_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.GateHiThreshold = f
		}
	}
	if v := os.Getenv("GATE_LO_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.GateLoThreshold = f
		}
	}

	if v := os.Getenv("API_KEYS"); v != "" {
		keys := strings.Split(v, ",")
		out := make([]string, 0, len(keys))
		for _, k := range keys {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
		if len(out) > 0 {
			cfg.APIKeys = out
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("REQUIRE_AUTH"))); v != "" {
		switch v {
		case "1", "true", "yes", "on":
			cfg.RequireAuth = true
		case "0", "false", "no", "off":
			cfg.RequireAuth = false
		}
	}
}
