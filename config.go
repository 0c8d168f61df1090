package riptide

import (
	"time"

	"riptide/internal/cache"
	"riptide/internal/circuitbreaker"
	"riptide/internal/compose"
	"riptide/internal/chunk"
	"riptide/internal/envconfig"
	"riptide/internal/fetch"
	"riptide/internal/gate"
	"riptide/internal/governor"
	"riptide/internal/pipeline"
	"riptide/internal/resourcepool"
)

// TelemetryOptions describes which C13 subsystems New wires up, mirroring
// engine.TelemetryOptions split of Config into a dedicated
// telemetry sub-struct so embedders can reason about observability cost
// separately from the rest of Config.
type TelemetryOptions struct {
	EnableMetrics bool
	EnableTracing bool
	EnableEvents bool
	EnableHealth bool
	MetricsBackend string // "prom" (default), "otel", or "noop"
	SamplingPercent float64
}

// Config is every setting New needs to assemble a ready Engine. Zero value
// is not useful; start from Defaults().
type Config struct {
	Fetch fetch.Policy
	ResourcePool resourcepool.Config
	Breaker circuitbreaker.Config
	Cache cache.Config
	Governor governor.Config
	Telemetry TelemetryOptions

	Concurrency int
	ComposePolicy compose.Policy
	AcceptThreshold float64
	ChunkOptions chunk.Options
	GateThresholds gate.Thresholds
	CacheTTL time.Duration
	IdempotencyTTL time.Duration
	StrategyProfile string
	RendererFlags string
	RetryOnce bool
	RetryBackoff time.Duration

	// Env carries the environment-sourced settings this
	// process was started with; New overlays its MaxConcurrency,
	// CacheTTLSeconds and gate thresholds onto Concurrency, CacheTTL and
	// GateThresholds, and each Env value greater than zero replaces the
	// corresponding Config field whatever that field holds. A caller
	// that wants env-driven behavior can set envconfig.Load() here and
	// get the rest of Config's defaults for free.
	Env envconfig.Config
}

// Defaults returns the configuration this repo runs with absent any
// explicit override, matching DefaultConfig()'s values in every
// subsystem engine.Defaults() aggregates the same way.
func Defaults() Config {
	return Config{
		Fetch: fetch.DefaultPolicy(),
		ResourcePool: resourcepool.DefaultConfig(),
		Breaker: circuitbreaker.DefaultConfig(),
		Cache: cache.Config{Capacity: 10000},
		Governor: governor.DefaultConfig(),
		Telemetry: TelemetryOptions{EnableMetrics: true, EnableEvents: true, EnableHealth: true, MetricsBackend: "prom", SamplingPercent: 5},
		Concurrency: 8,
		ComposePolicy: compose.Sequential,
		AcceptThreshold: 0.6,
		ChunkOptions: chunk.DefaultOptions(),
		GateThresholds: gate.DefaultThresholds(),
		CacheTTL: time.Hour,
		IdempotencyTTL: 5 * time.Minute,
		StrategyProfile: "auto",
		RetryOnce: true,
		RetryBackoff: 100 * time.Millisecond,
		Env: envconfig.Defaults(),
	}
}

// applyEnv overlays cfg.Env onto the pipeline-facing fields that // §6 exposes as environment variables, so a caller can Load() the
// environment once and have it take effect without hand-copying fields.
func (cfg Config) applyEnv() Config {
	if cfg.Env.MaxConcurrency > 0 {
		cfg.Concurrency = cfg.Env.MaxConcurrency
	}
	if cfg.Env.CacheTTLSeconds > 0 {
		cfg.CacheTTL = time.Duration(cfg.Env.CacheTTLSeconds) * time.Second
	}
	if cfg.Env.GateHiThreshold > 0 {
		cfg.GateThresholds.GateHi = cfg.Env.GateHiThreshold
	}
	if cfg.Env.GateLoThreshold > 0 {
		cfg.GateThresholds.GateLo = cfg.Env.GateLoThreshold
	}
	return cfg
}

func (cfg Config) toPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Concurrency: cfg.Concurrency,
		ComposePolicy: cfg.ComposePolicy,
		AcceptThreshold: cfg.AcceptThreshold,
		ChunkOptions: cfg.ChunkOptions,
		GateThresholds: cfg.GateThresholds,
		CacheTTL: cfg.CacheTTL,
		IdempotencyTTL: cfg.IdempotencyTTL,
		StrategyProfile: cfg.StrategyProfile,
		RendererFlags: cfg.RendererFlags,
		RetryOnce: cfg.RetryOnce,
		RetryBackoff: cfg.RetryBackoff,
	}
}
