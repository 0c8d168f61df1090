package telemetry

import (
	"context"
)

// Telemetry bundles every C13 surface an orchestrator or HTTP handler
// needs, so callers thread one value instead of four. Every field is
// safe to call even when nil (the zero value discards observations like
// NewNoop, but its Redact returns text unchanged since it has no
// Sanitizer), matching habit of defaulting every telemetry dependency
// to a noop rather than forcing callers to nil-check at every call site.
type Telemetry struct {
	Metrics Provider
	Events Bus
	Tracer Tracer
	Logger Logger
	Sanitizer *PIISanitizer
}

// New bundles concrete backends into one Telemetry value.
func New(metrics Provider, events Bus, tracer Tracer, logger Logger) *Telemetry {
	return &Telemetry{Metrics: metrics, Events: events, Tracer: tracer, Logger: logger, Sanitizer: NewPIISanitizer()}
}

// NewNoop returns a Telemetry bundle that discards every observation, the
// default for components that don't want to thread a concrete backend
// through their tests.
func NewNoop() *Telemetry {
	return &Telemetry{Metrics: NewNoopProvider(), Events: NewBus(nil), Tracer: NewTracer(false), Logger: NewLogger(nil), Sanitizer: NewPIISanitizer()}
}

// StartSpan starts a span via the bundled tracer, tolerating a nil bundle.
func (t *Telemetry) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	if t == nil || t.Tracer == nil {
		return ctx, noopSpan{}
	}
	return t.Tracer.StartSpan(ctx, name)
}

// PublishEvent publishes via the bundled bus, tolerating a nil bundle.
func (t *Telemetry) PublishEvent(ctx context.Context, ev Event) {
	if t == nil || t.Events == nil {
		return
	}
	_ = t.Events.PublishCtx(ctx, ev)
}

// Counter fetches (or lazily creates) a named counter, tolerating a nil bundle.
func (t *Telemetry) Counter(opts CounterOpts) Counter {
	if t == nil || t.Metrics == nil {
		return noopCounter{}
	}
	return t.Metrics.NewCounter(opts)
}

// Histogram fetches (or lazily creates) a named histogram, tolerating a nil bundle.
func (t *Telemetry) Histogram(opts HistogramOpts) Histogram {
	if t == nil || t.Metrics == nil {
		return noopHistogram{}
	}
	return t.Metrics.NewHistogram(opts)
}

// LogInfo/LogError forward to the bundled logger, tolerating a nil bundle.
func (t *Telemetry) LogInfo(ctx context.Context, msg string, attrs ...any) {
	if t == nil || t.Logger == nil {
		return
	}
	t.Logger.InfoCtx(ctx, msg, attrs...)
}

func (t *Telemetry) LogError(ctx context.Context, msg string, attrs ...any) {
	if t == nil || t.Logger == nil {
		return
	}
	t.Logger.ErrorCtx(ctx, msg, attrs...)
}

// Redact strips PII via the bundled sanitizer, tolerating a nil bundle.
func (t *Telemetry) Redact(s string) string {
	if t == nil || t.Sanitizer == nil {
		return s
	}
	return t.Sanitizer.Redact(s)
}
