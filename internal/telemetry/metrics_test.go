package telemetry

import (
	"context"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestNoopProviderDiscardsEverything(t *testing.T) {
	p := NewNoopProvider()
	c := p.NewCounter(CounterOpts{CommonOpts{Name: "x"}})
	c.Inc(1)
	g := p.NewGauge(GaugeOpts{CommonOpts{Name: "y"}})
	g.Set(5)
	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Name: "z"}})
	h.Observe(1.5)
	timer := p.NewTimer(HistogramOpts{CommonOpts: CommonOpts{Name: "w"}})
	timer().ObserveDuration()
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("noop provider should always be healthy: %v", err)
	}
}

func TestPrometheusProviderRegistersAndIncrementsCounter(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusProvider(PrometheusProviderOptions{Registry: reg})
	c := p.NewCounter(CounterOpts{CommonOpts{Namespace: "riptide", Name: "requests_total", Labels: []string{"tenant"}}})
	c.Inc(1, "acme")
	c.Inc(2, "acme")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var found bool
	for _, fam := range families {
		if fam.GetName() == "riptide_requests_total" {
			found = true
			if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 3 {
				t.Fatalf("expected counter value 3, got %v", got)
			}
		}
	}
	if !found {
		t.Fatal("expected riptide_requests_total to be registered")
	}
}

func TestPrometheusProviderReusesExistingCollectorOnDuplicateName(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusProvider(PrometheusProviderOptions{Registry: reg})
	opts := CounterOpts{CommonOpts{Namespace: "riptide", Name: "dup_total"}}
	c1 := p.NewCounter(opts)
	c2 := p.NewCounter(opts)
	c1.Inc(1)
	c2.Inc(1)

	families, _ := reg.Gather()
	for _, fam := range families {
		if fam.GetName() == "riptide_dup_total" {
			if got := fam.GetMetric()[0].GetCounter().GetValue(); got != 2 {
				t.Fatalf("expected shared collector to accumulate to 2, got %v", got)
			}
		}
	}
}

func TestPrometheusProviderRejectsInvalidMetricName(t *testing.T) {
	p := NewPrometheusProvider(PrometheusProviderOptions{})
	c := p.NewCounter(CounterOpts{CommonOpts{Name: ""}})
	c.Inc(1) // must not panic on the noop fallback
}

func TestOTelProviderConstructsInstrumentsWithoutError(t *testing.T) {
	p := NewOTelProvider(OTelProviderOptions{ServiceName: "riptide-test"})
	c := p.NewCounter(CounterOpts{CommonOpts{Namespace: "riptide", Name: "otel_total", Labels: []string{"tenant"}}})
	c.Inc(1, "acme")
	g := p.NewGauge(GaugeOpts{CommonOpts{Namespace: "riptide", Name: "otel_gauge"}})
	g.Set(3)
	g.Add(1)
	h := p.NewHistogram(HistogramOpts{CommonOpts: CommonOpts{Namespace: "riptide", Name: "otel_hist"}})
	h.Observe(0.5)
	timer := p.NewTimer(HistogramOpts{CommonOpts: CommonOpts{Namespace: "riptide", Name: "otel_timer"}})
	timer().ObserveDuration()
	if err := p.Health(context.Background()); err != nil {
		t.Fatalf("unexpected health error: %v", err)
	}
}
