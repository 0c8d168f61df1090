package riptide

import (
	"testing"

	"riptide/internal/resourcepool"
)

func TestNewDefaultStrategiesWiresDependencyFreeExtractorsAlways(t *testing.T) {
	s := NewDefaultStrategies(nil, nil, nil, nil, "")
	if s.CSS == nil || s.Regex == nil || s.JSONLD == nil || s.ICS == nil {
		t.Fatalf("expected CSS/Regex/JSONLD/ICS always wired, got %+v", s)
	}
	if s.PDF != nil || s.WASM != nil || s.LLM != nil {
		t.Fatalf("expected PDF/WASM/LLM unwired without a pool or LLM client, got %+v", s)
	}
}

func TestNewDefaultStrategiesWiresPDFAndWASMWhenPoolProvided(t *testing.T) {
	pool := resourcepool.New(resourcepool.DefaultConfig())
	s := NewDefaultStrategies(pool, nil, nil, nil, "")
	if s.PDF == nil || s.WASM == nil {
		t.Fatalf("expected PDF/WASM wired once a pool is supplied, got %+v", s)
	}
	if s.LLM != nil {
		t.Fatalf("expected LLM to remain unwired without a client, got %+v", s)
	}
}

func TestNewDefaultStrategiesLeavesLLMUnwiredWithoutClient(t *testing.T) {
	s := NewDefaultStrategies(nil, nil, nil, &LLM{Model: "gpt-4o-mini", CostUSD: 0.01}, "")
	if s.LLM != nil {
		t.Fatalf("expected LLM unwired when LLM.Client is nil, got %+v", s)
	}
}

func TestToPipelineSetCarriesEveryField(t *testing.T) {
	s := NewDefaultStrategies(nil, nil, nil, nil, "")
	set := s.toPipelineSet()
	if set.CSS != s.CSS || set.Regex != s.Regex || set.JSONLD != s.JSONLD || set.ICS != s.ICS {
		t.Fatal("expected toPipelineSet to carry every wired strategy through unchanged")
	}
}
