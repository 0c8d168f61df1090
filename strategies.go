package riptide

import (
	"riptide/internal/circuitbreaker"
	"riptide/internal/compose"
	"riptide/internal/extract"
	"riptide/internal/governor"
	"riptide/internal/pipeline"
	"riptide/internal/resourcepool"
)

// Strategies names every optional C8 extractor an embedder may supply.
// A nil field simply means that strategy never participates in
// DefaultSelector's candidate lists, mirroring pipeline.StrategySet one
// level up so callers of the facade never need to import internal/pipeline
// themselves.
type Strategies struct {
	CSS    compose.Strategy
	Regex  compose.Strategy
	JSONLD compose.Strategy
	ICS    compose.Strategy
	PDF    compose.Strategy
	WASM   compose.Strategy
	LLM    compose.Strategy
}

// LLM bundles what NewDefaultStrategies needs to wire up extract.LLMStrategy,
// left as its own struct since the OpenAI client and cost figure are the
// only two knobs a caller plausibly wants to change.
type LLM struct {
	Client  extract.Client
	Model   string
	CostUSD float64
}

// NewDefaultStrategies builds the strategy set this repo ships with: the
// dependency-free CSS, regex, JSON-LD, and ICS extractors are always
// wired; PDF and WASM are wired whenever pool is non-nil (they need C3
// slot accounting); LLM is wired only if llm.Client is non-nil, since it
// is the one strategy with a real external dependency (an OpenAI-
// compatible API) and a per-call cost.
func NewDefaultStrategies(pool *resourcepool.Manager, breakers *circuitbreaker.Registry, gov *governor.Governor, llm *LLM, articleSelector string) Strategies {
	s := Strategies{
		CSS:    extract.NewCSSStrategy(articleSelector),
		Regex:  extract.NewRegexStrategy(),
		JSONLD: extract.NewJSONLDStrategy(),
		ICS:    extract.NewICSStrategy(),
	}
	if pool != nil {
		s.PDF = extract.NewPDFStrategy(pool, nil)
		s.WASM = extract.NewWASMStrategy(pool)
	}
	if llm != nil && llm.Client != nil {
		s.LLM = extract.NewLLMStrategy(llm.Client, llm.Model, breakers, gov, llm.CostUSD)
	}
	return s
}

func (s Strategies) toPipelineSet() pipeline.StrategySet {
	return pipeline.StrategySet{
		CSS:    s.CSS,
		Regex:  s.Regex,
		JSONLD: s.JSONLD,
		ICS:    s.ICS,
		PDF:    s.PDF,
		WASM:   s.WASM,
		LLM:    s.LLM,
	}
}
