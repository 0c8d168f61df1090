package extract

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"

	"riptide/internal/resourcepool"
	"riptide/internal/riptideerr"
	"riptide/models"
)

// readabilitySelectors mirrors the candidate-node scoring order a
// Readability-style extractor would try, highest-signal first.
var readabilitySelectors = []string{"article", "[itemprop=articleBody]", "main", "#content", ".post-content", ".article-body", "body"}

// WASMStrategy models the "sandboxed WASM article extractor" as a
// pooled resource per /§4.3: no WASM runtime library exists
// anywhere in the retrieved pack, so the sandbox boundary is the
// resourcepool checkout/retirement contract itself, wrapped around a
// goquery-based Readability-style heuristic and own
// html-to-markdown pipeline, instead of a fabricated wasmtime/wazero
// dependency.
type WASMStrategy struct {
	pool *resourcepool.Manager
}

// NewWASMStrategy builds a WASMStrategy. pool may be nil to run the
// heuristic without pool accounting (e.g. in unit tests).
func NewWASMStrategy(pool *resourcepool.Manager) *WASMStrategy {
	return &WASMStrategy{pool: pool}
}

func (s *WASMStrategy) Name() string { return "wasm" }

func (s *WASMStrategy) Extract(ctx context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	inst, guard, failed, err := s.checkout(ctx)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	defer func() {
		if inst != nil {
			inst.MarkUsed(*failed)
		}
		guard.Release()
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(env.Body)))
	if err != nil {
		*failed = true
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "wasm: parse document", err)
	}

	node, selector := readabilityNode(doc)
	if node == nil {
		*failed = true
		return models.ExtractionResult{StrategyName: s.Name(), Success: false, PrimaryError: "no candidate article node found"}, nil
	}

	html, err := node.Html()
	if err != nil {
		*failed = true
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "wasm: serialize candidate node", err)
	}

	conv := converter.NewConverter(converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin()))
	markdown, err := conv.ConvertString(html)
	if err != nil {
		*failed = true
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "wasm: convert to markdown", err)
	}

	text := strings.TrimSpace(node.Text())
	wordCount := len(strings.Fields(text))
	title := strings.TrimSpace(doc.Find("title").First().Text())

	confidence := readabilityConfidence(selector, wordCount)
	return models.ExtractionResult{
		StrategyName: s.Name(),
		Title: title,
		Text: text,
		Markdown: markdown,
		Confidence: confidence,
		WordCount: wordCount,
		QualityScore: models.ClampQuality(confidence * 100),
		Success: true,
	}, nil
}

// checkout acquires a pooled WASM instance if a pool is configured,
// returning a bool pointer the caller flips to report failure before
// the deferred MarkUsed/Release runs.
func (s *WASMStrategy) checkout(ctx context.Context) (*resourcepool.WasmInstance, *resourcepool.Guard, *bool, error) {
	failed := new(bool)
	if s.pool == nil {
		return nil, &resourcepool.Guard{}, failed, nil
	}
	inst, guard, err := s.pool.AcquireWasmInstance(ctx)
	if err != nil {
		return nil, nil, failed, riptideerr.Wrap(riptideerr.CodeDependency, "wasm: acquire pooled instance", err)
	}
	return inst, guard, failed, nil
}

// readabilityNode walks readabilitySelectors in priority order and
// returns the first match with non-trivial text content.
func readabilityNode(doc *goquery.Document) (*goquery.Selection, string) {
	for _, sel := range readabilitySelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		words := len(strings.Fields(node.Text()))
		if words == 0 || (words < 40 && sel != "body") {
			continue
		}
		return node, sel
	}
	return nil, ""
}

// readabilityConfidence rewards matches on more specific selectors and
// longer recovered text, the same shape as the CSS strategy's heuristic.
func readabilityConfidence(selector string, wordCount int) float64 {
	base := 0.5
	switch selector {
	case "article", "[itemprop=articleBody]":
		base = 0.85
	case "main", "#content", ".post-content", ".article-body":
		base = 0.7
	case "body":
		base = 0.3
	}
	lengthBonus := float64(wordCount) / 1000
	if lengthBonus > 0.15 {
		lengthBonus = 0.15
	}
	return models.ClampConfidence(base + lengthBonus)
}
