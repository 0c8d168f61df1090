package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"riptide/internal/riptideerr"
	"riptide/models"
)

// JSONLDStrategy harvests <script type="application/ld+json"> blocks and
// returns their decoded entities as structured text (the raw JSON,
// pretty-printed, since ExtractionResult.Text is strategy-opaque).
type JSONLDStrategy struct{}

// NewJSONLDStrategy builds a JSONLDStrategy.
func NewJSONLDStrategy() *JSONLDStrategy { return &JSONLDStrategy{} }

func (s *JSONLDStrategy) Name() string { return "jsonld" }

func (s *JSONLDStrategy) Extract(_ context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(env.Body))
	if err != nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "jsonld: parse html", err)
	}

	var entities []json.RawMessage
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		raw := strings.TrimSpace(sel.Text())
		if raw == "" {
			return
		}
		var v json.RawMessage
		if err := json.Unmarshal([]byte(raw), &v); err == nil {
			entities = append(entities, v)
		}
	})

	if len(entities) == 0 {
		return models.ExtractionResult{
			StrategyName: s.Name(),
			Success:      false,
			PrimaryError: "JsonLdNotFound",
		}, nil
	}

	pretty, err := json.MarshalIndent(entities, "", "  ")
	if err != nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "jsonld: marshal entities", err)
	}

	return models.ExtractionResult{
		StrategyName: s.Name(),
		Text:         string(pretty),
		Confidence:   1.0, // structured data present is an unambiguous, high-trust signal
		WordCount:    len(strings.Fields(string(pretty))),
		QualityScore: 90,
		Success:      true,
	}, nil
}
