package extract

import (
	"context"
	"regexp"
	"strings"

	"riptide/internal/telemetry"
	"riptide/models"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)
var titleTagPattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)

// RegexStrategy is the cheapest, lowest-confidence strategy: strips tags
// with a regular expression and redacts PII before returning plain text.
// It never returns an error and reports Success=false only when no text
// remains after stripping tags; otherwise confidence signals whether a
// caller should trust it, matching "regex" strategy description.
type RegexStrategy struct {
	sanitizer *telemetry.PIISanitizer
}

// NewRegexStrategy builds a RegexStrategy with PII redaction enabled.
func NewRegexStrategy() *RegexStrategy {
	return &RegexStrategy{sanitizer: telemetry.NewPIISanitizer()}
}

func (s *RegexStrategy) Name() string { return "regex" }

func (s *RegexStrategy) Extract(_ context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	raw := string(env.Body)

	title := ""
	if m := titleTagPattern.FindStringSubmatch(raw); len(m) == 2 {
		title = strings.TrimSpace(htmlTagPattern.ReplaceAllString(m[1], ""))
	}

	text := htmlTagPattern.ReplaceAllString(raw, " ")
	text = strings.Join(strings.Fields(text), " ")
	text = s.sanitizer.Redact(text)

	wordCount := len(strings.Fields(text))
	if wordCount == 0 {
		return models.ExtractionResult{StrategyName: s.Name(), Success: false, PrimaryError: "no text after tag stripping"}, nil
	}

	// Regex extraction never separates signal from boilerplate (nav,
	// footers, ads), so its confidence is deliberately capped low; it
	// exists as the last-resort fallback in a Sequential chain.
	const maxConfidence = 0.4
	confidence := models.ClampConfidence(float64(wordCount) / 1000 * maxConfidence)
	if confidence > maxConfidence {
		confidence = maxConfidence
	}

	return models.ExtractionResult{
		StrategyName: s.Name(),
		Title: title,
		Text: text,
		Confidence: confidence,
		WordCount: wordCount,
		QualityScore: models.ClampQuality(confidence * 100),
		Success: true,
	}, nil
}
