// Package gate classifies a fetched document (C7) into the strategy family
// that should handle it: Pdf, Ics, Raw, Headless, ProbesFirst, or Skip.
// Classification is pure content inspection — magic bytes, content-type,
// and cheap DOM heuristics — grounded on the HTML-sniffing and metadata
// extraction style of // engine/business/processor/content.go and
// engine/internal/crawler/colly_fetcher.go (goquery selectors over the
// fetched body).
package gate

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"riptide/models"
)

// Thresholds configures the confidence band boundaries between Raw and
// Headless classification.
type Thresholds struct {
	GateHi float64 // at/above: confident enough for Raw
	GateLo float64 // at/below: confident enough to go straight to Headless
}

// DefaultThresholds matches the mid-band heuristic in Classify's decision table.
func DefaultThresholds() Thresholds {
	return Thresholds{GateHi: 0.75, GateLo: 0.35}
}

const maxScriptNodesForRaw = 8
const minVisibleTextCharsForRaw = 400
const spaShellTextCharThreshold = 200

// Classify inspects env and returns a GateDecision. The thresholds control
// only the HTML raw/headless/probes-first split; PDF/ICS/Skip detection is
// unconditional on content signature.
func Classify(env models.FetchEnvelope, th Thresholds) models.GateDecision {
	if isPDF(env) {
		return models.GateDecision{Kind: models.GatePdf, Confidence: 1.0}
	}
	if isICS(env) {
		return models.GateDecision{Kind: models.GateIcs, Confidence: 1.0}
	}
	if !looksTextual(env) {
		return models.GateDecision{Kind: models.GateSkip, Confidence: 1.0, Reason: "non_textual_content_type"}
	}

	confidence := htmlConfidence(env.Body)
	switch {
	case confidence >= th.GateHi:
		return models.GateDecision{Kind: models.GateRaw, Confidence: confidence}
	case confidence <= th.GateLo:
		return models.GateDecision{Kind: models.GateHeadless, Confidence: confidence, Reason: "spa_markers_detected"}
	default:
		return models.GateDecision{Kind: models.GateProbesFirst, Confidence: confidence, Reason: "mid_band_confidence"}
	}
}

func isPDF(env models.FetchEnvelope) bool {
	if strings.Contains(strings.ToLower(env.ContentType), "application/pdf") {
		return true
	}
	return bytes.HasPrefix(env.Body, []byte("%PDF-"))
}

func isICS(env models.FetchEnvelope) bool {
	if strings.Contains(strings.ToLower(env.ContentType), "text/calendar") {
		return true
	}
	return bytes.Contains(env.Body[:minInt(len(env.Body), 4096)], []byte("BEGIN:VCALENDAR"))
}

func looksTextual(env models.FetchEnvelope) bool {
	ct := strings.ToLower(env.ContentType)
	if ct == "" {
		return true // unknown content-type: let the HTML heuristic decide
	}
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "html") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "json")
}

// htmlConfidence scores how likely the static DOM is to yield a
// high-quality extraction without headless rendering. It combines four
// signals from into a single [0,1] score.
func htmlConfidence(body []byte) float64 {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return 0
	}

	// Weights sum to 1.0 so score is already a [0,1] confidence.
	score := 0.0

	if doc.Find("article").Length() > 0 {
		score += 0.3
	}

	if doc.Find(`script[type="application/ld+json"]`).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return strings.Contains(s.Text(), `"@type"`) && strings.Contains(strings.ToLower(s.Text()), "event")
	}).Length() > 0 {
		score += 0.15
	}

	visibleText := strings.TrimSpace(doc.Find("body").Text())
	if len(visibleText) >= minVisibleTextCharsForRaw {
		score += 0.35
	} else if len(visibleText) > 0 {
		score += 0.35 * float64(len(visibleText)) / float64(minVisibleTextCharsForRaw)
	}

	scriptCount := doc.Find("script").Length()
	if scriptCount <= maxScriptNodesForRaw {
		score += 0.2
	}

	hasSPAShell := doc.Find(`div#app, div#root, div#__next`).Length() > 0
	if hasSPAShell && len(visibleText) < spaShellTextCharThreshold {
		score *= 0.3 // SPA shell strongly overrides other positive signals
	}

	return models.ClampConfidence(score)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
