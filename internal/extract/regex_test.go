package extract

import (
	"context"
	"strings"
	"testing"

	"riptide/models"
)

func TestRegexStrategyStripsTagsAndRedactsPII(t *testing.T) {
	s := NewRegexStrategy()
	env := models.FetchEnvelope{Body: []byte(`<html><head><title>Contact</title></head>
		<body><p>Email me at jane.doe@example.com or call 555-123-4567.</p></body></html>`)}

	res, err := s.Extract(context.Background(), env, models.CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("expected success")
	}
	if strings.Contains(res.Text, "jane.doe@example.com") {
		t.Fatalf("expected email redacted, got %q", res.Text)
	}
	if strings.Contains(res.Text, "<p>") {
		t.Fatalf("expected tags stripped, got %q", res.Text)
	}
	if res.Title != "Contact" {
		t.Fatalf("expected title extracted, got %q", res.Title)
	}
	if res.Confidence > 0.4 {
		t.Fatalf("expected confidence capped at 0.4, got %f", res.Confidence)
	}
}

func TestRegexStrategyEmptyBodyFails(t *testing.T) {
	s := NewRegexStrategy()
	res, err := s.Extract(context.Background(), models.FetchEnvelope{Body: []byte("")}, models.CrawlOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure for empty body")
	}
}
