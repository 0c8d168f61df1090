package extract

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"riptide/models"
)

// Event is one parsed VEVENT block.
type Event struct {
	Summary     string
	Description string
	Location    string
	DTStart     string
	DTEnd       string
	UID         string
}

// ICSStrategy parses VEVENT blocks out of an iCalendar document. No
// iCalendar parsing library appears anywhere in the retrieved example
// pack, so this is a small stdlib line-oriented scanner, justified in
// DESIGN.md as the only option short of fabricating a dependency. RFC
// 5545 line folding (continuation lines starting with a space or tab) is
// honored before field parsing.
type ICSStrategy struct{}

// NewICSStrategy builds an ICSStrategy.
func NewICSStrategy() *ICSStrategy { return &ICSStrategy{} }

func (s *ICSStrategy) Name() string { return "ics" }

func (s *ICSStrategy) Extract(_ context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	events, err := ParseEvents(env.Body)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	if len(events) == 0 {
		return models.ExtractionResult{StrategyName: s.Name(), Success: false, PrimaryError: "no VEVENT blocks found"}, nil
	}

	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.Summary)
		if e.DTStart != "" {
			b.WriteString(" (")
			b.WriteString(e.DTStart)
			b.WriteString(")")
		}
		b.WriteString("\n")
		if e.Description != "" {
			b.WriteString(e.Description)
			b.WriteString("\n")
		}
	}
	text := strings.TrimSpace(b.String())

	return models.ExtractionResult{
		StrategyName: s.Name(),
		Text:         text,
		Confidence:   1.0,
		WordCount:    len(strings.Fields(text)),
		QualityScore: 85,
		Success:      true,
		Metadata:     models.ExtractionMetadata{Description: firstEventSummary(events)},
	}, nil
}

func firstEventSummary(events []Event) string {
	if len(events) == 0 {
		return ""
	}
	return events[0].Summary
}

// ParseEvents scans body for VEVENT blocks and returns their fields.
func ParseEvents(body []byte) ([]Event, error) {
	unfolded := unfold(body)
	scanner := bufio.NewScanner(bytes.NewReader(unfolded))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var events []Event
	var cur *Event
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "BEGIN:VEVENT":
			cur = &Event{}
		case line == "END:VEVENT":
			if cur != nil {
				events = append(events, *cur)
				cur = nil
			}
		case cur != nil:
			applyField(cur, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func applyField(e *Event, line string) {
	key, value, ok := splitICSLine(line)
	if !ok {
		return
	}
	switch key {
	case "SUMMARY":
		e.Summary = value
	case "DESCRIPTION":
		e.Description = value
	case "LOCATION":
		e.Location = value
	case "DTSTART":
		e.DTStart = value
	case "DTEND":
		e.DTEnd = value
	case "UID":
		e.UID = value
	}
}

// splitICSLine splits "KEY;PARAM=x:value" into ("KEY", "value", true),
// discarding any parameters after the first ';'.
func splitICSLine(line string) (key, value string, ok bool) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return "", "", false
	}
	rawKey := line[:colon]
	value = line[colon+1:]
	if semi := strings.Index(rawKey, ";"); semi >= 0 {
		rawKey = rawKey[:semi]
	}
	return strings.ToUpper(strings.TrimSpace(rawKey)), value, true
}

// unfold joins RFC 5545 folded continuation lines (a line starting with a
// single space or tab continues the previous line) back into one line.
func unfold(body []byte) []byte {
	lines := strings.Split(string(body), "\n")
	var out []string
	for _, l := range lines {
		trimmed := strings.TrimRight(l, "\r")
		if len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += trimmed[1:]
			continue
		}
		out = append(out, trimmed)
	}
	return []byte(strings.Join(out, "\n"))
}
