package chunk

import (
	"strings"
	"testing"
)

func repeatSentence(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("The quick fox jumps over the lazy dog. ")
	}
	return b.String()
}

func TestSplitSlidingProducesOverlappingWindows(t *testing.T) {
	opts := Options{Strategy: StrategySliding, TokenMax: 20, OverlapTokens: 5, PreserveSentences: false}
	text := repeatSentence(20)
	chunks := Split(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.Metadata.ChunkType != StrategySliding {
			t.Fatalf("expected ChunkType sliding, got %s", c.Metadata.ChunkType)
		}
	}
}

func TestSplitFixedByWordCount(t *testing.T) {
	opts := Options{Strategy: StrategyFixed, TokenMax: 10}
	text := repeatSentence(10)
	chunks := Split(text, opts)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks[:len(chunks)-1] {
		if c.Metadata.WordCount != 10 {
			t.Fatalf("expected 10-word fixed chunks, got %d", c.Metadata.WordCount)
		}
	}
}

func TestSplitSentenceRespectsMaxSentences(t *testing.T) {
	opts := Options{Strategy: StrategySentence, MaxSentences: 2, TokenMax: 1000}
	text := repeatSentence(7)
	chunks := Split(text, opts)
	for _, c := range chunks {
		if c.Metadata.SentenceCount > 2 {
			t.Fatalf("expected at most 2 sentences per chunk, got %d", c.Metadata.SentenceCount)
		}
	}
}

func TestSplitSentenceSkipsAbbreviations(t *testing.T) {
	opts := Options{Strategy: StrategySentence, MaxSentences: 10, TokenMax: 1000}
	text := "Dr. Smith went to the store. He bought milk."
	chunks := Split(text, opts)
	if len(chunks) != 1 {
		t.Fatalf("expected a single chunk (abbreviation should not split), got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].Metadata.SentenceCount != 2 {
		t.Fatalf("expected 2 real sentences, got %d", chunks[0].Metadata.SentenceCount)
	}
}

func TestSplitTopicFallsBackToSlidingBelowMinSize(t *testing.T) {
	opts := Options{Strategy: StrategyTopic, TokenMax: 50, MinDocSizeForTopic: 10000}
	text := repeatSentence(5)
	chunks := Split(text, opts)
	for _, c := range chunks {
		if c.Metadata.ChunkType != StrategySliding {
			t.Fatalf("expected fallback to sliding below min doc size, got %s", c.Metadata.ChunkType)
		}
	}
}

func TestSplitTopicAboveMinSizeUsesTopicStrategy(t *testing.T) {
	opts := Options{Strategy: StrategyTopic, TokenMax: 256, MinDocSizeForTopic: 50}
	text := repeatSentence(100)
	chunks := Split(text, opts)
	if len(chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	for _, c := range chunks {
		if c.Metadata.ChunkType != StrategyTopic {
			t.Fatalf("expected topic chunk type, got %s", c.Metadata.ChunkType)
		}
	}
}

func TestQualityScoreBounded(t *testing.T) {
	opts := DefaultOptions()
	text := repeatSentence(50)
	chunks := Split(text, opts)
	for _, c := range chunks {
		if c.Metadata.QualityScore < 0 || c.Metadata.QualityScore > 100 {
			t.Fatalf("quality score out of bounds: %f", c.Metadata.QualityScore)
		}
	}
}

func TestEmptyTextProducesNoChunks(t *testing.T) {
	if chunks := Split("", DefaultOptions()); len(chunks) != 0 {
		t.Fatalf("expected no chunks for empty text, got %d", len(chunks))
	}
}

// TestSplitSentenceFiveShortSentencesAtMaxTwo is the "A. B. C. D. E." /
// max_sentences=2 scenario: five one-word sentences must land in chunks of
// at most 2 sentences each, in original order, with nothing dropped.
func TestSplitSentenceFiveShortSentencesAtMaxTwo(t *testing.T) {
	opts := Options{Strategy: StrategySentence, MaxSentences: 2, TokenMax: 1000}
	chunks := Split("A. B. C. D. E.", opts)

	wantCounts := []int{2, 2, 1}
	if len(chunks) != len(wantCounts) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(wantCounts), len(chunks), chunks)
	}
	for i, want := range wantCounts {
		if chunks[i].Metadata.SentenceCount != want {
			t.Fatalf("chunk %d: expected %d sentences, got %d", i, want, chunks[i].Metadata.SentenceCount)
		}
	}
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, strings.Fields(c.Text)...)
	}
	if got := strings.Join(rebuilt, " "); got != "A. B. C. D. E." {
		t.Fatalf("expected reassembled text to match input verbatim, got %q", got)
	}
}

// TestSplitRoundTripPreservesEveryWord checks the round-trip property: for
// every strategy, concatenating every chunk's words (in order) reproduces
// exactly the words of the input, in the same order, with none dropped or
// duplicated — splitting must partition the input, not lose or repeat it.
func TestSplitRoundTripPreservesEveryWord(t *testing.T) {
	text := repeatSentence(30)
	wantWords := strings.Fields(text)

	strategies := []Options{
		{Strategy: StrategySliding, TokenMax: 20, OverlapTokens: 0, PreserveSentences: false},
		{Strategy: StrategyFixed, TokenMax: 15},
		{Strategy: StrategySentence, MaxSentences: 3, TokenMax: 1000},
	}
	for _, opts := range strategies {
		chunks := Split(text, opts)
		var gotWords []string
		for _, c := range chunks {
			gotWords = append(gotWords, strings.Fields(c.Text)...)
		}
		if len(gotWords) != len(wantWords) {
			t.Fatalf("%s: expected %d words round-tripped, got %d", opts.Strategy, len(wantWords), len(gotWords))
		}
		for i := range wantWords {
			if gotWords[i] != wantWords[i] {
				t.Fatalf("%s: word %d mismatch: want %q got %q", opts.Strategy, i, wantWords[i], gotWords[i])
			}
		}
	}
}
