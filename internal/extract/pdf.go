package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/ledongthuc/pdf"

	"riptide/internal/resourcepool"
	"riptide/internal/riptideerr"
	"riptide/models"
)

// PerPageMemoryCeilingMB bounds how much text a single page may contribute
// before that page's text is truncated, per "per-page memory
// ceiling".
const PerPageMemoryCeilingMB = 8

// OCR is the port for recognizing text on pages with no extractable
// text. PDFStrategy stores one but never calls it: a page without
// extractable text counts as empty whether or not an OCR is set. No OCR
// library appears in the retrieved example pack.
type OCR interface {
	RecognizeText(ctx context.Context, pageImage []byte) (string, error)
}

// PDFStrategy parses text and page count via github.com/ledongthuc/pdf
// (grounded on the hyperifyio-goagent manifest in the retrieved pack,
// the only PDF library present anywhere in the corpus), enforcing a
// per-page memory ceiling through resourcepool.Manager's memory account.
type PDFStrategy struct {
	pool *resourcepool.Manager
	ocr OCR
}

// NewPDFStrategy builds a PDFStrategy. pool may be nil to skip memory
// accounting (e.g. in unit tests); ocr may be nil, and a non-nil ocr is
// stored but not used during extraction.
func NewPDFStrategy(pool *resourcepool.Manager, ocr OCR) *PDFStrategy {
	return &PDFStrategy{pool: pool, ocr: ocr}
}

func (s *PDFStrategy) Name() string { return "pdf" }

func (s *PDFStrategy) Extract(ctx context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	guard, err := s.acquirePDFSlot(ctx)
	if err != nil {
		return models.ExtractionResult{}, err
	}
	defer guard.Release()

	reader, err := pdf.NewReader(bytes.NewReader(env.Body), int64(len(env.Body)))
	if err != nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "pdf: open reader", err)
	}

	var b strings.Builder
	emptyPages := 0
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = s.enforcePageCeiling(text)
		if strings.TrimSpace(text) == "" {
			emptyPages++
			if s.ocr != nil {
				// A real OCR fallback would render the page to an image
				// and call s.ocr.RecognizeText here; left unimplemented
				// per the documented Non-goal.
				continue
			}
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return models.ExtractionResult{
			StrategyName: s.Name(),
			Success: false,
			PrimaryError: "no extractable text in any page",
		}, nil
	}

	wordCount := len(strings.Fields(text))
	confidence := models.ClampConfidence(1 - float64(emptyPages)/float64(maxInt(numPages, 1)))

	return models.ExtractionResult{
		StrategyName: s.Name(),
		Text: text,
		Confidence: confidence,
		WordCount: wordCount,
		QualityScore: models.ClampQuality(confidence * 100),
		Success: true,
	}, nil
}

func (s *PDFStrategy) acquirePDFSlot(ctx context.Context) (*resourcepool.Guard, error) {
	if s.pool == nil {
		return &resourcepool.Guard{}, nil
	}
	return s.pool.AcquirePDFSlot(ctx)
}

// enforcePageCeiling truncates a single page's text if it would exceed
// PerPageMemoryCeilingMB once decoded, treating the page as partially
// recovered rather than failing the whole document.
func (s *PDFStrategy) enforcePageCeiling(text string) string {
	const ceilingBytes = PerPageMemoryCeilingMB << 20
	if len(text) <= ceilingBytes {
		return text
	}
	if s.pool != nil {
		s.pool.TrackAllocation(PerPageMemoryCeilingMB)
		defer s.pool.TrackDeallocation(PerPageMemoryCeilingMB)
	}
	return text[:ceilingBytes]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
