package extract

import (
	"bytes"
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"

	"riptide/internal/riptideerr"
	"riptide/models"
)

// markdownConverter is shared across extraction calls; converter.Converter
// is safe for concurrent ConvertString calls, matching processor.go's
// NewHTMLToMarkdownConverter wiring (base + commonmark + table plugins).
var markdownConverter = converter.NewConverter(
	converter.WithPlugins(base.NewBasePlugin(), commonmark.NewCommonmarkPlugin(), table.NewTablePlugin()),
)

// CSSStrategy extracts title/body/links/media via configurable CSS
// selectors, grounded on the goquery selector usage of // engine/internal/crawler/colly_fetcher.go (title, meta description,
// anchor discovery) generalized to a full article body selector.
type CSSStrategy struct {
	// ArticleSelector names the element(s) considered the article body.
	// Defaults to a common content-container chain when empty.
	ArticleSelector string
}

// NewCSSStrategy builds a CSSStrategy; an empty selector falls back to a
// sensible default chain at extraction time.
func NewCSSStrategy(articleSelector string) *CSSStrategy {
	return &CSSStrategy{ArticleSelector: articleSelector}
}

func (s *CSSStrategy) Name() string { return "css" }

func (s *CSSStrategy) Extract(_ context.Context, env models.FetchEnvelope, opts models.CrawlOptions) (models.ExtractionResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(env.Body))
	if err != nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "css: parse html", err)
	}

	selector := s.ArticleSelector
	if selector == "" {
		selector = "article, main, #content, .content, body"
	}

	sel := firstNonEmpty(doc, strings.Split(selector, ","))
	text := strings.TrimSpace(sel.Text())
	if text == "" {
		return models.ExtractionResult{
			StrategyName: s.Name(),
			Success: false,
			PrimaryError: "no content matched selector",
		}, nil
	}

	html, _ := sel.Html()
	markdown, mdErr := markdownConverter.ConvertString(html)
	if mdErr != nil {
		markdown = ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	var links []string
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			links = append(links, href)
		}
	})

	var media []models.MediaRef
	sel.Find("img[src]").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		alt, _ := img.Attr("alt")
		if src != "" {
			media = append(media, models.MediaRef{URL: src, Kind: "image", Alt: alt})
		}
	})

	wordCount := len(strings.Fields(text))
	confidence := cssConfidence(wordCount, sel.Length())

	return models.ExtractionResult{
		StrategyName: s.Name(),
		Title: title,
		Text: text,
		Markdown: markdown,
		Links: links,
		Media: media,
		Confidence: confidence,
		WordCount: wordCount,
		QualityScore: models.ClampQuality(confidence * 100),
		Success: true,
	}, nil
}

func cssConfidence(wordCount int, matchedNodes int) float64 {
	if matchedNodes == 0 {
		return 0
	}
	const target = 300
	score := float64(wordCount) / target
	return models.ClampConfidence(score)
}

func firstNonEmpty(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, raw := range selectors {
		sel := strings.TrimSpace(raw)
		if sel == "" {
			continue
		}
		found := doc.Find(sel)
		if found.Length() > 0 && strings.TrimSpace(found.First().Text()) != "" {
			return found.First()
		}
	}
	return doc.Find("body")
}
