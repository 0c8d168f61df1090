package extract

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"riptide/internal/circuitbreaker"
	"riptide/internal/governor"
	"riptide/internal/riptideerr"
	"riptide/models"
)

// MaxDOMCharsForPrompt bounds how much of the fetched body is sent to the
// model; HTML is trimmed rather than sent whole.
const MaxDOMCharsForPrompt = 12000

// Client is the minimal surface this strategy needs from an OpenAI-
// compatible backend, mirrored from the hyperifyio-goresearch example's
// internal/llm.Client so any OpenAI-compatible or local backend can be
// substituted in tests.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts *openai.Client to Client, the same shape as the
// example repo's OpenAIProvider.
type OpenAIProvider struct {
	Inner *openai.Client
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, req)
}

type llmExtraction struct {
	Title       string   `json:"title"`
	Text        string   `json:"text"`
	Author      string   `json:"author,omitempty"`
	Published   string   `json:"published,omitempty"`
	Language    string   `json:"language,omitempty"`
	SiteName    string   `json:"site_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Links       []string `json:"links,omitempty"`
}

// LLMStrategy sends a trimmed DOM to a chat model and parses its
// structured-JSON response into an ExtractionResult. Every call is gated
// through a circuit breaker (C1) keyed "llm" and a per-tenant budget
// governor (C12) before the request is sent.
type LLMStrategy struct {
	client   Client
	model    string
	breakers *circuitbreaker.Registry
	gov      *governor.Governor
	costUSD  float64 // flat per-call cost estimate charged to the budget ledger
}

// NewLLMStrategy builds an LLMStrategy. gov may be nil to skip budget
// gating (e.g. in tests).
func NewLLMStrategy(client Client, model string, breakers *circuitbreaker.Registry, gov *governor.Governor, costUSD float64) *LLMStrategy {
	return &LLMStrategy{client: client, model: model, breakers: breakers, gov: gov, costUSD: costUSD}
}

func (s *LLMStrategy) Name() string { return "llm" }

func (s *LLMStrategy) Extract(ctx context.Context, env models.FetchEnvelope, _ models.CrawlOptions) (models.ExtractionResult, error) {
	tenant := tenantFromContext(ctx)
	if s.gov != nil && tenant != "" {
		if err := s.gov.ChargeBudget(tenant, s.costUSD); err != nil {
			return models.ExtractionResult{}, err
		}
	}

	breaker := s.breakers.Get("llm")
	permit, err := breaker.TryAcquire()
	if err != nil {
		var openErr *circuitbreaker.OpenError
		if ok := asOpenError(err, &openErr); ok {
			return models.ExtractionResult{}, riptideerr.CircuitOpen("llm", openErr.RetryAfter)
		}
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeCircuitOpen, "llm circuit rejected call", err)
	}

	result, callErr := s.call(ctx, env)
	permit.Release(callErr == nil)
	if callErr != nil {
		return models.ExtractionResult{}, callErr
	}
	return result, nil
}

func (s *LLMStrategy) call(ctx context.Context, env models.FetchEnvelope) (models.ExtractionResult, error) {
	trimmed := trimDOM(string(env.Body), MaxDOMCharsForPrompt)

	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: trimmed},
		},
	}

	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return models.ExtractionResult{}, (&riptideerr.Error{Code: riptideerr.CodeTimeout, Message: "llm timeout"}).WithRetry(5 * time.Second)
		}
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeDependency, "llm call failed", err)
	}
	if len(resp.Choices) == 0 {
		return models.ExtractionResult{}, riptideerr.New(riptideerr.CodeStrategy, "llm returned no choices")
	}

	var parsed llmExtraction
	content := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.ExtractionResult{}, riptideerr.Wrap(riptideerr.CodeStrategy, "llm: parse structured response", err)
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return models.ExtractionResult{StrategyName: s.Name(), Success: false, PrimaryError: "empty extraction from model"}, nil
	}

	wordCount := len(strings.Fields(parsed.Text))
	return models.ExtractionResult{
		StrategyName: s.Name(),
		Title:        parsed.Title,
		Text:         parsed.Text,
		Links:        parsed.Links,
		Metadata: models.ExtractionMetadata{
			Author:      parsed.Author,
			Language:    parsed.Language,
			SiteName:    parsed.SiteName,
			Description: parsed.Description,
		},
		Confidence:   0.85,
		WordCount:    wordCount,
		QualityScore: 85,
		Success:      true,
	}, nil
}

const extractionSystemPrompt = `You extract the main article content from an HTML page.
Respond with a single JSON object: {"title","text","author","published","language","site_name","description","links"}.
Omit boilerplate navigation, ads, and footers from "text".`

func trimDOM(html string, maxChars int) string {
	if len(html) <= maxChars {
		return html
	}
	return html[:maxChars]
}

// tenantFromContext is a narrow seam so the strategy does not need to
// import internal/pipeline's tenant-context plumbing directly; callers
// that run extraction under a tenant attach it via context.
type tenantContextKey struct{}

// WithTenant attaches a tenant ID to ctx for budget charging.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenantID)
}

func tenantFromContext(ctx context.Context) string {
	v, _ := ctx.Value(tenantContextKey{}).(string)
	return v
}

func asOpenError(err error, target **circuitbreaker.OpenError) bool {
	oe, ok := err.(*circuitbreaker.OpenError)
	if ok {
		*target = oe
	}
	return ok
}
