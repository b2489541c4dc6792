package extract

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"google.golang.org/api/googleapi"

	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/resilience"
	"github.com/sells-group/insights-cli/pkg/gemini"
)

// GeminiOptions holds generation settings for Gemini requests.
type GeminiOptions struct {
	Temperature float32
	TopP        float32
	TopK        int32
	MaxTokens   int32
	// SystemRole sends SystemPrompt as a system instruction. Otherwise it is
	// prepended to the payload in a single user turn.
	SystemRole bool
}

// GeminiExtractor extracts insights with Gemini structured output.
type GeminiExtractor struct {
	client gemini.Client
	opts   GeminiOptions
}

// NewGeminiExtractor creates an extractor over a Gemini client.
func NewGeminiExtractor(client gemini.Client, opts GeminiOptions) *GeminiExtractor {
	return &GeminiExtractor{client: client, opts: opts}
}

func (e *GeminiExtractor) Name() string { return config.ProviderGemini }

func (e *GeminiExtractor) Extract(ctx context.Context, payload, modelID string) (*Result, error) {
	req := gemini.GenerateRequest{
		Model:            modelID,
		Prompt:           SystemPrompt + "\n\n" + userPrompt(payload),
		Temperature:      gemini.Float32(e.opts.Temperature),
		ResponseMIMEType: gemini.MIMEJSON,
		ResponseSchema:   GenaiSchema(InsightSchema),
	}
	if e.opts.SystemRole {
		req.SystemInstruction = SystemPrompt
		req.Prompt = userPrompt(payload)
	}
	if e.opts.MaxTokens > 0 {
		req.MaxOutputTokens = gemini.Int32(e.opts.MaxTokens)
	}
	if e.opts.TopP > 0 {
		req.TopP = gemini.Float32(e.opts.TopP)
	}
	if e.opts.TopK > 0 {
		req.TopK = gemini.Int32(e.opts.TopK)
	}

	resp, err := e.client.Generate(ctx, req)
	if err != nil {
		return nil, classifyGemini(err)
	}

	usage := model.TokenUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CandidateTokens,
	}
	return parse(resp.Text, usage), nil
}

// Close releases the underlying client.
func (e *GeminiExtractor) Close() error {
	return e.client.Close()
}

func classifyGemini(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.Code) {
		return resilience.NewTransientError(eris.Wrap(err, "extract: gemini"), apiErr.Code)
	}
	return eris.Wrap(err, "extract: gemini")
}
