package extract

import (
	"context"
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/cost"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/resilience"
	"github.com/sells-group/insights-cli/pkg/anthropic"
)

// AnthropicOptions tunes Claude requests.
type AnthropicOptions struct {
	MaxTokens   int64
	Temperature float64
	CacheTTL    string
}

// AnthropicExtractor extracts insights with Claude. The system prompt is sent
// as a cached block and preceded by a worked example exchange.
type AnthropicExtractor struct {
	client anthropic.Client
	opts   AnthropicOptions
	costs  *cost.Calculator
}

// NewAnthropicExtractor creates an extractor over an Anthropic client.
func NewAnthropicExtractor(client anthropic.Client, opts AnthropicOptions) *AnthropicExtractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &AnthropicExtractor{client: client, opts: opts, costs: cost.NewCalculator(cost.DefaultRates())}
}

func (e *AnthropicExtractor) Name() string { return config.ProviderAnthropic }

func (e *AnthropicExtractor) Extract(ctx context.Context, payload, modelID string) (*Result, error) {
	temp := e.opts.Temperature
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   e.opts.MaxTokens,
		System:      anthropic.BuildCachedSystemBlocks(SystemPrompt, e.opts.CacheTTL),
		Messages:    anthropic.FewShot(fewShot, userPrompt(payload)),
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyAnthropic(err)
	}

	e.logUsage(modelID, resp.Usage)
	usage := model.TokenUsage{
		InputTokens:  int(resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}
	return parse(resp.Text(), usage), nil
}

// callCost prices one response, counting prompt cache writes and reads.
func (e *AnthropicExtractor) callCost(modelID string, u anthropic.TokenUsage) float64 {
	return e.costs.Claude(modelID,
		int(u.InputTokens), int(u.OutputTokens),
		int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens),
	)
}

func (e *AnthropicExtractor) logUsage(modelID string, u anthropic.TokenUsage) {
	zap.L().Debug("extract: anthropic usage",
		zap.String("model", modelID),
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int64("cache_write_tokens", u.CacheCreationInputTokens),
		zap.Int64("cache_read_tokens", u.CacheReadInputTokens),
		zap.Float64("estimated_cost_usd", e.callCost(modelID, u)),
	)
}

// classifyAnthropic marks retryable API statuses as transient.
func classifyAnthropic(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
		return resilience.NewTransientError(eris.Wrap(err, "extract: anthropic"), apiErr.StatusCode)
	}
	return eris.Wrap(err, "extract: anthropic")
}
