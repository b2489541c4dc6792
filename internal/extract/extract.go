// Package extract turns a composed block payload into raw insight records
// by calling a language model, and guards those calls so a failing provider
// degrades to empty results.
package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/pkg/anthropic"
	"github.com/sells-group/insights-cli/pkg/gemini"
)

// Extractor calls one model provider for one block payload.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, payload, modelID string) (*Result, error)
}

// Result is the parsed outcome of one model call. Records is empty when the
// response could not be repaired into a JSON array.
type Result struct {
	Records []model.RawRecord
	Usage   model.TokenUsage
	Outcome jsonrepair.Outcome
}

// New builds the extractor for the configured provider, wrapped in a
// response cache when caching is enabled. It returns
// config.ErrMissingCredential when the provider has no API key.
func New(ctx context.Context, cfg *config.Config) (Extractor, error) {
	if !cfg.HasKey() {
		return nil, eris.Wrapf(config.ErrMissingCredential, "extract: provider %s", cfg.Provider)
	}

	var ext Extractor
	switch cfg.Provider {
	case config.ProviderAnthropic:
		ext = NewAnthropicExtractor(anthropic.NewClient(cfg.Anthropic.Key), AnthropicOptions{
			MaxTokens:   int64(cfg.Anthropic.MaxTokens),
			Temperature: cfg.Extract.Temperature,
			CacheTTL:    cfg.Anthropic.CacheTTL,
		})
	case config.ProviderGemini, "":
		client, err := gemini.NewClient(ctx, cfg.Gemini.Key)
		if err != nil {
			return nil, eris.Wrap(err, "extract: gemini client")
		}
		ext = NewGeminiExtractor(client, GeminiOptions{
			Temperature: float32(cfg.Extract.Temperature),
			TopP:        float32(cfg.Extract.TopP),
			TopK:        int32(cfg.Extract.TopK),
			MaxTokens:   int32(cfg.Gemini.MaxOutputTokens),
			SystemRole:  cfg.Gemini.SystemInstruction,
		})
	default:
		return nil, eris.Errorf("extract: unknown provider %q", cfg.Provider)
	}

	if cfg.Cache.Enabled {
		ext = NewCachedExtractor(ext, cfg.Cache.Size, time.Duration(cfg.Cache.TTLMins)*time.Minute)
	}
	return ext, nil
}

// userPrompt formats a payload as the user turn shared by both providers.
func userPrompt(payload string) string {
	return "### DATA FOR ANALYSIS\n" + payload
}

// parse repairs the model text into records. An unrecoverable response is
// not an error: it yields an empty record list with OutcomeUnrecoverable.
func parse(text string, usage model.TokenUsage) *Result {
	records, outcome, err := jsonrepair.ParseRecords(text)
	if err != nil {
		return &Result{Records: []model.RawRecord{}, Usage: usage, Outcome: jsonrepair.OutcomeUnrecoverable}
	}
	return &Result{Records: records, Usage: usage, Outcome: outcome}
}
