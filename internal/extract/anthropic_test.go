package extract

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/resilience"
	"github.com/sells-group/insights-cli/pkg/anthropic"
)

func textResponse(text string, usage anthropic.TokenUsage) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   usage,
	}
}

func TestAnthropicExtractor_Extract(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 1024 &&
			len(req.System) == 1 &&
			req.System[0].Text == SystemPrompt &&
			req.System[0].CacheControl != nil &&
			req.System[0].CacheControl.TTL == "1h" &&
			len(req.Messages) == 3 &&
			req.Messages[2].Role == "user" &&
			req.Messages[2].Content == "### DATA FOR ANALYSIS\nQUALITATIVE DATA\nslow app" &&
			req.Temperature != nil && *req.Temperature == 0.2
	})).Return(textResponse(
		`[{"quote":"slow app","topic":"Performance","sentiment":"negative","user_need":"Speed","evidence":"Qualitative"}]`,
		anthropic.TokenUsage{InputTokens: 100, OutputTokens: 40, CacheCreationInputTokens: 10, CacheReadInputTokens: 5},
	), nil)

	ext := NewAnthropicExtractor(client, AnthropicOptions{MaxTokens: 1024, Temperature: 0.2, CacheTTL: "1h"})
	res, err := ext.Extract(context.Background(), "QUALITATIVE DATA\nslow app", "claude-haiku-4-5-20251001")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", ext.Name())
	assert.Equal(t, jsonrepair.OutcomeValid, res.Outcome)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "slow app", res.Records[0]["quote"])
	assert.Equal(t, 115, res.Usage.InputTokens)
	assert.Equal(t, 40, res.Usage.OutputTokens)
	client.AssertExpectations(t)
}

func TestAnthropicExtractor_DefaultMaxTokens(t *testing.T) {
	ext := NewAnthropicExtractor(&mockAnthropicClient{}, AnthropicOptions{})
	assert.Equal(t, int64(2048), ext.opts.MaxTokens)
}

func TestAnthropicExtractor_CallCostUsesSharedRates(t *testing.T) {
	ext := NewAnthropicExtractor(&mockAnthropicClient{}, AnthropicOptions{})

	u := anthropic.TokenUsage{
		InputTokens:              1_000_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     1_000_000,
	}
	assert.InDelta(t, 1.00+0.50+1.25+0.10, ext.callCost("claude-haiku-4-5-20251001", u), 1e-9)
	assert.Zero(t, ext.callCost("claude-unknown", u))
}

func TestAnthropicExtractor_UnrecoverableText(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I cannot help with that.", anthropic.TokenUsage{InputTokens: 7, OutputTokens: 3}), nil)

	ext := NewAnthropicExtractor(client, AnthropicOptions{})
	res, err := ext.Extract(context.Background(), "payload", "m")
	require.NoError(t, err)
	assert.Equal(t, jsonrepair.OutcomeUnrecoverable, res.Outcome)
	assert.NotNil(t, res.Records)
	assert.Empty(t, res.Records)
	assert.Equal(t, 7, res.Usage.InputTokens)
}

func TestAnthropicExtractor_FencedResponse(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n[{\"quote\":\"a\",\"topic\":\"b\"},]\n```", anthropic.TokenUsage{}), nil)

	res, err := NewAnthropicExtractor(client, AnthropicOptions{}).Extract(context.Background(), "p", "m")
	require.NoError(t, err)
	assert.Equal(t, jsonrepair.OutcomeRepaired, res.Outcome)
	assert.Len(t, res.Records, 1)
}

func TestAnthropicExtractor_Error(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := NewAnthropicExtractor(client, AnthropicOptions{}).Extract(context.Background(), "p", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extract: anthropic")
	assert.False(t, resilience.IsTransient(err))
}

func apiError(status int) *sdk.Error {
	return &sdk.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func TestClassifyAnthropic(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{status: 529, transient: true},
		{status: 429, transient: true},
		{status: 503, transient: true},
		{status: 400, transient: false},
		{status: 401, transient: false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := classifyAnthropic(apiError(tt.status))
			assert.Equal(t, tt.transient, resilience.IsTransient(err))
		})
	}
}
