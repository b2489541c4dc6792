// Package gemini wraps the Google generative-ai-go client with the small
// request/response surface the extractor needs.
package gemini

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
)

// MIMEJSON asks the model for a JSON response body.
const MIMEJSON = "application/json"

// Client defines the Gemini operations used by the extractor.
type Client interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
	Close() error
}

// GenerateRequest is a single-turn generation request.
type GenerateRequest struct {
	Model             string
	Prompt            string
	SystemInstruction string
	Temperature       *float32
	TopP              *float32
	TopK              *int32
	MaxOutputTokens   *int32
	ResponseMIMEType  string
	ResponseSchema    *genai.Schema
}

// GenerateResponse carries the concatenated text of the first candidate.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports prompt and candidate token counts.
type TokenUsage struct {
	PromptTokens    int
	CandidateTokens int
}

type sdkClient struct {
	client *genai.Client
}

// NewClient creates a Gemini client authenticated with apiKey.
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (Client, error) {
	if apiKey == "" {
		return nil, eris.New("gemini: api key is required")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &sdkClient{client: client}, nil
}

func (c *sdkClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	model := c.client.GenerativeModel(req.Model)
	configure(model, req)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, eris.Wrapf(err, "gemini: generate content (%s)", req.Model)
	}
	return fromSDKResponse(resp)
}

func (c *sdkClient) Close() error {
	return c.client.Close()
}

// configure copies the request's generation settings onto model.
func configure(model *genai.GenerativeModel, req GenerateRequest) {
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemInstruction)}}
	}
	if req.Temperature != nil {
		model.SetTemperature(*req.Temperature)
	}
	if req.TopP != nil {
		model.SetTopP(*req.TopP)
	}
	if req.TopK != nil {
		model.SetTopK(*req.TopK)
	}
	if req.MaxOutputTokens != nil {
		model.SetMaxOutputTokens(*req.MaxOutputTokens)
	}
	if req.ResponseMIMEType != "" {
		model.ResponseMIMEType = req.ResponseMIMEType
	}
	if req.ResponseSchema != nil {
		model.ResponseSchema = req.ResponseSchema
	}
}

func fromSDKResponse(resp *genai.GenerateContentResponse) (*GenerateResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, eris.New("gemini: empty candidates")
	}

	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	out := &GenerateResponse{
		Text:         sb.String(),
		FinishReason: cand.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			PromptTokens:    int(resp.UsageMetadata.PromptTokenCount),
			CandidateTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// Float32 returns a pointer to v.
func Float32(v float32) *float32 { return &v }

// Int32 returns a pointer to v.
func Int32(v int32) *int32 { return &v }
