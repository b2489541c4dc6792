package extract

import (
	"context"
	"sync/atomic"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/insights-cli/pkg/anthropic"
	"github.com/sells-group/insights-cli/pkg/gemini"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockGeminiClient struct {
	mock.Mock
}

func (m *mockGeminiClient) Generate(ctx context.Context, req gemini.GenerateRequest) (*gemini.GenerateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gemini.GenerateResponse), args.Error(1)
}

func (m *mockGeminiClient) Close() error {
	return m.Called().Error(0)
}

// stubExtractor answers every call with fn and counts invocations.
type stubExtractor struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, payload, modelID string) (*Result, error)
}

func (s *stubExtractor) Name() string {
	if s.name == "" {
		return "stub"
	}
	return s.name
}

func (s *stubExtractor) Extract(ctx context.Context, payload, modelID string) (*Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, payload, modelID)
}
