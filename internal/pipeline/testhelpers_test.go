package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/sells-group/insights-cli/internal/extract"
	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/model"
)

// echoExtractor turns every qualitative line of the payload into one record.
// Lines containing FAIL make the call fail; lines containing SLOW delay it.
type echoExtractor struct {
	mu       sync.Mutex
	payloads []string
	usage    model.TokenUsage
	perLine  int
}

func (e *echoExtractor) Name() string { return "gemini" }

func (e *echoExtractor) Extract(ctx context.Context, payload, _ string) (*extract.Result, error) {
	e.mu.Lock()
	e.payloads = append(e.payloads, payload)
	e.mu.Unlock()

	lines := qualitativeLines(payload)
	var recs []model.RawRecord
	for _, ln := range lines {
		if strings.Contains(ln, "FAIL") {
			return nil, errors.New("model unavailable")
		}
		if strings.Contains(ln, "SLOW") {
			select {
			case <-time.After(30 * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		n := e.perLine
		if n <= 0 {
			n = 1
		}
		for k := range n {
			quote := ln
			if k > 0 {
				quote = ln + " #" + string(rune('a'+k))
			}
			recs = append(recs, model.RawRecord{"quote": quote, "topic": "Topic", "sentiment": "negativo"})
		}
	}
	return &extract.Result{Records: recs, Usage: e.usage, Outcome: jsonrepair.OutcomeValid}, nil
}

func (e *echoExtractor) seen() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.payloads))
	copy(out, e.payloads)
	return out
}

func qualitativeLines(payload string) []string {
	body := strings.TrimPrefix(payload, "QUALITATIVE DATA\n")
	if i := strings.Index(body, "\n\n---\n"); i >= 0 {
		body = body[:i]
	}
	var out []string
	for _, ln := range strings.Split(body, "\n") {
		ln = strings.TrimSpace(ln)
		if ln == "" || strings.HasPrefix(ln, "Question:") {
			continue
		}
		out = append(out, ln)
	}
	return out
}

func newTestPipeline(ext extract.Extractor, opts Options) *Pipeline {
	guard := extract.NewGuard(ext, "gemini-1.5-flash-8b", extract.GuardConfig{Timeout: time.Second})
	return New(guard, "gemini", "gemini-1.5-flash-8b", opts)
}
