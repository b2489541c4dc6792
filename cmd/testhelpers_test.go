//go:build !integration

package main

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/insights-cli/internal/extract"
	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/pipeline"
	"github.com/sells-group/insights-cli/internal/store"
)

// fixedExtractor answers every block with the same single record.
type fixedExtractor struct {
	calls atomic.Int32
}

func (e *fixedExtractor) Name() string { return "gemini" }

func (e *fixedExtractor) Extract(_ context.Context, _, _ string) (*extract.Result, error) {
	e.calls.Add(1)
	return &extract.Result{
		Records: []model.RawRecord{{
			"quote":     "Checkout takes forever",
			"topic":     "Checkout",
			"sentiment": "negative",
			"user_need": "Faster checkout",
			"evidence":  "Mentioned twice",
		}},
		Usage:   model.TokenUsage{InputTokens: 100, OutputTokens: 20},
		Outcome: jsonrepair.OutcomeValid,
	}, nil
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "insights.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// newTestRecorder builds a recorder around ext. A nil ext behaves like a
// missing credential.
func newTestRecorder(ext extract.Extractor, st store.Store) *pipeline.Recorder {
	var guard *extract.Guard
	if ext != nil {
		guard = extract.NewGuard(ext, "test-model", extract.GuardConfig{})
	}
	p := pipeline.New(guard, "gemini", "test-model", pipeline.Options{})
	return pipeline.NewRecorder(p, st)
}

// docxBytes builds a minimal .docx with one paragraph per line.
func docxBytes(t *testing.T, lines ...string) []byte {
	t.Helper()
	var body string
	for _, ln := range lines {
		body += "<w:p><w:r><w:t>" + ln + "</w:t></w:r></w:p>"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}
