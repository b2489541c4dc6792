package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRecorder_RecordsCompletedRun(t *testing.T) {
	st := newTestStore(t)
	rec := NewRecorder(newTestPipeline(&echoExtractor{}, Options{}), st)

	req := model.AnalysisRequest{Files: []model.FileInput{transcript("a.txt", "hello there")}}
	runID, results, stats := rec.Run(context.Background(), req)
	require.NotEmpty(t, runID)
	assert.Equal(t, 1, stats.Insights)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, "gemini", run.Provider)
	assert.Equal(t, "gemini-1.5-flash-8b", run.Model)
	assert.Equal(t, []model.FileRef{{Filename: "a.txt", Category: model.CategoryTranscript, Bytes: 11}}, run.Files)
	assert.Equal(t, results, run.Results)
	require.NotNil(t, run.Stats)
	assert.Equal(t, 1, run.Stats.Blocks)
}

func TestRecorder_CancelledRunMarkedFailed(t *testing.T) {
	st := newTestStore(t)
	rec := NewRecorder(newTestPipeline(&echoExtractor{}, Options{}), st)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runID, results, _ := rec.Run(ctx, model.AnalysisRequest{Files: []model.FileInput{transcript("a.txt", "hi")}})
	require.NotEmpty(t, runID)
	require.Len(t, results, 1)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "context canceled", run.Error)
}

func TestRecorder_NilStore(t *testing.T) {
	rec := NewRecorder(newTestPipeline(&echoExtractor{}, Options{}), nil)

	runID, results, _ := rec.Run(context.Background(), model.AnalysisRequest{Files: []model.FileInput{transcript("a.txt", "hi")}})
	assert.Empty(t, runID)
	assert.Len(t, results, 1)

	results, _ = rec.Analyze(context.Background(), model.AnalysisRequest{Files: []model.FileInput{transcript("a.txt", "hi")}})
	assert.Len(t, results, 1)
}

// brokenStore fails every write.
type brokenStore struct {
	store.Store
}

func (brokenStore) CreateRun(context.Context, []model.FileRef, string, string) (*model.Run, error) {
	return nil, errors.New("disk full")
}

func TestRecorder_StoreFailureDoesNotChangeResults(t *testing.T) {
	p := newTestPipeline(&echoExtractor{}, Options{})
	req := model.AnalysisRequest{Files: []model.FileInput{transcript("a.txt", "keep me")}}

	want, _ := p.Analyze(context.Background(), req)
	runID, got, _ := NewRecorder(p, brokenStore{}).Run(context.Background(), req)

	assert.Empty(t, runID)
	assert.Equal(t, want, got)
	assert.Same(t, p, NewRecorder(p, nil).Pipeline())
}
