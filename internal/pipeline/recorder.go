package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/store"
)

// Recorder runs the pipeline and keeps a history of each request in the run
// store. Store failures are logged and never change the analysis output.
type Recorder struct {
	pipeline *Pipeline
	store    store.Store
}

// NewRecorder wraps p. A nil store disables bookkeeping.
func NewRecorder(p *Pipeline, st store.Store) *Recorder {
	return &Recorder{pipeline: p, store: st}
}

// Pipeline returns the wrapped pipeline.
func (r *Recorder) Pipeline() *Pipeline { return r.pipeline }

// Analyze runs the request and discards the run ID.
func (r *Recorder) Analyze(ctx context.Context, req model.AnalysisRequest) ([]model.AnalysisResult, model.RunStats) {
	_, results, stats := r.Run(ctx, req)
	return results, stats
}

// Run analyzes req and records it. The returned run ID is empty when the
// run could not be recorded.
func (r *Recorder) Run(ctx context.Context, req model.AnalysisRequest) (string, []model.AnalysisResult, model.RunStats) {
	if r.store == nil {
		results, stats := r.pipeline.Analyze(ctx, req)
		return "", results, stats
	}

	// bookkeeping outlives a cancelled request
	storeCtx := context.WithoutCancel(ctx)

	var runID string
	run, err := r.store.CreateRun(storeCtx, model.RefsFor(req.Files), r.pipeline.Provider(), r.pipeline.Model())
	if err != nil {
		zap.L().Warn("pipeline: failed to create run record", zap.Error(err))
	} else {
		runID = run.ID
	}

	results, stats := r.pipeline.Analyze(ctx, req)
	if runID == "" {
		return "", results, stats
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		if err := r.store.FailRun(storeCtx, runID, ctxErr.Error()); err != nil {
			zap.L().Warn("pipeline: failed to mark run failed", zap.String("run_id", runID), zap.Error(err))
		}
		return runID, results, stats
	}
	if err := r.store.CompleteRun(storeCtx, runID, results, stats); err != nil {
		zap.L().Warn("pipeline: failed to record run results", zap.String("run_id", runID), zap.Error(err))
	}
	return runID, results, stats
}
