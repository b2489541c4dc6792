// Package pipeline turns a batch of research files into per-file insight
// lists: each file is split into blocks, each block is composed with its
// KPI context and sent through the guarded extractor, and the sanitized
// records are deduplicated per file.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/insights-cli/internal/aggregate"
	"github.com/sells-group/insights-cli/internal/chunk"
	"github.com/sells-group/insights-cli/internal/compose"
	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/cost"
	"github.com/sells-group/insights-cli/internal/extract"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/sanitize"
	"github.com/sells-group/insights-cli/internal/survey"
)

// Options bounds block size, output caps, and fan-out.
type Options struct {
	MaxChars         int
	BlockCap         int
	FileCap          int
	BlockConcurrency int
	FileConcurrency  int
}

// OptionsFrom reads pipeline options from the extract settings.
func OptionsFrom(cfg config.ExtractConfig) Options {
	return Options{
		MaxChars:         cfg.MaxChars,
		BlockCap:         cfg.BlockCap,
		FileCap:          cfg.FileCap,
		BlockConcurrency: cfg.BlockConcurrency,
		FileConcurrency:  cfg.FileConcurrency,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxChars <= 0 {
		o.MaxChars = chunk.DefaultMaxChars
	}
	if o.BlockCap <= 0 {
		o.BlockCap = sanitize.DefaultCap
	}
	if o.FileCap <= 0 {
		o.FileCap = aggregate.DefaultFileCap
	}
	if o.BlockConcurrency <= 0 {
		o.BlockConcurrency = 1
	}
	if o.FileConcurrency <= 0 {
		o.FileConcurrency = 1
	}
	return o
}

// Pipeline runs analysis requests. A Pipeline without a guard (no model
// credential) answers every file with an empty insight list.
type Pipeline struct {
	guard    *extract.Guard
	provider string
	model    string
	opts     Options
	splitter chunk.Splitter
	costCalc *cost.Calculator
	now      func() time.Time
}

// New creates a Pipeline. guard may be nil.
func New(guard *extract.Guard, provider, modelID string, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		guard:    guard,
		provider: provider,
		model:    modelID,
		opts:     opts,
		splitter: chunk.New(opts.MaxChars),
		costCalc: cost.NewCalculator(cost.DefaultRates()),
		now:      time.Now,
	}
}

// Provider returns the configured provider name.
func (p *Pipeline) Provider() string { return p.provider }

// Model returns the configured model ID.
func (p *Pipeline) Model() string { return p.model }

type fileOutcome struct {
	blocks int
	failed int
	usage  model.TokenUsage
}

// Analyze returns one result per input file, in input order. It never fails:
// files whose blocks could not be extracted come back with fewer or no
// insights.
func (p *Pipeline) Analyze(ctx context.Context, req model.AnalysisRequest) ([]model.AnalysisResult, model.RunStats) {
	start := p.now()
	results := make([]model.AnalysisResult, len(req.Files))
	stats := model.RunStats{Files: len(req.Files)}

	if p.guard == nil {
		zap.L().Warn("pipeline: no model credential, returning empty results",
			zap.String("provider", p.provider),
			zap.Int("files", len(req.Files)),
		)
		for i, f := range req.Files {
			results[i] = model.AnalysisResult{Filename: f.Filename, Insights: []model.Insight{}}
		}
		stats.DurationMs = p.now().Sub(start).Milliseconds()
		return results, stats
	}

	zap.L().Info("pipeline: analyzing files",
		zap.Int("files", len(req.Files)),
		zap.String("provider", p.provider),
		zap.String("model", p.model),
	)

	outcomes := make([]fileOutcome, len(req.Files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.FileConcurrency)

	for i, f := range req.Files {
		g.Go(func() error {
			results[i], outcomes[i] = p.analyzeFile(gCtx, f, req.KPIs)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		stats.Blocks += o.blocks
		stats.FailedBlocks += o.failed
		stats.Insights += len(results[i].Insights)
		stats.TokenUsage.Add(o.usage)
	}
	stats.EstimatedCost = p.costCalc.Estimate(p.provider, p.model, stats.TokenUsage)
	stats.DurationMs = p.now().Sub(start).Milliseconds()

	zap.L().Info("pipeline: analysis complete",
		zap.Int("files", stats.Files),
		zap.Int("blocks", stats.Blocks),
		zap.Int("failed_blocks", stats.FailedBlocks),
		zap.Int("insights", stats.Insights),
		zap.Int("tokens", stats.TokenUsage.Total()),
		zap.Float64("estimated_cost_usd", stats.EstimatedCost),
		zap.Int64("duration_ms", stats.DurationMs),
	)
	return results, stats
}

// analyzeFile extracts every block of one file. Blocks run concurrently up to
// BlockConcurrency and land in indexed slots, so the aggregate keeps block
// order whatever the completion order.
func (p *Pipeline) analyzeFile(ctx context.Context, f model.FileInput, shared []model.KPI) (model.AnalysisResult, fileOutcome) {
	log := zap.L().With(zap.String("file", f.Filename))

	blocks, kpis := survey.BlocksForFile(f, p.splitter)
	if len(kpis) == 0 {
		kpis = shared
	}

	perBlock := make([][]model.Insight, len(blocks))
	usages := make([]model.TokenUsage, len(blocks))
	failed := make([]bool, len(blocks))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.BlockConcurrency)

	for j, block := range blocks {
		g.Go(func() error {
			recs, usage, ok := p.guard.Run(gCtx, compose.Compose(block, kpis))
			perBlock[j] = sanitize.Sanitize(recs, p.opts.BlockCap)
			usages[j] = usage
			failed[j] = !ok
			if !ok {
				log.Debug("pipeline: block yielded no records", zap.Int("block", j))
			}
			return nil
		})
	}
	_ = g.Wait()

	out := fileOutcome{blocks: len(blocks)}
	for j := range blocks {
		out.usage.Add(usages[j])
		if failed[j] {
			out.failed++
		}
	}

	insights := aggregate.Aggregate(perBlock, p.opts.FileCap)
	log.Info("pipeline: file analyzed",
		zap.String("category", string(f.Category)),
		zap.Int("blocks", out.blocks),
		zap.Int("failed_blocks", out.failed),
		zap.Int("insights", len(insights)),
	)
	return model.AnalysisResult{Filename: f.Filename, Insights: insights}, out
}
