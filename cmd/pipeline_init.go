package main

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/doctext"
	"github.com/sells-group/insights-cli/internal/extract"
	"github.com/sells-group/insights-cli/internal/pipeline"
	"github.com/sells-group/insights-cli/internal/store"
)

// pipelineEnv holds the run store and the recorded pipeline needed by the
// extract/serve/mcp commands.
type pipelineEnv struct {
	Store    store.Store
	Recorder *pipeline.Recorder
	Docs     *doctext.Reader
	closer   io.Closer
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.closer != nil {
		if err := pe.closer.Close(); err != nil {
			zap.L().Warn("close extractor", zap.Error(err))
		}
	}
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the config for mode, opens the store, and builds
// the pipeline. A missing model credential is not fatal: every file then
// gets an empty result. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	env := &pipelineEnv{Store: st, Docs: initDocs(cfg)}

	guard, closer, err := initGuard(ctx, cfg)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	env.closer = closer

	p := pipeline.New(guard, cfg.Provider, cfg.ModelID(), pipeline.OptionsFrom(cfg.Extract))
	env.Recorder = pipeline.NewRecorder(p, st)

	zap.L().Info("pipeline ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.ModelID()),
		zap.Bool("has_key", guard != nil),
		zap.String("store", cfg.Store.Driver),
	)
	return env, nil
}

// initGuard builds the guarded extractor. It returns a nil guard when the
// provider has no credential.
func initGuard(ctx context.Context, c *config.Config) (*extract.Guard, io.Closer, error) {
	ext, err := extract.New(ctx, c)
	if eris.Is(err, config.ErrMissingCredential) {
		zap.L().Warn("no model credential configured; extraction will return empty results",
			zap.String("provider", c.Provider),
		)
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, eris.Wrap(err, "init extractor")
	}

	guard := extract.NewGuard(ext, c.ModelID(), extract.GuardConfigFrom(c.Extract, c.Provider))

	closer, _ := ext.(io.Closer)
	return guard, closer, nil
}

// initDocs builds the transcript document reader. When the PDF backend cannot
// be configured, PDFs are rejected and other documents still work.
func initDocs(c *config.Config) *doctext.Reader {
	pdf, err := doctext.NewPDFExtractor(c.Documents)
	if err != nil {
		zap.L().Warn("pdf extraction disabled", zap.Error(err))
		return doctext.NewReader(nil)
	}
	return doctext.NewReader(pdf)
}
