package extract

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/insights-cli/internal/config"
	"github.com/sells-group/insights-cli/internal/jsonrepair"
	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/resilience"
)

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 60 * time.Second

// GuardConfig configures a Guard. Zero values disable retries and rate
// limiting and use the default timeout and circuit breaker settings.
type GuardConfig struct {
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	Circuit   resilience.CircuitBreakerConfig
	RateLimit float64 // calls per second, 0 = unlimited
	RateBurst int
}

// GuardConfigFrom builds a GuardConfig from the extract settings.
func GuardConfigFrom(cfg config.ExtractConfig, provider string) GuardConfig {
	retry := resilience.FromRetryConfig(cfg.MaxAttempts,
		time.Duration(cfg.InitialBackoffMs)*time.Millisecond,
		time.Duration(cfg.MaxBackoffMs)*time.Millisecond,
		0.25,
	)
	retry.OnRetry = resilience.RetryLogger(provider, "extract")

	circuit := resilience.FromCircuitConfig(cfg.CircuitThreshold, time.Duration(cfg.CircuitResetSecs)*time.Second)
	circuit.OnStateChange = resilience.StateLogger(provider)

	return GuardConfig{
		Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
		Retry:     retry,
		Circuit:   circuit,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}
}

// Guard wraps an Extractor so that a call never fails outward: timeouts,
// provider errors, open circuits, and unparseable responses all become an
// empty record list.
type Guard struct {
	ext     Extractor
	modelID string
	timeout time.Duration
	retry   resilience.RetryConfig
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuard creates a Guard around ext for the given model.
func NewGuard(ext Extractor, modelID string, cfg GuardConfig) *Guard {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	g := &Guard{
		ext:     ext,
		modelID: modelID,
		timeout: cfg.Timeout,
		retry:   cfg.Retry,
		breaker: resilience.NewCircuitBreaker(cfg.Circuit),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return g
}

// Provider returns the wrapped extractor's name.
func (g *Guard) Provider() string { return g.ext.Name() }

// Model returns the model ID passed to every call.
func (g *Guard) Model() string { return g.modelID }

// Breaker exposes the circuit breaker for health reporting.
func (g *Guard) Breaker() *resilience.CircuitBreaker { return g.breaker }

// Run extracts records for payload. It never returns an error; ok is false
// when the call failed or the response could not be repaired. Token usage is
// reported whenever the model answered.
func (g *Guard) Run(ctx context.Context, payload string) ([]model.RawRecord, model.TokenUsage, bool) {
	start := time.Now()
	res, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*Result, error) {
		return resilience.ExecuteVal(ctx, g.breaker, g.call(payload))
	})
	if err != nil {
		zap.L().Warn("extract: model call failed",
			zap.String("provider", g.ext.Name()),
			zap.String("model", g.modelID),
			zap.String("class", resilience.Classify(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return []model.RawRecord{}, model.TokenUsage{}, false
	}

	if res.Outcome == jsonrepair.OutcomeUnrecoverable {
		zap.L().Warn("extract: unrecoverable model response",
			zap.String("provider", g.ext.Name()),
			zap.String("model", g.modelID),
		)
		return []model.RawRecord{}, res.Usage, false
	}
	if res.Outcome == jsonrepair.OutcomeRepaired {
		zap.L().Debug("extract: repaired model response", zap.String("provider", g.ext.Name()))
	}

	recs := res.Records
	if recs == nil {
		recs = []model.RawRecord{}
	}
	return recs, res.Usage, true
}

func (g *Guard) call(payload string) func(ctx context.Context) (*Result, error) {
	return func(ctx context.Context) (*Result, error) {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: request cancelled")
		}
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "extract: rate limit wait")
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		res, err := g.ext.Extract(callCtx, payload, g.modelID)
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
				return nil, resilience.NewTransientError(eris.Wrapf(err, "extract: timed out after %s", g.timeout), 0)
			}
			return nil, err
		}
		if res == nil {
			return nil, eris.New("extract: nil result")
		}
		return res, nil
	}
}
