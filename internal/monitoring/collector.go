// Package monitoring watches the run history for failing or expensive
// extraction and reports breaches to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/insights-cli/internal/model"
	"github.com/sells-group/insights-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of extraction health.
type MetricsSnapshot struct {
	// Run metrics (within lookback window).
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	// Block metrics from completed runs. A failed block yields no insights
	// but never fails its run, so this is where a broken provider shows.
	Blocks        int     `json:"blocks"`
	FailedBlocks  int     `json:"failed_blocks"`
	BlockFailRate float64 `json:"block_fail_rate"`
	Insights      int     `json:"insights"`
	CostUSD       float64 `json:"cost_usd"`
	AvgTokens     int     `json:"avg_tokens"`
	AvgDurationMs int64   `json:"avg_duration_ms"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of the run store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run store.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot of run metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	snap.RunsTotal = len(runs)
	var totalTokens int
	var totalDur int64
	var withStats int

	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Stats == nil {
			continue
		}
		withStats++
		snap.Blocks += r.Stats.Blocks
		snap.FailedBlocks += r.Stats.FailedBlocks
		snap.Insights += r.Stats.Insights
		snap.CostUSD += r.Stats.EstimatedCost
		totalTokens += r.Stats.TokenUsage.Total()
		totalDur += r.Stats.DurationMs
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Blocks > 0 {
		snap.BlockFailRate = float64(snap.FailedBlocks) / float64(snap.Blocks)
	}
	if withStats > 0 {
		snap.AvgTokens = totalTokens / withStats
		snap.AvgDurationMs = totalDur / int64(withStats)
	}

	return snap, nil
}
