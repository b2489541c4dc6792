package model

import "time"

// RunStatus represents the current state of an analysis run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// FileRef identifies a file analysed in a run without keeping its content.
type FileRef struct {
	Filename string   `json:"filename"`
	Category Category `json:"category"`
	Bytes    int      `json:"bytes"`
}

// RefsFor builds file references for a request.
func RefsFor(files []FileInput) []FileRef {
	refs := make([]FileRef, len(files))
	for i, f := range files {
		refs[i] = FileRef{Filename: f.Filename, Category: f.Category, Bytes: len(f.Content)}
	}
	return refs
}

// RunStats summarizes the work done for one analysis request.
type RunStats struct {
	Files         int        `json:"files"`
	Blocks        int        `json:"blocks"`
	FailedBlocks  int        `json:"failed_blocks"`
	Insights      int        `json:"insights"`
	TokenUsage    TokenUsage `json:"token_usage"`
	EstimatedCost float64    `json:"estimated_cost_usd"`
	DurationMs    int64      `json:"duration_ms"`
}

// Run represents a single recorded analysis request.
type Run struct {
	ID        string           `json:"id"`
	Files     []FileRef        `json:"files"`
	Status    RunStatus        `json:"status"`
	Provider  string           `json:"provider"`
	Model     string           `json:"model"`
	Results   []AnalysisResult `json:"results,omitempty"`
	Stats     *RunStats        `json:"stats,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// InsightCount returns the number of insights across all results.
func (r *Run) InsightCount() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Insights)
	}
	return n
}
