package domain

import "time"

// Per-photo outcome states inside a BatchReport.
const (
	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

// ExecutionResult records the outcome for a single photo: where its output
// landed, or which step rejected it and why. StepIndex is -1 unless a step
// failed.
type ExecutionResult struct {
	Photo        string `json:"photo"`
	Status       string `json:"status"`
	OutputPath   string `json:"output_path,omitempty"`
	SourceBytes  int64  `json:"source_bytes,omitempty"`
	BytesWritten int64  `json:"bytes_written,omitempty"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
	StepIndex    int    `json:"step_index"`
	Reason       string `json:"reason,omitempty"`
}

// BatchReport aggregates one executor run. Results preserve input order
// regardless of worker completion order; Partial marks a cancelled run.
type BatchReport struct {
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	Skipped   int               `json:"skipped"`
	Partial   bool              `json:"partial"`
	Results   []ExecutionResult `json:"results"`
	Elapsed   time.Duration     `json:"elapsed_ns"`
}

// Status maps the report onto a batch status for persistence and webhooks.
func (r BatchReport) Status() string {
	switch {
	case r.Partial:
		return BatchStatusPartial
	case r.Failed > 0 && r.Succeeded == 0:
		return BatchStatusFailed
	case r.Failed > 0:
		return BatchStatusPartial
	default:
		return BatchStatusSucceeded
	}
}
