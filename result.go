package pipeline

import "time"

// Status is the terminal state of a workflow run.
type Status string

const (
	// StatusCompleted means every level ran and no failures were
	// recorded.
	StatusCompleted Status = "completed"

	// StatusCompletedWithFailures means every level ran but one or
	// more records were routed to the failure collector.
	StatusCompletedWithFailures Status = "completed_with_failures"

	// StatusFailed means a fatal error aborted the run.
	StatusFailed Status = "failed"
)

// StepSummary reports one step's record accounting for a run.
type StepSummary struct {
	StepID string `json:"step_id"`
	Unit   string `json:"unit"`

	// In counts records pulled from the step's input stream.
	// Zero for sources.
	In int64 `json:"in"`

	// Out counts records the step emitted downstream.
	// Zero for sinks.
	Out int64 `json:"out"`

	// Failed counts records routed to the failure collector.
	Failed int64 `json:"failed"`

	// Skipped counts records skipped on resume because a checkpoint
	// marked them done.
	Skipped int64 `json:"skipped,omitempty"`

	// Output is the summary value a Sink returned from Finalize.
	Output any `json:"output,omitempty"`

	Elapsed time.Duration `json:"elapsed"`
}

// Result is what a workflow run hands back to the caller. The status
// maps externally to process exit codes; that mapping is the CLI's
// concern, not the engine's.
type Result struct {
	Workflow string `json:"workflow"`
	RunID    string `json:"run_id"`
	Status   Status `json:"status"`

	// Failures is the total count of non-fatal per-record failures.
	Failures int `json:"failures"`

	// ReportPath points at the durable failure report for this run,
	// when one was written.
	ReportPath string `json:"report_path,omitempty"`

	// Error carries the fatal error message when Status is
	// StatusFailed.
	Error string `json:"error,omitempty"`

	// Interrupted is set when the run exited early on a cooperative
	// stop signal.
	Interrupted bool `json:"interrupted,omitempty"`

	Steps map[string]*StepSummary `json:"steps"`

	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Elapsed returns the wall-clock duration of the run.
func (r *Result) Elapsed() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}
