package failure

import (
	"time"

	"github.com/DecentralizedGeo/stac-manager-sub002/id"
)

// Entry records one non-fatal, item-level failure: which record, at
// which step, and why.
type Entry struct {
	ID       id.FailureID `json:"id"`
	RecordID string       `json:"record_id"`
	StepID   string       `json:"step_id"`
	Message  string       `json:"message"`
	FailedAt time.Time    `json:"failed_at"`
}

// Summary is the per-step failure accounting for a run.
type Summary struct {
	Total  int            `json:"total"`
	ByStep map[string]int `json:"by_step"`
}

// Report is the durable artifact materialized once at run end, one
// entry per collected failure.
type Report struct {
	ID        id.ReportID `json:"id"`
	Workflow  string      `json:"workflow"`
	RunID     string      `json:"run_id"`
	CreatedAt time.Time   `json:"created_at"`
	Summary   Summary     `json:"summary"`
	Entries   []*Entry    `json:"entries"`
}
