package ext

import (
	"context"
	"time"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// RunInfo identifies the run an event belongs to.
type RunInfo struct {
	Workflow string
	RunID    string
}

// ──────────────────────────────────────────────────
// Run lifecycle hooks
// ──────────────────────────────────────────────────

// RunStarted is called when a workflow run begins, after the execution
// plan is built and units are constructed.
type RunStarted interface {
	OnRunStarted(ctx context.Context, run RunInfo) error
}

// LevelStarted is called as each dependency level's steps are started.
type LevelStarted interface {
	OnLevelStarted(ctx context.Context, run RunInfo, level int, stepIDs []string) error
}

// StepStarted is called when a step begins processing.
type StepStarted interface {
	OnStepStarted(ctx context.Context, run RunInfo, stepID string) error
}

// StepCompleted is called after a step drains its input and finalizes.
type StepCompleted interface {
	OnStepCompleted(ctx context.Context, run RunInfo, summary *pipeline.StepSummary) error
}

// StepFailed is called when a step fails fatally, aborting the run.
type StepFailed interface {
	OnStepFailed(ctx context.Context, run RunInfo, stepID string, err error) error
}

// RecordFailed is called when a record is routed to the failure collector.
type RecordFailed interface {
	OnRecordFailed(ctx context.Context, run RunInfo, stepID, recordID, message string) error
}

// CheckpointSaved is called after a step's progress is durably persisted.
type CheckpointSaved interface {
	OnCheckpointSaved(ctx context.Context, run RunInfo, stepID string, done int) error
}

// RunCompleted is called when a run finishes, including runs that
// completed with record-level failures.
type RunCompleted interface {
	OnRunCompleted(ctx context.Context, run RunInfo, result *pipeline.Result, elapsed time.Duration) error
}

// RunFailed is called when a run aborts on a fatal error.
type RunFailed interface {
	OnRunFailed(ctx context.Context, run RunInfo, err error) error
}

// Shutdown is called during graceful engine shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
