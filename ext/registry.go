package ext

import (
	"context"
	"log/slog"
	"time"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type runStartedEntry struct {
	name string
	hook RunStarted
}

type levelStartedEntry struct {
	name string
	hook LevelStarted
}

type stepStartedEntry struct {
	name string
	hook StepStarted
}

type stepCompletedEntry struct {
	name string
	hook StepCompleted
}

type stepFailedEntry struct {
	name string
	hook StepFailed
}

type recordFailedEntry struct {
	name string
	hook RecordFailed
}

type checkpointSavedEntry struct {
	name string
	hook CheckpointSaved
}

type runCompletedEntry struct {
	name string
	hook RunCompleted
}

type runFailedEntry struct {
	name string
	hook RunFailed
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	runStarted      []runStartedEntry
	levelStarted    []levelStartedEntry
	stepStarted     []stepStartedEntry
	stepCompleted   []stepCompletedEntry
	stepFailed      []stepFailedEntry
	recordFailed    []recordFailedEntry
	checkpointSaved []checkpointSavedEntry
	runCompleted    []runCompletedEntry
	runFailed       []runFailedEntry
	shutdown        []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RunStarted); ok {
		r.runStarted = append(r.runStarted, runStartedEntry{name, h})
	}
	if h, ok := e.(LevelStarted); ok {
		r.levelStarted = append(r.levelStarted, levelStartedEntry{name, h})
	}
	if h, ok := e.(StepStarted); ok {
		r.stepStarted = append(r.stepStarted, stepStartedEntry{name, h})
	}
	if h, ok := e.(StepCompleted); ok {
		r.stepCompleted = append(r.stepCompleted, stepCompletedEntry{name, h})
	}
	if h, ok := e.(StepFailed); ok {
		r.stepFailed = append(r.stepFailed, stepFailedEntry{name, h})
	}
	if h, ok := e.(RecordFailed); ok {
		r.recordFailed = append(r.recordFailed, recordFailedEntry{name, h})
	}
	if h, ok := e.(CheckpointSaved); ok {
		r.checkpointSaved = append(r.checkpointSaved, checkpointSavedEntry{name, h})
	}
	if h, ok := e.(RunCompleted); ok {
		r.runCompleted = append(r.runCompleted, runCompletedEntry{name, h})
	}
	if h, ok := e.(RunFailed); ok {
		r.runFailed = append(r.runFailed, runFailedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Event emitters
// ──────────────────────────────────────────────────

// EmitRunStarted notifies all extensions that implement RunStarted.
func (r *Registry) EmitRunStarted(ctx context.Context, run RunInfo) {
	for _, e := range r.runStarted {
		if err := e.hook.OnRunStarted(ctx, run); err != nil {
			r.logHookError("OnRunStarted", e.name, err)
		}
	}
}

// EmitLevelStarted notifies all extensions that implement LevelStarted.
func (r *Registry) EmitLevelStarted(ctx context.Context, run RunInfo, level int, stepIDs []string) {
	for _, e := range r.levelStarted {
		if err := e.hook.OnLevelStarted(ctx, run, level, stepIDs); err != nil {
			r.logHookError("OnLevelStarted", e.name, err)
		}
	}
}

// EmitStepStarted notifies all extensions that implement StepStarted.
func (r *Registry) EmitStepStarted(ctx context.Context, run RunInfo, stepID string) {
	for _, e := range r.stepStarted {
		if err := e.hook.OnStepStarted(ctx, run, stepID); err != nil {
			r.logHookError("OnStepStarted", e.name, err)
		}
	}
}

// EmitStepCompleted notifies all extensions that implement StepCompleted.
func (r *Registry) EmitStepCompleted(ctx context.Context, run RunInfo, summary *pipeline.StepSummary) {
	for _, e := range r.stepCompleted {
		if err := e.hook.OnStepCompleted(ctx, run, summary); err != nil {
			r.logHookError("OnStepCompleted", e.name, err)
		}
	}
}

// EmitStepFailed notifies all extensions that implement StepFailed.
func (r *Registry) EmitStepFailed(ctx context.Context, run RunInfo, stepID string, stepErr error) {
	for _, e := range r.stepFailed {
		if err := e.hook.OnStepFailed(ctx, run, stepID, stepErr); err != nil {
			r.logHookError("OnStepFailed", e.name, err)
		}
	}
}

// EmitRecordFailed notifies all extensions that implement RecordFailed.
func (r *Registry) EmitRecordFailed(ctx context.Context, run RunInfo, stepID, recordID, message string) {
	for _, e := range r.recordFailed {
		if err := e.hook.OnRecordFailed(ctx, run, stepID, recordID, message); err != nil {
			r.logHookError("OnRecordFailed", e.name, err)
		}
	}
}

// EmitCheckpointSaved notifies all extensions that implement CheckpointSaved.
func (r *Registry) EmitCheckpointSaved(ctx context.Context, run RunInfo, stepID string, done int) {
	for _, e := range r.checkpointSaved {
		if err := e.hook.OnCheckpointSaved(ctx, run, stepID, done); err != nil {
			r.logHookError("OnCheckpointSaved", e.name, err)
		}
	}
}

// EmitRunCompleted notifies all extensions that implement RunCompleted.
func (r *Registry) EmitRunCompleted(ctx context.Context, run RunInfo, result *pipeline.Result, elapsed time.Duration) {
	for _, e := range r.runCompleted {
		if err := e.hook.OnRunCompleted(ctx, run, result, elapsed); err != nil {
			r.logHookError("OnRunCompleted", e.name, err)
		}
	}
}

// EmitRunFailed notifies all extensions that implement RunFailed.
func (r *Registry) EmitRunFailed(ctx context.Context, run RunInfo, runErr error) {
	for _, e := range r.runFailed {
		if err := e.hook.OnRunFailed(ctx, run, runErr); err != nil {
			r.logHookError("OnRunFailed", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the run.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
