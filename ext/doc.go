// Package ext defines the extension system for the pipeline engine.
//
// Extensions are notified of lifecycle events and can react to them —
// recording metrics, emitting webhooks, writing audit logs, etc.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnStepCompleted(ctx context.Context, run ext.RunInfo, s *pipeline.StepSummary) error {
//	    log.Printf("step %s: %d in, %d out", s.StepID, s.In, s.Out)
//	    return nil
//	}
//
// # Run Lifecycle Hooks
//
//   - [RunStarted] — a workflow run began
//   - [LevelStarted] — a dependency level's steps were started
//   - [StepStarted] — a step began processing
//   - [StepCompleted] — a step drained its input and finalized
//   - [StepFailed] — a step failed fatally
//   - [RecordFailed] — a record was routed to the failure collector
//   - [CheckpointSaved] — a step's progress was persisted
//   - [RunCompleted] — the run finished (with or without record failures)
//   - [RunFailed] — the run aborted on a fatal error
//   - [Shutdown] — the engine is shutting down
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never propagated, so a misbehaving extension cannot fail a run.
package ext
