package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/checkpoint"
	"github.com/DecentralizedGeo/stac-manager-sub002/ext"
	"github.com/DecentralizedGeo/stac-manager-sub002/failure"
	"github.com/DecentralizedGeo/stac-manager-sub002/id"
	"github.com/DecentralizedGeo/stac-manager-sub002/stream"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

// summaries collects per-step accounting from concurrently running
// step goroutines.
type summaries struct {
	mu sync.Mutex
	m  map[string]*pipeline.StepSummary
}

func (s *summaries) set(sum *pipeline.StepSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sum.StepID] = sum
}

// runFailures is the FailureSink handed to units: every entry lands in
// the collector and fans out to extensions as a record-failed event.
type runFailures struct {
	ctx        context.Context
	collector  *failure.Collector
	extensions *ext.Registry
	run        ext.RunInfo
}

func (f *runFailures) Add(recordID, stepID, message string) {
	f.collector.Add(recordID, stepID, message)
	f.extensions.EmitRecordFailed(f.ctx, f.run, stepID, recordID, message)
}

// Run executes the workflow once and returns its result. The result
// is non-nil even on fatal errors, so callers always get the partial
// accounting.
func (e *Engine) Run(ctx context.Context) (*pipeline.Result, error) {
	return e.RunWithOverrides(ctx, nil)
}

// RunWithOverrides executes the workflow with a matrix override map
// visible to units through the run context. Each call is an
// independent run with fresh unit instances and its own run ID.
func (e *Engine) RunWithOverrides(ctx context.Context, overrides map[string]any) (*pipeline.Result, error) {
	runID := id.NewRunID().String()
	logger := e.logger.With(
		slog.String("workflow", e.def.Name),
		slog.String("run_id", runID),
	)
	runInfo := ext.RunInfo{Workflow: e.def.Name, RunID: runID}
	result := &pipeline.Result{
		Workflow:  e.def.Name,
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Steps:     make(map[string]*pipeline.StepSummary),
	}

	collector := failure.NewCollector(e.def.Name, runID, logger)

	mgr, err := e.checkpointManager(ctx, logger)
	if err != nil {
		return e.fail(ctx, result, runInfo, err)
	}
	var cp pipeline.Checkpoints
	if mgr != nil {
		cp = mgr
	}
	failures := &runFailures{ctx: ctx, collector: collector, extensions: e.extensions, run: runInfo}
	wf := pipeline.NewContext(e.def.Name, runID, failures, cp, overrides, logger)

	// Construct fresh unit instances for this run. Kind and shape
	// problems are configuration errors, fatal before any record moves.
	resolved := make(map[string]*unit.Resolved, len(e.def.Steps))
	for i := range e.def.Steps {
		st := &e.def.Steps[i]
		r, rErr := e.units.Resolve(st)
		if rErr != nil {
			return e.fail(ctx, result, runInfo, rErr)
		}
		if sErr := checkShape(st, r, e.plan.Dependents(st.ID)); sErr != nil {
			return e.fail(ctx, result, runInfo, sErr)
		}
		resolved[st.ID] = r
	}

	logger.Info("run started",
		slog.Int("steps", e.plan.StepCount()),
		slog.Int("levels", len(e.plan.Levels)),
	)
	e.extensions.EmitRunStarted(ctx, runInfo)

	g, gctx := errgroup.WithContext(ctx)
	depth := e.cfg.EffectiveQueueDepth()

	// Wire the record channels: every producing step gets one output
	// channel, broadcast to a private view per dependent; consumers
	// merge their per-dependency views into a single input.
	outs := make(map[string]chan *pipeline.Record, len(e.def.Steps))
	inputs := make(map[string][]<-chan *pipeline.Record, len(e.def.Steps))
	for i := range e.def.Steps {
		st := &e.def.Steps[i]
		dependents := e.plan.Dependents(st.ID)
		if len(dependents) == 0 {
			continue
		}
		out := make(chan *pipeline.Record, depth)
		outs[st.ID] = out
		views := stream.Broadcast(gctx, out, len(dependents), depth)
		for j, d := range dependents {
			inputs[d] = append(inputs[d], views[j])
		}
	}

	sums := &summaries{m: result.Steps}

	// All steps run concurrently; starting them level by level only
	// fixes the start order. Bounded channels do the pacing.
	for lvl, stepIDs := range e.plan.Levels {
		e.extensions.EmitLevelStarted(gctx, runInfo, lvl, stepIDs)
		for _, stepID := range stepIDs {
			st, _ := e.def.StepByID(stepID)
			r := resolved[stepID]
			ins := inputs[stepID]
			out := outs[stepID]
			g.Go(func() error {
				return e.runStep(gctx, wf, runInfo, st, r, ins, out, sums)
			})
		}
	}
	runErr := g.Wait()

	select {
	case <-e.stop:
		result.Interrupted = true
	default:
	}

	// Pending source and filter marks become durable only here, after
	// every step goroutine has exited: on a clean or cooperatively
	// stopped run the queues have drained, so a mark now provably
	// describes a record that reached a sink. After a fatal error the
	// queues may still hold marked records, so those marks are dropped
	// and the next run re-emits them; checkpointed sinks dedupe.
	if mgr != nil && runErr == nil {
		runErr = mgr.FlushAll(ctx)
	}

	result.Failures = collector.Len()
	if collector.Len() > 0 {
		path, mErr := collector.Materialize(e.reportDir())
		if mErr != nil {
			logger.Error("failed to write failure report", slog.String("error", mErr.Error()))
		} else {
			result.ReportPath = path
		}
	}

	result.CompletedAt = time.Now().UTC()
	if runErr != nil {
		result.Status = pipeline.StatusFailed
		result.Error = runErr.Error()
		logger.Error("run failed", slog.String("error", runErr.Error()))
		e.extensions.EmitRunFailed(ctx, runInfo, runErr)
		e.extensions.EmitShutdown(ctx)
		return result, runErr
	}

	if collector.Len() > 0 {
		result.Status = pipeline.StatusCompletedWithFailures
	} else {
		result.Status = pipeline.StatusCompleted
	}

	// A clean, uninterrupted run leaves no checkpoints behind; the
	// next run starts fresh instead of skipping everything.
	if result.Status == pipeline.StatusCompleted && !result.Interrupted && mgr != nil {
		if cErr := mgr.Clear(ctx); cErr != nil {
			logger.Warn("failed to clear checkpoints", slog.String("error", cErr.Error()))
		}
	}

	logger.Info("run completed",
		slog.String("status", string(result.Status)),
		slog.Int("failures", result.Failures),
		slog.Bool("interrupted", result.Interrupted),
		slog.Duration("elapsed", result.Elapsed()),
	)
	e.extensions.EmitRunCompleted(ctx, runInfo, result, result.Elapsed())
	e.extensions.EmitShutdown(ctx)
	return result, nil
}

// runStep executes one step to completion and records its summary.
func (e *Engine) runStep(
	ctx context.Context,
	wf *pipeline.Context,
	runInfo ext.RunInfo,
	st *pipeline.Step,
	r *unit.Resolved,
	ins []<-chan *pipeline.Record,
	out chan *pipeline.Record,
	sums *summaries,
) error {
	e.extensions.EmitStepStarted(ctx, runInfo, st.ID)
	start := time.Now()

	checkpointed := st.Checkpoint && wf.Checkpoints() != nil
	workers := e.stepWorkers(st)
	if r.Kind == unit.KindSink {
		// Sinks consume records one at a time; intra-step fan-out is a
		// Filter affordance only.
		workers = 1
	}
	rt := stream.Step{
		ID:         st.ID,
		Checkpoint: checkpointed,
		Workers:    workers,
		BatchSize:  e.cfg.BatchSize,
		Middleware: e.chain,
	}
	strategy := e.stepStrategy(st)

	var counts stream.Counts
	var output any
	var stepErr error

	switch r.Kind {
	case unit.KindSource:
		stepErr = stream.RunSource(ctx, wf, rt, r.Source, out, e.stop, &counts)

	case unit.KindFilter:
		in, spillErrs := e.stepInput(ctx, strategy, ins)
		stepErr = stream.RunFilter(ctx, wf, rt, r.Filter, in, out, &counts)
		stepErr = firstError(stepErr, drainSpill(spillErrs))

	case unit.KindSink:
		in, spillErrs := e.stepInput(ctx, strategy, ins)
		batching := strategy == pipeline.StrategyBatching
		output, stepErr = stream.RunSink(ctx, wf, rt, r.Sink, r.Batch, batching, in, &counts)
		stepErr = firstError(stepErr, drainSpill(spillErrs))
		if stepErr == nil {
			stepErr = wf.PublishOutput(st.ID, st.ID, output)
		}
	}

	// Only sink marks are durable mid-run: a sink marks a record after
	// consuming it, so its marks are always safe to persist. Source and
	// filter marks cover records that may still sit in a queue; they
	// flush only once the whole pipeline has drained, at end of run.
	if stepErr == nil && checkpointed && r.Kind == unit.KindSink {
		if err := wf.Checkpoints().Flush(ctx, st.ID); err != nil {
			stepErr = err
		} else {
			e.extensions.EmitCheckpointSaved(ctx, runInfo, st.ID, int(counts.Out.Load()+counts.Skipped.Load()))
		}
	}

	summary := &pipeline.StepSummary{
		StepID:  st.ID,
		Unit:    st.Unit,
		In:      counts.In.Load(),
		Out:     counts.Out.Load(),
		Failed:  counts.Failed.Load(),
		Skipped: counts.Skipped.Load(),
		Output:  output,
		Elapsed: time.Since(start),
	}
	sums.set(summary)

	if stepErr != nil {
		e.extensions.EmitStepFailed(ctx, runInfo, st.ID, stepErr)
		return fmt.Errorf("step %s: %w", st.ID, stepErr)
	}
	e.extensions.EmitStepCompleted(ctx, runInfo, summary)
	return nil
}

// stepInput merges a step's dependency views, inserting a disk spill
// between producers and consumer when the step runs under the
// spilling strategy.
func (e *Engine) stepInput(
	ctx context.Context,
	strategy pipeline.Strategy,
	ins []<-chan *pipeline.Record,
) (<-chan *pipeline.Record, <-chan error) {
	depth := e.cfg.EffectiveQueueDepth()
	merged := stream.Merge(ctx, depth, ins...)
	if strategy != pipeline.StrategySpilling {
		return merged, nil
	}
	return stream.SpillThrough(ctx, e.spillDir(), merged, depth)
}

// checkpointManager builds the run's checkpoint manager, or nil when
// no step checkpoints or no backend is available.
func (e *Engine) checkpointManager(ctx context.Context, logger *slog.Logger) (*checkpoint.Manager, error) {
	needed := false
	for i := range e.def.Steps {
		if e.def.Steps[i].Checkpoint {
			needed = true
			break
		}
	}
	if !needed {
		return nil, nil
	}

	store := e.ckptStore
	if store == nil {
		if e.cfg.CheckpointDir == "" {
			logger.Warn("checkpointed steps configured but no checkpoint backend, running without resume")
			return nil, nil
		}
		fs, err := checkpoint.NewFileStore(e.cfg.CheckpointDir, checkpoint.WithFileLogger(logger))
		if err != nil {
			return nil, err
		}
		if sErr := fs.Sweep(); sErr != nil {
			logger.Warn("checkpoint sweep failed", slog.String("error", sErr.Error()))
		}
		store = fs
	}

	mgr := checkpoint.NewManager(store, e.def.Name,
		checkpoint.WithLogger(logger),
		checkpoint.WithRetry(e.bo, e.attempts),
	)
	for i := range e.def.Steps {
		st := &e.def.Steps[i]
		if !st.Checkpoint {
			continue
		}
		n, err := mgr.Load(ctx, st.ID)
		if err != nil {
			return nil, fmt.Errorf("load checkpoint for step %s: %w", st.ID, err)
		}
		if n > 0 {
			logger.Info("resuming from checkpoint",
				slog.String("step", st.ID),
				slog.Int("done", n),
			)
		}
	}
	return mgr, nil
}

// fail finalizes the result for a fatal error raised before any step
// goroutine started.
func (e *Engine) fail(ctx context.Context, result *pipeline.Result, runInfo ext.RunInfo, err error) (*pipeline.Result, error) {
	result.Status = pipeline.StatusFailed
	result.Error = err.Error()
	result.CompletedAt = time.Now().UTC()
	e.extensions.EmitRunFailed(ctx, runInfo, err)
	return result, err
}

func (e *Engine) stepWorkers(st *pipeline.Step) int {
	if st.Workers > 0 {
		return st.Workers
	}
	return e.cfg.Concurrency
}

func (e *Engine) stepStrategy(st *pipeline.Step) pipeline.Strategy {
	if st.Strategy != pipeline.StrategyDefault {
		return st.Strategy
	}
	if e.def.Settings.Strategy != pipeline.StrategyDefault {
		return e.def.Settings.Strategy
	}
	return pipeline.StrategyStreaming
}

func (e *Engine) reportDir() string {
	if e.cfg.ReportDir != "" {
		return e.cfg.ReportDir
	}
	return "reports"
}

func (e *Engine) spillDir() string {
	if e.cfg.SpillDir != "" {
		return e.cfg.SpillDir
	}
	return filepath.Join(os.TempDir(), "pipeline-spill")
}

// checkShape validates a step's position in the graph against its
// unit's capability.
func checkShape(st *pipeline.Step, r *unit.Resolved, dependents []string) error {
	switch r.Kind {
	case unit.KindSource:
		if len(st.DependsOn) > 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("source unit %q cannot depend on other steps", st.Unit),
			}
		}
		if len(dependents) == 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("source unit %q has no consumer", st.Unit),
			}
		}
	case unit.KindFilter:
		if len(st.DependsOn) == 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("filter unit %q needs at least one dependency", st.Unit),
			}
		}
		if len(dependents) == 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("filter unit %q has no consumer, terminal steps must be sinks", st.Unit),
			}
		}
	case unit.KindSink:
		if len(st.DependsOn) == 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("sink unit %q needs at least one dependency", st.Unit),
			}
		}
		if len(dependents) > 0 {
			return &pipeline.ConfigError{
				Steps: []string{st.ID},
				Err:   fmt.Errorf("sink unit %q cannot feed other steps, sinks are terminal", st.Unit),
			}
		}
	}
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func drainSpill(errc <-chan error) error {
	if errc == nil {
		return nil
	}
	return <-errc
}
