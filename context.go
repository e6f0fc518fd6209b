package pipeline

import (
	"context"
	"log/slog"
	"sync"
)

// FailureSink receives item-level, non-fatal failures. Add never
// panics and never returns an error; a record routed here is the
// attributable trace of its fate. Implemented by failure.Collector.
type FailureSink interface {
	Add(recordID, stepID, message string)
}

// Checkpoints is the narrow view of checkpoint.Manager the streaming
// engine and units need: membership tests, marks, and flushes for a
// step's processed-identifier set.
type Checkpoints interface {
	// Done reports whether the record was already processed by the
	// step in a previous run.
	Done(stepID, recordID string) bool

	// Mark records the record as processed. The mark becomes durable
	// on the manager's flush cadence, or on Flush.
	Mark(ctx context.Context, stepID, recordID string) error

	// Flush durably persists the step's pending marks.
	Flush(ctx context.Context, stepID string) error
}

// Context is the per-run state carrier passed to every unit
// invocation: per-step output handles, the failure sink, checkpoint
// access, and an override map for parameterized (matrix) re-runs.
//
// One Context exists per workflow run. The output map has exactly one
// writer per key, enforced at publish time; all other steps are
// read-only consumers.
type Context struct {
	workflow string
	runID    string

	mu      sync.RWMutex
	outputs map[string]any
	writers map[string]string // output key -> owning step

	overrides map[string]any

	failures    FailureSink
	checkpoints Checkpoints
	logger      *slog.Logger
}

// NewContext creates a Context for one workflow run. overrides may be
// nil; it is copied, so later mutation by the caller has no effect.
func NewContext(
	workflow, runID string,
	failures FailureSink,
	checkpoints Checkpoints,
	overrides map[string]any,
	logger *slog.Logger,
) *Context {
	ov := make(map[string]any, len(overrides))
	for k, v := range overrides {
		ov[k] = v
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		workflow:    workflow,
		runID:       runID,
		outputs:     make(map[string]any),
		writers:     make(map[string]string),
		overrides:   ov,
		failures:    failures,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Workflow returns the workflow name.
func (c *Context) Workflow() string { return c.workflow }

// RunID returns the run identifier.
func (c *Context) RunID() string { return c.runID }

// Failures returns the run's failure sink.
func (c *Context) Failures() FailureSink { return c.failures }

// Checkpoints returns the run's checkpoint accessor.
func (c *Context) Checkpoints() Checkpoints { return c.checkpoints }

// Logger returns the run's structured logger.
func (c *Context) Logger() *slog.Logger { return c.logger }

// PublishOutput stores a value under key on behalf of stepID. The
// first writer owns the key for the lifetime of the run; any other
// step publishing to it gets ErrOutputTaken. Republishing by the
// owner replaces the value.
func (c *Context) PublishOutput(stepID, key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if owner, ok := c.writers[key]; ok && owner != stepID {
		return ErrOutputTaken
	}
	c.writers[key] = stepID
	c.outputs[key] = value
	return nil
}

// Output returns the published value for key and whether it exists.
func (c *Context) Output(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.outputs[key]
	return v, ok
}

// Override returns the matrix override for key and whether it is set.
func (c *Context) Override(key string) (any, bool) {
	v, ok := c.overrides[key]
	return v, ok
}

// OverrideString returns a string override, or fallback when the key
// is absent or not a string.
func (c *Context) OverrideString(key, fallback string) string {
	if v, ok := c.overrides[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}
