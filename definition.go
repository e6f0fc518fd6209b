package pipeline

import "fmt"

// Strategy selects the memory strategy the streaming engine uses to
// move records into a consuming step.
type Strategy string

const (
	// StrategyDefault inherits the workflow-level strategy
	// (streaming unless configured otherwise).
	StrategyDefault Strategy = ""

	// StrategyStreaming pulls one record at a time from a bounded
	// queue. Memory is O(queue depth).
	StrategyStreaming Strategy = "streaming"

	// StrategyBatching accumulates up to the configured batch size
	// before invoking the consumer. Memory is O(batch size).
	StrategyBatching Strategy = "batching"

	// StrategySpilling drains the entire upstream to a durable
	// temporary store, then re-opens it as a bounded stream. Used by
	// consumers that need full materialization (e.g. a global sort).
	StrategySpilling Strategy = "spilling"
)

// Step declares one named node of a workflow: the unit type backing
// it, an opaque configuration blob handed to the unit constructor,
// and the steps it depends on.
type Step struct {
	// ID uniquely identifies the step within its workflow.
	ID string `json:"id"`

	// Unit names the registered unit constructor backing this step.
	Unit string `json:"unit"`

	// Config is passed verbatim to the unit constructor. The engine
	// never inspects it.
	Config map[string]any `json:"config,omitempty"`

	// DependsOn lists the IDs of steps whose output feeds this step.
	DependsOn []string `json:"depends_on,omitempty"`

	// Strategy overrides the workflow-level memory strategy for this
	// step's input side.
	Strategy Strategy `json:"strategy,omitempty"`

	// Workers bounds intra-step fan-out for Filter invocations.
	// Zero inherits the workflow default. With Workers > 1, output
	// order across records is not guaranteed.
	Workers int `json:"workers,omitempty"`

	// Checkpoint marks the step as resumable: processed record
	// identifiers are persisted so a restarted run skips them.
	// Cheap, purely-local steps should leave this off and accept
	// idempotent re-execution.
	Checkpoint bool `json:"checkpoint,omitempty"`
}

// Settings holds the workflow-level tuning knobs carried by a
// Definition. Zero values inherit the engine Config defaults.
type Settings struct {
	// Concurrency is the default per-step worker count.
	Concurrency int `json:"concurrency,omitempty"`

	// BatchSize is the batch threshold for StrategyBatching.
	BatchSize int `json:"batch_size,omitempty"`

	// QueueDepth bounds the intermediate queues between steps.
	QueueDepth int `json:"queue_depth,omitempty"`

	// Strategy is the workflow-level default memory strategy.
	Strategy Strategy `json:"strategy,omitempty"`
}

// Definition is a parsed, immutable workflow: a name, an ordered list
// of step declarations, and global settings. Definitions are parsed
// once by an external collaborator and never mutated; matrix runs
// share one Definition across independent Contexts.
type Definition struct {
	Name     string   `json:"name"`
	Steps    []Step   `json:"steps"`
	Settings Settings `json:"settings,omitempty"`
}

// Validate checks structural well-formedness: a non-empty name, at
// least one step, unique non-empty step IDs, and a unit type on every
// step. Dependency existence and acyclicity are the dag package's
// concern.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return &ConfigError{Err: fmt.Errorf("workflow name is empty")}
	}
	if len(d.Steps) == 0 {
		return &ConfigError{Err: ErrNoSteps}
	}

	seen := make(map[string]struct{}, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return &ConfigError{Err: fmt.Errorf("step %d has an empty id", i)}
		}
		if s.Unit == "" {
			return &ConfigError{Steps: []string{s.ID}, Err: fmt.Errorf("step %q has no unit type", s.ID)}
		}
		if _, dup := seen[s.ID]; dup {
			return &ConfigError{Steps: []string{s.ID}, Err: ErrDuplicateStep}
		}
		seen[s.ID] = struct{}{}

		switch s.Strategy {
		case StrategyDefault, StrategyStreaming, StrategyBatching, StrategySpilling:
		default:
			return &ConfigError{Steps: []string{s.ID}, Err: fmt.Errorf("step %q: unknown strategy %q", s.ID, s.Strategy)}
		}
	}
	return nil
}

// StepByID returns the declaration for the given step id.
func (d *Definition) StepByID(id string) (*Step, bool) {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i], true
		}
	}
	return nil, false
}
