package pipeline

import "time"

// Config holds engine-level configuration. Workflow Settings override
// the corresponding knobs per definition.
type Config struct {
	// BatchSize is the default batch threshold for StrategyBatching.
	BatchSize int

	// QueueDepth bounds the intermediate queue between a producer
	// and its consumers. Zero means 2 x BatchSize, the documented
	// default: deep enough to keep a batching consumer fed, shallow
	// enough to bound memory independent of record count.
	QueueDepth int

	// Concurrency is the default per-step worker count for Filter
	// fan-out. One preserves FIFO record order.
	Concurrency int

	// CheckpointDir is where per-step checkpoint files live. Empty
	// selects the in-memory checkpoint store (no resume across
	// processes).
	CheckpointDir string

	// SpillDir is where StrategySpilling materializes upstream
	// records. Empty means the OS temp dir.
	SpillDir string

	// ReportDir is where the per-run failure report is written.
	// Empty means "reports" under the current directory.
	ReportDir string

	// ShutdownTimeout caps how long Stop waits for in-flight records
	// before giving up the graceful path.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:       64,
		QueueDepth:      0, // derived: 2 x BatchSize
		Concurrency:     1,
		ShutdownTimeout: 30 * time.Second,
	}
}

// EffectiveQueueDepth resolves the queue depth default.
func (c Config) EffectiveQueueDepth() int {
	if c.QueueDepth > 0 {
		return c.QueueDepth
	}
	return 2 * c.BatchSize
}

// Merge returns a copy of c with any non-zero workflow settings
// applied on top.
func (c Config) Merge(s Settings) Config {
	out := c
	if s.BatchSize > 0 {
		out.BatchSize = s.BatchSize
	}
	if s.QueueDepth > 0 {
		out.QueueDepth = s.QueueDepth
	}
	if s.Concurrency > 0 {
		out.Concurrency = s.Concurrency
	}
	return out
}
