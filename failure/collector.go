package failure

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DecentralizedGeo/stac-manager-sub002/id"
)

// Collector is the append-only failure sink for one workflow run.
// It is safe for concurrent use: it is the only structure in the
// engine with many concurrent writers, and it guards its slice with a
// mutex so no update is ever lost.
//
// Add never panics and never returns an error, whatever state the
// collector is in — including a nil receiver.
type Collector struct {
	workflow string
	runID    string
	logger   *slog.Logger

	mu      sync.Mutex
	entries []*Entry
	byStep  map[string]int

	materialize sync.Once
	reportPath  string
	reportErr   error
}

// NewCollector creates a Collector for one run.
func NewCollector(workflow, runID string, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		workflow: workflow,
		runID:    runID,
		logger:   logger,
		byStep:   make(map[string]int),
	}
}

// Add appends an item-level failure. It implements
// pipeline.FailureSink.
func (c *Collector) Add(recordID, stepID, message string) {
	if c == nil {
		return
	}

	entry := &Entry{
		ID:       id.NewFailureID(),
		RecordID: recordID,
		StepID:   stepID,
		Message:  message,
		FailedAt: time.Now().UTC(),
	}

	c.mu.Lock()
	c.entries = append(c.entries, entry)
	if c.byStep == nil {
		c.byStep = make(map[string]int)
	}
	c.byStep[stepID]++
	c.mu.Unlock()

	c.logger.Warn("record failed",
		slog.String("record_id", recordID),
		slog.String("step_id", stepID),
		slog.String("error", message),
	)
}

// Len returns the number of collected failures.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Summary returns the per-step counts and total.
func (c *Collector) Summary() Summary {
	if c == nil {
		return Summary{ByStep: map[string]int{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byStep := make(map[string]int, len(c.byStep))
	for step, n := range c.byStep {
		byStep[step] = n
	}
	return Summary{Total: len(c.entries), ByStep: byStep}
}

// Entries returns a copy of the collected failures in append order.
func (c *Collector) Entries() []*Entry {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Materialize writes the full detail list to a durable JSON report
// under dir, exactly once per run; subsequent calls return the first
// call's result. The write uses a temp file plus atomic rename so a
// partially written report is never observed.
func (c *Collector) Materialize(dir string) (string, error) {
	c.materialize.Do(func() {
		c.reportPath, c.reportErr = c.write(dir)
	})
	return c.reportPath, c.reportErr
}

func (c *Collector) write(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir %s: %w", dir, err)
	}

	report := &Report{
		ID:        id.NewReportID(),
		Workflow:  c.workflow,
		RunID:     c.runID,
		CreatedAt: time.Now().UTC(),
		Summary:   c.Summary(),
		Entries:   c.Entries(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode failure report: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("failures_%s.json", c.runID))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write failure report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("publish failure report: %w", err)
	}

	c.logger.Info("failure report written",
		slog.String("path", path),
		slog.Int("failures", report.Summary.Total),
	)
	return path, nil
}
