package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/backoff"
)

// Compile-time interface check.
var _ pipeline.Checkpoints = (*Manager)(nil)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithFlushEvery makes the manager persist a step's progress after every n
// marks. Zero means the engine controls flushing explicitly.
func WithFlushEvery(n int) ManagerOption {
	return func(m *Manager) { m.flushEvery = n }
}

// WithRetry sets the backoff strategy and attempt count for store writes.
func WithRetry(s backoff.Strategy, attempts int) ManagerOption {
	return func(m *Manager) {
		m.retry = s
		m.attempts = attempts
	}
}

// stepState is the in-memory mirror of one step's durable progress.
type stepState struct {
	mu    sync.Mutex
	done  map[string]struct{}
	dirty int
}

// Manager fronts a Store with an in-memory processed-ID set per step. Reads
// (Done) never hit the store; writes are batched and flushed on the
// configured cadence. Saves are serialized per step and retried with
// backoff before the failure surfaces to the caller.
type Manager struct {
	store    Store
	workflow string
	logger   *slog.Logger

	retry      backoff.Strategy
	attempts   int
	flushEvery int

	mu    sync.RWMutex
	steps map[string]*stepState
}

// NewManager creates a Manager for one workflow over the given store.
func NewManager(store Store, workflow string, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		workflow: workflow,
		logger:   slog.Default(),
		retry:    backoff.DefaultStrategy(),
		attempts: 3,
		steps:    make(map[string]*stepState),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Load primes the in-memory set for a step from the store and returns how
// many records were already done. A corrupt checkpoint is logged and
// treated as empty; the store has already quarantined the file.
func (m *Manager) Load(ctx context.Context, stepID string) (int, error) {
	p, err := m.store.Load(ctx, m.workflow, stepID)
	if errors.Is(err, ErrCorrupt) {
		m.logger.Warn("checkpoint unreadable, resuming from empty state",
			slog.String("workflow", m.workflow),
			slog.String("step", stepID))
		p = nil
	} else if err != nil {
		return 0, err
	}

	st := m.state(stepID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if p != nil {
		for _, id := range p.Done {
			st.done[id] = struct{}{}
		}
	}
	return len(st.done), nil
}

// Done reports whether the record was already processed by the step.
func (m *Manager) Done(stepID, recordID string) bool {
	m.mu.RLock()
	st, ok := m.steps[stepID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	_, done := st.done[recordID]
	return done
}

// Mark records the record as processed. When a flush cadence is set, the
// step's progress is persisted once enough marks accumulate.
func (m *Manager) Mark(ctx context.Context, stepID, recordID string) error {
	st := m.state(stepID)
	st.mu.Lock()
	if _, exists := st.done[recordID]; exists {
		st.mu.Unlock()
		return nil
	}
	st.done[recordID] = struct{}{}
	st.dirty++
	flush := m.flushEvery > 0 && st.dirty >= m.flushEvery
	st.mu.Unlock()

	if flush {
		return m.Flush(ctx, stepID)
	}
	return nil
}

// Flush persists the step's full processed set, retrying with backoff. The
// returned error, after retries are exhausted, is fatal to the run: losing
// checkpoint durability silently would make resume replay completed work.
func (m *Manager) Flush(ctx context.Context, stepID string) error {
	st := m.state(stepID)
	st.mu.Lock()
	if st.dirty == 0 {
		st.mu.Unlock()
		return nil
	}
	// Snapshot the dirty count alongside the set: marks that land while
	// the save is in flight are not in this snapshot and must keep the
	// step dirty for the next flush.
	snapshot := st.dirty
	p := &Progress{
		Workflow:  m.workflow,
		StepID:    stepID,
		Done:      make([]string, 0, len(st.done)),
		UpdatedAt: time.Now().UTC(),
	}
	for id := range st.done {
		p.Done = append(p.Done, id)
	}
	st.mu.Unlock()

	err := backoff.Do(ctx, m.attempts, m.retry, func() error {
		return m.store.Save(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("checkpoint: flush step %s: %w", stepID, err)
	}

	st.mu.Lock()
	st.dirty -= snapshot
	st.mu.Unlock()
	return nil
}

// FlushAll persists every step with pending marks.
func (m *Manager) FlushAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.steps))
	for id := range m.steps {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		if err := m.Flush(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes all persisted progress for the workflow. Called after a
// fully successful run so the next run starts fresh.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.steps = make(map[string]*stepState)
	m.mu.Unlock()
	return m.store.Clear(ctx, m.workflow)
}

func (m *Manager) state(stepID string) *stepState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.steps[stepID]
	if !ok {
		st = &stepState{done: make(map[string]struct{})}
		m.steps[stepID] = st
	}
	return st
}
