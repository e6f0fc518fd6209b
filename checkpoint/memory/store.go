// Package memory provides a fully in-memory checkpoint.Store. Safe for
// concurrent access. Intended for unit testing and single-process runs
// where durability across restarts is not needed.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/DecentralizedGeo/stac-manager-sub002/checkpoint"
)

var _ checkpoint.Store = (*Store)(nil)

// Store keeps progress blobs in a map keyed by "workflow/step".
type Store struct {
	mu       sync.RWMutex
	progress map[string]*checkpoint.Progress
}

// New returns a new empty Store.
func New() *Store {
	return &Store{progress: make(map[string]*checkpoint.Progress)}
}

// Load returns a copy of the stored progress, or (nil, nil) when absent.
func (s *Store) Load(_ context.Context, workflow, stepID string) (*checkpoint.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[key(workflow, stepID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.Done = append([]string(nil), p.Done...)
	return &cp, nil
}

// Save stores a copy of the progress.
func (s *Store) Save(_ context.Context, p *checkpoint.Progress) error {
	cp := *p
	cp.Done = append([]string(nil), p.Done...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[key(p.Workflow, p.StepID)] = &cp
	return nil
}

// Clear removes all progress for a workflow.
func (s *Store) Clear(_ context.Context, workflow string) error {
	prefix := workflow + "/"
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.progress {
		if strings.HasPrefix(k, prefix) {
			delete(s.progress, k)
		}
	}
	return nil
}

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

func key(workflow, stepID string) string { return workflow + "/" + stepID }
