package checkpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/DecentralizedGeo/stac-manager-sub002/backoff"
	"github.com/DecentralizedGeo/stac-manager-sub002/checkpoint"
)

// flakyStore fails the first failures saves, then delegates to an inner map.
type flakyStore struct {
	mu       sync.Mutex
	failures int
	saves    int
	progress map[string]*checkpoint.Progress
}

func newFlakyStore(failures int) *flakyStore {
	return &flakyStore{failures: failures, progress: make(map[string]*checkpoint.Progress)}
}

func (s *flakyStore) Load(_ context.Context, workflow, stepID string) (*checkpoint.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.progress[workflow+"/"+stepID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *flakyStore) Save(_ context.Context, p *checkpoint.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saves <= s.failures {
		return errors.New("transient write failure")
	}
	cp := *p
	s.progress[p.Workflow+"/"+p.StepID] = &cp
	return nil
}

func (s *flakyStore) Clear(_ context.Context, workflow string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.progress {
		if len(k) > len(workflow) && k[:len(workflow)+1] == workflow+"/" {
			delete(s.progress, k)
		}
	}
	return nil
}

func (s *flakyStore) Close() error { return nil }

func TestManager_MarkThenDone(t *testing.T) {
	m := checkpoint.NewManager(newFlakyStore(0), "wf")
	ctx := context.Background()

	if m.Done("fetch", "item-1") {
		t.Fatal("unmarked record reported done")
	}
	if err := m.Mark(ctx, "fetch", "item-1"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if !m.Done("fetch", "item-1") {
		t.Fatal("marked record not reported done")
	}
	if m.Done("other-step", "item-1") {
		t.Fatal("done state leaked across steps")
	}
}

func TestManager_LoadPrimesDoneSet(t *testing.T) {
	store := newFlakyStore(0)
	ctx := context.Background()
	if err := store.Save(ctx, &checkpoint.Progress{
		Workflow:  "wf",
		StepID:    "fetch",
		Done:      []string{"a", "b"},
		UpdatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	m := checkpoint.NewManager(store, "wf")
	n, err := m.Load(ctx, "fetch")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n != 2 {
		t.Fatalf("Load = %d done, want 2", n)
	}
	if !m.Done("fetch", "a") || !m.Done("fetch", "b") {
		t.Fatal("primed records not reported done")
	}
	if m.Done("fetch", "c") {
		t.Fatal("unknown record reported done")
	}
}

func TestManager_FlushEveryCadence(t *testing.T) {
	store := newFlakyStore(0)
	m := checkpoint.NewManager(store, "wf", checkpoint.WithFlushEvery(3))
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if err := m.Mark(ctx, "fetch", id); err != nil {
			t.Fatalf("Mark: %v", err)
		}
	}
	if store.saves != 0 {
		t.Fatalf("saves = %d before cadence, want 0", store.saves)
	}

	if err := m.Mark(ctx, "fetch", "c"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d after third mark, want 1", store.saves)
	}

	p, _ := store.Load(ctx, "wf", "fetch")
	if p == nil || len(p.Done) != 3 {
		t.Fatalf("persisted progress = %+v, want 3 done", p)
	}
}

func TestManager_FlushRetriesTransientFailures(t *testing.T) {
	store := newFlakyStore(2)
	m := checkpoint.NewManager(store, "wf",
		checkpoint.WithRetry(backoff.NewConstant(time.Millisecond), 3))
	ctx := context.Background()

	if err := m.Mark(ctx, "fetch", "a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("Flush should succeed on third attempt: %v", err)
	}
	if store.saves != 3 {
		t.Fatalf("saves = %d, want 3 (two failures and a success)", store.saves)
	}
}

func TestManager_FlushFailsAfterRetriesExhausted(t *testing.T) {
	store := newFlakyStore(100)
	m := checkpoint.NewManager(store, "wf",
		checkpoint.WithRetry(backoff.NewConstant(time.Millisecond), 3))
	ctx := context.Background()

	if err := m.Mark(ctx, "fetch", "a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := m.Flush(ctx, "fetch"); err == nil {
		t.Fatal("Flush should fail once retries are exhausted")
	}
	if store.saves != 3 {
		t.Fatalf("saves = %d, want exactly 3 attempts", store.saves)
	}
}

func TestManager_FlushSkipsCleanSteps(t *testing.T) {
	store := newFlakyStore(0)
	m := checkpoint.NewManager(store, "wf")
	ctx := context.Background()

	if err := m.Mark(ctx, "fetch", "a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("saves = %d, want 1 (no-op flush for clean step)", store.saves)
	}
}

func TestManager_CorruptCheckpointResumesEmpty(t *testing.T) {
	dir := t.TempDir()
	fs, err := checkpoint.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, &checkpoint.Progress{Workflow: "wf", StepID: "fetch", Done: []string{"a"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	corruptCheckpointFile(t, dir, "wf__fetch.ckpt")

	m := checkpoint.NewManager(fs, "wf")
	n, err := m.Load(ctx, "fetch")
	if err != nil {
		t.Fatalf("Load over corrupt checkpoint must not fail the run: %v", err)
	}
	if n != 0 {
		t.Fatalf("Load = %d done, want 0 (empty state)", n)
	}
}

func TestManager_ClearDropsMemoryAndStore(t *testing.T) {
	store := newFlakyStore(0)
	m := checkpoint.NewManager(store, "wf")
	ctx := context.Background()

	if err := m.Mark(ctx, "fetch", "a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if m.Done("fetch", "a") {
		t.Fatal("Clear should drop the in-memory set")
	}
	if p, _ := store.Load(ctx, "wf", "fetch"); p != nil {
		t.Fatal("Clear should drop persisted progress")
	}
}

func corruptCheckpointFile(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte{0xc1, 0xff}, 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}
}

func TestManager_ConcurrentMarks(t *testing.T) {
	store := newFlakyStore(0)
	m := checkpoint.NewManager(store, "wf")
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := string(rune('a'+g)) + "-" + string(rune('0'+i%10))
				if err := m.Mark(ctx, "fetch", id); err != nil {
					t.Errorf("Mark: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	p, _ := store.Load(ctx, "wf", "fetch")
	if p == nil || len(p.Done) != 80 {
		t.Fatalf("persisted %d done IDs, want 80 distinct", len(p.Done))
	}
}

// gatedStore blocks Save until released, so a test can land marks
// while a flush is in flight.
type gatedStore struct {
	flakyStore
	entered chan struct{}
	release chan struct{}
}

func newGatedStore() *gatedStore {
	return &gatedStore{
		flakyStore: flakyStore{progress: make(map[string]*checkpoint.Progress)},
		entered:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
}

func (s *gatedStore) Save(ctx context.Context, p *checkpoint.Progress) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.release
	return s.flakyStore.Save(ctx, p)
}

func TestManager_MarksDuringSaveStayDirty(t *testing.T) {
	store := newGatedStore()
	m := checkpoint.NewManager(store, "wf")
	ctx := context.Background()

	if err := m.Mark(ctx, "fetch", "a"); err != nil {
		t.Fatalf("Mark a: %v", err)
	}

	flushed := make(chan error, 1)
	go func() { flushed <- m.Flush(ctx, "fetch") }()
	<-store.entered

	// This mark is not in the snapshot the in-flight save carries.
	if err := m.Mark(ctx, "fetch", "b"); err != nil {
		t.Fatalf("Mark b: %v", err)
	}
	close(store.release)
	if err := <-flushed; err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// The step must still be dirty: a second flush persists b.
	if err := m.Flush(ctx, "fetch"); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	p, err := store.Load(ctx, "wf", "fetch")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p == nil {
		t.Fatal("no progress saved")
	}
	durable := make(map[string]bool, len(p.Done))
	for _, id := range p.Done {
		durable[id] = true
	}
	if !durable["a"] || !durable["b"] {
		t.Fatalf("durable set = %v, want both a and b", p.Done)
	}
}
