package failure_test

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/DecentralizedGeo/stac-manager-sub002/failure"
)

func TestCollector_ConcurrentAdds(t *testing.T) {
	c := failure.NewCollector("wf", "run_test", nil)

	const goroutines = 50
	const perGoroutine = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				c.Add(fmt.Sprintf("rec-%d-%d", g, i), "filter", "boom")
			}
		}(g)
	}
	wg.Wait()

	want := goroutines * perGoroutine
	if c.Len() != want {
		t.Fatalf("lost updates: got %d entries, want %d", c.Len(), want)
	}

	sum := c.Summary()
	if sum.Total != want || sum.ByStep["filter"] != want {
		t.Fatalf("summary = %+v, want total %d", sum, want)
	}
}

func TestCollector_SummaryByStep(t *testing.T) {
	c := failure.NewCollector("wf", "run_test", nil)
	c.Add("a", "fetch", "timeout")
	c.Add("b", "fetch", "timeout")
	c.Add("c", "write", "disk full")

	sum := c.Summary()
	if sum.Total != 3 {
		t.Fatalf("total = %d, want 3", sum.Total)
	}
	if sum.ByStep["fetch"] != 2 || sum.ByStep["write"] != 1 {
		t.Fatalf("by step = %v", sum.ByStep)
	}
}

func TestCollector_NilReceiverIsSafe(t *testing.T) {
	var c *failure.Collector

	// Must not panic.
	c.Add("rec", "step", "msg")

	if c.Len() != 0 {
		t.Fatal("nil collector should report zero entries")
	}
	if c.Summary().Total != 0 {
		t.Fatal("nil collector summary should be empty")
	}
}

func TestCollector_MaterializeOnce(t *testing.T) {
	dir := t.TempDir()
	c := failure.NewCollector("wf", "run_test", nil)
	c.Add("rec-b", "filter", "bad geometry")

	first, err := c.Materialize(dir)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	// A second call returns the same artifact, not a new one.
	c.Add("rec-late", "filter", "added after materialize")
	second, err := c.Materialize(dir)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if first != second {
		t.Fatalf("expected one artifact, got %q and %q", first, second)
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}

	var report failure.Report
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Workflow != "wf" || report.RunID != "run_test" {
		t.Fatalf("report header = %+v", report)
	}
	if len(report.Entries) != 1 || report.Entries[0].RecordID != "rec-b" {
		t.Fatalf("report entries = %+v", report.Entries)
	}
	if report.Summary.Total != 1 {
		t.Fatalf("report summary = %+v", report.Summary)
	}
}

func TestCollector_EntriesAreACopy(t *testing.T) {
	c := failure.NewCollector("wf", "run_test", nil)
	c.Add("rec", "step", "msg")

	entries := c.Entries()
	entries[0] = nil

	if got := c.Entries(); got[0] == nil {
		t.Fatal("Entries must return a copy")
	}
}
