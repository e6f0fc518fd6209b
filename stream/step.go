package stream

import (
	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/middleware"
)

// Step is the runtime wiring for one step: everything the run
// functions need beyond the unit instance itself.
type Step struct {
	ID         string
	Checkpoint bool
	Workers    int
	BatchSize  int

	// Middleware wraps every per-record unit invocation. Nil means
	// the unit is called directly.
	Middleware middleware.Middleware
}

func (s Step) workers() int {
	if s.Workers < 1 {
		return 1
	}
	return s.Workers
}

func (s Step) batchSize() int {
	if s.BatchSize < 1 {
		return 1
	}
	return s.BatchSize
}

// checkpoints returns the checkpoint accessor when this step records
// progress, else nil.
func (s Step) checkpoints(wf *pipeline.Context) pipeline.Checkpoints {
	if !s.Checkpoint {
		return nil
	}
	return wf.Checkpoints()
}
