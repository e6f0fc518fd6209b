package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrCorrupt is returned by stores when a persisted progress blob cannot be
// decoded. The FileStore quarantines the offending file before returning it.
var ErrCorrupt = errors.New("checkpoint: corrupt progress data")

// Progress is the durable record of how far a step has advanced. Done holds
// the IDs of records the step has fully processed. For sources, Done holds
// the IDs of items already emitted, so a resumed run skips re-fetching them.
type Progress struct {
	Workflow  string    `msgpack:"workflow"`
	StepID    string    `msgpack:"step_id"`
	Done      []string  `msgpack:"done"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// Store persists step progress. Implementations must be safe for concurrent
// use. Load returns (nil, nil) when no progress exists for the step, so
// callers can treat a fresh run and a fully swept run identically.
type Store interface {
	Load(ctx context.Context, workflow, stepID string) (*Progress, error)
	Save(ctx context.Context, p *Progress) error
	Clear(ctx context.Context, workflow string) error
	Close() error
}
