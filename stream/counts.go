package stream

import "sync/atomic"

// Counts tracks one step's record traffic. All fields are updated
// atomically by the step's workers and read by the engine after the
// step completes.
type Counts struct {
	In      atomic.Int64
	Out     atomic.Int64
	Failed  atomic.Int64
	Skipped atomic.Int64
}
