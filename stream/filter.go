package stream

import (
	"context"

	"golang.org/x/sync/errgroup"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

// RunFilter fans the step's input over a worker pool and forwards each
// record's transformed outputs downstream, closing out once the input
// is drained. A per-record Apply error routes the record to the
// failure collector and processing continues; only context
// cancellation and checkpoint write failures abort the step. With one
// worker, output order follows input order.
//
// A cooperative stop is invisible here: the source stops emitting, and
// this driver keeps draining until the input closes, so every record
// already admitted to a queue still reaches a sink.
func RunFilter(
	ctx context.Context,
	wf *pipeline.Context,
	step Step,
	f unit.Filter,
	in <-chan *pipeline.Record,
	out chan<- *pipeline.Record,
	counts *Counts,
) error {
	defer close(out)
	ckpt := step.checkpoints(wf)

	g, gctx := errgroup.WithContext(ctx)
	for range step.workers() {
		g.Go(func() error {
			for {
				var rec *pipeline.Record
				var ok bool
				select {
				case rec, ok = <-in:
					if !ok {
						return nil
					}
				case <-gctx.Done():
					return gctx.Err()
				}
				counts.In.Add(1)

				if ckpt != nil && ckpt.Done(step.ID, rec.ID()) {
					counts.Skipped.Add(1)
					continue
				}

				var produced []*pipeline.Record
				handler := func(hctx context.Context) error {
					var err error
					produced, err = f.Apply(hctx, wf, rec)
					return err
				}

				var err error
				if step.Middleware != nil {
					err = step.Middleware(gctx, step.ID, rec, handler)
				} else {
					err = handler(gctx)
				}
				if err != nil {
					counts.Failed.Add(1)
					wf.Failures().Add(rec.ID(), step.ID, err.Error())
					continue
				}

				for _, o := range produced {
					select {
					case out <- o:
						counts.Out.Add(1)
					case <-gctx.Done():
						return gctx.Err()
					}
				}

				if ckpt != nil {
					if err := ckpt.Mark(gctx, step.ID, rec.ID()); err != nil {
						return err
					}
				}
			}
		})
	}
	return g.Wait()
}
