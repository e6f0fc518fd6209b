package stream

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

// RunSink consumes the step's input to exhaustion and then finalizes
// the sink exactly once, returning the sink's output value. In
// streaming mode records are consumed one at a time over a worker
// pool. In batching mode records accumulate to the step's batch size
// and flush through ConsumeBatch when the sink implements it, falling
// back to per-record Consume otherwise. A consume error fails only
// the record(s) involved; a Finalize error is fatal.
//
// A cooperative stop halts the source, not the sink: this driver
// drains its input to close so records already queued still land, and
// Finalize runs afterwards so partial writes are flushed.
func RunSink(
	ctx context.Context,
	wf *pipeline.Context,
	step Step,
	snk unit.Sink,
	batch unit.BatchSink,
	batching bool,
	in <-chan *pipeline.Record,
	counts *Counts,
) (any, error) {
	var consumeErr error
	if batching {
		consumeErr = consumeBatching(ctx, wf, step, snk, batch, in, counts)
	} else {
		consumeErr = consumeStreaming(ctx, wf, step, snk, in, counts)
	}
	if consumeErr != nil {
		return nil, consumeErr
	}

	output, err := snk.Finalize(ctx, wf)
	if err != nil {
		return nil, fmt.Errorf("sink %s: finalize: %w", step.ID, err)
	}
	return output, nil
}

func consumeStreaming(
	ctx context.Context,
	wf *pipeline.Context,
	step Step,
	snk unit.Sink,
	in <-chan *pipeline.Record,
	counts *Counts,
) error {
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

				handler := func(hctx context.Context) error {
					return snk.Consume(hctx, wf, rec)
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
				counts.Out.Add(1)

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

func consumeBatching(
	ctx context.Context,
	wf *pipeline.Context,
	step Step,
	snk unit.Sink,
	batchSink unit.BatchSink,
	in <-chan *pipeline.Record,
	counts *Counts,
) error {
	ckpt := step.checkpoints(wf)
	pending := make([]*pipeline.Record, 0, step.batchSize())

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		recs := pending
		pending = make([]*pipeline.Record, 0, step.batchSize())

		if batchSink != nil {
			if err := batchSink.ConsumeBatch(ctx, wf, recs); err != nil {
				// Without per-record attribution from the sink, every
				// record in the batch shares the failure.
				for _, rec := range recs {
					counts.Failed.Add(1)
					wf.Failures().Add(rec.ID(), step.ID, err.Error())
				}
				return nil
			}
			for _, rec := range recs {
				counts.Out.Add(1)
				if ckpt != nil {
					if err := ckpt.Mark(ctx, step.ID, rec.ID()); err != nil {
						return err
					}
				}
			}
			return nil
		}

		for _, rec := range recs {
			handler := func(hctx context.Context) error {
				return snk.Consume(hctx, wf, rec)
			}
			var err error
			if step.Middleware != nil {
				err = step.Middleware(ctx, step.ID, rec, handler)
			} else {
				err = handler(ctx)
			}
			if err != nil {
				counts.Failed.Add(1)
				wf.Failures().Add(rec.ID(), step.ID, err.Error())
				continue
			}
			counts.Out.Add(1)
			if ckpt != nil {
				if err := ckpt.Mark(ctx, step.ID, rec.ID()); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for {
		var rec *pipeline.Record
		var ok bool
		select {
		case rec, ok = <-in:
			if !ok {
				// Input drained: flush the remainder batch.
				return flush()
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		counts.In.Add(1)

		if ckpt != nil && ckpt.Done(step.ID, rec.ID()) {
			counts.Skipped.Add(1)
			continue
		}

		pending = append(pending, rec)
		if len(pending) >= step.batchSize() {
			if err := flush(); err != nil {
				return err
			}
		}
	}
}
