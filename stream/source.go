package stream

import (
	"context"
	"errors"
	"fmt"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
	"github.com/DecentralizedGeo/stac-manager-sub002/unit"
)

// RunSource drives a source's Produce loop until it returns, closing
// out afterwards. Each emit is a record boundary: the stop signal is
// honored there, checkpointed items already emitted by a previous run
// are skipped, and newly emitted items are marked. A checkpoint mark
// failure and a Produce error are both fatal; a cooperative stop is
// not.
func RunSource(
	ctx context.Context,
	wf *pipeline.Context,
	step Step,
	src unit.Source,
	out chan<- *pipeline.Record,
	stop <-chan struct{},
	counts *Counts,
) error {
	defer close(out)
	ckpt := step.checkpoints(wf)

	emit := func(rec *pipeline.Record) error {
		select {
		case <-stop:
			return pipeline.ErrStopped
		default:
		}

		if ckpt != nil && ckpt.Done(step.ID, rec.ID()) {
			counts.Skipped.Add(1)
			return nil
		}

		select {
		case out <- rec:
		case <-stop:
			return pipeline.ErrStopped
		case <-ctx.Done():
			return ctx.Err()
		}
		counts.Out.Add(1)

		if ckpt != nil {
			if err := ckpt.Mark(ctx, step.ID, rec.ID()); err != nil {
				return err
			}
		}
		return nil
	}

	err := src.Produce(ctx, wf, emit)
	if errors.Is(err, pipeline.ErrStopped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("source %s: %w", step.ID, err)
	}
	return nil
}
