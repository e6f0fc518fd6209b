package stream

import (
	"context"
	"sync"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Merge fans multiple input channels into one. The returned channel
// closes once every input has closed or once ctx ends. Records from
// different inputs interleave in arrival order; order within a single
// input is kept.
func Merge(ctx context.Context, depth int, inputs ...<-chan *pipeline.Record) <-chan *pipeline.Record {
	if len(inputs) == 1 {
		return inputs[0]
	}

	out := make(chan *pipeline.Record, depth)
	var wg sync.WaitGroup
	wg.Add(len(inputs))
	for _, in := range inputs {
		go func(in <-chan *pipeline.Record) {
			defer wg.Done()
			for {
				select {
				case rec, ok := <-in:
					if !ok {
						return
					}
					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(in)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Broadcast copies every record from in to n output channels, so each
// dependent step sees the full sequence. The send to each output blocks
// until that consumer accepts, which extends backpressure to the
// slowest dependent. All outputs close when in closes or ctx ends.
func Broadcast(ctx context.Context, in <-chan *pipeline.Record, n, depth int) []<-chan *pipeline.Record {
	if n == 1 {
		return []<-chan *pipeline.Record{in}
	}

	outs := make([]chan *pipeline.Record, n)
	for i := range outs {
		outs[i] = make(chan *pipeline.Record, depth)
	}

	go func() {
		defer func() {
			for _, out := range outs {
				close(out)
			}
		}()
		for rec := range in {
			for _, out := range outs {
				select {
				case out <- rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	views := make([]<-chan *pipeline.Record, n)
	for i, out := range outs {
		views[i] = out
	}
	return views
}
