// Package unit defines the three capability contracts a processing
// unit can expose — Source, Filter, Sink — and the registry that maps
// unit type names to constructors.
//
// A step's unit type name is resolved through the registry exactly
// once, at DAG-build time, so unknown names fail fast before any
// record is processed. The constructed unit must satisfy exactly one
// of the three contracts; anything else is a configuration error.
package unit

import (
	"context"

	pipeline "github.com/DecentralizedGeo/stac-manager-sub002"
)

// Source produces a sequence of records given a workflow context.
// Sources back steps with no dependencies and take no record input.
//
// Produce calls emit once per record; emit blocks while downstream
// queues are full, which is the engine's backpressure mechanism. An
// error from emit means the run is stopping and Produce should return
// it promptly. An error returned by Produce itself is fatal to the
// run.
type Source interface {
	Produce(ctx context.Context, wf *pipeline.Context, emit func(*pipeline.Record) error) error
}

// Filter transforms a single input record into zero, one, or many
// output records. Filters back steps that have dependencies and are
// not terminal. An error applies only to the given record: the engine
// routes it to the failure collector and continues with the next
// record.
type Filter interface {
	Apply(ctx context.Context, wf *pipeline.Context, rec *pipeline.Record) ([]*pipeline.Record, error)
}

// Sink consumes records one at a time and exposes a finalize
// operation called once after its input is exhausted. A Consume error
// applies only to that record; a Finalize error is fatal to the run.
type Sink interface {
	Consume(ctx context.Context, wf *pipeline.Context, rec *pipeline.Record) error
	Finalize(ctx context.Context, wf *pipeline.Context) (any, error)
}

// BatchSink is an optional fast path Sinks may additionally implement
// for vectorized writes under StrategyBatching. It is an optimization
// of the Sink contract, not a fourth capability: a unit exposing
// BatchSink must also expose Sink.
type BatchSink interface {
	ConsumeBatch(ctx context.Context, wf *pipeline.Context, recs []*pipeline.Record) error
}

// Constructor builds a unit instance from a step's configuration
// blob. Construction may validate resources and must fail fast when
// its setup cannot succeed; a constructor error aborts the whole
// workflow.
type Constructor func(cfg map[string]any) (any, error)

// SourceFunc adapts a function to the Source contract.
type SourceFunc func(ctx context.Context, wf *pipeline.Context, emit func(*pipeline.Record) error) error

// Produce implements Source.
func (f SourceFunc) Produce(ctx context.Context, wf *pipeline.Context, emit func(*pipeline.Record) error) error {
	return f(ctx, wf, emit)
}

// FilterFunc adapts a function to the Filter contract.
type FilterFunc func(ctx context.Context, wf *pipeline.Context, rec *pipeline.Record) ([]*pipeline.Record, error)

// Apply implements Filter.
func (f FilterFunc) Apply(ctx context.Context, wf *pipeline.Context, rec *pipeline.Record) ([]*pipeline.Record, error) {
	return f(ctx, wf, rec)
}
