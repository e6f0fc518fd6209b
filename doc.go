// Package pipeline provides the core workflow engine for stac-manager:
// a declarative pipeline orchestrator that resolves named processing
// steps into a leveled execution order and streams catalog records
// through pluggable units under bounded memory and backpressure.
//
// The engine is a library, not a service. Declare steps, register unit
// constructors, and run:
//
//	reg := unit.NewRegistry()
//	reg.Register("catalog-fetch", newFetchSource)
//	reg.Register("item-map", newMapFilter)
//	reg.Register("catalog-write", newWriteSink)
//
//	eng, err := engine.Build(def, reg,
//	    engine.WithLogger(logger),
//	)
//	result, err := eng.Run(ctx)
//
// # Architecture
//
// Each subsystem lives in its own package: dag (dependency resolution),
// unit (capability contracts and the constructor registry), stream (the
// streaming engine with its three memory strategies), checkpoint
// (durable, atomically-replaced progress markers), failure (the
// non-fatal failure collector), ext (lifecycle hooks), and engine (the
// orchestrator). This root package holds the types they all share:
// Record, Step, Definition, Config, Context, and Result.
//
// Records are opaque to the engine. The only contract a Record carries
// is a stable identifier, used for checkpointing and failure
// attribution.
package pipeline
