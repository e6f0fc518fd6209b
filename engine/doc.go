// Package engine wires all pipeline subsystems together: the DAG
// planner, the unit registry, the streaming runtime, checkpointing,
// the failure collector, middleware, and extensions.
//
// This package sits above every subsystem package and below the
// application layer. [Build] validates a workflow definition against a
// unit registry and returns an [Engine]; [Engine.Run] executes one run
// to completion and returns its [pipeline.Result].
//
//	eng, err := engine.Build(def, units,
//	    engine.WithLogger(logger),
//	    engine.WithConfig(cfg),
//	)
//	if err != nil { ... }
//	result, err := eng.Run(ctx)
//
// A run never aborts on a single bad record: record-level errors are
// collected and reported, while configuration errors, sink finalize
// errors, and checkpoint write failures abort the run. [Engine.Stop]
// requests a cooperative stop: sources halt at the next record
// boundary and queued records drain through to the sinks;
// [Engine.HandleSignals] maps SIGINT/SIGTERM onto it.
package engine
