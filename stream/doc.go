// Package stream is the record-streaming runtime under the engine. It
// wires steps together with bounded channels and runs each capability
// kind to completion:
//
//   - [RunSource] drives a source's Produce loop, applying checkpoint
//     skips and cooperative stop at every emit.
//   - [RunFilter] fans a step's input over a worker pool and forwards
//     transformed records downstream.
//   - [RunSink] consumes records one at a time or in batches and
//     finalizes the sink once its input is exhausted.
//
// Bounded channels are the backpressure mechanism: a full downstream
// queue blocks the producer's emit until a consumer drains it, so peak
// memory stays proportional to queue depth rather than dataset size.
// [Merge] fans multiple dependency outputs into one input channel, and
// [Broadcast] copies one producer's output to every dependent step.
// [SpillThrough] trades the bounded buffer for a disk file when a
// producer must not be throttled by a slow consumer.
package stream
