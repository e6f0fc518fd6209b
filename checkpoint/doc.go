// Package checkpoint persists per-step progress so an interrupted run can
// resume without repeating completed work. Progress is a set of processed
// record IDs per step, encoded with msgpack and written through a pluggable
// Store. The default FileStore writes atomically (temp file, fsync, rename)
// and quarantines files it cannot decode instead of failing the run.
//
// Subpackages provide alternative backends: memory for tests and
// single-process runs, redis for runs that share progress across hosts.
package checkpoint
