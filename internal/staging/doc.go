// Package staging implements the stage execution core of the bulk pipeline.
//
// A Stage is one phase of a larger pipeline. It owns a fixed collection of
// Steps that run concurrently, each on its own goroutines, and a single
// Execution that acts as the shared control object for all of them.
//
// ARCHITECTURE:
//
// Lifecycle:
// constructed -> started -> running -> completed, with an orthogonal faulted
// flag. The Execution only drives lifecycle transitions; it never drives step
// work. Callers poll StillExecuting and AssertHealthy with their own backoff.
//
// Fault latch:
// The first cause passed to Panic wins. The winner tells every step to stop
// (ReceivePanic, then EndOfUpstream), exactly once. Later distinct causes are
// attached to the first as suppressed causes and never replace it.
//
// Batch recycling:
// When the stage is built with RecycleBatches, batches handed to Recycle may be
// returned by a later Reuse. Callers must treat a reused batch as empty. The
// pool is a cache: losing an entry only costs an allocation.
//
// Diagnostics:
// StepsOrderedBy ranks steps by a stat and computes the ratio of each step to
// its neighbour, which points at the slowest link of the pipeline.
// QuantizedProjection maps progress ticks onto a fixed number of buckets for
// progress rendering.
package staging
