// Package steps provides synthetic pipeline steps for exercising stages.
//
// A Producer generates numbered batches, Processors pass them along after an
// optional delay or transform, and a Sink consumes them. Steps are chained with
// Then; each processor owns a bounded input queue.
//
//	p := steps.NewProducer("read", ctrl, 100, 1000)
//	p.Then(steps.NewProcessor("parse", ctrl, steps.WithWorkers(4))).
//		Then(steps.NewSink("write", ctrl))
//
// Batches are taken from the stage with staging.Reuse and handed back with
// Recycle once consumed, so stages built with RecycleBatches allocate only as
// many batches as are in flight.
//
// When the stage carries OrderSendDownstream, processors run a single worker
// and sinks fail the stage with ErrOutOfOrder if a batch arrives out of
// sequence.
package steps
