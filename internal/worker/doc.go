// Package worker consumes events from a ring buffer.
//
// A WorkerPool is a set of competing consumers. Its workers share one work
// sequence and claim the next sequence by compare-and-swap, so each published
// event is handled by exactly one worker and workers proceed independently:
//
//	pool, err := worker.NewWorkerPool(rb, handler, 4, worker.WithLogger(logger))
//	rb.AddGatingSequences(pool.Sequences()...)
//	err = pool.Start(ctx)
//	...
//	err = pool.DrainAndHalt(ctx)
//	err = pool.Wait(ctx)
//
// A BatchGroup runs one BatchProcessor per handler; every handler sees every
// event in publish order.
//
// Handler failures, including panics and timeouts, are wrapped in a
// *HandlerError and passed to the ExceptionHandler. They never stop a
// consumer.
package worker
