// Package ring provides the pre-allocated circular buffer at the heart of the
// bus, together with the sequence arithmetic that keeps producers and
// consumers apart without locks.
//
// # Sequences
//
// Every participant owns a Sequence: the producer cursor, each consumer's
// progress, and the shared work sequence of a worker pool. Sequences only
// ever increase. A slot is addressed as sequence & (size-1), which is why the
// buffer size must be a power of two.
//
// # Claim and publish
//
//	rb, err := ring.New(event.Factory, 1024, ring.WithProducerType(ring.ProducerMulti))
//	seq, err := rb.Next(ctx)
//	slot := rb.Get(seq)
//	// ... populate slot ...
//	rb.Publish(seq)
//
// A producer never claims a slot whose previous occupant has not been
// consumed by every gating sequence. In multi-producer mode claims can be
// published out of order, so publish marks a per-slot availability flag and
// barriers only expose the highest contiguously published sequence.
//
// # Waiting
//
// Consumers wait on a Barrier, which delegates to a WaitStrategy:
//
//   - BlockingWaitStrategy: condition variable, producer signals on publish
//   - TimeoutBlockingWaitStrategy: blocking with a deadline per wait
//   - SleepingWaitStrategy: spin, then yield, then sleep with backoff
//   - YieldingWaitStrategy: spin, then yield every iteration
//   - BusySpinWaitStrategy: pure spin
//
// Alerting a barrier wakes every waiter with ErrAlerted; consumers use this to
// notice a halt request.
package ring
