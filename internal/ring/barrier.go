package ring

import "sync/atomic"

// Barrier is the read-only view a consumer waits on. It combines the
// producer cursor with zero or more upstream consumer sequences and never
// exposes a sequence that is not contiguously published.
type Barrier struct {
	sequencer  Sequencer
	wait       WaitStrategy
	cursor     *Sequence
	dependents []*Sequence
	alerted    atomic.Bool
}

func newBarrier(sequencer Sequencer, wait WaitStrategy, cursor *Sequence, dependents []*Sequence) *Barrier {
	deps := make([]*Sequence, len(dependents))
	copy(deps, dependents)
	return &Barrier{
		sequencer:  sequencer,
		wait:       wait,
		cursor:     cursor,
		dependents: deps,
	}
}

// WaitFor blocks until seq is available and returns the highest sequence the
// caller may process, which can be greater than seq when a batch is ready.
// It returns ErrAlerted once Alert has been called, and ErrWaitTimeout when
// a bounded wait strategy gives up.
func (b *Barrier) WaitFor(seq int64) (int64, error) {
	if err := b.CheckAlert(); err != nil {
		return InitialSequence, err
	}

	available, err := b.wait.WaitFor(seq, b.cursor, b.dependents, b)
	if err != nil {
		return available, err
	}
	if available < seq {
		return available, nil
	}
	return b.sequencer.HighestPublishedSequence(seq, available), nil
}

// Cursor returns the value consumers of this barrier may read up to,
// ignoring multi-producer gaps.
func (b *Barrier) Cursor() int64 {
	return dependentSequence(b.cursor, b.dependents)
}

// Alert wakes every waiter with ErrAlerted until ClearAlert is called.
func (b *Barrier) Alert() {
	b.alerted.Store(true)
	b.wait.SignalAllWhenBlocking()
}

// ClearAlert resets the alert flag.
func (b *Barrier) ClearAlert() {
	b.alerted.Store(false)
}

// IsAlerted reports whether the barrier is alerted.
func (b *Barrier) IsAlerted() bool {
	return b.alerted.Load()
}

// CheckAlert returns ErrAlerted when the barrier is alerted.
func (b *Barrier) CheckAlert() error {
	if b.alerted.Load() {
		return ErrAlerted
	}
	return nil
}
