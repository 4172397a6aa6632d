package ring

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
)

// ProducerType selects the claim protocol used by a ring buffer.
type ProducerType int

const (
	// ProducerSingle is for exactly one publishing goroutine. Claims are
	// plain arithmetic and publish is a single atomic store.
	ProducerSingle ProducerType = iota

	// ProducerMulti allows concurrent publishers. Claims use CAS on the
	// cursor and publish marks a per-slot availability flag.
	ProducerMulti
)

// String returns the configuration name of the producer type.
func (p ProducerType) String() string {
	switch p {
	case ProducerSingle:
		return "single"
	case ProducerMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// ParseProducerType maps a configuration name to a ProducerType.
func ParseProducerType(name string) (ProducerType, error) {
	switch name {
	case "", "single":
		return ProducerSingle, nil
	case "multi":
		return ProducerMulti, nil
	default:
		return 0, &ConfigurationError{Field: "producer", Value: name, Reason: "must be single or multi"}
	}
}

// Sequencer coordinates producers claiming slots with the consumers gating
// them.
type Sequencer interface {
	// BufferSize returns the number of slots being coordinated.
	BufferSize() int64

	// Cursor returns the highest claimed (multi) or published (single) sequence.
	Cursor() int64

	// Next claims n slots, blocking while the buffer is full. It returns the
	// highest claimed sequence. When ctx ends first the error wraps
	// ErrCapacityTimeout.
	Next(ctx context.Context, n int64) (int64, error)

	// TryNext claims n slots or fails with ErrInsufficientCapacity.
	TryNext(n int64) (int64, error)

	// Publish makes seq visible to consumers.
	Publish(seq int64)

	// PublishRange makes lo..hi visible to consumers.
	PublishRange(lo, hi int64)

	// IsAvailable reports whether seq has been published.
	IsAvailable(seq int64) bool

	// HighestPublishedSequence returns the last sequence in lo..available
	// that is contiguously published, or lo-1 if lo itself is not.
	HighestPublishedSequence(lo, available int64) int64

	// RemainingCapacity returns the number of slots free for claiming.
	RemainingCapacity() int64

	// AddGatingSequences registers consumer sequences the producer must not
	// overtake. Each added sequence is set to the current cursor.
	AddGatingSequences(seqs ...*Sequence)

	// RemoveGatingSequence unregisters a consumer sequence.
	RemoveGatingSequence(seq *Sequence) bool

	// MinimumSequence returns the slowest gating sequence (or the cursor).
	MinimumSequence() int64

	// NewBarrier creates a barrier over the cursor and the given upstream
	// dependencies.
	NewBarrier(dependents ...*Sequence) *Barrier
}

// sequencerBase holds the state shared by both producer protocols.
type sequencerBase struct {
	bufferSize int64
	wait       WaitStrategy
	cursor     *Sequence
	gating     atomic.Pointer[[]*Sequence]
}

// init prepares b in place; the atomic gating pointer must not be copied.
func (b *sequencerBase) init(bufferSize int, wait WaitStrategy) {
	b.bufferSize = int64(bufferSize)
	b.wait = wait
	b.cursor = NewSequence(InitialSequence)
	empty := []*Sequence{}
	b.gating.Store(&empty)
}

func (b *sequencerBase) BufferSize() int64 {
	return b.bufferSize
}

func (b *sequencerBase) Cursor() int64 {
	return b.cursor.Get()
}

func (b *sequencerBase) gatingSequences() []*Sequence {
	return *b.gating.Load()
}

func (b *sequencerBase) AddGatingSequences(seqs ...*Sequence) {
	for {
		current := b.gating.Load()
		next := make([]*Sequence, 0, len(*current)+len(seqs))
		next = append(next, *current...)

		cursor := b.cursor.Get()
		for _, s := range seqs {
			s.Set(cursor)
			next = append(next, s)
		}

		if b.gating.CompareAndSwap(current, &next) {
			// Re-align in case the cursor moved while we were copying.
			cursor = b.cursor.Get()
			for _, s := range seqs {
				if s.Get() < cursor {
					s.Set(cursor)
				}
			}
			return
		}
	}
}

func (b *sequencerBase) RemoveGatingSequence(seq *Sequence) bool {
	for {
		current := b.gating.Load()
		next := make([]*Sequence, 0, len(*current))
		for _, s := range *current {
			if s != seq {
				next = append(next, s)
			}
		}
		if len(next) == len(*current) {
			return false
		}
		if b.gating.CompareAndSwap(current, &next) {
			return true
		}
	}
}

func (b *sequencerBase) MinimumSequence() int64 {
	return MinimumSequence(b.gatingSequences(), b.cursor.Get())
}

func (b *sequencerBase) validateClaim(n int64) error {
	if n < 1 || n > b.bufferSize {
		return fmt.Errorf("%w: got %d for buffer of %d", ErrInvalidClaim, n, b.bufferSize)
	}
	return nil
}

// claimBackoff paces a producer waiting for consumers to free slots:
// spin, then yield, then sleep with exponential backoff.
type claimBackoff struct {
	iterations int
	sleep      time.Duration
}

const (
	claimSpins    = 64
	claimYields   = 128
	claimMinSleep = time.Microsecond
	claimMaxSleep = time.Millisecond
)

func (b *claimBackoff) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCapacityTimeout, ctx.Err())
	default:
	}

	b.iterations++
	switch {
	case b.iterations <= claimSpins:
	case b.iterations <= claimYields:
		runtime.Gosched()
	default:
		if b.sleep == 0 {
			b.sleep = claimMinSleep
		}
		time.Sleep(b.sleep)
		b.sleep = min(b.sleep*2, claimMaxSleep)
	}
	return nil
}

// SingleProducerSequencer is the claim protocol for one publishing
// goroutine. It must not be used from more than one goroutine at a time.
type SingleProducerSequencer struct {
	sequencerBase

	// nextValue is written only by the producer; it is atomic so that
	// RemainingCapacity can be read from other goroutines.
	nextValue   atomic.Int64
	cachedValue int64
}

// NewSingleProducerSequencer creates a single-producer sequencer.
func NewSingleProducerSequencer(bufferSize int, wait WaitStrategy) (*SingleProducerSequencer, error) {
	if err := validateBufferSize(bufferSize); err != nil {
		return nil, err
	}
	if wait == nil {
		wait = NewBlockingWaitStrategy()
	}
	s := &SingleProducerSequencer{cachedValue: InitialSequence}
	s.init(bufferSize, wait)
	s.nextValue.Store(InitialSequence)
	return s, nil
}

// Next implements Sequencer.
func (s *SingleProducerSequencer) Next(ctx context.Context, n int64) (int64, error) {
	if err := s.validateClaim(n); err != nil {
		return 0, err
	}

	nextValue := s.nextValue.Load()
	nextSequence := nextValue + n
	wrapPoint := nextSequence - s.bufferSize
	cached := s.cachedValue

	if wrapPoint > cached || cached > nextValue {
		var backoff claimBackoff
		minSequence := MinimumSequence(s.gatingSequences(), nextValue)
		for wrapPoint > minSequence {
			if err := backoff.wait(ctx); err != nil {
				return 0, err
			}
			minSequence = MinimumSequence(s.gatingSequences(), nextValue)
		}
		s.cachedValue = minSequence
	}

	s.nextValue.Store(nextSequence)
	return nextSequence, nil
}

// TryNext implements Sequencer.
func (s *SingleProducerSequencer) TryNext(n int64) (int64, error) {
	if err := s.validateClaim(n); err != nil {
		return 0, err
	}
	if !s.hasAvailableCapacity(n) {
		return 0, ErrInsufficientCapacity
	}
	next := s.nextValue.Load() + n
	s.nextValue.Store(next)
	return next, nil
}

func (s *SingleProducerSequencer) hasAvailableCapacity(n int64) bool {
	nextValue := s.nextValue.Load()
	wrapPoint := nextValue + n - s.bufferSize
	cached := s.cachedValue

	if wrapPoint > cached || cached > nextValue {
		minSequence := MinimumSequence(s.gatingSequences(), nextValue)
		s.cachedValue = minSequence
		if wrapPoint > minSequence {
			return false
		}
	}
	return true
}

// Publish implements Sequencer.
func (s *SingleProducerSequencer) Publish(seq int64) {
	s.cursor.Set(seq)
	s.wait.SignalAllWhenBlocking()
}

// PublishRange implements Sequencer.
func (s *SingleProducerSequencer) PublishRange(_, hi int64) {
	s.Publish(hi)
}

// IsAvailable implements Sequencer.
func (s *SingleProducerSequencer) IsAvailable(seq int64) bool {
	return seq <= s.cursor.Get()
}

// HighestPublishedSequence implements Sequencer. With one producer the
// cursor only moves after a publish, so available is always contiguous.
func (s *SingleProducerSequencer) HighestPublishedSequence(_, available int64) int64 {
	return available
}

// RemainingCapacity implements Sequencer.
func (s *SingleProducerSequencer) RemainingCapacity() int64 {
	nextValue := s.nextValue.Load()
	consumed := MinimumSequence(s.gatingSequences(), nextValue)
	return s.bufferSize - (nextValue - consumed)
}

// NewBarrier implements Sequencer.
func (s *SingleProducerSequencer) NewBarrier(dependents ...*Sequence) *Barrier {
	return newBarrier(s, s.wait, s.cursor, dependents)
}

// MultiProducerSequencer is the claim protocol for concurrent publishers.
// The cursor tracks the highest claim; per-slot availability flags record
// which claims have actually been published.
type MultiProducerSequencer struct {
	sequencerBase

	gatingCache *Sequence
	available   []atomic.Int32
	indexMask   int64
	indexShift  uint
}

// NewMultiProducerSequencer creates a multi-producer sequencer.
func NewMultiProducerSequencer(bufferSize int, wait WaitStrategy) (*MultiProducerSequencer, error) {
	if err := validateBufferSize(bufferSize); err != nil {
		return nil, err
	}
	if wait == nil {
		wait = NewBlockingWaitStrategy()
	}
	s := &MultiProducerSequencer{
		gatingCache: NewSequence(InitialSequence),
		available:   make([]atomic.Int32, bufferSize),
		indexMask:   int64(bufferSize - 1),
		indexShift:  log2(int64(bufferSize)),
	}
	s.init(bufferSize, wait)
	for i := range s.available {
		s.available[i].Store(-1)
	}
	return s, nil
}

// Next implements Sequencer.
func (s *MultiProducerSequencer) Next(ctx context.Context, n int64) (int64, error) {
	if err := s.validateClaim(n); err != nil {
		return 0, err
	}

	var backoff claimBackoff
	for {
		current := s.cursor.Get()
		next := current + n
		wrapPoint := next - s.bufferSize
		cachedGating := s.gatingCache.Get()

		if wrapPoint > cachedGating || cachedGating > current {
			gating := MinimumSequence(s.gatingSequences(), current)
			if wrapPoint > gating {
				if err := backoff.wait(ctx); err != nil {
					return 0, err
				}
				continue
			}
			s.gatingCache.Set(gating)
		} else if s.cursor.CompareAndSwap(current, next) {
			return next, nil
		}
	}
}

// TryNext implements Sequencer.
func (s *MultiProducerSequencer) TryNext(n int64) (int64, error) {
	if err := s.validateClaim(n); err != nil {
		return 0, err
	}
	for {
		current := s.cursor.Get()
		next := current + n
		if !s.hasAvailableCapacity(n, current) {
			return 0, ErrInsufficientCapacity
		}
		if s.cursor.CompareAndSwap(current, next) {
			return next, nil
		}
	}
}

func (s *MultiProducerSequencer) hasAvailableCapacity(n, cursor int64) bool {
	wrapPoint := cursor + n - s.bufferSize
	cachedGating := s.gatingCache.Get()

	if wrapPoint > cachedGating || cachedGating > cursor {
		minSequence := MinimumSequence(s.gatingSequences(), cursor)
		s.gatingCache.Set(minSequence)
		if wrapPoint > minSequence {
			return false
		}
	}
	return true
}

// Publish implements Sequencer.
func (s *MultiProducerSequencer) Publish(seq int64) {
	s.setAvailable(seq)
	s.wait.SignalAllWhenBlocking()
}

// PublishRange implements Sequencer.
func (s *MultiProducerSequencer) PublishRange(lo, hi int64) {
	for seq := lo; seq <= hi; seq++ {
		s.setAvailable(seq)
	}
	s.wait.SignalAllWhenBlocking()
}

// setAvailable records the lap number of seq in its slot flag.
func (s *MultiProducerSequencer) setAvailable(seq int64) {
	s.available[seq&s.indexMask].Store(int32(seq >> s.indexShift))
}

// IsAvailable implements Sequencer.
func (s *MultiProducerSequencer) IsAvailable(seq int64) bool {
	return s.available[seq&s.indexMask].Load() == int32(seq>>s.indexShift)
}

// HighestPublishedSequence implements Sequencer.
func (s *MultiProducerSequencer) HighestPublishedSequence(lo, available int64) int64 {
	for seq := lo; seq <= available; seq++ {
		if !s.IsAvailable(seq) {
			return seq - 1
		}
	}
	return available
}

// RemainingCapacity implements Sequencer.
func (s *MultiProducerSequencer) RemainingCapacity() int64 {
	produced := s.cursor.Get()
	consumed := MinimumSequence(s.gatingSequences(), produced)
	return s.bufferSize - (produced - consumed)
}

// NewBarrier implements Sequencer.
func (s *MultiProducerSequencer) NewBarrier(dependents ...*Sequence) *Barrier {
	return newBarrier(s, s.wait, s.cursor, dependents)
}
