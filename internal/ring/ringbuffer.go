package ring

import "context"

// RingBuffer owns a SlotArena and the sequencer that coordinates access to
// it. Producers claim a sequence, populate the slot in place and publish;
// consumers wait on a Barrier and read published slots.
type RingBuffer[T any] struct {
	arena     *SlotArena[T]
	sequencer Sequencer
	producer  ProducerType
}

// Option configures a RingBuffer.
type Option func(*options)

type options struct {
	producer ProducerType
	wait     WaitStrategy
}

// WithProducerType selects single or multi producer mode. Default single.
func WithProducerType(p ProducerType) Option {
	return func(o *options) {
		o.producer = p
	}
}

// WithWaitStrategy sets the consumer wait strategy. Default blocking.
func WithWaitStrategy(w WaitStrategy) Option {
	return func(o *options) {
		if w != nil {
			o.wait = w
		}
	}
}

// New creates a ring buffer of size slots populated by factory.
// It returns a *ConfigurationError when size is not a power of two.
func New[T any](factory func() T, size int, opts ...Option) (*RingBuffer[T], error) {
	o := options{producer: ProducerSingle}
	for _, opt := range opts {
		opt(&o)
	}
	if o.wait == nil {
		o.wait = NewBlockingWaitStrategy()
	}

	arena, err := NewSlotArena(size, factory)
	if err != nil {
		return nil, err
	}

	var sequencer Sequencer
	switch o.producer {
	case ProducerSingle:
		sequencer, err = NewSingleProducerSequencer(size, o.wait)
	case ProducerMulti:
		sequencer, err = NewMultiProducerSequencer(size, o.wait)
	default:
		return nil, &ConfigurationError{Field: "producer", Value: o.producer, Reason: "unknown producer type"}
	}
	if err != nil {
		return nil, err
	}

	return &RingBuffer[T]{
		arena:     arena,
		sequencer: sequencer,
		producer:  o.producer,
	}, nil
}

// Next claims the next slot, blocking while the buffer is full. Pass a
// context with a deadline to bound the wait.
func (r *RingBuffer[T]) Next(ctx context.Context) (int64, error) {
	return r.sequencer.Next(ctx, 1)
}

// NextN claims n contiguous slots and returns the highest sequence.
func (r *RingBuffer[T]) NextN(ctx context.Context, n int64) (int64, error) {
	return r.sequencer.Next(ctx, n)
}

// TryNext claims the next slot without blocking.
func (r *RingBuffer[T]) TryNext() (int64, error) {
	return r.sequencer.TryNext(1)
}

// TryNextN claims n slots without blocking.
func (r *RingBuffer[T]) TryNextN(n int64) (int64, error) {
	return r.sequencer.TryNext(n)
}

// Get returns the slot for seq for in-place population or reading.
func (r *RingBuffer[T]) Get(seq int64) *T {
	return r.arena.At(seq)
}

// Publish makes seq visible to consumers. Call it only after every write to
// the slot is complete.
func (r *RingBuffer[T]) Publish(seq int64) {
	r.sequencer.Publish(seq)
}

// PublishRange makes lo..hi visible to consumers.
func (r *RingBuffer[T]) PublishRange(lo, hi int64) {
	r.sequencer.PublishRange(lo, hi)
}

// PublishEvent claims a slot, fills it with translate and publishes it. The
// slot is published even if translate panics so consumers never stall on a
// claimed sequence.
func (r *RingBuffer[T]) PublishEvent(ctx context.Context, translate func(slot *T, seq int64)) error {
	seq, err := r.sequencer.Next(ctx, 1)
	if err != nil {
		return err
	}
	r.translateAndPublish(seq, translate)
	return nil
}

// TryPublishEvent is PublishEvent without blocking; it fails with
// ErrInsufficientCapacity when the buffer is full.
func (r *RingBuffer[T]) TryPublishEvent(translate func(slot *T, seq int64)) error {
	seq, err := r.sequencer.TryNext(1)
	if err != nil {
		return err
	}
	r.translateAndPublish(seq, translate)
	return nil
}

func (r *RingBuffer[T]) translateAndPublish(seq int64, translate func(slot *T, seq int64)) {
	defer r.sequencer.Publish(seq)
	translate(r.arena.At(seq), seq)
}

// Cursor returns the producer cursor.
func (r *RingBuffer[T]) Cursor() int64 {
	return r.sequencer.Cursor()
}

// BufferSize returns the number of slots.
func (r *RingBuffer[T]) BufferSize() int64 {
	return r.sequencer.BufferSize()
}

// ProducerType returns the claim protocol in use.
func (r *RingBuffer[T]) ProducerType() ProducerType {
	return r.producer
}

// RemainingCapacity returns the number of free slots.
func (r *RingBuffer[T]) RemainingCapacity() int64 {
	return r.sequencer.RemainingCapacity()
}

// IsAvailable reports whether seq has been published.
func (r *RingBuffer[T]) IsAvailable(seq int64) bool {
	return r.sequencer.IsAvailable(seq)
}

// AddGatingSequences registers consumer sequences the producer must not
// overtake.
func (r *RingBuffer[T]) AddGatingSequences(seqs ...*Sequence) {
	r.sequencer.AddGatingSequences(seqs...)
}

// RemoveGatingSequence unregisters a consumer sequence. It must be called
// before that consumer is torn down, otherwise producers stall on it forever.
func (r *RingBuffer[T]) RemoveGatingSequence(seq *Sequence) bool {
	return r.sequencer.RemoveGatingSequence(seq)
}

// MinimumGatingSequence returns the slowest consumer position.
func (r *RingBuffer[T]) MinimumGatingSequence() int64 {
	return r.sequencer.MinimumSequence()
}

// NewBarrier creates a consumer barrier over the cursor and dependents.
func (r *RingBuffer[T]) NewBarrier(dependents ...*Sequence) *Barrier {
	return r.sequencer.NewBarrier(dependents...)
}
