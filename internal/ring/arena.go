package ring

// SlotArena is a pre-allocated array of reusable slots. Slots are never
// freed; a sequence maps to slot sequence & (len-1).
type SlotArena[T any] struct {
	slots []T
	mask  int64
}

// NewSlotArena allocates size slots, filling each with factory().
// The size must be a positive power of two.
func NewSlotArena[T any](size int, factory func() T) (*SlotArena[T], error) {
	if err := validateBufferSize(size); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, &ConfigurationError{Field: "factory", Value: nil, Reason: "slot factory is required"}
	}

	slots := make([]T, size)
	for i := range slots {
		slots[i] = factory()
	}
	return &SlotArena[T]{
		slots: slots,
		mask:  int64(size - 1),
	}, nil
}

// At returns a pointer to the slot for seq. The pointer stays valid for the
// lifetime of the arena; its contents belong to whoever currently owns seq.
func (a *SlotArena[T]) At(seq int64) *T {
	return &a.slots[seq&a.mask]
}

// Len returns the number of slots.
func (a *SlotArena[T]) Len() int {
	return len(a.slots)
}

// validateBufferSize checks the power-of-two constraint required by the
// index mask.
func validateBufferSize(size int) error {
	if size < 1 {
		return &ConfigurationError{Field: "buffer_size", Value: size, Reason: "must be at least 1"}
	}
	if size&(size-1) != 0 {
		return &ConfigurationError{Field: "buffer_size", Value: size, Reason: "must be a power of two"}
	}
	return nil
}

// log2 returns the base-2 logarithm of a power of two.
func log2(n int64) uint {
	var r uint
	for n > 1 {
		n >>= 1
		r++
	}
	return r
}
