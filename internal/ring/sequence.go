package ring

import (
	"math"
	"strconv"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// InitialSequence is the value every sequence starts from: nothing claimed,
// nothing published, nothing consumed.
const InitialSequence int64 = -1

// Sequence is a monotonically increasing 64-bit counter shared between
// goroutines. It is padded on both sides so that two hot sequences never
// share a cache line.
type Sequence struct {
	_     cpu.CacheLinePad
	value atomic.Int64
	_     cpu.CacheLinePad
}

// NewSequence creates a sequence holding the given initial value.
func NewSequence(initial int64) *Sequence {
	s := &Sequence{}
	s.value.Store(initial)
	return s
}

// Get returns the current value.
func (s *Sequence) Get() int64 {
	return s.value.Load()
}

// Set stores a new value. Only the owner of the sequence may call it.
func (s *Sequence) Set(v int64) {
	s.value.Store(v)
}

// CompareAndSwap sets the value to next if it currently equals expected.
func (s *Sequence) CompareAndSwap(expected, next int64) bool {
	return s.value.CompareAndSwap(expected, next)
}

// IncrementAndGet adds one and returns the new value.
func (s *Sequence) IncrementAndGet() int64 {
	return s.value.Add(1)
}

// AddAndGet adds delta and returns the new value.
func (s *Sequence) AddAndGet(delta int64) int64 {
	return s.value.Add(delta)
}

// String returns the current value in decimal.
func (s *Sequence) String() string {
	return strconv.FormatInt(s.Get(), 10)
}

// MinimumSequence returns the smallest value among seqs, or floor if it is
// smaller than all of them. An empty slice yields floor.
func MinimumSequence(seqs []*Sequence, floor int64) int64 {
	minimum := floor
	for _, s := range seqs {
		if v := s.Get(); v < minimum {
			minimum = v
		}
	}
	return minimum
}

// dependentSequence returns the value a consumer may read up to: the
// minimum of its upstream dependencies, or the cursor when it has none.
func dependentSequence(cursor *Sequence, dependents []*Sequence) int64 {
	if len(dependents) == 0 {
		return cursor.Get()
	}
	return MinimumSequence(dependents, math.MaxInt64)
}
