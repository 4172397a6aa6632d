package ring

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Alerter is checked by wait strategies on every iteration so that a halted
// consumer stops waiting.
type Alerter interface {
	CheckAlert() error
}

// WaitStrategy is the policy a consumer uses while it waits for a sequence to
// become available.
//
// WaitFor blocks until cursor >= seq and every dependent sequence has also
// reached seq, then returns the highest dependent value observed (which may
// be greater than seq). It returns ErrAlerted when alert fires.
//
// SignalAllWhenBlocking is called by producers after every publish and by
// barriers on alert; strategies that never park may treat it as a no-op.
type WaitStrategy interface {
	WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error)
	SignalAllWhenBlocking()
}

// Wait strategy names accepted by ParseWaitStrategy.
const (
	WaitBlocking        = "blocking"
	WaitSleeping        = "sleeping"
	WaitYielding        = "yielding"
	WaitBusySpin        = "busy-spin"
	WaitTimeoutBlocking = "timeout-blocking"
)

// ParseWaitStrategy builds a wait strategy from its configuration name.
// timeout is only used by the timeout-blocking strategy.
func ParseWaitStrategy(name string, timeout time.Duration) (WaitStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", WaitBlocking:
		return NewBlockingWaitStrategy(), nil
	case WaitSleeping:
		return NewSleepingWaitStrategy(), nil
	case WaitYielding:
		return NewYieldingWaitStrategy(), nil
	case WaitBusySpin, "busyspin":
		return NewBusySpinWaitStrategy(), nil
	case WaitTimeoutBlocking:
		if timeout <= 0 {
			return nil, &ConfigurationError{Field: "wait_timeout", Value: timeout, Reason: "timeout-blocking requires a positive timeout"}
		}
		return NewTimeoutBlockingWaitStrategy(timeout), nil
	default:
		return nil, &ConfigurationError{Field: "wait_strategy", Value: name, Reason: "unknown wait strategy"}
	}
}

// spinUntilDependents spins with a short pause until the dependents reach seq.
// Used by the blocking strategies once the cursor itself is past seq.
func spinUntilDependents(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	available := dependentSequence(cursor, dependents)
	for available < seq {
		if err := alert.CheckAlert(); err != nil {
			return available, err
		}
		runtime.Gosched()
		available = dependentSequence(cursor, dependents)
	}
	return available, nil
}

// BlockingWaitStrategy parks waiters on a condition variable until a
// producer publishes. Lowest CPU usage, highest latency tail.
type BlockingWaitStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewBlockingWaitStrategy creates a blocking wait strategy.
func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	s := &BlockingWaitStrategy{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// WaitFor implements WaitStrategy.
func (s *BlockingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	if cursor.Get() < seq {
		s.mu.Lock()
		for cursor.Get() < seq {
			if err := alert.CheckAlert(); err != nil {
				s.mu.Unlock()
				return cursor.Get(), err
			}
			s.cond.Wait()
		}
		s.mu.Unlock()
	}
	return spinUntilDependents(seq, cursor, dependents, alert)
}

// SignalAllWhenBlocking implements WaitStrategy.
func (s *BlockingWaitStrategy) SignalAllWhenBlocking() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// TimeoutBlockingWaitStrategy blocks like BlockingWaitStrategy but gives up
// after a fixed timeout with ErrWaitTimeout, letting consumers run periodic
// work between waits.
type TimeoutBlockingWaitStrategy struct {
	timeout time.Duration

	mu     sync.Mutex
	notify chan struct{}
}

// NewTimeoutBlockingWaitStrategy creates a blocking strategy bounded by timeout.
func NewTimeoutBlockingWaitStrategy(timeout time.Duration) *TimeoutBlockingWaitStrategy {
	return &TimeoutBlockingWaitStrategy{
		timeout: timeout,
		notify:  make(chan struct{}),
	}
}

// WaitFor implements WaitStrategy.
func (s *TimeoutBlockingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	if cursor.Get() < seq {
		timer := time.NewTimer(s.timeout)
		defer timer.Stop()

		for {
			// Take the channel before re-reading the cursor so a publish in
			// between closes a channel we are already holding.
			s.mu.Lock()
			ch := s.notify
			s.mu.Unlock()

			if cursor.Get() >= seq {
				break
			}
			if err := alert.CheckAlert(); err != nil {
				return cursor.Get(), err
			}

			select {
			case <-ch:
			case <-timer.C:
				return cursor.Get(), ErrWaitTimeout
			}
		}
	}
	return spinUntilDependents(seq, cursor, dependents, alert)
}

// SignalAllWhenBlocking implements WaitStrategy.
func (s *TimeoutBlockingWaitStrategy) SignalAllWhenBlocking() {
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Default tuning for SleepingWaitStrategy.
const (
	defaultSleepRetries = 200
	defaultSleepYields  = 100
	defaultMinSleep     = time.Microsecond
	defaultMaxSleep     = time.Millisecond
)

// SleepingWaitStrategy spins for a bounded number of iterations, then yields,
// then sleeps with exponential backoff capped at a maximum.
type SleepingWaitStrategy struct {
	retries  int
	yields   int
	minSleep time.Duration
	maxSleep time.Duration
}

// SleepingOption configures a SleepingWaitStrategy.
type SleepingOption func(*SleepingWaitStrategy)

// WithSleepRetries sets the total number of spin+yield iterations before sleeping.
func WithSleepRetries(retries int) SleepingOption {
	return func(s *SleepingWaitStrategy) {
		if retries >= 0 {
			s.retries = retries
		}
	}
}

// WithSleepBackoff sets the first and maximum sleep durations.
func WithSleepBackoff(minSleep, maxSleep time.Duration) SleepingOption {
	return func(s *SleepingWaitStrategy) {
		if minSleep > 0 && maxSleep >= minSleep {
			s.minSleep = minSleep
			s.maxSleep = maxSleep
		}
	}
}

// NewSleepingWaitStrategy creates a sleeping wait strategy.
func NewSleepingWaitStrategy(opts ...SleepingOption) *SleepingWaitStrategy {
	s := &SleepingWaitStrategy{
		retries:  defaultSleepRetries,
		yields:   defaultSleepYields,
		minSleep: defaultMinSleep,
		maxSleep: defaultMaxSleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.yields > s.retries {
		s.yields = s.retries
	}
	return s
}

// WaitFor implements WaitStrategy.
func (s *SleepingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	counter := s.retries
	sleep := s.minSleep

	available := dependentSequence(cursor, dependents)
	for available < seq {
		if err := alert.CheckAlert(); err != nil {
			return available, err
		}

		switch {
		case counter > s.yields:
			counter--
		case counter > 0:
			counter--
			runtime.Gosched()
		default:
			time.Sleep(sleep)
			if sleep < s.maxSleep {
				sleep = min(sleep*2, s.maxSleep)
			}
		}
		available = dependentSequence(cursor, dependents)
	}
	return available, nil
}

// SignalAllWhenBlocking implements WaitStrategy.
func (s *SleepingWaitStrategy) SignalAllWhenBlocking() {}

// String describes the strategy tuning.
func (s *SleepingWaitStrategy) String() string {
	return fmt.Sprintf("sleeping(retries=%d, yields=%d, sleep=%s..%s)", s.retries, s.yields, s.minSleep, s.maxSleep)
}

const yieldingSpinTries = 100

// YieldingWaitStrategy spins briefly and then yields the processor on every
// iteration. It never sleeps.
type YieldingWaitStrategy struct{}

// NewYieldingWaitStrategy creates a yielding wait strategy.
func NewYieldingWaitStrategy() *YieldingWaitStrategy {
	return &YieldingWaitStrategy{}
}

// WaitFor implements WaitStrategy.
func (s *YieldingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	counter := yieldingSpinTries

	available := dependentSequence(cursor, dependents)
	for available < seq {
		if err := alert.CheckAlert(); err != nil {
			return available, err
		}
		if counter == 0 {
			runtime.Gosched()
		} else {
			counter--
		}
		available = dependentSequence(cursor, dependents)
	}
	return available, nil
}

// SignalAllWhenBlocking implements WaitStrategy.
func (s *YieldingWaitStrategy) SignalAllWhenBlocking() {}

// BusySpinWaitStrategy spins without yielding. Lowest latency; it keeps a
// full core busy for every waiting consumer.
type BusySpinWaitStrategy struct{}

// NewBusySpinWaitStrategy creates a busy-spin wait strategy.
func NewBusySpinWaitStrategy() *BusySpinWaitStrategy {
	return &BusySpinWaitStrategy{}
}

// WaitFor implements WaitStrategy.
func (s *BusySpinWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence, alert Alerter) (int64, error) {
	available := dependentSequence(cursor, dependents)
	for available < seq {
		if err := alert.CheckAlert(); err != nil {
			return available, err
		}
		available = dependentSequence(cursor, dependents)
	}
	return available, nil
}

// SignalAllWhenBlocking implements WaitStrategy.
func (s *BusySpinWaitStrategy) SignalAllWhenBlocking() {}
