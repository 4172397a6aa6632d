package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/ring"
)

// processor is one consumer goroutine's worth of state.
type processor interface {
	Run(ctx context.Context) error
	Sequence() *ring.Sequence
	prepare(cursor int64)
	halt()
}

// processorBase holds what work and batch processors share.
type processorBase struct {
	name       string
	rb         *ring.RingBuffer[event.Event]
	barrier    *ring.Barrier
	handler    event.Handler
	exec       *Executor
	exceptions ExceptionHandler
	logger     *zap.Logger
	counters   *counters

	sequence *ring.Sequence
	running  atomic.Bool
}

// Sequence returns the processor's progress. It is a gating sequence of the
// ring buffer while the processor runs.
func (p *processorBase) Sequence() *ring.Sequence {
	return p.sequence
}

// IsRunning reports whether the processor has been started and not halted.
func (p *processorBase) IsRunning() bool {
	return p.running.Load()
}

func (p *processorBase) prepare(cursor int64) {
	p.sequence.Set(cursor)
	p.running.Store(true)
}

func (p *processorBase) halt() {
	p.running.Store(false)
}

// process runs the handler for seq and reports any failure. It never
// panics and always returns, so the caller can advance its sequence.
func (p *processorBase) process(ctx context.Context, seq int64) {
	evt := p.rb.Get(seq)
	res := p.exec.Execute(ctx, p.handler, evt)
	p.counters.record(res)

	if err := res.Error(); err != nil {
		p.handleEventException(&HandlerError{Sequence: seq, Route: evt.Route(), Err: err}, seq, evt.Clone())
	}
}

func (p *processorBase) handleEventException(err error, seq int64, evt *event.Event) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Exception handler panicked",
				zap.Int64("sequence", seq),
				zap.Any("panic", r),
				zap.NamedError("cause", err),
			)
		}
	}()
	p.exceptions.HandleEventException(err, seq, evt)
}

func (p *processorBase) notifyStart() {
	aware, ok := p.handler.(event.LifecycleAware)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.exceptions.HandleOnStartException(fmt.Errorf("%s: OnStart: %w", p.name, &PanicError{Value: r}))
		}
	}()
	aware.OnStart()
}

func (p *processorBase) notifyShutdown() {
	aware, ok := p.handler.(event.LifecycleAware)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.exceptions.HandleOnShutdownException(fmt.Errorf("%s: OnShutdown: %w", p.name, &PanicError{Value: r}))
		}
	}()
	aware.OnShutdown()
}

// WorkProcessor is one member of a WorkerPool. Members share a work
// sequence and claim sequences from it with compare-and-swap, so every
// published sequence is processed by exactly one member.
type WorkProcessor struct {
	processorBase
	workSequence *ring.Sequence
}

// Run processes claimed sequences until the processor is halted. It returns
// nil after a halt and a non-nil error only for failures of the barrier
// itself; handler failures go to the exception handler.
func (p *WorkProcessor) Run(ctx context.Context) error {
	p.notifyStart()
	defer p.notifyShutdown()

	p.logger.Debug("Worker started", zap.Int64("sequence", p.sequence.Get()))
	defer func() {
		p.logger.Debug("Worker stopped", zap.Int64("sequence", p.sequence.Get()))
	}()

	processed := true
	cachedAvailable := ring.InitialSequence
	var next int64

	for {
		if processed {
			processed = false
			next = p.claim()
		}

		if cachedAvailable >= next {
			p.process(ctx, next)
			processed = true
			continue
		}

		available, err := p.barrier.WaitFor(next)
		switch {
		case err == nil:
			cachedAvailable = available
		case errors.Is(err, ring.ErrAlerted):
			if p.running.Load() {
				continue
			}
			// The claim is ours alone; finish it if it was already published.
			if p.rb.IsAvailable(next) {
				p.process(ctx, next)
			}
			return nil
		case errors.Is(err, ring.ErrWaitTimeout):
			continue
		default:
			return fmt.Errorf("%s: wait for sequence %d: %w", p.name, next, err)
		}
	}
}

// claim takes the next sequence from the shared work sequence. The
// processor's own sequence is moved to just before the claim first, so the
// producer cannot wrap onto the claimed slot.
func (p *WorkProcessor) claim() int64 {
	for {
		current := p.workSequence.Get()
		next := current + 1
		p.sequence.Set(current)
		if p.workSequence.CompareAndSwap(current, next) {
			return next
		}
	}
}

// BatchProcessor consumes every published sequence in order, processing
// whatever is available in one batch before advancing its sequence.
type BatchProcessor struct {
	processorBase
}

// Run processes sequences until the processor is halted.
func (p *BatchProcessor) Run(ctx context.Context) error {
	p.notifyStart()
	defer p.notifyShutdown()

	p.logger.Debug("Batch processor started", zap.Int64("sequence", p.sequence.Get()))
	defer func() {
		p.logger.Debug("Batch processor stopped", zap.Int64("sequence", p.sequence.Get()))
	}()

	next := p.sequence.Get() + 1
	for {
		available, err := p.barrier.WaitFor(next)
		switch {
		case err == nil:
			if available < next {
				continue
			}
			for ; next <= available; next++ {
				p.process(ctx, next)
			}
			p.sequence.Set(available)
		case errors.Is(err, ring.ErrAlerted):
			if !p.running.Load() {
				return nil
			}
		case errors.Is(err, ring.ErrWaitTimeout):
		default:
			return fmt.Errorf("%s: wait for sequence %d: %w", p.name, next, err)
		}
	}
}
