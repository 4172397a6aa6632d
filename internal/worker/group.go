package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/ring"
)

// Consumer is a group of processors attached to one ring buffer.
type Consumer interface {
	// Start launches the processors from the current ring cursor. Events
	// published before Start are not delivered. Cancelling ctx halts the
	// group.
	Start(ctx context.Context) error

	// Halt stops the processors after the events they are handling.
	// Published events not yet claimed are left unprocessed.
	Halt()

	// DrainAndHalt waits until every published event has been processed and
	// then halts. If ctx ends first the group is halted anyway and the
	// context error returned.
	DrainAndHalt(ctx context.Context) error

	// Wait blocks until the processors of the last run have exited and
	// returns the first error any of them failed with.
	Wait(ctx context.Context) error

	// Sequences returns the sequences the producer must gate on.
	Sequences() []*ring.Sequence

	// IsRunning reports whether the group has been started and not halted.
	IsRunning() bool

	// Stats returns handler counters across all runs.
	Stats() Stats
}

var (
	_ Consumer = (*WorkerPool)(nil)
	_ Consumer = (*BatchGroup)(nil)
)

// drainPollInterval is how often DrainAndHalt re-checks progress.
const drainPollInterval = time.Millisecond

// groupRun tracks one Start..exit cycle.
type groupRun struct {
	done chan struct{}
	err  error
}

// group runs a fixed set of processors on an errgroup and restarts them on
// demand.
type group struct {
	name       string
	rb         *ring.RingBuffer[event.Event]
	barrier    *ring.Barrier
	processors []processor
	logger     *zap.Logger
	counters   *counters

	// workSequence is the shared claim sequence of a worker pool, or nil.
	workSequence *ring.Sequence

	mu      sync.Mutex
	running atomic.Bool
	current *groupRun
}

func (g *group) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.running.Load() {
		return ErrAlreadyRunning
	}
	if g.current != nil {
		// The previous run was halted; its goroutines are on their way out.
		<-g.current.done
	}

	cursor := g.rb.Cursor()
	if g.workSequence != nil {
		g.workSequence.Set(cursor)
	}
	for _, p := range g.processors {
		p.prepare(cursor)
	}
	g.barrier.ClearAlert()

	eg, gctx := errgroup.WithContext(ctx)
	run := &groupRun{done: make(chan struct{})}
	g.current = run
	g.running.Store(true)

	// Cancellation of ctx, or the first processor error, halts the rest.
	haltDone := make(chan struct{})
	stop := context.AfterFunc(gctx, func() {
		defer close(haltDone)
		g.halt()
	})

	for _, p := range g.processors {
		p := p
		eg.Go(func() error {
			return p.Run(gctx)
		})
	}

	go func() {
		err := eg.Wait()
		if !stop() {
			<-haltDone
		}
		if err != nil {
			g.logger.Error("Consumer group failed", zap.String("group", g.name), zap.Error(err))
		}
		run.err = err
		g.running.Store(false)
		close(run.done)
	}()

	g.logger.Info("Consumer group started",
		zap.String("group", g.name),
		zap.Int("processors", len(g.processors)),
		zap.Int64("cursor", cursor),
	)
	return nil
}

func (g *group) Halt() {
	g.halt()
}

func (g *group) halt() {
	for _, p := range g.processors {
		p.halt()
	}
	g.running.Store(false)
	g.barrier.Alert()
}

func (g *group) DrainAndHalt(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for !g.drained() && g.running.Load() {
		select {
		case <-ctx.Done():
			g.halt()
			return fmt.Errorf("%s: drain: %w", g.name, ctx.Err())
		case <-ticker.C:
		}
	}
	g.halt()
	return nil
}

// drained reports whether every published sequence has been consumed.
func (g *group) drained() bool {
	cursor := g.rb.Cursor()
	return ring.MinimumSequence(g.Sequences(), cursor) >= cursor
}

func (g *group) Wait(ctx context.Context) error {
	g.mu.Lock()
	run := g.current
	g.mu.Unlock()

	if run == nil {
		return nil
	}
	select {
	case <-run.done:
		return run.err
	case <-ctx.Done():
		return fmt.Errorf("%s: wait: %w", g.name, ctx.Err())
	}
}

func (g *group) Sequences() []*ring.Sequence {
	seqs := make([]*ring.Sequence, 0, len(g.processors)+1)
	for _, p := range g.processors {
		seqs = append(seqs, p.Sequence())
	}
	if g.workSequence != nil {
		seqs = append(seqs, g.workSequence)
	}
	return seqs
}

func (g *group) IsRunning() bool {
	return g.running.Load()
}

func (g *group) Stats() Stats {
	return g.counters.snapshot()
}

// WorkerPool is a set of competing consumers: every published event is
// handled by exactly one worker.
type WorkerPool struct {
	group
}

// NewWorkerPool creates count workers that share handler. The handler is
// called concurrently from every worker.
func NewWorkerPool(rb *ring.RingBuffer[event.Event], handler event.Handler, count int, opts ...Option) (*WorkerPool, error) {
	if handler == nil {
		return nil, ErrNoHandler
	}
	if count < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, count)
	}

	cfg := newGroupConfig("worker-pool", opts)
	pool := &WorkerPool{group: group{
		name:         cfg.name,
		rb:           rb,
		barrier:      rb.NewBarrier(),
		logger:       cfg.logger,
		counters:     &counters{},
		workSequence: ring.NewSequence(ring.InitialSequence),
	}}

	exec := NewExecutor(WithTimeout(cfg.timeout))
	for i := 0; i < count; i++ {
		name := fmt.Sprintf("%s-%d", cfg.name, i)
		pool.processors = append(pool.processors, &WorkProcessor{
			processorBase: processorBase{
				name:       name,
				rb:         rb,
				barrier:    pool.barrier,
				handler:    handler,
				exec:       exec,
				exceptions: cfg.exceptions,
				logger:     cfg.logger.With(zap.String("worker", name)),
				counters:   pool.counters,
				sequence:   ring.NewSequence(ring.InitialSequence),
			},
			workSequence: pool.workSequence,
		})
	}
	return pool, nil
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return len(p.processors)
}

// BatchGroup runs one BatchProcessor per handler. Every handler sees every
// event, in publish order.
type BatchGroup struct {
	group
}

// NewBatchGroup creates a broadcast group with one processor per handler.
func NewBatchGroup(rb *ring.RingBuffer[event.Event], handlers []event.Handler, opts ...Option) (*BatchGroup, error) {
	if len(handlers) == 0 {
		return nil, ErrNoHandler
	}

	cfg := newGroupConfig("batch-group", opts)
	bg := &BatchGroup{group: group{
		name:     cfg.name,
		rb:       rb,
		barrier:  rb.NewBarrier(),
		logger:   cfg.logger,
		counters: &counters{},
	}}

	exec := NewExecutor(WithTimeout(cfg.timeout))
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: handler %d", ErrNoHandler, i)
		}
		name := fmt.Sprintf("%s-%d", cfg.name, i)
		bg.processors = append(bg.processors, &BatchProcessor{
			processorBase: processorBase{
				name:       name,
				rb:         rb,
				barrier:    bg.barrier,
				handler:    h,
				exec:       exec,
				exceptions: cfg.exceptions,
				logger:     cfg.logger.With(zap.String("processor", name)),
				counters:   bg.counters,
				sequence:   ring.NewSequence(ring.InitialSequence),
			},
		})
	}
	return bg, nil
}
