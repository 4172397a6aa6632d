package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/metrics"
	"github.com/dshills/ringbus/internal/ring"
	"github.com/dshills/ringbus/internal/worker"
)

// hookStopTimeout bounds the drain when the exit hook stops the bus.
const hookStopTimeout = 30 * time.Second

// inflightPollInterval is how often Stop re-checks for active publishers.
const inflightPollInterval = 100 * time.Microsecond

// Bus publishes events into a ring buffer and dispatches them to the
// handlers selected by their routes.
type Bus struct {
	cfg        config
	registry   *Registry
	rb         *ring.RingBuffer[event.Event]
	consumer   worker.Consumer
	dispatcher *dispatcher
	logger     *zap.Logger
	metrics    *metrics.Collector

	// mu serializes Start and Stop.
	mu        sync.Mutex
	state     atomic.Int32
	inflight  atomic.Int64
	hook      *exitHook

	// producer is a one-slot semaphore held around each claim and publish
	// when the ring uses the single-producer protocol; nil otherwise.
	producer chan struct{}
	runCancel context.CancelFunc
	done      chan struct{}

	published atomic.Uint64
	rejected  atomic.Uint64
}

// New builds a bus over registry. The registry is frozen by Start, not here,
// so handlers and routes may still be added until then.
func New(registry *Registry, opts ...Option) (*Bus, error) {
	if registry == nil {
		return nil, &ConfigurationError{Field: "registry", Value: nil, Reason: "required"}
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.wait == nil {
		cfg.wait = ring.NewBlockingWaitStrategy()
	}

	rb, err := ring.New(event.Factory, cfg.bufferSize,
		ring.WithProducerType(cfg.producer),
		ring.WithWaitStrategy(cfg.wait),
	)
	if err != nil {
		return nil, err
	}

	b := &Bus{
		cfg:      cfg,
		registry: registry,
		rb:       rb,
		logger:   cfg.logger,
		metrics:  cfg.metrics,
		done:     make(chan struct{}),
	}
	if cfg.producer == ring.ProducerSingle {
		b.producer = make(chan struct{}, 1)
	}
	b.dispatcher = newDispatcher(registry, cfg.logger.Named("dispatch"), cfg.metrics)

	workerOpts := []worker.Option{
		worker.WithExceptionHandler(cfg.exceptions),
		worker.WithLogger(cfg.logger.Named("worker")),
		worker.WithHandlerTimeout(cfg.handlerTimeout),
	}
	switch cfg.mode {
	case ModeOrdered:
		b.consumer, err = worker.NewBatchGroup(rb, []event.Handler{b.dispatcher},
			append(workerOpts, worker.WithName("ringbus-ordered"))...)
	default:
		b.consumer, err = worker.NewWorkerPool(rb, b.dispatcher, cfg.workerCount,
			append(workerOpts, worker.WithName("ringbus-worker"))...)
	}
	if err != nil {
		return nil, err
	}

	if err := cfg.metrics.RegisterRingGauges(
		func() float64 { return float64(rb.RemainingCapacity()) },
		func() float64 { return float64(rb.Cursor()) },
	); err != nil {
		return nil, fmt.Errorf("register ring gauges: %w", err)
	}

	return b, nil
}

// State returns the lifecycle state.
func (b *Bus) State() State {
	return State(b.state.Load())
}

// IsRunning reports whether the bus accepts publishes.
func (b *Bus) IsRunning() bool {
	return b.State() == StateRunning
}

// Registry returns the registry the bus dispatches through.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// Start freezes the registry and starts the consumers. It is a no-op when
// the bus is already running. A stopped bus can be started again; events
// published before Start are never delivered.
func (b *Bus) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.State() == StateRunning {
		return nil
	}

	if err := b.registry.Freeze(); err != nil {
		return err
	}
	b.dispatcher.bind()

	ctx, cancel := context.WithCancel(context.Background())
	b.rb.AddGatingSequences(b.consumer.Sequences()...)
	if err := b.consumer.Start(ctx); err != nil {
		cancel()
		b.removeGating()
		return err
	}

	b.runCancel = cancel
	b.done = make(chan struct{})
	b.state.Store(int32(StateRunning))

	if b.cfg.shutdownHook {
		hook := newExitHook()
		b.hook = hook
		hook.install(b.logger, func() { b.stopFromHook(hook) })
	}

	b.logger.Info("Event bus started",
		zap.Int64("buffer_size", b.rb.BufferSize()),
		zap.Stringer("producer", b.rb.ProducerType()),
		zap.Stringer("mode", b.cfg.mode),
		zap.Int("workers", b.workerCount()),
		zap.Int("routes", len(b.registry.Routes())),
	)
	return nil
}

// Stop rejects further publishes, waits for every published event to be
// handled and joins the consumers. ctx bounds the whole shutdown; when it
// ends first the consumers are halted anyway and the context error is
// returned. Stop is a no-op unless the bus is running.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stopLocked(ctx)
}

func (b *Bus) stopFromHook(hook *exitHook) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// A later run installs its own hook.
	if b.hook != hook {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookStopTimeout)
	defer cancel()
	if err := b.stopLocked(ctx); err != nil {
		b.logger.Error("Event bus did not stop cleanly", zap.Error(err))
	}
}

func (b *Bus) stopLocked(ctx context.Context) error {
	if b.State() != StateRunning {
		return nil
	}
	b.state.Store(int32(StateStopped))

	var errs []error
	if err := b.awaitPublishers(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := b.consumer.DrainAndHalt(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := b.consumer.Wait(ctx); err != nil {
		errs = append(errs, err)
	}

	b.removeGating()
	b.runCancel()
	if b.hook != nil {
		b.hook.remove()
		b.hook = nil
	}
	close(b.done)

	err := errors.Join(errs...)
	if err != nil {
		b.logger.Warn("Event bus stopped with errors", zap.Error(err))
	} else {
		b.logger.Info("Event bus stopped", zap.Uint64("published", b.published.Load()))
	}
	return err
}

// awaitPublishers waits for publish calls that passed the state check
// before Stop to finish claiming and publishing.
func (b *Bus) awaitPublishers(ctx context.Context) error {
	if b.inflight.Load() == 0 {
		return nil
	}
	ticker := time.NewTicker(inflightPollInterval)
	defer ticker.Stop()
	for b.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("await publishers: %w", ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

func (b *Bus) removeGating() {
	for _, seq := range b.consumer.Sequences() {
		b.rb.RemoveGatingSequence(seq)
	}
}

// Done returns a channel that is closed when the current run stops, whether
// by Stop or by the exit hook. Before the first Start the channel never
// closes.
func (b *Bus) Done() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

// Publish claims a slot, fills it and publishes it. It returns once the event
// is visible to consumers, not when it has been handled. While the buffer is
// full it blocks until a slot frees, ctx ends or the publish timeout passes.
func (b *Bus) Publish(ctx context.Context, name, tag, key string, payload any) error {
	return b.publish(ctx, event.Translate(name, tag, key, payload))
}

// PublishEvent publishes a copy of evt. A missing ID or timestamp is filled
// in.
func (b *Bus) PublishEvent(ctx context.Context, evt *event.Event) error {
	if evt == nil {
		return ErrNilEvent
	}
	return b.publish(ctx, event.TranslateEvent(evt))
}

// TryPublish is Publish without blocking. It fails with
// ErrInsufficientCapacity when the buffer is full or, with a single
// producer, when another publish currently holds the producer.
func (b *Bus) TryPublish(name, tag, key string, payload any) error {
	b.inflight.Add(1)
	defer b.inflight.Add(-1)

	if !b.IsRunning() {
		return b.reject("not_running", ErrBusNotRunning)
	}
	if !b.tryAcquireProducer() {
		return b.reject("full", ErrInsufficientCapacity)
	}
	defer b.releaseProducer()

	if err := b.rb.TryPublishEvent(event.Translate(name, tag, key, payload)); err != nil {
		return b.reject("full", err)
	}
	b.accepted()
	return nil
}

func (b *Bus) publish(ctx context.Context, translate event.Translator) error {
	b.inflight.Add(1)
	defer b.inflight.Add(-1)

	if !b.IsRunning() {
		return b.reject("not_running", ErrBusNotRunning)
	}
	if b.cfg.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.cfg.publishTimeout)
		defer cancel()
	}
	if err := b.acquireProducer(ctx); err != nil {
		return b.reject("capacity_timeout", err)
	}
	defer b.releaseProducer()

	if err := b.rb.PublishEvent(ctx, translate); err != nil {
		return b.reject("capacity_timeout", err)
	}
	b.accepted()
	return nil
}

// acquireProducer waits for exclusive use of a single-producer ring. A
// publisher queued behind one blocked on a full buffer times out the same
// way.
func (b *Bus) acquireProducer(ctx context.Context) error {
	if b.tryAcquireProducer() {
		return nil
	}
	select {
	case b.producer <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrCapacityTimeout, ctx.Err())
	}
}

func (b *Bus) tryAcquireProducer() bool {
	if b.producer == nil {
		return true
	}
	select {
	case b.producer <- struct{}{}:
		return true
	default:
		return false
	}
}

func (b *Bus) releaseProducer() {
	if b.producer != nil {
		<-b.producer
	}
}

func (b *Bus) accepted() {
	b.published.Add(1)
	b.metrics.EventPublished()
}

func (b *Bus) reject(reason string, err error) error {
	b.rejected.Add(1)
	b.metrics.PublishRejected(reason)
	return err
}

func (b *Bus) workerCount() int {
	if b.cfg.mode == ModeOrdered {
		return 1
	}
	return b.cfg.workerCount
}
