package bus

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/metrics"
	"github.com/dshills/ringbus/internal/ring"
	"github.com/dshills/ringbus/internal/worker"
)

// routeRecorder records the routes it handles.
type routeRecorder struct {
	mu     sync.Mutex
	routes []string
}

func (r *routeRecorder) Handle(_ context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, evt.Route())
	return nil
}

func (r *routeRecorder) Routes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.routes))
	copy(out, r.routes)
	return out
}

type exceptionRecorder struct {
	mu        sync.Mutex
	errs      []error
	sequences []int64
	events    []*event.Event
}

func (r *exceptionRecorder) HandleEventException(err error, sequence int64, evt *event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.sequences = append(r.sequences, sequence)
	r.events = append(r.events, evt)
}

func (r *exceptionRecorder) HandleOnStartException(error)    {}
func (r *exceptionRecorder) HandleOnShutdownException(error) {}

func stopBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))
}

func TestBus_LastMatchingPatternWins(t *testing.T) {
	h1, h2 := &routeRecorder{}, &routeRecorder{}
	reg := NewRegistry()
	require.NoError(t, reg.Register("/order/create/**", "H1", h1))
	require.NoError(t, reg.Register("/order/**", "H2", h2))

	b, err := New(reg,
		WithBufferSize(4),
		WithProducerType(ring.ProducerSingle),
		WithWorkerCount(2),
	)
	require.NoError(t, err)
	require.NoError(t, b.Start())

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "order", "create", "1", nil))
	require.NoError(t, b.Publish(ctx, "order", "create", "2", nil))
	require.NoError(t, b.Publish(ctx, "order", "update", "1", nil))
	stopBus(t, b)

	assert.Empty(t, h1.Routes())
	assert.ElementsMatch(t, []string{"/order/create/1", "/order/create/2", "/order/update/1"}, h2.Routes())
}

func TestBus_Lifecycle(t *testing.T) {
	reg := NewRegistry()
	rec := &routeRecorder{}
	require.NoError(t, reg.Register("/**", "all", rec))

	b, err := New(reg, WithBufferSize(8))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, b.State())

	ctx := context.Background()
	assert.ErrorIs(t, b.Publish(ctx, "a", "b", "c", nil), ErrBusNotRunning)
	assert.NoError(t, b.Stop(ctx), "stop before start is a no-op")
	assert.Equal(t, StateCreated, b.State())

	require.NoError(t, b.Start())
	require.NoError(t, b.Start())
	assert.Equal(t, StateRunning, b.State())
	assert.True(t, reg.Frozen())

	require.NoError(t, b.Publish(ctx, "a", "b", "1", nil))
	stopBus(t, b)
	stopBus(t, b)
	assert.Equal(t, StateStopped, b.State())
	assert.ErrorIs(t, b.Publish(ctx, "a", "b", "2", nil), ErrBusNotRunning)
	assert.ErrorIs(t, b.TryPublish("a", "b", "2", nil), ErrBusNotRunning)

	select {
	case <-b.Done():
	default:
		t.Fatal("Done must be closed after Stop")
	}

	require.NoError(t, b.Start())
	assert.Equal(t, StateRunning, b.State())
	require.NoError(t, b.Publish(ctx, "a", "b", "3", nil))
	stopBus(t, b)

	assert.Equal(t, []string{"/a/b/1", "/a/b/3"}, rec.Routes())
	stats := b.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(3), stats.Rejected)
	assert.Equal(t, "stopped", stats.State)
}

func TestBus_StopRemovesGatingSequences(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "all", &routeRecorder{}))

	b, err := New(reg, WithBufferSize(4), WithWorkerCount(2))
	require.NoError(t, err)
	require.NoError(t, b.Start())
	stopBus(t, b)

	// With no gating sequences left the producer side sees a free buffer.
	assert.Equal(t, int64(4), b.rb.RemainingCapacity())
	for _, seq := range b.consumer.Sequences() {
		assert.False(t, b.rb.RemoveGatingSequence(seq))
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		field string
	}{
		{"buffer not power of two", []Option{WithBufferSize(1000)}, "buffer_size"},
		{"zero buffer", []Option{WithBufferSize(0)}, "buffer_size"},
		{"no workers", []Option{WithWorkerCount(0)}, "worker_count"},
		{"negative handler timeout", []Option{WithHandlerTimeout(-time.Second)}, "handler_timeout"},
		{"negative publish timeout", []Option{WithPublishTimeout(-time.Second)}, "publish_timeout"},
		{"unknown mode", []Option{WithConsumerMode(ConsumerMode(9))}, "mode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := New(NewRegistry(), tt.opts...)
			require.Error(t, err)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	_, err := New(nil)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBus_StartFailsOnUnknownHandler(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterRoute("/order/**", "missing"))

	b, err := New(reg, WithBufferSize(8))
	require.NoError(t, err)

	err = b.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "missing")
	assert.Equal(t, StateCreated, b.State())
	assert.False(t, reg.Frozen())
}

func TestBus_HandlerFailureGoesToExceptionHandler(t *testing.T) {
	exceptions := &exceptionRecorder{}
	delivered := &routeRecorder{}

	reg := NewRegistry()
	require.NoError(t, reg.Register("/order/**", "orders", event.HandlerFunc(func(ctx context.Context, evt *event.Event) error {
		_ = delivered.Handle(ctx, evt)
		if evt.Key == "5" {
			return errors.New("boom")
		}
		return nil
	})))

	b, err := New(reg, WithBufferSize(16), WithWorkerCount(2), WithExceptionHandler(exceptions))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	for i := 0; i < 10; i++ {
		require.NoError(t, b.Publish(context.Background(), "order", "create", strconv.Itoa(i), i))
	}
	stopBus(t, b)

	require.Len(t, exceptions.errs, 1)
	assert.Equal(t, int64(5), exceptions.sequences[0])
	assert.Equal(t, "5", exceptions.events[0].Key)
	assert.Equal(t, 5, exceptions.events[0].Payload)

	var handlerErr *worker.HandlerError
	require.ErrorAs(t, exceptions.errs[0], &handlerErr)
	assert.Equal(t, "/order/create/5", handlerErr.Route)
	assert.Contains(t, handlerErr.Error(), "handler orders: boom")

	routes := delivered.Routes()
	assert.Len(t, routes, 10)
	for i := 6; i < 10; i++ {
		assert.Contains(t, routes, "/order/create/"+strconv.Itoa(i))
	}
	assert.Equal(t, uint64(1), b.Stats().Failed)
}

func TestBus_UnroutedEventsAreLoggedNotFailed(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	exceptions := &exceptionRecorder{}

	reg := NewRegistry()
	require.NoError(t, reg.Register("/order/**", "orders", &routeRecorder{}))

	b, err := New(reg, WithBufferSize(8), WithLogger(zap.New(core)), WithExceptionHandler(exceptions))
	require.NoError(t, err)
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish(context.Background(), "user", "delete", "1", nil))
	stopBus(t, b)

	assert.Empty(t, exceptions.errs)
	assert.Equal(t, uint64(1), b.Stats().Unrouted)

	entries := logs.FilterMessage("No matched path pattern").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/user/delete/1", entries[0].ContextMap()["route"])
}

func TestDispatcher_InvalidRouteIsDropped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := NewRegistry()
	called := false
	require.NoError(t, reg.Register("/**", "all", event.HandlerFunc(func(context.Context, *event.Event) error {
		called = true
		return nil
	})))
	require.NoError(t, reg.Freeze())

	d := newDispatcher(reg, zap.New(core), nil)
	d.bind()

	for _, path := range []string{"", "  ", "no/leading/slash"} {
		assert.NoError(t, d.dispatch(context.Background(), path, &event.Event{}))
	}
	assert.False(t, called)
	assert.Equal(t, uint64(3), d.invalidRoute.Load())
	assert.Equal(t, 3, logs.FilterMessage("Dropping event with invalid route").Len())
}

func TestBus_FullBufferBlocksPublisher(t *testing.T) {
	gate := make(chan struct{})
	var handled atomic.Int32

	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "slow", event.HandlerFunc(func(context.Context, *event.Event) error {
		<-gate
		handled.Add(1)
		return nil
	})))

	b, err := New(reg, WithBufferSize(4), WithWorkerCount(1))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	// The worker takes event 0 and blocks; 1..3 fill the remaining slots.
	for i := 0; i < 4; i++ {
		require.NoError(t, b.Publish(context.Background(), "e", "t", strconv.Itoa(i), nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, "e", "t", "late", nil)
	assert.ErrorIs(t, err, ErrCapacityTimeout)
	assert.ErrorIs(t, b.TryPublish("e", "t", "late", nil), ErrInsufficientCapacity)

	published := make(chan error, 1)
	go func() {
		published <- b.Publish(context.Background(), "e", "t", "4", nil)
	}()

	select {
	case err := <-published:
		t.Fatalf("publish returned %v while the buffer was full", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(gate)
	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish did not resume after the worker advanced")
	}

	stopBus(t, b)
	assert.Equal(t, int32(5), handled.Load())
	assert.Equal(t, uint64(5), b.Stats().Published)
}

func TestBus_PublishTimeoutOption(t *testing.T) {
	gate := make(chan struct{})
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "slow", event.HandlerFunc(func(context.Context, *event.Event) error {
		<-gate
		return nil
	})))

	b, err := New(reg, WithBufferSize(2), WithWorkerCount(1), WithPublishTimeout(15*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	require.NoError(t, b.Publish(context.Background(), "e", "t", "0", nil))
	require.NoError(t, b.Publish(context.Background(), "e", "t", "1", nil))

	start := time.Now()
	err = b.Publish(context.Background(), "e", "t", "2", nil)
	assert.ErrorIs(t, err, ErrCapacityTimeout)
	assert.Less(t, time.Since(start), time.Second)

	close(gate)
	stopBus(t, b)
}

func TestBus_ExactlyOnceWithConcurrentPublishers(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
	}{
		{"default producer", nil},
		{"single producer", []Option{WithProducerType(ring.ProducerSingle)}},
		{"multi producer", []Option{
			WithProducerType(ring.ProducerMulti),
			WithWaitStrategy(ring.NewYieldingWaitStrategy()),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			const (
				publishers = 4
				perPub     = 1000
				total      = publishers * perPub
			)
			var counts [total]atomic.Int32

			reg := NewRegistry()
			require.NoError(t, reg.Register("/**", "count", event.HandlerFunc(func(_ context.Context, evt *event.Event) error {
				counts[evt.Payload.(int)].Add(1)
				return nil
			})))

			opts := append([]Option{WithBufferSize(32), WithWorkerCount(4)}, tt.opts...)
			b, err := New(reg, opts...)
			require.NoError(t, err)
			require.NoError(t, b.Start())

			var wg sync.WaitGroup
			for p := 0; p < publishers; p++ {
				wg.Add(1)
				go func(base int) {
					defer wg.Done()
					for i := base; i < base+perPub; i++ {
						if err := b.Publish(context.Background(), "n", "t", strconv.Itoa(i), i); err != nil {
							t.Error(err)
							return
						}
					}
				}(p * perPub)
			}
			wg.Wait()
			stopBus(t, b)

			for i := range counts {
				require.Equal(t, int32(1), counts[i].Load(), "event %d", i)
			}
			stats := b.Stats()
			assert.Equal(t, uint64(total), stats.Published)
			assert.Equal(t, uint64(total), stats.Processed)
		})
	}
}

func TestBus_TryPublishWhileProducerBusy(t *testing.T) {
	gate := make(chan struct{})
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "slow", event.HandlerFunc(func(context.Context, *event.Event) error {
		<-gate
		return nil
	})))

	b, err := New(reg, WithBufferSize(2), WithWorkerCount(1))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	require.NoError(t, b.Publish(context.Background(), "e", "t", "0", nil))
	require.NoError(t, b.Publish(context.Background(), "e", "t", "1", nil))

	// This publisher holds the producer while it waits for capacity.
	blocked := make(chan error, 1)
	go func() {
		blocked <- b.Publish(context.Background(), "e", "t", "2", nil)
	}()
	require.Eventually(t, func() bool { return len(b.producer) == 1 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, b.TryPublish("e", "t", "3", nil), ErrInsufficientCapacity)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Publish(ctx, "e", "t", "4", nil), ErrCapacityTimeout)

	close(gate)
	require.NoError(t, <-blocked)
	stopBus(t, b)
	assert.Equal(t, uint64(3), b.Stats().Published)
}

func TestBus_OrderedMode(t *testing.T) {
	rec := &routeRecorder{}
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "ordered", rec))

	b, err := New(reg, WithBufferSize(8), WithConsumerMode(ModeOrdered))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	want := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		require.NoError(t, b.Publish(context.Background(), "seq", "t", strconv.Itoa(i), nil))
		want = append(want, "/seq/t/"+strconv.Itoa(i))
	}
	stopBus(t, b)

	assert.Equal(t, want, rec.Routes())
	assert.Equal(t, 1, b.Stats().Workers)
	assert.Equal(t, "ordered", b.Stats().Mode)
}

func TestBus_PublishEvent(t *testing.T) {
	rec := &routeRecorder{}
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "all", rec))

	b, err := New(reg, WithBufferSize(8))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	assert.ErrorIs(t, b.PublishEvent(context.Background(), nil), ErrNilEvent)
	require.NoError(t, b.PublishEvent(context.Background(), &event.Event{Name: "x", Tag: "y", Key: "z"}))
	require.NoError(t, b.TryPublish("x", "y", "w", nil))
	stopBus(t, b)

	assert.ElementsMatch(t, []string{"/x/y/z", "/x/y/w"}, rec.Routes())
}

type lifecycleCounter struct {
	routeRecorder
	started  atomic.Int32
	shutdown atomic.Int32
}

func (l *lifecycleCounter) OnStart()    { l.started.Add(1) }
func (l *lifecycleCounter) OnShutdown() { l.shutdown.Add(1) }

func TestBus_LifecycleAwareHandlers(t *testing.T) {
	h := &lifecycleCounter{}
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "aware", h))

	b, err := New(reg, WithBufferSize(8), WithWorkerCount(3))
	require.NoError(t, err)
	require.NoError(t, b.Start())
	stopBus(t, b)

	assert.Equal(t, int32(3), h.started.Load())
	assert.Equal(t, int32(3), h.shutdown.Load())
}

func TestBus_ExitHookStopsBus(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "all", &routeRecorder{}))

	b, err := New(reg, WithBufferSize(8), WithShutdownHook(true))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()
	require.NotNil(t, hook)

	done := b.Done()
	hook.signals <- syscall.SIGTERM

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("exit hook did not stop the bus")
	}
	assert.Equal(t, StateStopped, b.State())
	assert.NoError(t, b.Stop(context.Background()))
}

func TestBus_ExplicitStopRemovesExitHook(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "all", &routeRecorder{}))

	b, err := New(reg, WithBufferSize(8), WithShutdownHook(true))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	b.mu.Lock()
	hook := b.hook
	b.mu.Unlock()

	stopBus(t, b)

	select {
	case <-hook.quit:
	default:
		t.Fatal("hook was not removed by Stop")
	}
	b.mu.Lock()
	assert.Nil(t, b.hook)
	b.mu.Unlock()

	// A stale hook firing after a restart must not stop the new run.
	require.NoError(t, b.Start())
	b.stopFromHook(hook)
	assert.Equal(t, StateRunning, b.State())
	stopBus(t, b)
}

func TestBus_Metrics(t *testing.T) {
	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	reg := NewRegistry()
	require.NoError(t, reg.Register("/order/**", "orders", &routeRecorder{}))

	b, err := New(reg, WithBufferSize(8), WithMetrics(m))
	require.NoError(t, err)
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish(context.Background(), "order", "create", "1", nil))
	require.NoError(t, b.Publish(context.Background(), "order", "create", "2", nil))
	require.NoError(t, b.Publish(context.Background(), "user", "create", "3", nil))
	stopBus(t, b)

	values := gather(t, promReg)
	assert.Equal(t, 3.0, values["ringbus_events_published_total"])
	assert.Equal(t, 1.0, values["ringbus_events_unrouted_total"])
	assert.Equal(t, 2.0, values["ringbus_events_handled_total"])
	assert.Equal(t, 2.0, values["ringbus_ring_cursor"])

	_, err = New(NewRegistry(), WithBufferSize(8), WithMetrics(m))
	assert.Error(t, err, "ring gauges cannot be registered twice")
}

// gather sums every sample of each counter and gauge family.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			}
		}
	}
	return values
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	h := &routeRecorder{}

	require.NoError(t, reg.RegisterHandler("a", h))
	assert.ErrorIs(t, reg.RegisterHandler("a", h), ErrDuplicateHandler)
	assert.ErrorIs(t, reg.RegisterHandler("b", nil), ErrNilHandler)
	assert.Error(t, reg.RegisterHandler("", h))

	require.NoError(t, reg.RegisterRoute("/x/**", "b"))
	require.NoError(t, reg.RegisterHandler("b", h))
	require.NoError(t, reg.RegisterRoute("/y/**", "a"))
	assert.Error(t, reg.RegisterRoute("relative", "a"))

	got, ok := reg.Handler("a")
	assert.True(t, ok)
	assert.Same(t, h, got)
	_, ok = reg.Handler("zzz")
	assert.False(t, ok)

	assert.Equal(t, []string{"a", "b"}, reg.HandlerIDs())
	assert.Len(t, reg.Routes(), 2)

	require.NoError(t, reg.Freeze())
	require.NoError(t, reg.Freeze())
	assert.ErrorIs(t, reg.RegisterHandler("c", h), ErrRegistryFrozen)
	assert.ErrorIs(t, reg.RegisterRoute("/z/**", "a"), ErrRegistryFrozen)
}

func TestParseConsumerMode(t *testing.T) {
	m, err := ParseConsumerMode("ordered")
	require.NoError(t, err)
	assert.Equal(t, ModeOrdered, m)

	m, err = ParseConsumerMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeWorkerPool, m)

	_, err = ParseConsumerMode("broadcast")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBus_MetricsWithoutRegisterer(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register("/**", "noop", event.HandlerFunc(func(context.Context, *event.Event) error {
		return nil
	})))

	b, err := New(reg, WithMetrics(metrics.New(nil)))
	require.NoError(t, err)
	require.NoError(t, b.Start())
	require.NoError(t, b.Publish(context.Background(), "a", "b", "c", nil))
	stopBus(t, b)
	assert.Equal(t, uint64(1), b.Stats().Published)
}
