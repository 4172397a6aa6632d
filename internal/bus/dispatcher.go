package bus

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/metrics"
	"github.com/dshills/ringbus/internal/route"
)

// dispatcher is the single handler the consumers run. It resolves the route
// of each event and calls the handler the route maps to.
type dispatcher struct {
	registry *Registry
	resolver *route.Resolver
	logger   *zap.Logger
	metrics  *metrics.Collector

	// handlers is a snapshot of the registry taken when the bus starts.
	handlers map[string]event.Handler

	unrouted     atomic.Uint64
	invalidRoute atomic.Uint64
}

func newDispatcher(registry *Registry, logger *zap.Logger, m *metrics.Collector) *dispatcher {
	return &dispatcher{
		registry: registry,
		resolver: registry.resolver(),
		logger:   logger,
		metrics:  m,
	}
}

// bind snapshots the frozen registry so dispatch takes no locks.
func (d *dispatcher) bind() {
	handlers := make(map[string]event.Handler)
	for _, id := range d.registry.HandlerIDs() {
		h, _ := d.registry.Handler(id)
		handlers[id] = h
	}
	d.handlers = handlers
}

// Handle implements event.Handler.
func (d *dispatcher) Handle(ctx context.Context, evt *event.Event) error {
	return d.dispatch(ctx, evt.Route(), evt)
}

func (d *dispatcher) dispatch(ctx context.Context, path string, evt *event.Event) error {
	m, ok, err := d.resolver.Resolve(path)
	if err != nil {
		d.invalidRoute.Add(1)
		d.metrics.InvalidRoute()
		d.logger.Warn("Dropping event with invalid route",
			zap.String("event_id", evt.ID),
			zap.Error(err),
		)
		return nil
	}
	if !ok {
		d.unrouted.Add(1)
		d.metrics.EventUnrouted()
		d.logger.Info("No matched path pattern", zap.String("route", path), zap.String("event_id", evt.ID))
		return nil
	}

	handler, ok := d.handlers[m.HandlerID]
	if !ok {
		// Freeze guarantees every route has a handler.
		return fmt.Errorf("route %s maps to unbound handler %s", m.Pattern, m.HandlerID)
	}
	return d.invoke(ctx, m, handler, evt)
}

func (d *dispatcher) invoke(ctx context.Context, m route.Match, handler event.Handler, evt *event.Event) (err error) {
	start := time.Now()
	completed := false
	defer func() {
		result := metrics.ResultSuccess
		switch {
		case !completed:
			result = metrics.ResultPanic
		case err != nil:
			result = metrics.ResultError
		}
		d.metrics.EventHandled(m.HandlerID, result, time.Since(start))
	}()

	err = handler.Handle(ctx, evt)
	completed = true
	if err != nil {
		return fmt.Errorf("handler %s: %w", m.HandlerID, err)
	}
	return nil
}

// OnStart implements event.LifecycleAware by forwarding to every handler
// that implements it.
func (d *dispatcher) OnStart() {
	for _, h := range d.handlers {
		if aware, ok := h.(event.LifecycleAware); ok {
			aware.OnStart()
		}
	}
}

// OnShutdown implements event.LifecycleAware.
func (d *dispatcher) OnShutdown() {
	for _, h := range d.handlers {
		if aware, ok := h.(event.LifecycleAware); ok {
			aware.OnShutdown()
		}
	}
}
