// Package metrics exposes bus activity as prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ringbus"

// Handler results used as the "result" label of events_handled_total.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultPanic   = "panic"
)

// Collector records bus metrics. A nil *Collector is valid and records
// nothing, so components can call it unconditionally.
type Collector struct {
	registerer prometheus.Registerer

	published       prometheus.Counter
	publishRejected *prometheus.CounterVec
	handled         *prometheus.CounterVec
	unrouted        prometheus.Counter
	invalidRoute    prometheus.Counter
	handlerDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg. Passing
// prometheus.DefaultRegisterer exposes them on the default /metrics handler.
// With a nil reg the collectors count but are never exported.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		registerer: reg,

		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published to the ring buffer",
		}),

		publishRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_rejected_total",
			Help:      "Total number of publish calls that did not reach the ring buffer",
		}, []string{"reason"}),

		handled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "handled_total",
			Help:      "Total number of events handed to a handler",
		}, []string{"handler", "result"}),

		unrouted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "unrouted_total",
			Help:      "Total number of events whose route matched no pattern",
		}),

		invalidRoute: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "invalid_route_total",
			Help:      "Total number of events dropped for an invalid route",
		}),

		handlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "handler",
			Name:      "duration_seconds",
			Help:      "Time spent in event handlers",
			Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		}, []string{"handler"}),
	}
}

// EventPublished counts one published event.
func (c *Collector) EventPublished() {
	if c == nil {
		return
	}
	c.published.Inc()
}

// PublishRejected counts a publish call that failed before the ring buffer
// accepted it.
func (c *Collector) PublishRejected(reason string) {
	if c == nil {
		return
	}
	c.publishRejected.WithLabelValues(reason).Inc()
}

// EventHandled records one handler call.
func (c *Collector) EventHandled(handler, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.handled.WithLabelValues(handler, result).Inc()
	c.handlerDuration.WithLabelValues(handler).Observe(d.Seconds())
}

// EventUnrouted counts an event that matched no route.
func (c *Collector) EventUnrouted() {
	if c == nil {
		return
	}
	c.unrouted.Inc()
}

// InvalidRoute counts an event dropped because its route was invalid.
func (c *Collector) InvalidRoute() {
	if c == nil {
		return
	}
	c.invalidRoute.Inc()
}

// RegisterRingGauges exposes ring buffer occupancy through the given
// functions, which are evaluated at scrape time.
func (c *Collector) RegisterRingGauges(remaining, cursor func() float64) error {
	if c == nil || c.registerer == nil {
		return nil
	}
	if err := c.registerer.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ring",
		Name:      "remaining_capacity",
		Help:      "Free slots in the ring buffer",
	}, remaining)); err != nil {
		return err
	}
	return c.registerer.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ring",
		Name:      "cursor",
		Help:      "Highest claimed ring buffer sequence",
	}, cursor))
}
