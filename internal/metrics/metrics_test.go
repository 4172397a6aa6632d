package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.EventPublished()
	c.EventPublished()
	c.EventUnrouted()
	c.InvalidRoute()
	c.PublishRejected("not_running")
	c.EventHandled("orders", ResultSuccess, time.Millisecond)
	c.EventHandled("orders", ResultError, time.Millisecond)
	c.EventHandled("orders", ResultError, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.published))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.unrouted))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.invalidRoute))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.publishRejected.WithLabelValues("not_running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.handled.WithLabelValues("orders", ResultSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.handled.WithLabelValues("orders", ResultError)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.handlerDuration))
}

func TestCollector_RingGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	require.NoError(t, c.RegisterRingGauges(func() float64 { return 512 }, func() float64 { return 7 }))

	families, err := reg.Gather()
	require.NoError(t, err)

	values := map[string]float64{}
	for _, mf := range families {
		if len(mf.GetMetric()) == 1 && mf.GetMetric()[0].GetGauge() != nil {
			values[mf.GetName()] = mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 512.0, values["ringbus_ring_remaining_capacity"])
	assert.Equal(t, 7.0, values["ringbus_ring_cursor"])

	assert.Error(t, c.RegisterRingGauges(func() float64 { return 0 }, func() float64 { return 0 }),
		"registering twice on one registry must fail")
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.EventPublished()
		c.EventUnrouted()
		c.InvalidRoute()
		c.PublishRejected("x")
		c.EventHandled("h", ResultPanic, time.Second)
		assert.NoError(t, c.RegisterRingGauges(nil, nil))
	})
}

func TestCollector_UnregisteredCounts(t *testing.T) {
	c := New(nil)

	c.EventPublished()
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published))
	assert.NotPanics(t, func() {
		assert.NoError(t, c.RegisterRingGauges(func() float64 { return 1 }, func() float64 { return 2 }))
	})
}
