package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/metrics"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeBus struct {
	mu        sync.Mutex
	state     bus.State
	err       error
	published []*event.Event
}

func (f *fakeBus) PublishEvent(_ context.Context, evt *event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, evt)
	return nil
}

func (f *fakeBus) State() bus.State { return f.state }

func (f *fakeBus) Stats() bus.Stats {
	return bus.Stats{State: f.state.String(), Published: uint64(len(f.published))}
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	fb := &fakeBus{state: bus.StateCreated}
	s := NewServer(fb)

	w := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","state":"created"}`, w.Body.String())

	fb.state = bus.StateRunning
	w = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","state":"running"}`, w.Body.String())
}

func TestPublish(t *testing.T) {
	fb := &fakeBus{state: bus.StateRunning}
	s := NewServer(fb)

	w := do(t, s, http.MethodPost, "/events", `{"name":"order","tag":"create","key":"7","payload":{"qty":2}}`)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/order/create/7", resp["route"])
	assert.NotEmpty(t, resp["id"])

	require.Len(t, fb.published, 1)
	evt := fb.published[0]
	assert.Equal(t, resp["id"], evt.ID)
	assert.Equal(t, map[string]any{"qty": 2.0}, evt.Payload)
}

func TestPublish_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"missing name", nil, `{"tag":"t"}`, http.StatusBadRequest},
		{"separator in key", nil, `{"name":"a","key":"b/c"}`, http.StatusBadRequest},
		{"malformed json", nil, `{"name":`, http.StatusBadRequest},
		{"not running", bus.ErrBusNotRunning, `{"name":"a"}`, http.StatusServiceUnavailable},
		{"full", bus.ErrInsufficientCapacity, `{"name":"a"}`, http.StatusTooManyRequests},
		{"capacity timeout", fmt.Errorf("claim: %w", bus.ErrCapacityTimeout), `{"name":"a"}`, http.StatusTooManyRequests},
		{"other", fmt.Errorf("boom"), `{"name":"a"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeBus{state: bus.StateRunning, err: tt.err})
			w := do(t, s, http.MethodPost, "/events", tt.body)
			assert.Equal(t, tt.status, w.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestMetricsRouteOnlyWithGatherer(t *testing.T) {
	s := NewServer(&fakeBus{})
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/metrics", "").Code)
}

func TestWithRealBus(t *testing.T) {
	promReg := prometheus.NewRegistry()

	var mu sync.Mutex
	var keys []string
	reg := bus.NewRegistry()
	require.NoError(t, reg.Register("/order/**", "orders", event.HandlerFunc(func(_ context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		keys = append(keys, evt.Key)
		return nil
	})))

	b, err := bus.New(reg, bus.WithBufferSize(8), bus.WithMetrics(metrics.New(promReg)))
	require.NoError(t, err)
	require.NoError(t, b.Start())

	s := NewServer(b, WithGatherer(promReg))
	for _, key := range []string{"1", "2"} {
		w := do(t, s, http.MethodPost, "/events", `{"name":"order","tag":"create","key":"`+key+`"}`)
		require.Equal(t, http.StatusAccepted, w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Stop(ctx))

	mu.Lock()
	assert.ElementsMatch(t, []string{"1", "2"}, keys)
	mu.Unlock()

	w := do(t, s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats bus.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "stopped", stats.State)
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(2), stats.Processed)

	w = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ringbus_events_published_total 2")

	w = do(t, s, http.MethodPost, "/events", `{"name":"order"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServe_ShutsDownOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(&fakeBus{state: bus.StateRunning})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		served <- s.Serve(ctx, ln)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
