package main

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/config"
	"github.com/dshills/ringbus/internal/route"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-c", "bus.yaml", "--demo", "5", "--workers", "2"})
	require.NoError(t, err)
	assert.Equal(t, "bus.yaml", opts.configPath)
	assert.Equal(t, 5, opts.demo)

	workers, err := opts.flags.GetInt("workers")
	require.NoError(t, err)
	assert.Equal(t, 2, workers)

	_, err = parseFlags([]string{"--no-such-flag"})
	assert.Error(t, err)
}

func TestNewRegistry_DefaultRoute(t *testing.T) {
	cfg := config.Default()
	reg, err := newRegistry(&cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, []string{handlerDiscard, handlerLog}, reg.HandlerIDs())
	assert.Equal(t, []route.Entry{defaultRoute}, reg.Routes())
	assert.NoError(t, reg.Freeze())
}

func TestNewRegistry_ConfiguredRoutes(t *testing.T) {
	cfg := config.Default()
	cfg.RouteDefinitions = "/order/** = log"
	cfg.Routes = []route.Entry{{Pattern: "/user/**", HandlerID: handlerDiscard}}

	reg, err := newRegistry(&cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []route.Entry{
		{Pattern: "/order/**", HandlerID: handlerLog},
		{Pattern: "/user/**", HandlerID: handlerDiscard},
	}, reg.Routes())

	cfg.Routes = []route.Entry{{Pattern: "/user/**", HandlerID: "unknown"}}
	reg, err = newRegistry(&cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Error(t, reg.Freeze())
}

type recordingPublisher struct {
	mu     sync.Mutex
	routes []string
	failAt int
}

func (p *recordingPublisher) Publish(_ context.Context, name, tag, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAt >= 0 && len(p.routes) == p.failAt {
		return errors.New("full")
	}
	p.routes = append(p.routes, "/"+name+"/"+tag+"/"+key)
	return nil
}

func TestPublishDemo(t *testing.T) {
	p := &recordingPublisher{failAt: -1}
	require.NoError(t, publishDemo(context.Background(), p, 4, zap.NewNop()))
	assert.Equal(t, []string{"/order/create/0", "/order/update/1", "/user/login/2", "/order/create/3"}, p.routes)

	p = &recordingPublisher{failAt: 1}
	err := publishDemo(context.Background(), p, 4, zap.NewNop())
	assert.ErrorContains(t, err, "demo event 1")
}

func TestPublishDemo_StopsQuietly(t *testing.T) {
	stopped := publisherFunc(func() error { return bus.ErrBusNotRunning })
	assert.NoError(t, publishDemo(context.Background(), stopped, 3, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := &recordingPublisher{failAt: -1}
	assert.NoError(t, publishDemo(ctx, p, 3, zap.NewNop()))
	assert.Empty(t, p.routes)
}

type publisherFunc func() error

func (f publisherFunc) Publish(context.Context, string, string, string, any) error {
	return f()
}
