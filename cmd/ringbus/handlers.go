package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/bus"
	"github.com/dshills/ringbus/internal/config"
	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/route"
)

// Builtin handler ids that routes in the configuration can refer to.
const (
	handlerLog     = "log"
	handlerDiscard = "discard"
)

// defaultRoute is used when the configuration has no routes.
var defaultRoute = route.Entry{Pattern: "/**", HandlerID: handlerLog}

// logHandler writes every event it receives to the log.
type logHandler struct {
	logger *zap.Logger
}

func (h *logHandler) Handle(_ context.Context, evt *event.Event) error {
	h.logger.Info("Event received",
		zap.String("route", evt.Route()),
		zap.String("id", evt.ID),
		zap.Time("timestamp", evt.Timestamp),
		zap.Any("payload", evt.Payload),
	)
	return nil
}

// newRegistry registers the builtin handlers and the configured routes.
func newRegistry(cfg *config.Config, logger *zap.Logger) (*bus.Registry, error) {
	reg := bus.NewRegistry()
	if err := reg.RegisterHandler(handlerLog, &logHandler{logger: logger}); err != nil {
		return nil, err
	}
	discard := event.HandlerFunc(func(context.Context, *event.Event) error { return nil })
	if err := reg.RegisterHandler(handlerDiscard, discard); err != nil {
		return nil, err
	}

	entries, err := cfg.RouteEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		entries = []route.Entry{defaultRoute}
	}
	if err := reg.RegisterRoutes(entries...); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}
	return reg, nil
}

// demoEvents is the rotation of sample events published by --demo.
var demoEvents = []struct{ name, tag string }{
	{"order", "create"},
	{"order", "update"},
	{"user", "login"},
}

type publisher interface {
	Publish(ctx context.Context, name, tag, key string, payload any) error
}

func publishDemo(ctx context.Context, p publisher, n int, logger *zap.Logger) error {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return nil
		}
		e := demoEvents[i%len(demoEvents)]
		err := p.Publish(ctx, e.name, e.tag, strconv.Itoa(i), map[string]int{"seq": i})
		if errors.Is(err, bus.ErrBusNotRunning) {
			logger.Info("Event bus stopped during demo", zap.Int("published", i))
			return nil
		}
		if err != nil {
			return fmt.Errorf("publish demo event %d: %w", i, err)
		}
	}
	logger.Info("Published demo events", zap.Int("count", n))
	return nil
}
