package bus

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// exitHook runs a callback once when the process receives SIGINT or SIGTERM.
// It can be removed before it fires; removal never blocks.
type exitHook struct {
	signals chan os.Signal
	quit    chan struct{}
	once    sync.Once
}

func newExitHook() *exitHook {
	return &exitHook{
		signals: make(chan os.Signal, 1),
		quit:    make(chan struct{}),
	}
}

// install registers for the exit signals and calls onExit on the first one.
func (h *exitHook) install(logger *zap.Logger, onExit func()) {
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-h.signals:
			signal.Stop(h.signals)
			logger.Info("Received exit signal, stopping event bus", zap.Stringer("signal", sig))
			onExit()
		case <-h.quit:
		}
	}()
}

// remove deregisters the hook. It is idempotent.
func (h *exitHook) remove() {
	h.once.Do(func() {
		signal.Stop(h.signals)
		close(h.quit)
	})
}
