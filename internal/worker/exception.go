package worker

import (
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/ringbus/internal/event"
)

// ExceptionHandler receives failures from consumers. A handler error never
// stops a consumer: the sequence still advances after the exception handler
// returns.
type ExceptionHandler interface {
	// HandleEventException is called with the failure for one event. evt is
	// a snapshot and may be retained.
	HandleEventException(err error, sequence int64, evt *event.Event)

	// HandleOnStartException is called when a lifecycle-aware handler fails
	// to start.
	HandleOnStartException(err error)

	// HandleOnShutdownException is called when a lifecycle-aware handler
	// fails to shut down.
	HandleOnShutdownException(err error)
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler. Start and
// shutdown failures are passed to it with a sequence of -1 and a nil event.
type ExceptionHandlerFunc func(err error, sequence int64, evt *event.Event)

// HandleEventException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleEventException(err error, sequence int64, evt *event.Event) {
	f(err, sequence, evt)
}

// HandleOnStartException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleOnStartException(err error) {
	f(err, -1, nil)
}

// HandleOnShutdownException implements ExceptionHandler.
func (f ExceptionHandlerFunc) HandleOnShutdownException(err error) {
	f(err, -1, nil)
}

// LoggingExceptionHandler logs every failure and carries on.
type LoggingExceptionHandler struct {
	logger *zap.Logger
}

// NewLoggingExceptionHandler creates an exception handler that logs to
// logger. A nil logger discards.
func NewLoggingExceptionHandler(logger *zap.Logger) *LoggingExceptionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingExceptionHandler{logger: logger}
}

// HandleEventException implements ExceptionHandler.
func (h *LoggingExceptionHandler) HandleEventException(err error, sequence int64, evt *event.Event) {
	fields := []zap.Field{
		zap.Error(err),
		zap.Int64("sequence", sequence),
	}
	if evt != nil {
		fields = append(fields,
			zap.String("event_id", evt.ID),
			zap.String("route", evt.Route()),
		)
	}
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		fields = append(fields, zap.ByteString("stack", panicErr.Stack))
	}
	h.logger.Error("Exception processing event", fields...)
}

// HandleOnStartException implements ExceptionHandler.
func (h *LoggingExceptionHandler) HandleOnStartException(err error) {
	h.logger.Error("Exception during handler start", zap.Error(err))
}

// HandleOnShutdownException implements ExceptionHandler.
func (h *LoggingExceptionHandler) HandleOnShutdownException(err error) {
	h.logger.Error("Exception during handler shutdown", zap.Error(err))
}
