package event

import (
	"context"
	"fmt"
)

// Handler processes one event. The event is only valid for the duration of
// the call.
type Handler interface {
	Handle(ctx context.Context, evt *Event) error
}

// HandlerFunc adapts an ordinary function to Handler.
type HandlerFunc func(ctx context.Context, evt *Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt *Event) error {
	return f(ctx, evt)
}

// LifecycleAware is implemented by handlers that need per-worker setup and
// teardown. OnStart runs on each worker goroutine before it takes its first
// event; OnShutdown runs after its last.
type LifecycleAware interface {
	OnStart()
	OnShutdown()
}

// PayloadAs returns the payload of evt as T.
func PayloadAs[T any](evt *Event) (T, bool) {
	v, ok := evt.Payload.(T)
	return v, ok
}

// Typed adapts a function over a concrete payload type. Events whose payload
// is not a T fail with a *PayloadTypeError.
func Typed[T any](fn func(ctx context.Context, evt *Event, payload T) error) Handler {
	return HandlerFunc(func(ctx context.Context, evt *Event) error {
		payload, ok := PayloadAs[T](evt)
		if !ok {
			var want T
			return &PayloadTypeError{
				Route: evt.Route(),
				Want:  fmt.Sprintf("%T", want),
				Got:   fmt.Sprintf("%T", evt.Payload),
			}
		}
		return fn(ctx, evt, payload)
	})
}
