// Package bus is the in-process event bus: producers publish routed events
// into a ring buffer and consumers dispatch each one to the handler its route
// resolves to.
//
// # Composition
//
// Handlers and routes are registered on an explicit Registry, which is then
// handed to New:
//
//	reg := bus.NewRegistry()
//	reg.Register("/order/create/**", "orderCreated", createHandler)
//	reg.Register("/order/**", "orderFallback", fallbackHandler)
//
//	b, err := bus.New(reg,
//		bus.WithBufferSize(1024),
//		bus.WithProducerType(ring.ProducerMulti),
//		bus.WithWorkerCount(4),
//		bus.WithLogger(logger),
//	)
//
// When several patterns match a route, the pattern registered last wins. In
// the example above every order event, including "/order/create/1", goes to
// orderFallback.
//
// # Lifecycle
//
//	created --Start--> running --Stop--> stopped --Start--> running
//
// Start freezes the registry before any consumer runs and is a no-op while
// running. Stop rejects new publishes, drains what was published, joins the
// consumers and is a no-op unless running. With WithShutdownHook the bus
// stops itself on SIGINT or SIGTERM; an explicit Stop removes the hook.
//
// # Failures
//
// Handler errors and panics are passed to the exception handler with the
// sequence and a snapshot of the event; the event still counts as consumed.
// Events whose route matches no pattern are logged and dropped.
package bus
