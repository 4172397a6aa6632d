package bus

import (
	"fmt"
	"sort"
	"sync"

	"github.com/dshills/ringbus/internal/event"
	"github.com/dshills/ringbus/internal/route"
)

// Registry holds the handlers of a bus and the route table that selects
// between them. It is passed to New explicitly; there is no process-wide
// handler lookup.
//
// Registration happens before Start. Starting the bus freezes the registry.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]event.Handler
	table    *route.Table
	frozen   bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]event.Handler),
		table:    route.NewTable(),
	}
}

// RegisterHandler adds handler under id.
func (r *Registry) RegisterHandler(id string, handler event.Handler) error {
	if id == "" {
		return route.ErrEmptyHandlerID
	}
	if handler == nil {
		return fmt.Errorf("%w: %s", ErrNilHandler, id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.handlers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, id)
	}
	r.handlers[id] = handler
	return nil
}

// RegisterRoute maps pattern to a handler id. The id may be registered
// later, but must exist by the time the registry is frozen. When several
// patterns match an event, the one registered last wins.
func (r *Registry) RegisterRoute(pattern, handlerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	return r.table.Add(pattern, handlerID)
}

// RegisterRoutes adds entries in order.
func (r *Registry) RegisterRoutes(entries ...route.Entry) error {
	for _, e := range entries {
		if err := r.RegisterRoute(e.Pattern, e.HandlerID); err != nil {
			return err
		}
	}
	return nil
}

// Register adds handler under id and maps pattern to it.
func (r *Registry) Register(pattern, id string, handler event.Handler) error {
	if err := r.RegisterHandler(id, handler); err != nil {
		return err
	}
	return r.RegisterRoute(pattern, id)
}

// Handler returns the handler registered under id.
func (r *Registry) Handler(id string) (event.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[id]
	return h, ok
}

// HandlerIDs returns the registered ids in sorted order.
func (r *Registry) HandlerIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Routes returns the route entries in resolution order.
func (r *Registry) Routes() []route.Entry {
	return r.table.Entries()
}

// Freeze validates that every route refers to a registered handler and makes
// the registry immutable. It is idempotent.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}
	for _, e := range r.table.Entries() {
		if _, ok := r.handlers[e.HandlerID]; !ok {
			return &ConfigurationError{
				Field:  "routes",
				Value:  e.Pattern,
				Reason: "unknown handler id " + e.HandlerID,
			}
		}
	}
	r.table.Freeze()
	r.frozen = true
	return nil
}

// Frozen reports whether Freeze has succeeded.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// resolver returns a resolver over the route table.
func (r *Registry) resolver() *route.Resolver {
	return route.NewResolver(r.table)
}
