package jobs

import (
	"context"
	"fmt"
	"sync"
)

// Handler defines the interface for executing a specific job type.
// Integration packages implement this interface for their job types, which
// keeps the queue infrastructure decoupled from domain logic.
type Handler interface {
	// Execute runs the job and returns any error encountered. Handlers
	// decode their own payload from job.Payload and should check
	// ctx.Done() periodically during long work.
	Execute(ctx context.Context, job *Job) error

	// Name returns the handler name used for registration and routing,
	// e.g. "shopify.sync" or "shopify.webhook".
	Name() string
}

// Registry manages job handlers by name.
// Thread-safe for concurrent handler registration and lookup.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler using its name.
// Panics if a handler is already registered with that name.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		panic(fmt.Sprintf("handler already registered for name: %s", name))
	}
	r.handlers[name] = handler
}

// Get retrieves the handler for a handler name.
// Returns nil if no handler is registered.
func (r *Registry) Get(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has checks if a handler is registered for a name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names returns all registered handler names
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

// Execute dispatches a job to its registered handler
func (r *Registry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return fmt.Errorf("job missing handler_name")
	}

	handler := r.Get(job.HandlerName)
	if handler == nil {
		return fmt.Errorf("no handler registered for handler name: %s", job.HandlerName)
	}
	return handler.Execute(ctx, job)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, job *Job) error
}

// Execute runs the wrapped function
func (h HandlerFunc) Execute(ctx context.Context, job *Job) error {
	return h.Fn(ctx, job)
}

// Name returns the handler name
func (h HandlerFunc) Name() string {
	return h.HandlerName
}
