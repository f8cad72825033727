package async

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/teranos/prism/errors"
)

// JobHandler runs the jobs enqueued under one handler name. Names follow
// "<store>.<kind>" for projection units and "fanout" for mutations.
type JobHandler interface {
	Execute(ctx context.Context, job *Job) error
	Name() string
}

// JobExecutor runs a claimed job.
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// HandlerRegistry maps handler names to handlers and dispatches claimed
// jobs to them. It is itself a JobExecutor.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]JobHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]JobHandler)}
}

// Register adds handlers. Registering a name twice is a wiring bug and panics.
func (r *HandlerRegistry) Register(handlers ...JobHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range handlers {
		name := h.Name()
		if _, dup := r.handlers[name]; dup {
			panic(fmt.Sprintf("async: duplicate handler %q", name))
		}
		r.handlers[name] = h
	}
}

// Lookup returns the handler registered under name.
func (r *HandlerRegistry) Lookup(name string) (JobHandler, bool) {
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	return h, ok
}

// Names lists registered handler names in sorted order.
func (r *HandlerRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Execute dispatches job by its handler name. A job nobody handles is an
// invalid request, so the worker fails it without retrying.
func (r *HandlerRegistry) Execute(ctx context.Context, job *Job) error {
	if job.HandlerName == "" {
		return errors.NewInvalidRequestError("job %s has no handler name", job.ID)
	}
	h, ok := r.Lookup(job.HandlerName)
	if !ok {
		return errors.NewInvalidRequestError("no handler registered for %q", job.HandlerName)
	}
	return h.Execute(ctx, job)
}
