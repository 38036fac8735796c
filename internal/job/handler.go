// Package job runs commands: it resolves the handler for a command, wraps
// each run with scope setup, execution-history bookkeeping and progress
// reporting, and hands runs to an immediate or a deferred dispatcher.
//
// Handlers are typed. Register converts a Handler[C] into a type-erased
// function keyed by the command name:
//
//	reg := job.NewRegistry()
//	job.Register[command.DemoLog](reg, demolog.New(logger))
//
// The Executor then runs any Command whose name has a registered handler.
package job

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrNoHandler = errors.New("no handler registered")

// Command is the unit of work a handler executes.
type Command interface {
	CommandName() string
}

// Handler executes exactly one command type. Implementations must observe
// ctx cancellation.
type Handler[C Command] interface {
	Execute(ctx context.Context, cmd C) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[C Command] func(ctx context.Context, cmd C) error

func (f HandlerFunc[C]) Execute(ctx context.Context, cmd C) error { return f(ctx, cmd) }

type erasedHandler func(ctx context.Context, cmd Command) error

// Registry maps command names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]erasedHandler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]erasedHandler)}
}

// Register binds h to the command name of C, replacing any previous
// handler.
//
// This is a package-level function because Go has no generic methods.
func Register[C Command](r *Registry, h Handler[C]) {
	var zero C
	name := zero.CommandName()

	erased := func(ctx context.Context, cmd Command) error {
		c, ok := cmd.(C)
		if !ok {
			return fmt.Errorf("handler for %s received %T", name, cmd)
		}
		return h.Execute(ctx, c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = erased
}

func (r *Registry) lookup(name string) (erasedHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Has reports whether a handler is registered for name.
func (r *Registry) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// Missing returns the names in want that have no handler, in order.
func (r *Registry) Missing(want []string) []string {
	var out []string
	for _, name := range want {
		if !r.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
