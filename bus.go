package academic

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// MiddlewareFunc is one step of the command pipeline.
type MiddlewareFunc func(ctx context.Context, cmd Command) (CommandResult, error)

// Middleware wraps the next step of the command pipeline.
type Middleware func(next MiddlewareFunc) MiddlewareFunc

// ChainMiddleware folds several middleware into one. The first argument is
// the outermost.
func ChainMiddleware(middleware ...Middleware) Middleware {
	return func(next MiddlewareFunc) MiddlewareFunc {
		return wrap(next, middleware)
	}
}

func wrap(final MiddlewareFunc, middleware []Middleware) MiddlewareFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		final = middleware[i](final)
	}
	return final
}

// CommandBus routes record commands to one handler per command type.
//
// Each handler is wrapped in the middleware pipeline on its first dispatch
// and the wrapped chain is cached. Register and Use invalidate the cache.
type CommandBus struct {
	mu         sync.RWMutex
	handlers   map[string]CommandHandler
	middleware []Middleware
	chains     map[string]MiddlewareFunc
	closed     atomic.Bool
}

// CommandBusOption configures a CommandBus.
type CommandBusOption func(*CommandBus)

// WithMiddleware appends middleware to the pipeline.
func WithMiddleware(middleware ...Middleware) CommandBusOption {
	return func(b *CommandBus) {
		b.middleware = append(b.middleware, middleware...)
	}
}

// NewCommandBus creates an empty bus.
func NewCommandBus(opts ...CommandBusOption) *CommandBus {
	b := &CommandBus{
		handlers: make(map[string]CommandHandler),
		chains:   make(map[string]MiddlewareFunc),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register installs handler for its command type, replacing any earlier one.
func (b *CommandBus) Register(handler CommandHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cmdType := handler.CommandType()
	b.handlers[cmdType] = handler
	delete(b.chains, cmdType)
}

// Use appends middleware. Middleware runs in the order it was added.
func (b *CommandBus) Use(middleware ...Middleware) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.middleware = append(b.middleware, middleware...)
	b.chains = make(map[string]MiddlewareFunc)
}

// Dispatch runs cmd through the pipeline and its handler.
func (b *CommandBus) Dispatch(ctx context.Context, cmd Command) (CommandResult, error) {
	if b.closed.Load() {
		return NewErrorResult(ErrCommandBusClosed), ErrCommandBusClosed
	}
	if cmd == nil {
		return NewErrorResult(ErrNilCommand), ErrNilCommand
	}

	chain, err := b.chain(cmd.CommandType())
	if err != nil {
		return NewErrorResult(err), err
	}
	return chain(ctx, cmd)
}

func (b *CommandBus) chain(cmdType string) (MiddlewareFunc, error) {
	b.mu.RLock()
	chain, ok := b.chains[cmdType]
	b.mu.RUnlock()
	if ok {
		return chain, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if chain, ok := b.chains[cmdType]; ok {
		return chain, nil
	}
	handler, ok := b.handlers[cmdType]
	if !ok {
		return nil, NewHandlerNotFoundError(cmdType)
	}
	chain = wrap(handler.Handle, b.middleware)
	b.chains[cmdType] = chain
	return chain, nil
}

// HasHandler reports whether cmdType has a handler.
func (b *CommandBus) HasHandler(cmdType string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.handlers[cmdType]
	return ok
}

// HandlerCount returns the number of registered handlers.
func (b *CommandBus) HandlerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}

// CommandTypes lists the command types with a handler, sorted.
func (b *CommandBus) CommandTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.handlers))
	for t := range b.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Close makes every later Dispatch fail with ErrCommandBusClosed.
func (b *CommandBus) Close() error {
	b.closed.Store(true)
	return nil
}

// IsClosed reports whether Close was called.
func (b *CommandBus) IsClosed() bool {
	return b.closed.Load()
}
