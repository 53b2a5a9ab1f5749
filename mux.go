package leaseq

import (
	"context"
	"time"
)

// HandlerFunc is the function signature for processing a task payload.
type HandlerFunc func(ctx context.Context, payload []byte) error

// ProcessTask calls f(ctx, payload).
func (f HandlerFunc) ProcessTask(ctx context.Context, payload []byte) error {
	return f(ctx, payload)
}

// Handler processes the payload of one task class.
//
// Returning nil archives the task as succeeded. Returning an error wrapped by
// Permanent archives it as failed, an error from Yield defers it, and any other
// error counts as a transient failure and schedules a retry.
type Handler interface {
	ProcessTask(ctx context.Context, payload []byte) error
}

// MaxRetrier is implemented by handlers that give up after a number of transient failures.
type MaxRetrier interface {
	MaxRetries() int
}

// LeaseRequirer is implemented by handlers that need a minimum lease before they start.
type LeaseRequirer interface {
	RequiredLease() time.Duration
}

// RetryWaiter is implemented by handlers that pick their own wait before a retry.
// Non-positive values fall back to the server default.
type RetryWaiter interface {
	WaitBeforeRetry(t *Task) time.Duration
}

// Middleware is a function that wraps a HandlerFunc to provide cross-cutting concerns.
type Middleware func(HandlerFunc) HandlerFunc

type handler struct {
	exec       HandlerFunc
	maxRetries *int
	lease      time.Duration
	retryWait  func(*Task) time.Duration
}

// HandleOption declares the retry and lease policy of a registered handler.
// Options override what the handler declares through the optional interfaces.
type HandleOption func(*handler)

// WithMaxRetries fails the task permanently once it has failed more than n times.
func WithMaxRetries(n int) HandleOption {
	return func(h *handler) {
		h.maxRetries = &n
	}
}

// WithRequiredLease extends the lease to d before the handler runs.
func WithRequiredLease(d time.Duration) HandleOption {
	return func(h *handler) {
		h.lease = d
	}
}

// WithRetryWait sets how long to wait before retrying a failed task.
func WithRetryWait(fn func(*Task) time.Duration) HandleOption {
	return func(h *handler) {
		h.retryWait = fn
	}
}

// Mux routes tasks to their respective handlers based on task class.
type Mux struct {
	handlers    map[string]handler
	middlewares []Middleware
}

// NewMux creates a new Task Mux.
func NewMux() *Mux {
	return &Mux{
		handlers:    make(map[string]handler),
		middlewares: []Middleware{},
	}
}

// Handle registers a handler for a task class. Registering a class twice replaces the handler.
func (m *Mux) Handle(class string, h Handler, opts ...HandleOption) {
	rec := handler{exec: h.ProcessTask}
	if v, ok := h.(MaxRetrier); ok {
		n := v.MaxRetries()
		rec.maxRetries = &n
	}
	if v, ok := h.(LeaseRequirer); ok {
		rec.lease = v.RequiredLease()
	}
	if v, ok := h.(RetryWaiter); ok {
		rec.retryWait = v.WaitBeforeRetry
	}
	for _, opt := range opts {
		opt(&rec)
	}
	m.handlers[class] = rec
}

// HandleFunc registers a handler function for a task class.
func (m *Mux) HandleFunc(class string, fn func(context.Context, []byte) error, opts ...HandleOption) {
	m.Handle(class, HandlerFunc(fn), opts...)
}

// Use adds middleware(s) to the mux. Middlewares are executed in the order they are added.
func (m *Mux) Use(mw Middleware) {
	m.middlewares = append(m.middlewares, mw)
}

func (m *Mux) lookup(class string) (*handler, bool) {
	h, ok := m.handlers[class]
	if !ok {
		return nil, false
	}
	return &h, true
}

func (m *Mux) wrapHandler(h HandlerFunc) HandlerFunc {
	for i := len(m.middlewares) - 1; i >= 0; i-- {
		h = m.middlewares[i](h)
	}
	return h
}
