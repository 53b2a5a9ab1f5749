package hctx

import "context"

// State holds per-execution data shared between the executor and a running
// handler: the task being executed and the follow-up tasks the handler queued.
type State[T, Q any] struct {
	Task   T
	Queued []Q
}

// New creates a fresh handler state container for task.
func New[T, Q any](task T) *State[T, Q] { return &State[T, Q]{Task: task} }

// Queue appends a follow-up task.
func (s *State[T, Q]) Queue(q Q) { s.Queued = append(s.Queued, q) }

type ctxKey struct{}

// WithState returns a child context carrying the given handler state.
func WithState[T, Q any](parent context.Context, s *State[T, Q]) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the handler state from context if present.
func From[T, Q any](ctx context.Context) (*State[T, Q], bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State[T, Q])
	return st, ok
}
