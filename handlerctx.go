package leaseq

import (
	"context"

	"github.com/UniQw/leaseq/internal/hctx"
)

// queuedTask is a follow-up task requested by a running handler.
type queuedTask struct {
	class string
	data  any
	opts  []Option
}

type execState = hctx.State[*Task, queuedTask]

// QueueTask asks the executor to schedule another task once the current one
// succeeds. Nothing is scheduled if the current task fails or yields.
// Queued tasks inherit the current task's priority unless Priority is given.
func QueueTask(ctx context.Context, class string, data any, opts ...Option) error {
	st, ok := hctx.From[*Task, queuedTask](ctx)
	if !ok || st == nil {
		return ErrNoExecution
	}
	st.Queue(queuedTask{class: class, data: data, opts: opts})
	return nil
}

// CurrentTask returns the task being executed, if ctx was provided by the executor.
// Handlers must treat it as read-only.
func CurrentTask(ctx context.Context) (*Task, bool) {
	st, ok := hctx.From[*Task, queuedTask](ctx)
	if !ok || st == nil {
		return nil, false
	}
	return st.Task, true
}
