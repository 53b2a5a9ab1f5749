package leaseq

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/UniQw/leaseq/internal/hctx"
)

// ExecutorConfig defines the configuration for an Executor.
type ExecutorConfig struct {
	// DefaultRetryWait is the delay before retrying a transient failure when the
	// handler does not pick one. Defaults to DefaultRetryWait.
	DefaultRetryWait time.Duration
	// Scheduler receives the follow-up tasks queued by successful handlers.
	// Defaults to the executor's Client.
	Scheduler Scheduler
	// Logger is the logger used for execution events.
	Logger Logger
}

// Execution describes the outcome of one execution attempt.
type Execution struct {
	Outcome Outcome
	// Task is the still-active task after a yield or transient failure.
	Task *Task
	// Archived is the terminal record after a success or permanent failure.
	Archived *ArchivedTask
	// Err is the handler diagnostic; nil on success.
	Err error
}

// Executor runs leased tasks through their handler and moves them to their next state.
type Executor struct {
	client    *Client
	mux       *Mux
	sched     Scheduler
	retryWait time.Duration
	log       Logger
}

// NewExecutor creates an Executor that persists through c and resolves handlers from mux.
func NewExecutor(c *Client, mux *Mux, cfg ExecutorConfig) *Executor {
	l := cfg.Logger
	if l == nil {
		l = noopLogger{}
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = c
	}
	return &Executor{client: c, mux: mux, sched: sched, retryWait: cfg.DefaultRetryWait, log: l}
}

// Execute runs one attempt of t, which must be leased by the caller.
//
// Success, permanent failure, yield and transient failure are all reported
// through the returned Execution. A non-nil error means the lease was lost,
// the store failed, or a follow-up task could not be scheduled after t had
// already succeeded; in the last case the Execution is returned as well.
func (e *Executor) Execute(ctx context.Context, t *Task) (*Execution, error) {
	if err := e.client.CheckLease(ctx, t); err != nil {
		return nil, err
	}

	h, ok := e.mux.lookup(t.Class)
	if !ok {
		return e.fail(ctx, t, Permanent(fmt.Errorf("%w: class=%s", ErrNoHandler, t.Class)), 0)
	}
	if h.maxRetries != nil && t.FailureCount > *h.maxRetries {
		return e.fail(ctx, t, Permanent(fmt.Errorf("task has failed %d times, exceeding the limit of %d retries",
			t.FailureCount, *h.maxRetries)), 0)
	}
	if h.lease > 0 {
		if err := e.client.SetLeaseDuration(ctx, t, h.lease); err != nil {
			return nil, err
		}
	}

	st := hctx.New[*Task, queuedTask](t)
	var elapsed time.Duration
	payload, err := e.payload(ctx, t)
	if err == nil {
		fn := e.mux.wrapHandler(h.exec)
		start := e.client.clock.Now()
		err = e.invoke(hctx.WithState(ctx, st), t, fn, payload)
		elapsed = e.client.clock.Now().Sub(start)
	}

	var (
		perm *PermanentError
		yld  *YieldError
	)
	switch {
	case err == nil:
		exec, serr := e.succeed(ctx, t, elapsed)
		if serr != nil {
			return nil, serr
		}
		// Follow-up scheduling runs outside failure handling: t already succeeded.
		return exec, e.scheduleQueued(ctx, t, st)
	case errors.As(err, &perm):
		return e.fail(ctx, t, err, elapsed)
	case errors.As(err, &yld):
		return e.yield(ctx, t, err, yld.Duration)
	default:
		return e.retry(ctx, t, h, err)
	}
}

// invoke runs fn, converting a panic into a transient failure.
func (e *Executor) invoke(ctx context.Context, t *Task, fn HandlerFunc, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("handler panicked: id=%d class=%s panic=%v stack=%s", t.ID, t.Class, r, debug.Stack())
			err = fmt.Errorf("panic in task %d (%s): %v", t.ID, t.Class, r)
		}
	}()
	return fn(ctx, payload)
}

func (e *Executor) payload(ctx context.Context, t *Task) ([]byte, error) {
	if t.DataID == 0 {
		return nil, nil
	}
	b, err := e.client.store.GetData(ctx, t.DataID)
	if errors.Is(err, ErrDataNotFound) {
		return nil, Permanent(err)
	}
	return b, err
}

func (e *Executor) succeed(ctx context.Context, t *Task, elapsed time.Duration) (*Execution, error) {
	a, err := e.client.archive(ctx, t, ResultSuccess, elapsed, nil)
	if err != nil {
		return nil, err
	}
	e.log.Debugf("processed: id=%d class=%s duration=%dus", t.ID, t.Class, a.Duration)
	return &Execution{Outcome: OutcomeSuccess, Archived: a}, nil
}

func (e *Executor) fail(ctx context.Context, t *Task, cause error, elapsed time.Duration) (*Execution, error) {
	a, err := e.client.archive(ctx, t, ResultFailure, elapsed, cause)
	if err != nil {
		return nil, err
	}
	e.log.Warnf("failed permanently: id=%d class=%s failures=%d err=%v", t.ID, t.Class, t.FailureCount, cause)
	return &Execution{Outcome: OutcomePermanent, Archived: a, Err: cause}, nil
}

func (e *Executor) yield(ctx context.Context, t *Task, cause error, d time.Duration) (*Execution, error) {
	t.LastError = cause.Error()
	d = yieldDelay(d)
	if err := e.client.SetLeaseDuration(ctx, t, d); err != nil {
		return nil, err
	}
	e.log.Infof("yielded: id=%d class=%s retry_in=%s", t.ID, t.Class, d)
	return &Execution{Outcome: OutcomeYield, Task: t, Err: cause}, nil
}

func (e *Executor) retry(ctx context.Context, t *Task, h *handler, cause error) (*Execution, error) {
	now, err := e.client.serverNow(ctx, t)
	if err != nil {
		return nil, err
	}
	t.LastError = cause.Error()
	t.FailureCount++
	t.FailureTime = now
	d := resolveRetryDelay(h, t, e.retryWait)
	if err := e.client.SetLeaseDuration(ctx, t, d); err != nil {
		return nil, err
	}
	e.log.Warnf("handler error: id=%d class=%s failures=%d retry_in=%s err=%v", t.ID, t.Class, t.FailureCount, d, cause)
	return &Execution{Outcome: OutcomeTransient, Task: t, Err: cause}, nil
}

func (e *Executor) scheduleQueued(ctx context.Context, t *Task, st *execState) error {
	for _, q := range st.Queued {
		opts := append([]Option{Priority(t.Priority)}, q.opts...)
		child, err := e.sched.Schedule(ctx, q.class, q.data, opts...)
		if err != nil {
			return fmt.Errorf("leaseq: schedule follow-up %s of task %d: %w", q.class, t.ID, err)
		}
		if child != nil {
			e.log.Debugf("queued follow-up: parent=%d id=%d class=%s", t.ID, child.ID, child.Class)
		}
	}
	return nil
}
