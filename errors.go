package leaseq

import (
	"errors"
	"fmt"
	"time"
)

// ErrLeaseExpired is returned when a task is mutated after its lease has run out,
// or after another worker has taken the lease over. It is a coordination bug, never retried.
var ErrLeaseExpired = errors.New("leaseq: lease expired")

// ErrNotPersisted is returned when archiving a task that was never saved.
var ErrNotPersisted = errors.New("leaseq: task has not been persisted")

// ErrIllegalOperation is returned when an active task is deleted directly.
// Active tasks leave the queue only through Archive.
var ErrIllegalOperation = errors.New("leaseq: active tasks can not be deleted directly")

// ErrTaskNotFound is returned when a task with the specified ID is not found.
var ErrTaskNotFound = errors.New("leaseq: task not found")

// ErrDataNotFound is returned when a task references a payload blob that does not exist.
var ErrDataNotFound = errors.New("leaseq: task data not found")

// ErrUnknownResult is returned when an invalid archive result is used.
var ErrUnknownResult = errors.New("leaseq: unknown result")

// ErrNoHandler indicates there is no handler registered for a task class.
// The executor fails such tasks permanently.
var ErrNoHandler = errors.New("leaseq: no handler")

// PermanentError marks a handler failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent failure"
	}
	return "permanent failure: " + e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so the executor archives the task as failed instead of retrying it.
func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// YieldError is a voluntary deferral requested by a handler. It is not counted as a failure.
type YieldError struct {
	Duration time.Duration
}

func (e *YieldError) Error() string {
	return fmt.Sprintf("yield: retry in %s", e.Duration)
}

// Yield asks the executor to put the task back and try again after d.
// Delays shorter than YieldFloor are raised to YieldFloor.
func Yield(d time.Duration) error {
	return &YieldError{Duration: yieldDelay(d)}
}

// ErrNoExecution is returned by QueueTask when ctx does not belong to a running task.
var ErrNoExecution = errors.New("leaseq: no task execution in context")
