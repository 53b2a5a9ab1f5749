package leaseq

import "time"

type options struct {
	priority    int
	prioritySet bool
	objectPHID  string
	delay       time.Duration
	delayUntil  time.Time
}

// Option is a function that configures task behavior during Schedule or QueueTask.
type Option func(*options)

// Priority sets the claim priority of the task. Lower values run first.
// Defaults to PriorityDefault, or to the parent's priority for chained tasks.
func Priority(p int) Option {
	return func(o *options) {
		o.priority = p
		o.prioritySet = true
	}
}

// ObjectPHID links the task to the object it operates on.
func ObjectPHID(phid string) Option {
	return func(o *options) {
		o.objectPHID = phid
	}
}

// Delay keeps the task from being claimed until d has passed on the store clock.
func Delay(d time.Duration) Option {
	return func(o *options) {
		o.delay = d
	}
}

// DelayUntil keeps the task from being claimed before t (store clock).
// Zero values are ignored.
func DelayUntil(t time.Time) Option {
	return func(o *options) {
		if !t.IsZero() {
			o.delayUntil = t
		}
	}
}

func buildOptions(opts []Option) *options {
	cfg := &options{priority: PriorityDefault}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
