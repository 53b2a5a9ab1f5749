package leaseq

import "time"

// Queue priorities. Lower values are claimed first.
const (
	PriorityAlerts  = 1000
	PriorityDefault = 2000
	PriorityBulk    = 3000
	PriorityImport  = 4000
)

// Task is an active unit of work. It stays in the active set until it is archived.
type Task struct {
	// ID is assigned by the store on first insert and never changes.
	ID int64 `json:"id"`
	// Class selects the handler registered on the Mux.
	Class string `json:"class"`
	// DataID references the payload blob, 0 when the task carries no data.
	DataID int64 `json:"data_id,omitempty"`
	// LeaseOwner identifies the worker holding the lease; empty when unleased.
	LeaseOwner string `json:"lease_owner,omitempty"`
	// LeaseExpires is measured against the store clock, not the local one.
	LeaseExpires time.Time `json:"lease_expires"`
	// Priority is used by the claim query to order eligible tasks.
	Priority int `json:"priority"`
	// FailureCount is the number of transient failures so far.
	FailureCount int `json:"failure_count"`
	// FailureTime is when the last transient failure happened.
	FailureTime time.Time `json:"failure_time"`
	// ObjectPHID links the task to the object it operates on.
	ObjectPHID string `json:"object_phid,omitempty"`
	// LastError is the diagnostic from the last yield or transient failure.
	LastError string `json:"last_error,omitempty"`

	data []byte

	// Clock sync point: store time and local reading taken together.
	serverAt time.Time
	localAt  time.Time
}

// AttachData sets the payload that is written before the task is first inserted.
// It has no effect once the task references a blob.
func (t *Task) AttachData(b []byte) {
	t.data = b
}

// Sync records a store time reading taken at local time localNow.
func (t *Task) Sync(serverNow, localNow time.Time) {
	t.serverAt = serverNow
	t.localAt = localNow
}

// Synced reports whether the task carries a clock sync point.
func (t *Task) Synced() bool {
	return !t.serverAt.IsZero()
}

// ServerNow estimates the current store time from the sync point and the local
// time elapsed since then.
func (t *Task) ServerNow(c Clock) time.Time {
	return t.serverAt.Add(c.Now().Sub(t.localAt))
}

// ArchivedTask is the immutable terminal copy of a Task.
type ArchivedTask struct {
	ID           int64     `json:"id"`
	Class        string    `json:"class"`
	DataID       int64     `json:"data_id,omitempty"`
	LeaseOwner   string    `json:"lease_owner,omitempty"`
	LeaseExpires time.Time `json:"lease_expires"`
	Priority     int       `json:"priority"`
	FailureCount int       `json:"failure_count"`
	ObjectPHID   string    `json:"object_phid,omitempty"`
	Result       Result    `json:"result"`
	// Duration is the time spent in the final attempt, in microseconds.
	Duration int64 `json:"duration"`
	// Error is the diagnostic of a failed terminal attempt.
	Error      string    `json:"error,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

func newArchivedTask(t *Task, r Result, duration int64, at time.Time) *ArchivedTask {
	return &ArchivedTask{
		ID:           t.ID,
		Class:        t.Class,
		DataID:       t.DataID,
		LeaseOwner:   t.LeaseOwner,
		LeaseExpires: t.LeaseExpires,
		Priority:     t.Priority,
		FailureCount: t.FailureCount,
		ObjectPHID:   t.ObjectPHID,
		Result:       r,
		Duration:     duration,
		ArchivedAt:   at,
	}
}
