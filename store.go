package leaseq

import (
	"context"
	"time"
)

// Store persists active tasks, archived tasks and payload blobs.
//
// Implementations must make ArchiveTask an atomic move and must reject
// SaveTask/ArchiveTask with ErrLeaseExpired when the stored lease owner
// differs from the one on the task being written.
type Store interface {
	Authority

	// InsertData stores a payload blob and returns its id.
	InsertData(ctx context.Context, data []byte) (int64, error)
	// GetData returns a payload blob or ErrDataNotFound.
	GetData(ctx context.Context, id int64) ([]byte, error)

	// SaveTask inserts t when t.ID is 0, assigning a new monotonically increasing id.
	// Otherwise it overwrites the stored task.
	SaveTask(ctx context.Context, t *Task) error
	// GetTask returns an active task or ErrTaskNotFound.
	GetTask(ctx context.Context, id int64) (*Task, error)
	// ClaimTask leases the most urgent task whose lease expired at or before now
	// to owner until now+lease. It returns nil, nil when nothing is eligible.
	ClaimTask(ctx context.Context, owner string, now time.Time, lease time.Duration) (*Task, error)
	// ArchiveTask removes the active task t and stores a in the same step.
	ArchiveTask(ctx context.Context, t *Task, a *ArchivedTask) error

	// GetArchivedTask returns an archived task or ErrTaskNotFound.
	GetArchivedTask(ctx context.Context, id int64) (*ArchivedTask, error)
	// PurgeArchive deletes up to limit archived tasks archived before the
	// given time, together with their payload blobs.
	PurgeArchive(ctx context.Context, before time.Time, limit int) (int, error)
}
