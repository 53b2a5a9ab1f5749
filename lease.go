package leaseq

import (
	"fmt"
	"time"
)

// CheckLease fails with ErrLeaseExpired if t is leased and now, in the store's
// time domain, is at or past the lease expiry. Unleased tasks always pass.
// It has no side effects.
func CheckLease(t *Task, now time.Time) error {
	if t.LeaseOwner == "" {
		return nil
	}
	if !now.Before(t.LeaseExpires) {
		return fmt.Errorf("%w: task %d (%s) owner=%s expired=%s now=%s",
			ErrLeaseExpired, t.ID, t.Class, t.LeaseOwner,
			t.LeaseExpires.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano))
	}
	return nil
}
