package keys

// Package keys centralizes Redis key construction.
// It is kept in internal to avoid leaking key formats to public API.

// Namespace holds all precomputed keys for a namespace to avoid repeated concatenations.
// Every key shares the {ns} hash tag so scripts stay on one cluster slot.
type Namespace struct {
	// TaskSeq and DataSeq are INCR counters for task and data ids.
	TaskSeq string
	DataSeq string
	// Data is a HASH of data id -> payload.
	Data string
	// Leases is a ZSET of active task id scored by lease expiry in ms.
	Leases string
	// Archive is a HASH of task id -> encoded archived task.
	Archive string
	// Archived is a ZSET of archived task id scored by archive time in ms.
	Archived string
	// TaskPrefix prefixes the per-task HASH key.
	TaskPrefix string
}

// For returns a set of precomputed keys for the provided namespace.
func For(ns string) Namespace {
	prefix := "leaseq:{" + ns + "}:"
	return Namespace{
		TaskSeq:    prefix + "task_seq",
		DataSeq:    prefix + "data_seq",
		Data:       prefix + "data",
		Leases:     prefix + "leases",
		Archive:    prefix + "archive",
		Archived:   prefix + "archived",
		TaskPrefix: prefix + "task:",
	}
}

// Task returns the HASH key for an active task.
func (n Namespace) Task(id string) string { return n.TaskPrefix + id }

// Leases returns the lease index key for ns.
func Leases(ns string) string { return "leaseq:{" + ns + "}:leases" }

// Archived returns the archive-time index key for ns.
func Archived(ns string) string { return "leaseq:{" + ns + "}:archived" }
