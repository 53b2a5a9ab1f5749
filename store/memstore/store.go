// Package memstore is an in-memory leaseq.Store. Safe for concurrent access.
// Intended for unit testing and development.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/UniQw/leaseq"
)

var _ leaseq.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithClock sets the clock the store reports as its server time.
func WithClock(c leaseq.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Store keeps active tasks, archived tasks and payload blobs in maps.
type Store struct {
	mu    sync.RWMutex
	clock leaseq.Clock

	seq     int64
	dataSeq int64

	tasks    map[int64]*leaseq.Task
	archived map[int64]*leaseq.ArchivedTask
	data     map[int64][]byte
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    leaseq.SystemClock(),
		tasks:    make(map[int64]*leaseq.Task),
		archived: make(map[int64]*leaseq.ArchivedTask),
		data:     make(map[int64][]byte),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ServerTime returns the store clock reading.
func (s *Store) ServerTime(context.Context) (time.Time, error) {
	return s.clock.Now(), nil
}

// InsertData stores a payload blob.
func (s *Store) InsertData(_ context.Context, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dataSeq++
	s.data[s.dataSeq] = append([]byte(nil), data...)
	return s.dataSeq, nil
}

// GetData returns a payload blob.
func (s *Store) GetData(_ context.Context, id int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[id]
	if !ok {
		return nil, leaseq.ErrDataNotFound
	}
	return append([]byte(nil), b...), nil
}

// SaveTask inserts or conditionally updates a task.
func (s *Store) SaveTask(_ context.Context, t *leaseq.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == 0 {
		s.seq++
		t.ID = s.seq
		s.tasks[t.ID] = clone(t)
		return nil
	}

	cur, ok := s.tasks[t.ID]
	if !ok {
		return leaseq.ErrTaskNotFound
	}
	if cur.LeaseOwner != t.LeaseOwner {
		return fmt.Errorf("%w: task %d is leased by %q", leaseq.ErrLeaseExpired, t.ID, cur.LeaseOwner)
	}
	s.tasks[t.ID] = clone(t)
	return nil
}

// GetTask returns an active task.
func (s *Store) GetTask(_ context.Context, id int64) (*leaseq.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, leaseq.ErrTaskNotFound
	}
	return clone(t), nil
}

// ClaimTask leases the most urgent eligible task.
func (s *Store) ClaimTask(_ context.Context, owner string, now time.Time, lease time.Duration) (*leaseq.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *leaseq.Task
	for _, t := range s.tasks {
		if t.LeaseExpires.After(now) {
			continue
		}
		if best == nil || t.Priority < best.Priority || (t.Priority == best.Priority && t.ID < best.ID) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	best.LeaseOwner = owner
	best.LeaseExpires = now.Add(lease)
	return clone(best), nil
}

// ArchiveTask moves a task into the archive.
func (s *Store) ArchiveTask(_ context.Context, t *leaseq.Task, a *leaseq.ArchivedTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[t.ID]
	if !ok {
		return leaseq.ErrTaskNotFound
	}
	if cur.LeaseOwner != t.LeaseOwner {
		return fmt.Errorf("%w: task %d is leased by %q", leaseq.ErrLeaseExpired, t.ID, cur.LeaseOwner)
	}
	delete(s.tasks, t.ID)
	cp := *a
	s.archived[a.ID] = &cp
	return nil
}

// GetArchivedTask returns an archived task.
func (s *Store) GetArchivedTask(_ context.Context, id int64) (*leaseq.ArchivedTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.archived[id]
	if !ok {
		return nil, leaseq.ErrTaskNotFound
	}
	cp := *a
	return &cp, nil
}

// PurgeArchive deletes old archived tasks and their payloads, oldest ids first.
func (s *Store) PurgeArchive(_ context.Context, before time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []int64
	for id, a := range s.archived {
		if a.ArchivedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	for _, id := range ids {
		if d := s.archived[id].DataID; d != 0 {
			delete(s.data, d)
		}
		delete(s.archived, id)
	}
	return len(ids), nil
}

// clone copies t without its attached payload or clock sync point.
func clone(t *leaseq.Task) *leaseq.Task {
	cp := *t
	cp.AttachData(nil)
	cp.Sync(time.Time{}, time.Time{})
	return &cp
}
