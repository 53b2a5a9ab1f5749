// Package redisstore is a leaseq.Store backed by Redis.
//
// Each active task is a HASH; a ZSET scored by lease expiry indexes them for
// claiming. Lease-conditional writes run as Lua scripts so the owner check and
// the write happen atomically.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/UniQw/leaseq"
	"github.com/UniQw/leaseq/internal/keys"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

var _ leaseq.Store = (*Store)(nil)

// DefaultNamespace is used when no namespace is configured.
const DefaultNamespace = "default"

// claimWindow bounds how many expired leases one claim ranks by priority.
const claimWindow = 256

// claimAttempts bounds how often ClaimTask refetches candidates after every
// candidate of a round was leased elsewhere or turned out stale.
const claimAttempts = 3

// Option configures the Store.
type Option func(*Store)

// WithNamespace isolates the store's keys under ns.
func WithNamespace(ns string) Option {
	return func(s *Store) {
		if ns != "" {
			s.k = keys.For(ns)
		}
	}
}

// Store implements leaseq.Store on a Redis client.
type Store struct {
	rdb redis.UniversalClient
	k   keys.Namespace
}

// New returns a Store using rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Store {
	s := &Store{rdb: rdb, k: keys.For(DefaultNamespace)}
	for _, o := range opts {
		o(s)
	}
	return s
}

// taskHash is the stored form of an active task.
type taskHash struct {
	Class       string `redis:"class"`
	DataID      int64  `redis:"data_id"`
	Owner       string `redis:"owner"`
	Expires     int64  `redis:"expires"`
	Priority    int    `redis:"priority"`
	Failures    int    `redis:"failures"`
	FailureTime int64  `redis:"failure_time"`
	Object      string `redis:"object"`
	LastError   string `redis:"last_error"`
}

func toHash(t *leaseq.Task) taskHash {
	return taskHash{
		Class:       t.Class,
		DataID:      t.DataID,
		Owner:       t.LeaseOwner,
		Expires:     toMs(t.LeaseExpires),
		Priority:    t.Priority,
		Failures:    t.FailureCount,
		FailureTime: toMs(t.FailureTime),
		Object:      t.ObjectPHID,
		LastError:   t.LastError,
	}
}

// fields flattens h into HSET field/value pairs.
func (h taskHash) fields() []any {
	return []any{
		"class", h.Class,
		"data_id", h.DataID,
		"owner", h.Owner,
		"expires", h.Expires,
		"priority", h.Priority,
		"failures", h.Failures,
		"failure_time", h.FailureTime,
		"object", h.Object,
		"last_error", h.LastError,
	}
}

func (h taskHash) task(id int64) *leaseq.Task {
	return &leaseq.Task{
		ID:           id,
		Class:        h.Class,
		DataID:       h.DataID,
		LeaseOwner:   h.Owner,
		LeaseExpires: fromMs(h.Expires),
		Priority:     h.Priority,
		FailureCount: h.Failures,
		FailureTime:  fromMs(h.FailureTime),
		ObjectPHID:   h.Object,
		LastError:    h.LastError,
	}
}

// ServerTime returns the Redis server clock.
func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	now, err := s.rdb.Time(ctx).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("leaseq/redis: time: %w", err)
	}
	return now, nil
}

// InsertData stores a payload blob.
func (s *Store) InsertData(ctx context.Context, data []byte) (int64, error) {
	id, err := s.rdb.Incr(ctx, s.k.DataSeq).Result()
	if err != nil {
		return 0, fmt.Errorf("leaseq/redis: data id: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.k.Data, strconv.FormatInt(id, 10), data).Err(); err != nil {
		return 0, fmt.Errorf("leaseq/redis: insert data: %w", err)
	}
	return id, nil
}

// GetData returns a payload blob.
func (s *Store) GetData(ctx context.Context, id int64) ([]byte, error) {
	b, err := s.rdb.HGet(ctx, s.k.Data, strconv.FormatInt(id, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: id=%d", leaseq.ErrDataNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("leaseq/redis: get data: %w", err)
	}
	return b, nil
}

// SaveTask inserts or conditionally updates a task.
func (s *Store) SaveTask(ctx context.Context, t *leaseq.Task) error {
	h := toHash(t)
	if t.ID == 0 {
		return s.insert(ctx, t, h)
	}

	id := strconv.FormatInt(t.ID, 10)
	args := append([]any{id, t.LeaseOwner, h.Expires}, h.fields()...)
	res, err := saveScript.Run(ctx, s.rdb, []string{s.k.Task(id), s.k.Leases}, args...).Int()
	if err != nil {
		return fmt.Errorf("leaseq/redis: save task %d: %w", t.ID, err)
	}
	return casResult(res, t)
}

func (s *Store) insert(ctx context.Context, t *leaseq.Task, h taskHash) error {
	n, err := s.rdb.Incr(ctx, s.k.TaskSeq).Result()
	if err != nil {
		return fmt.Errorf("leaseq/redis: task id: %w", err)
	}
	id := strconv.FormatInt(n, 10)
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.k.Task(id), h.fields()...)
		p.ZAdd(ctx, s.k.Leases, redis.Z{Score: float64(h.Expires), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("leaseq/redis: insert task: %w", err)
	}
	t.ID = n
	return nil
}

// GetTask returns an active task.
func (s *Store) GetTask(ctx context.Context, id int64) (*leaseq.Task, error) {
	cmd := s.rdb.HGetAll(ctx, s.k.Task(strconv.FormatInt(id, 10)))
	m, err := cmd.Result()
	if err != nil {
		return nil, fmt.Errorf("leaseq/redis: get task %d: %w", id, err)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: id=%d", leaseq.ErrTaskNotFound, id)
	}
	var h taskHash
	if err := cmd.Scan(&h); err != nil {
		return nil, fmt.Errorf("leaseq/redis: decode task %d: %w", id, err)
	}
	return h.task(id), nil
}

// ClaimTask leases the most urgent eligible task.
// Candidates are read outside the script so every task key is declared;
// the script re-checks each lease, and a round lost to another claimer is retried.
func (s *Store) ClaimTask(ctx context.Context, owner string, now time.Time, lease time.Duration) (*leaseq.Task, error) {
	for i := 0; i < claimAttempts; i++ {
		ids, err := s.rdb.ZRangeByScore(ctx, s.k.Leases, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(toMs(now), 10),
			Count: claimWindow,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("leaseq/redis: claim candidates: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		ks := make([]string, 0, len(ids)+1)
		args := make([]any, 0, len(ids)+3)
		ks = append(ks, s.k.Leases)
		args = append(args, toMs(now), toMs(now.Add(lease)), owner)
		for _, id := range ids {
			ks = append(ks, s.k.Task(id))
			args = append(args, id)
		}
		id, err := claimScript.Run(ctx, s.rdb, ks, args...).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("leaseq/redis: claim: %w", err)
		}
		return s.GetTask(ctx, id)
	}
	return nil, nil
}

// ArchiveTask moves a task into the archive.
func (s *Store) ArchiveTask(ctx context.Context, t *leaseq.Task, a *leaseq.ArchivedTask) error {
	raw, err := sonic.Marshal(a)
	if err != nil {
		return fmt.Errorf("leaseq/redis: encode archived task %d: %w", a.ID, err)
	}
	id := strconv.FormatInt(t.ID, 10)
	res, err := archiveScript.Run(ctx, s.rdb,
		[]string{s.k.Task(id), s.k.Leases, s.k.Archive, s.k.Archived},
		id, t.LeaseOwner, raw, toMs(a.ArchivedAt)).Int()
	if err != nil {
		return fmt.Errorf("leaseq/redis: archive task %d: %w", t.ID, err)
	}
	return casResult(res, t)
}

// GetArchivedTask returns an archived task.
func (s *Store) GetArchivedTask(ctx context.Context, id int64) (*leaseq.ArchivedTask, error) {
	raw, err := s.rdb.HGet(ctx, s.k.Archive, strconv.FormatInt(id, 10)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: archived id=%d", leaseq.ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("leaseq/redis: get archived task %d: %w", id, err)
	}
	var a leaseq.ArchivedTask
	if err := sonic.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("leaseq/redis: decode archived task %d: %w", id, err)
	}
	return &a, nil
}

// PurgeArchive deletes old archived tasks and their payloads, oldest first.
func (s *Store) PurgeArchive(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = -1
	}
	ids, err := s.rdb.ZRangeByScore(ctx, s.k.Archived, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(toMs(before), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("leaseq/redis: scan archive: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	vals, err := s.rdb.HMGet(ctx, s.k.Archive, ids...).Result()
	if err != nil {
		return 0, fmt.Errorf("leaseq/redis: load archive: %w", err)
	}
	var dataIDs []string
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var a leaseq.ArchivedTask
		if err := sonic.UnmarshalString(raw, &a); err == nil && a.DataID != 0 {
			dataIDs = append(dataIDs, strconv.FormatInt(a.DataID, 10))
		}
	}

	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, s.k.Archive, ids...)
		p.ZRem(ctx, s.k.Archived, members...)
		if len(dataIDs) > 0 {
			p.HDel(ctx, s.k.Data, dataIDs...)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("leaseq/redis: purge archive: %w", err)
	}
	return len(ids), nil
}

func casResult(res int, t *leaseq.Task) error {
	switch res {
	case 1:
		return nil
	case 0:
		return fmt.Errorf("%w: id=%d", leaseq.ErrTaskNotFound, t.ID)
	default:
		return fmt.Errorf("%w: task %d is no longer leased by %q", leaseq.ErrLeaseExpired, t.ID, t.LeaseOwner)
	}
}

func toMs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMs(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
