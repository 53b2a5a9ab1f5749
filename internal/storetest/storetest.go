// Package storetest holds the behavior every leaseq.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/UniQw/leaseq"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) leaseq.Store

// Run exercises a store backend.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(*testing.T, leaseq.Store)
	}{
		{"ServerTime", testServerTime},
		{"Data", testData},
		{"InsertAndGet", testInsertAndGet},
		{"Update", testUpdate},
		{"OwnerMismatch", testOwnerMismatch},
		{"ClaimOrder", testClaimOrder},
		{"ClaimAfterExpiry", testClaimAfterExpiry},
		{"Archive", testArchive},
		{"PurgeArchive", testPurgeArchive},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func baseTime(t *testing.T, s leaseq.Store) time.Time {
	t.Helper()
	now, err := s.ServerTime(context.Background())
	require.NoError(t, err)
	return now.Truncate(time.Millisecond)
}

func insert(t *testing.T, s leaseq.Store, task *leaseq.Task) *leaseq.Task {
	t.Helper()
	require.NoError(t, s.SaveTask(context.Background(), task))
	require.NotZero(t, task.ID)
	return task
}

func testServerTime(t *testing.T, s leaseq.Store) {
	now, err := s.ServerTime(context.Background())
	require.NoError(t, err)
	require.False(t, now.IsZero())
}

func testData(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	id1, err := s.InsertData(ctx, []byte(`{"a":1}`))
	require.NoError(t, err)
	id2, err := s.InsertData(ctx, []byte(`{"a":2}`))
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	b, err := s.GetData(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, []byte(`{"a":1}`), b)

	_, err = s.GetData(ctx, id2+100)
	require.ErrorIs(t, err, leaseq.ErrDataNotFound)
}

func testInsertAndGet(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)

	a := insert(t, s, &leaseq.Task{Class: "mail", Priority: leaseq.PriorityBulk, ObjectPHID: "PHID-USER-1"})
	b := insert(t, s, &leaseq.Task{Class: "mail", DataID: 7, LeaseExpires: now.Add(time.Minute)})
	require.Greater(t, b.ID, a.ID, "ids must increase")

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, "mail", got.Class)
	require.Equal(t, leaseq.PriorityBulk, got.Priority)
	require.Equal(t, "PHID-USER-1", got.ObjectPHID)
	require.Empty(t, got.LeaseOwner)
	require.Zero(t, got.FailureCount)
	require.True(t, got.LeaseExpires.IsZero() || !got.LeaseExpires.After(now))

	got, err = s.GetTask(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.DataID)
	require.Equal(t, now.Add(time.Minute).UnixMilli(), got.LeaseExpires.UnixMilli())

	_, err = s.GetTask(ctx, b.ID+100)
	require.ErrorIs(t, err, leaseq.ErrTaskNotFound)
}

func testUpdate(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)
	task := insert(t, s, &leaseq.Task{Class: "c", Priority: leaseq.PriorityDefault})

	task.FailureCount = 2
	task.FailureTime = now
	task.LastError = "boom"
	task.LeaseExpires = now.Add(time.Hour)
	require.NoError(t, s.SaveTask(ctx, task))

	got, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.FailureCount)
	require.Equal(t, "boom", got.LastError)
	require.Equal(t, now.UnixMilli(), got.FailureTime.UnixMilli())
	require.Equal(t, now.Add(time.Hour).UnixMilli(), got.LeaseExpires.UnixMilli())

	missing := &leaseq.Task{ID: task.ID + 100, Class: "c"}
	require.ErrorIs(t, s.SaveTask(ctx, missing), leaseq.ErrTaskNotFound)
}

func testOwnerMismatch(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)
	insert(t, s, &leaseq.Task{Class: "c"})

	claimed, err := s.ClaimTask(ctx, "owner-a", now, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	stale := *claimed
	stale.LeaseOwner = "owner-b"
	stale.FailureCount = 9
	require.ErrorIs(t, s.SaveTask(ctx, &stale), leaseq.ErrLeaseExpired)

	a := &leaseq.ArchivedTask{ID: stale.ID, Class: stale.Class, Result: leaseq.ResultSuccess, ArchivedAt: now}
	require.ErrorIs(t, s.ArchiveTask(ctx, &stale, a), leaseq.ErrLeaseExpired)

	got, err := s.GetTask(ctx, claimed.ID)
	require.NoError(t, err, "task must stay active")
	require.Equal(t, "owner-a", got.LeaseOwner)
	require.Zero(t, got.FailureCount)
	_, err = s.GetArchivedTask(ctx, claimed.ID)
	require.ErrorIs(t, err, leaseq.ErrTaskNotFound)
}

func testClaimOrder(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)

	bulk := insert(t, s, &leaseq.Task{Class: "c", Priority: leaseq.PriorityBulk})
	alert1 := insert(t, s, &leaseq.Task{Class: "c", Priority: leaseq.PriorityAlerts})
	alert2 := insert(t, s, &leaseq.Task{Class: "c", Priority: leaseq.PriorityAlerts})
	delayed := insert(t, s, &leaseq.Task{Class: "c", Priority: 1, LeaseExpires: now.Add(time.Hour)})

	for _, want := range []int64{alert1.ID, alert2.ID, bulk.ID} {
		got, err := s.ClaimTask(ctx, "w", now, time.Minute)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, want, got.ID)
		require.Equal(t, "w", got.LeaseOwner)
		require.Equal(t, now.Add(time.Minute).UnixMilli(), got.LeaseExpires.UnixMilli())
	}

	got, err := s.ClaimTask(ctx, "w", now, time.Minute)
	require.NoError(t, err)
	require.Nil(t, got, "delayed and leased tasks are not eligible")

	got, err = s.ClaimTask(ctx, "w2", now.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, delayed.ID, got.ID, "lowest priority value wins once eligible")
}

func testClaimAfterExpiry(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)
	task := insert(t, s, &leaseq.Task{Class: "c"})

	first, err := s.ClaimTask(ctx, "w1", now, time.Minute)
	require.NoError(t, err)
	require.Equal(t, task.ID, first.ID)

	got, err := s.ClaimTask(ctx, "w2", now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	require.Nil(t, got)

	later := now.Add(time.Minute)
	second, err := s.ClaimTask(ctx, "w2", later, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second, "expiry is inclusive")
	require.Equal(t, task.ID, second.ID)
	require.Equal(t, "w2", second.LeaseOwner)

	require.ErrorIs(t, s.SaveTask(ctx, first), leaseq.ErrLeaseExpired)
}

func testArchive(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)
	dataID, err := s.InsertData(ctx, []byte("x"))
	require.NoError(t, err)
	insert(t, s, &leaseq.Task{Class: "c", DataID: dataID, Priority: 5, ObjectPHID: "PHID-X"})

	task, err := s.ClaimTask(ctx, "w", now, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, task)

	a := &leaseq.ArchivedTask{
		ID:           task.ID,
		Class:        task.Class,
		DataID:       task.DataID,
		LeaseOwner:   task.LeaseOwner,
		LeaseExpires: task.LeaseExpires,
		Priority:     task.Priority,
		FailureCount: 3,
		ObjectPHID:   task.ObjectPHID,
		Result:       leaseq.ResultFailure,
		Duration:     1200,
		Error:        "gave up",
		ArchivedAt:   now,
	}
	require.NoError(t, s.ArchiveTask(ctx, task, a))

	_, err = s.GetTask(ctx, task.ID)
	require.ErrorIs(t, err, leaseq.ErrTaskNotFound)

	got, err := s.GetArchivedTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, got.ID)
	require.Equal(t, "c", got.Class)
	require.Equal(t, dataID, got.DataID)
	require.Equal(t, "w", got.LeaseOwner)
	require.Equal(t, 5, got.Priority)
	require.Equal(t, 3, got.FailureCount)
	require.Equal(t, "PHID-X", got.ObjectPHID)
	require.Equal(t, leaseq.ResultFailure, got.Result)
	require.Equal(t, int64(1200), got.Duration)
	require.Equal(t, "gave up", got.Error)
	require.Equal(t, now.UnixMilli(), got.ArchivedAt.UnixMilli())

	require.ErrorIs(t, s.ArchiveTask(ctx, task, a), leaseq.ErrTaskNotFound, "a task is archived once")

	next, err := s.ClaimTask(ctx, "w", now.Add(time.Hour), time.Minute)
	require.NoError(t, err)
	require.Nil(t, next, "archived tasks are never claimed")
}

func testPurgeArchive(t *testing.T, s leaseq.Store) {
	ctx := context.Background()
	now := baseTime(t, s)

	var ids, dataIDs []int64
	for i, age := range []time.Duration{2 * time.Hour, time.Hour, 0} {
		dataID, err := s.InsertData(ctx, []byte{byte(i)})
		require.NoError(t, err)
		task := insert(t, s, &leaseq.Task{Class: "c", DataID: dataID})
		a := &leaseq.ArchivedTask{ID: task.ID, Class: "c", DataID: dataID, Result: leaseq.ResultSuccess, ArchivedAt: now.Add(-age)}
		require.NoError(t, s.ArchiveTask(ctx, task, a))
		ids = append(ids, task.ID)
		dataIDs = append(dataIDs, dataID)
	}

	n, err := s.PurgeArchive(ctx, now.Add(-30*time.Minute), 1)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	_, err = s.GetArchivedTask(ctx, ids[0])
	require.ErrorIs(t, err, leaseq.ErrTaskNotFound, "oldest goes first")
	_, err = s.GetData(ctx, dataIDs[0])
	require.ErrorIs(t, err, leaseq.ErrDataNotFound)

	n, err = s.PurgeArchive(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.PurgeArchive(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := s.GetArchivedTask(ctx, ids[2])
	require.NoError(t, err)
	require.Equal(t, ids[2], got.ID)
	b, err := s.GetData(ctx, dataIDs[2])
	require.NoError(t, err)
	require.Equal(t, []byte{2}, b)
}
