package leaseq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/UniQw/leaseq"
	"github.com/UniQw/leaseq/store/redisstore"
	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *leaseq.Client {
	t.Helper()
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return leaseq.NewClient(redisstore.New(rdb))
}

func TestServer_StartStop_Idempotent(t *testing.T) {
	mux := leaseq.NewMux()
	mux.HandleFunc("t", func(ctx context.Context, b []byte) error { return nil })
	srv := leaseq.NewServer(newRedisClient(t), leaseq.ServerConfig{
		Concurrency: 0, // no workers
		Logger:      leaseq.NewFmtLogger(),
	}, mux)

	srv.Start()
	srv.Start()
	srv.Stop()
	srv.Stop()
}

func TestServer_StartStop_WithNilLogger(t *testing.T) {
	mux := leaseq.NewMux()
	srv := leaseq.NewServer(newRedisClient(t), leaseq.ServerConfig{Concurrency: 1}, mux)
	srv.Start()
	srv.Stop()
}

func TestServer_ExecutesScheduledTask(t *testing.T) {
	c := newRedisClient(t)
	ctx := context.Background()

	executed := make(chan []byte, 1)
	mux := leaseq.NewMux()
	mux.HandleFunc("test.task", func(ctx context.Context, payload []byte) error {
		executed <- payload
		return nil
	})

	srv := leaseq.NewServer(c, leaseq.ServerConfig{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
	}, mux)
	srv.Start()
	defer srv.Stop()

	task, err := c.Schedule(ctx, "test.task", map[string]string{"message": "hello"})
	require.NoError(t, err)

	select {
	case payload := <-executed:
		require.JSONEq(t, `{"message":"hello"}`, string(payload))
	case <-time.After(5 * time.Second):
		t.Fatal("task was not executed within timeout")
	}

	require.Eventually(t, func() bool {
		a, err := c.LoadArchived(ctx, task.ID)
		return err == nil && a.Result == leaseq.ResultSuccess
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_NoHandlerArchivesFailure(t *testing.T) {
	c := newRedisClient(t)
	ctx := context.Background()

	srv := leaseq.NewServer(c, leaseq.ServerConfig{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
	}, leaseq.NewMux())
	srv.Start()
	defer srv.Stop()

	task, err := c.Schedule(ctx, "nonexistent.task", map[string]string{"test": "data"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, err := c.LoadArchived(ctx, task.ID)
		return err == nil && a.Result == leaseq.ResultFailure
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServer_RetriesThenGivesUp(t *testing.T) {
	c := newRedisClient(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		attempts int
	)
	mux := leaseq.NewMux()
	mux.HandleFunc("fail", func(context.Context, []byte) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	}, leaseq.WithMaxRetries(1), leaseq.WithRetryWait(func(*leaseq.Task) time.Duration {
		return time.Millisecond
	}))

	srv := leaseq.NewServer(c, leaseq.ServerConfig{
		Concurrency:  2,
		PollInterval: 5 * time.Millisecond,
	}, mux)
	srv.Start()
	defer srv.Stop()

	task, err := c.Schedule(ctx, "fail", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, err := c.LoadArchived(ctx, task.ID)
		return err == nil && a.Result == leaseq.ResultFailure && a.FailureCount == 2
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, attempts, "the third claim fails before running the handler")
}

func TestServer_ArchiveGC(t *testing.T) {
	c := newRedisClient(t)
	ctx := context.Background()

	mux := leaseq.NewMux()
	mux.HandleFunc("ok", func(context.Context, []byte) error { return nil })
	srv := leaseq.NewServer(c, leaseq.ServerConfig{
		Concurrency:      1,
		PollInterval:     5 * time.Millisecond,
		ArchiveRetention: time.Millisecond,
		GCInterval:       10 * time.Millisecond,
	}, mux)
	srv.Start()
	defer srv.Stop()

	task, err := c.Schedule(ctx, "ok", map[string]int{"a": 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := c.Store().GetData(ctx, task.DataID)
		return errors.Is(err, leaseq.ErrDataNotFound)
	}, 5*time.Second, 10*time.Millisecond, "archived task and payload are purged")
	_, err = c.LoadArchived(ctx, task.ID)
	require.ErrorIs(t, err, leaseq.ErrTaskNotFound)
}

// testLogger is a simple logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) add(m string) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

func (l *testLogger) Debugf(format string, _ ...any) { l.add("[DEBUG] " + format) }
func (l *testLogger) Infof(format string, _ ...any)  { l.add("[INFO] " + format) }
func (l *testLogger) Warnf(format string, _ ...any)  { l.add("[WARN] " + format) }
func (l *testLogger) Errorf(format string, _ ...any) { l.add("[ERROR] " + format) }

func TestServer_NewServer_WithCustomLogger(t *testing.T) {
	lg := &testLogger{}
	mux := leaseq.NewMux()
	srv := leaseq.NewServer(newRedisClient(t), leaseq.ServerConfig{Concurrency: 1, Logger: lg}, mux)

	srv.Start()
	srv.Stop()

	lg.mu.Lock()
	defer lg.mu.Unlock()
	require.NotEmpty(t, lg.messages)
}

func TestServer_HandlerPanicDoesNotStopWorkers(t *testing.T) {
	c := newRedisClient(t)
	ctx := context.Background()

	mux := leaseq.NewMux()
	mux.HandleFunc("crash", func(context.Context, []byte) error {
		panic("unexpected state")
	}, leaseq.WithMaxRetries(0), leaseq.WithRetryWait(func(*leaseq.Task) time.Duration {
		return time.Millisecond
	}))
	mux.HandleFunc("ok", func(context.Context, []byte) error { return nil })

	srv := leaseq.NewServer(c, leaseq.ServerConfig{
		Concurrency:  1,
		PollInterval: 5 * time.Millisecond,
		Logger:       &testLogger{},
	}, mux)
	srv.Start()
	defer srv.Stop()

	crash, err := c.Schedule(ctx, "crash", nil)
	require.NoError(t, err)
	ok, err := c.Schedule(ctx, "ok", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		a, err := c.LoadArchived(ctx, crash.ID)
		return err == nil && a.Result == leaseq.ResultFailure && a.FailureCount == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		a, err := c.LoadArchived(ctx, ok.ID)
		return err == nil && a.Result == leaseq.ResultSuccess
	}, 5*time.Second, 10*time.Millisecond)
}
