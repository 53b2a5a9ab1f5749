package leaseq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMux_MiddlewareOrderAndOverwrite(t *testing.T) {
	m := NewMux()

	order := []int{}
	mw1 := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, b []byte) error {
			order = append(order, 1)
			return next(ctx, b)
		}
	}
	mw2 := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, b []byte) error {
			order = append(order, 2)
			return next(ctx, b)
		}
	}
	m.Use(mw1)
	m.Use(mw2)

	called := 0
	m.HandleFunc("t", func(ctx context.Context, b []byte) error { called++; return nil })
	// overwrite handler
	m.HandleFunc("t", func(ctx context.Context, b []byte) error { called += 10; return nil })

	h, ok := m.lookup("t")
	require.True(t, ok)
	_ = m.wrapHandler(h.exec)(context.Background(), nil)

	require.Equal(t, 10, called, "expected overwritten handler to run")
	// middleware applied in registration order: mw1 outer, then mw2
	require.Equal(t, []int{1, 2}, order)
}

func TestMux_LookupMissing(t *testing.T) {
	_, ok := NewMux().lookup("nope")
	require.False(t, ok)
}

type policyHandler struct{}

func (policyHandler) ProcessTask(context.Context, []byte) error { return nil }
func (policyHandler) MaxRetries() int                           { return 4 }
func (policyHandler) RequiredLease() time.Duration              { return time.Hour }
func (policyHandler) WaitBeforeRetry(t *Task) time.Duration {
	return time.Duration(t.FailureCount) * time.Minute
}

func TestMux_PolicyFromInterfaces(t *testing.T) {
	m := NewMux()
	m.Handle("p", policyHandler{})

	h, ok := m.lookup("p")
	require.True(t, ok)
	require.NotNil(t, h.maxRetries)
	require.Equal(t, 4, *h.maxRetries)
	require.Equal(t, time.Hour, h.lease)
	require.Equal(t, 3*time.Minute, h.retryWait(&Task{FailureCount: 3}))
}

func TestMux_OptionsOverrideInterfaces(t *testing.T) {
	m := NewMux()
	m.Handle("p", policyHandler{},
		WithMaxRetries(0),
		WithRequiredLease(time.Minute),
		WithRetryWait(func(*Task) time.Duration { return time.Second }),
	)

	h, _ := m.lookup("p")
	require.Equal(t, 0, *h.maxRetries)
	require.Equal(t, time.Minute, h.lease)
	require.Equal(t, time.Second, h.retryWait(&Task{}))
}

func TestMux_PlainFuncHasNoPolicy(t *testing.T) {
	m := NewMux()
	m.HandleFunc("f", func(context.Context, []byte) error { return nil })

	h, _ := m.lookup("f")
	require.Nil(t, h.maxRetries)
	require.Zero(t, h.lease)
	require.Nil(t, h.retryWait)
}
