package leaseq

import (
	"context"
	"testing"

	"github.com/UniQw/leaseq/internal/hctx"
	"github.com/stretchr/testify/require"
)

func TestHandlerCtx_NoState(t *testing.T) {
	ctx := context.Background()
	require.ErrorIs(t, QueueTask(ctx, "x", nil), ErrNoExecution)
	_, ok := CurrentTask(ctx)
	require.False(t, ok)
}

func TestHandlerCtx_WithState_QueueAndCurrent(t *testing.T) {
	task := &Task{ID: 7, Class: "parent"}
	st := hctx.New[*Task, queuedTask](task)
	ctx := hctx.WithState(context.Background(), st)

	got, ok := CurrentTask(ctx)
	require.True(t, ok)
	require.Same(t, task, got)

	require.NoError(t, QueueTask(ctx, "child", map[string]int{"n": 1}, Priority(PriorityBulk)))
	require.NoError(t, QueueTask(ctx, "child2", nil))
	require.Len(t, st.Queued, 2)
	require.Equal(t, "child", st.Queued[0].class)
	require.Len(t, st.Queued[0].opts, 1)
	require.Equal(t, "child2", st.Queued[1].class)
}
