package hctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestState_NewAndWithFrom(t *testing.T) {
	st := New[string, int]("task-1")
	require.NotNil(t, st)
	st.Queue(1)
	st.Queue(2)

	ctx := WithState(context.Background(), st)
	got, ok := From[string, int](ctx)
	require.True(t, ok, "From should find state")
	require.Same(t, st, got, "should retrieve the same pointer")
	require.Equal(t, "task-1", got.Task)
	require.Equal(t, []int{1, 2}, got.Queued)
}

func TestState_From_Absent(t *testing.T) {
	ctx := context.Background()
	st, ok := From[string, int](ctx)
	require.False(t, ok)
	require.Nil(t, st)
}

func TestState_From_OtherTypes(t *testing.T) {
	ctx := WithState(context.Background(), New[string, int]("x"))
	st, ok := From[int, string](ctx)
	require.False(t, ok)
	require.Nil(t, st)
}
