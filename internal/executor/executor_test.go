package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostRunsTasksInOrder(t *testing.T) {
	e := New(context.Background(), 8)
	defer e.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, e.Post(func() { order = append(order, i) }))
	}
	require.NoError(t, e.Post(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks never drained")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestCallReturnsBackgroundResult(t *testing.T) {
	e := New(context.Background(), 8)
	defer e.Close()

	got, err := Call(e, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestCallPropagatesBackgroundError(t *testing.T) {
	e := New(context.Background(), 8)
	defer e.Close()

	boom := errors.New("boom")
	_, err := Call(e, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestSubmitCompletionRunsOnExecutorGoroutine(t *testing.T) {
	e := New(context.Background(), 8)
	defer e.Close()

	var mutated int
	completed := make(chan struct{})
	Submit(e, func(ctx context.Context) (int, error) {
		return 7, nil
	}, func(v int, err error) {
		require.NoError(t, err)
		mutated = v // only ever touched from the executor goroutine
		close(completed)
	})

	select {
	case <-completed:
	case <-time.After(time.Second):
		t.Fatal("completion never posted")
	}
	assert.Equal(t, 7, mutated)
}

func TestPostAfterCloseReturnsError(t *testing.T) {
	e := New(context.Background(), 1)
	require.NoError(t, e.Close())

	err := e.Post(func() {})
	assert.Error(t, err)
}
