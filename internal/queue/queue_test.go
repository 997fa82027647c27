package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBounded_DepthAccuracy(t *testing.T) {
	const n, m = 200, 75
	q := New[int](n, ReleaseOnDequeue)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, q.Enqueue(ctx, i))
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(n), q.Depth())

	for i := 0; i < m; i++ {
		_, err := q.Dequeue(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, int64(n-m), q.Depth())
}

func TestBounded_ReleaseOnDone(t *testing.T) {
	q := New[string](10, ReleaseOnDone)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "a"))
	require.NoError(t, q.Enqueue(ctx, "b"))

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", item)
	assert.Equal(t, int64(2), q.Depth(), "dequeue must not release in ReleaseOnDone mode")

	q.Done()
	assert.Equal(t, int64(1), q.Depth())
}

func TestBounded_DoneIgnoredOnDequeueMode(t *testing.T) {
	q := New[int](1, ReleaseOnDequeue)
	require.NoError(t, q.Enqueue(context.Background(), 1))

	q.Done()
	assert.Equal(t, int64(1), q.Depth())
}

func TestBounded_FullQueueBlocksUntilCancelled(t *testing.T) {
	q := New[int](1, ReleaseOnDequeue)
	require.NoError(t, q.Enqueue(context.Background(), 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := q.Enqueue(ctx, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEnqueueCancelled))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, int64(1), q.Depth(), "failed enqueue must not change depth")
}

func TestBounded_FullQueueUnblocksOnDequeue(t *testing.T) {
	q := New[int](1, ReleaseOnDequeue)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))

	done := make(chan error, 1)
	go func() { done <- q.Enqueue(ctx, 2) }()

	select {
	case <-done:
		t.Fatal("enqueue should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	v, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("enqueue did not unblock")
	}
	assert.Equal(t, int64(1), q.Depth())
}

func TestBounded_Close(t *testing.T) {
	q := New[int](4, ReleaseOnDequeue)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, 1))
	require.NoError(t, q.Enqueue(ctx, 2))

	q.Close()
	q.Close()
	assert.True(t, q.IsClosed())

	assert.ErrorIs(t, q.Enqueue(ctx, 3), ErrClosed)

	// Оставшиеся элементы дренируются
	got := []int{}
	for {
		v, err := q.Dequeue(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		got = append(got, v)
	}
	assert.ElementsMatch(t, []int{1, 2}, got)
	assert.Equal(t, int64(0), q.Depth())
}

func TestBounded_DequeueCancelled(t *testing.T) {
	q := New[int](1, ReleaseOnDequeue)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBounded_DefaultCapacity(t *testing.T) {
	q := New[int](0, ReleaseOnDequeue)
	assert.Equal(t, DefaultCapacity, q.Capacity())
	assert.Equal(t, 0.0, q.Saturation())
}
