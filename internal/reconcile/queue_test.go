package reconcile

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chapter-quiz-service/internal/logging"
)

func TestQueueRunsTasksInOrder(t *testing.T) {
	q := NewQueue(8, time.Second, logging.Discard())
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		require.True(t, q.Enqueue(Task{Name: "t", Run: func(context.Context) error {
			order = append(order, i)
			return nil
		}}))
	}
	require.NoError(t, q.Close(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)

	completed, failed, dropped := q.Stats()
	assert.Equal(t, int64(5), completed)
	assert.Zero(t, failed)
	assert.Zero(t, dropped)
}

func TestQueueDropsWhenFull(t *testing.T) {
	q := NewQueue(1, time.Second, logging.Discard())
	release := make(chan struct{})
	started := make(chan struct{})

	require.True(t, q.Enqueue(Task{Name: "blocker", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started
	require.True(t, q.Enqueue(Task{Name: "buffered", Run: func(context.Context) error { return nil }}))
	assert.False(t, q.Enqueue(Task{Name: "overflow", Run: func(context.Context) error { return nil }}))

	close(release)
	require.NoError(t, q.Close(context.Background()))
	_, _, dropped := q.Stats()
	assert.Equal(t, int64(1), dropped)
	assert.False(t, q.Enqueue(Task{Name: "late", Run: func(context.Context) error { return nil }}))
}

func TestQueueNeverRetriesAndTimesOut(t *testing.T) {
	q := NewQueue(4, 20*time.Millisecond, logging.Discard())
	var calls atomic.Int32

	q.Enqueue(Task{Name: "fails", Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("network down")
	}})
	q.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	q.Enqueue(Task{Name: "panics", Run: func(context.Context) error {
		panic("boom")
	}})
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	completed, failed, _ := q.Stats()
	assert.Zero(t, completed)
	assert.Equal(t, int64(3), failed)
}
