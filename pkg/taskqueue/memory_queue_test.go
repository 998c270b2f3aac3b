// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enqueue(t *testing.T, q taskqueue.Queue, task *taskqueue.Task) *taskqueue.Task {
	t.Helper()
	require.NoError(t, q.Enqueue(context.Background(), task))
	return task
}

func TestMemoryQueue_EnqueueDefaults(t *testing.T) {
	t.Parallel()

	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	task := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery, Payload: []byte(`{}`)})
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, taskqueue.StatusPending, task.Status)
	assert.Equal(t, taskqueue.DefaultMaxRetries, task.MaxRetries)
	assert.False(t, task.ScheduledAt.IsZero())
	assert.False(t, task.CreatedAt.IsZero())
}

func TestMemoryQueue_DequeueOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	past := time.Now().Add(-time.Minute)
	low := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification, Priority: taskqueue.PriorityLow, ScheduledAt: past})
	older := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification, Priority: taskqueue.PriorityHigh, ScheduledAt: past.Add(-time.Second)})
	newer := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification, Priority: taskqueue.PriorityHigh, ScheduledAt: past})

	var order []string
	for {
		task, err := q.Dequeue(ctx, "w1")
		require.NoError(t, err)
		if task == nil {
			break
		}
		assert.Equal(t, taskqueue.StatusRunning, task.Status)
		assert.Equal(t, "w1", task.WorkerID)
		require.NotNil(t, task.StartedAt)
		order = append(order, task.ID)
	}
	assert.Equal(t, []string{older.ID, newer.ID, low.ID}, order)
}

func TestMemoryQueue_DequeueSkipsFutureAndOtherTypes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery, ScheduledAt: time.Now().Add(time.Hour)})
	enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification})

	task, err := q.Dequeue(ctx, "w1", taskqueue.TaskTypeRediscovery)
	require.NoError(t, err)
	assert.Nil(t, task)

	task, err = q.Dequeue(ctx, "w1", taskqueue.TaskTypeRediscovery, taskqueue.TaskTypeNotification)
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, taskqueue.TaskTypeNotification, task.Type)
}

func TestMemoryQueue_ReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	task := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery, Key: "a"})
	task.Key = "mutated"

	got, err := q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Key)

	got.Status = taskqueue.StatusCompleted
	again, err := q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, again.Status)
}

func TestMemoryQueue_FailRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	task := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNodeRecovery, MaxRetries: 2})

	_, err := q.Dequeue(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, task.ID, errors.New("boom")))

	got, err := q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusPending, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "boom", got.LastError)
	assert.Empty(t, got.WorkerID)
	assert.True(t, got.RetryAfter.After(time.Now()))

	// backoff keeps it off the queue
	next, err := q.Dequeue(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, next)

	require.NoError(t, q.Fail(ctx, task.ID, errors.New("boom again")))
	got, err = q.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusDeadLetter, got.Status)
	assert.Equal(t, 2, got.Attempts)
}

func TestMemoryQueue_UnknownTask(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	assert.ErrorIs(t, q.Complete(ctx, "missing"), taskqueue.ErrTaskNotFound)
	assert.ErrorIs(t, q.Fail(ctx, "missing", errors.New("x")), taskqueue.ErrTaskNotFound)
	assert.ErrorIs(t, q.Cancel(ctx, "missing"), taskqueue.ErrTaskNotFound)
	assert.ErrorIs(t, q.Heartbeat(ctx, "missing", "w1"), taskqueue.ErrTaskNotFound)
	_, err := q.Get(ctx, "missing")
	assert.ErrorIs(t, err, taskqueue.ErrTaskNotFound)
}

func TestMemoryQueue_Heartbeat(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	task := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery})
	assert.ErrorIs(t, q.Heartbeat(ctx, task.ID, "w1"), taskqueue.ErrTaskNotFound, "not running yet")

	_, err := q.Dequeue(ctx, "w1")
	require.NoError(t, err)
	assert.NoError(t, q.Heartbeat(ctx, task.ID, "w1"))
	assert.ErrorIs(t, q.Heartbeat(ctx, task.ID, "w2"), taskqueue.ErrTaskNotFound, "owned by another worker")
}

func TestMemoryQueue_ListFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	base := time.Now().Add(-time.Hour)
	for i, key := range []string{"a", "b", "a", "c"} {
		enqueue(t, q, &taskqueue.Task{
			Type:      taskqueue.TaskTypeRediscovery,
			Key:       key,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification, Key: "a"})

	all, err := q.List(ctx, taskqueue.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	byKey, err := q.List(ctx, taskqueue.TaskFilter{Type: taskqueue.TaskTypeRediscovery, Key: "a"})
	require.NoError(t, err)
	require.Len(t, byKey, 2)
	assert.True(t, byKey[0].CreatedAt.Before(byKey[1].CreatedAt))

	page, err := q.List(ctx, taskqueue.TaskFilter{Type: taskqueue.TaskTypeRediscovery, Offset: 1, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].Key)
	assert.Equal(t, "a", page[1].Key)

	empty, err := q.List(ctx, taskqueue.TaskFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryQueue_StatsAndCleanup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := taskqueue.NewMemoryQueue()
	defer q.Close()

	done := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification})
	cancelled := enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeNotification})
	enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery})
	enqueue(t, q, &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery})

	require.NoError(t, q.Complete(ctx, done.ID))
	require.NoError(t, q.Cancel(ctx, cancelled.ID))

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Pending)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(2), stats.ByType[taskqueue.TaskTypeRediscovery])
	assert.Zero(t, stats.ByType[taskqueue.TaskTypeNotification])
	require.NotNil(t, stats.OldestPending)

	n, err := q.Cleanup(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing old enough")

	n, err = q.Cleanup(ctx, -time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := q.List(ctx, taskqueue.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryQueue_Closed(t *testing.T) {
	t.Parallel()

	q := taskqueue.NewMemoryQueue()
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Enqueue(context.Background(), &taskqueue.Task{Type: taskqueue.TaskTypeRediscovery}), taskqueue.ErrQueueClosed)
	_, err := q.Dequeue(context.Background(), "w1")
	assert.ErrorIs(t, err, taskqueue.ErrQueueClosed)
}
