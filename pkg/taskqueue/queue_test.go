// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rediscoveryPayload struct {
	ServiceUUID string `json:"service_uuid"`
}

func TestNewTask(t *testing.T) {
	t.Parallel()

	task, err := NewTask(TaskTypeRediscovery, "svc-1", rediscoveryPayload{ServiceUUID: "svc-1"})
	require.NoError(t, err)
	assert.Equal(t, TaskTypeRediscovery, task.Type)
	assert.Equal(t, "svc-1", task.Key)
	assert.Equal(t, PriorityNormal, task.Priority)
	assert.Equal(t, DefaultMaxRetries, task.MaxRetries)

	p, err := UnmarshalPayload[rediscoveryPayload](task.Payload)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", p.ServiceUUID)
}

func TestNewTask_BadPayload(t *testing.T) {
	t.Parallel()

	_, err := NewTask(TaskTypeNotification, "", make(chan int))
	assert.Error(t, err)
}

func TestRetryBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{8, 256 * time.Second},
		{9, 5 * time.Minute},
		{64, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RetryBackoff(tt.attempts), "attempts=%d", tt.attempts)
	}
}

func TestEnqueueUnique(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	q := NewMemoryQueue()
	defer q.Close()

	first, err := NewTask(TaskTypeRediscovery, "svc-1", nil)
	require.NoError(t, err)
	ok, err := EnqueueUnique(ctx, q, first)
	require.NoError(t, err)
	assert.True(t, ok)

	dup, err := NewTask(TaskTypeRediscovery, "svc-1", nil)
	require.NoError(t, err)
	ok, err = EnqueueUnique(ctx, q, dup)
	require.NoError(t, err)
	assert.False(t, ok, "pending task with the same key exists")

	other, err := NewTask(TaskTypeRediscovery, "svc-2", nil)
	require.NoError(t, err)
	ok, err = EnqueueUnique(ctx, q, other)
	require.NoError(t, err)
	assert.True(t, ok)

	// once the first task runs, a new one for the same key is accepted
	_, err = q.Dequeue(ctx, "w", TaskTypeRediscovery)
	require.NoError(t, err)
	again, err := NewTask(TaskTypeRediscovery, "svc-1", nil)
	require.NoError(t, err)
	ok, err = EnqueueUnique(ctx, q, again)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHandlerFunc(t *testing.T) {
	t.Parallel()

	var got string
	h := HandlerFunc{TaskType: TaskTypeNotification, Fn: func(ctx context.Context, task *Task) error {
		got = task.ID
		return nil
	}}
	assert.Equal(t, TaskTypeNotification, h.Type())
	require.NoError(t, h.Handle(context.Background(), &Task{ID: "t1"}))
	assert.Equal(t, "t1", got)
}
