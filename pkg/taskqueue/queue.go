// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTaskNotFound   = errors.New("task not found")
	ErrQueueClosed    = errors.New("task queue is closed")
	ErrInvalidPayload = errors.New("invalid task payload")
)

// Queue defines the interface for task queue operations.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error

	// Dequeue claims the next runnable task, highest priority then oldest.
	// Returns nil when nothing is runnable.
	Dequeue(ctx context.Context, workerID string, taskTypes ...TaskType) (*Task, error)

	Complete(ctx context.Context, taskID string) error

	// Fail records the error and requeues the task with backoff while
	// retries remain, otherwise moves it to dead_letter.
	Fail(ctx context.Context, taskID string, err error) error

	Cancel(ctx context.Context, taskID string) error

	// Heartbeat keeps a running task from being reclaimed.
	Heartbeat(ctx context.Context, taskID string, workerID string) error

	Get(ctx context.Context, taskID string) (*Task, error)
	List(ctx context.Context, filter TaskFilter) ([]*Task, error)
	Stats(ctx context.Context) (*QueueStats, error)

	// Cleanup removes completed and cancelled tasks older than olderThan.
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	Close() error
}

// Handler processes tasks of a specific type.
type Handler interface {
	Type() TaskType
	Handle(ctx context.Context, task *Task) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	TaskType TaskType
	Fn       func(ctx context.Context, task *Task) error
}

func (h HandlerFunc) Type() TaskType { return h.TaskType }

func (h HandlerFunc) Handle(ctx context.Context, task *Task) error { return h.Fn(ctx, task) }

// EnqueueUnique enqueues task unless a pending task with the same type and
// key exists. It reports whether the task was enqueued.
func EnqueueUnique(ctx context.Context, q Queue, task *Task) (bool, error) {
	if task.Key != "" {
		pending, err := q.List(ctx, TaskFilter{Type: task.Type, Key: task.Key, Status: StatusPending, Limit: 1})
		if err != nil {
			return false, err
		}
		if len(pending) > 0 {
			TasksDeduplicatedTotal.WithLabelValues(string(task.Type)).Inc()
			return false, nil
		}
	}
	if err := q.Enqueue(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// Reclaimer is implemented by queues that can take back tasks from
// workers that stopped heartbeating.
type Reclaimer interface {
	ReclaimStale(ctx context.Context) (int, error)
}
