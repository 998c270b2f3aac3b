// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Queue = (*MemoryQueue)(nil)

// MemoryQueue is an in-memory Queue. Tasks are lost on restart, so it is
// only used with the memory store and in tests. Callers always receive
// copies of queued tasks.
type MemoryQueue struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool
	now    func() time.Time

	visibilityTimeout time.Duration
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		tasks:             make(map[string]*Task),
		now:               time.Now,
		visibilityTimeout: DefaultVisibilityTimeout,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	now := q.now()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.ScheduledAt.IsZero() {
		task.ScheduledAt = now
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = DefaultMaxRetries
	}
	task.UpdatedAt = now
	q.tasks[task.ID] = task.clone()
	TasksEnqueuedTotal.WithLabelValues(string(task.Type)).Inc()
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, workerID string, taskTypes ...TaskType) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	var best *Task
	for _, task := range q.tasks {
		if !task.runnable(now) {
			continue
		}
		if len(taskTypes) > 0 && !slices.Contains(taskTypes, task.Type) {
			continue
		}
		if best == nil || task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.ScheduledAt.Before(best.ScheduledAt)) {
			best = task
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = StatusRunning
	best.WorkerID = workerID
	started := now
	best.StartedAt = &started
	best.UpdatedAt = now
	return best.clone(), nil
}

func (t *Task) runnable(now time.Time) bool {
	if t.Status != StatusPending || t.ScheduledAt.After(now) {
		return false
	}
	return t.RetryAfter.IsZero() || !t.RetryAfter.After(now)
}

func (q *MemoryQueue) Complete(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := q.now()
	task.Status = StatusCompleted
	task.CompletedAt = &now
	task.UpdatedAt = now
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, taskID string, err error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}

	now := q.now()
	task.Attempts++
	task.LastError = err.Error()
	task.UpdatedAt = now
	task.WorkerID = ""
	if task.Attempts >= task.MaxRetries {
		task.Status = StatusDeadLetter
		task.CompletedAt = &now
		return nil
	}
	task.RetryAfter = now.Add(RetryBackoff(task.Attempts))
	task.Status = StatusPending
	TaskRetries.WithLabelValues(string(task.Type)).Inc()
	return nil
}

func (q *MemoryQueue) Cancel(ctx context.Context, taskID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := q.now()
	task.Status = StatusCancelled
	task.CompletedAt = &now
	task.UpdatedAt = now
	return nil
}

func (q *MemoryQueue) Heartbeat(ctx context.Context, taskID string, workerID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || task.WorkerID != workerID || task.Status != StatusRunning {
		return ErrTaskNotFound
	}
	task.UpdatedAt = q.now()
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, taskID string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return task.clone(), nil
}

// List returns matching tasks ordered by creation time.
func (q *MemoryQueue) List(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []*Task
	for _, task := range q.tasks {
		if filter.Type != "" && task.Type != filter.Type {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		if filter.Key != "" && task.Key != filter.Key {
			continue
		}
		result = append(result, task.clone())
	}
	slices.SortFunc(result, func(a, b *Task) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return compareStrings(a.ID, b.ID)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (q *MemoryQueue) Stats(ctx context.Context) (*QueueStats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := &QueueStats{ByType: make(map[TaskType]int64)}
	for _, task := range q.tasks {
		switch task.Status {
		case StatusPending:
			stats.Pending++
			stats.ByType[task.Type]++
			if stats.OldestPending == nil || task.ScheduledAt.Before(*stats.OldestPending) {
				oldest := task.ScheduledAt
				stats.OldestPending = &oldest
			}
		case StatusRunning:
			stats.Running++
		case StatusCompleted:
			stats.Completed++
		case StatusFailed:
			stats.Failed++
		case StatusDeadLetter:
			stats.DeadLetter++
		}
	}
	return stats, nil
}

func (q *MemoryQueue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	count := 0
	for id, task := range q.tasks {
		if task.Status != StatusCompleted && task.Status != StatusCancelled {
			continue
		}
		if task.CompletedAt != nil && task.CompletedAt.Before(cutoff) {
			delete(q.tasks, id)
			count++
		}
	}
	return count, nil
}

// SetVisibilityTimeout changes how long a running task may go without a
// heartbeat before ReclaimStale takes it back.
func (q *MemoryQueue) SetVisibilityTimeout(d time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.visibilityTimeout = d
}

// ReclaimStale mirrors DBQueue.ReclaimStale.
func (q *MemoryQueue) ReclaimStale(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	cutoff := now.Add(-q.visibilityTimeout)
	count := 0
	for _, task := range q.tasks {
		if task.Status != StatusRunning || !task.UpdatedAt.Before(cutoff) {
			continue
		}
		task.Attempts++
		task.WorkerID = ""
		task.UpdatedAt = now
		if task.Attempts >= task.MaxRetries {
			task.Status = StatusDeadLetter
			task.LastError = "reclaimed: max retries exceeded"
			task.CompletedAt = &now
		} else {
			task.Status = StatusPending
			task.LastError = "reclaimed: worker timeout"
		}
		count++
	}
	return count, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
