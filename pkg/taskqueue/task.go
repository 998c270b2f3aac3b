// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskqueue provides a durable task queue for background processing.
//
// Backends:
//   - Database (PostgreSQL/MySQL), sharing the store's connection pool
//   - In-memory, for tests and the memory store
//
// PodM uses it for rediscovery after events, event subscription upkeep,
// composed node recovery and outbound notifications.
package taskqueue

import (
	"encoding/json"
	"time"
)

const (
	DefaultPollInterval      = time.Second
	DefaultConcurrency       = 4
	DefaultVisibilityTimeout = 5 * time.Minute
	DefaultMaxRetries        = 3

	maxRetryBackoff = 5 * time.Minute
)

// TaskType identifies the type of task for routing to handlers.
type TaskType string

const (
	TaskTypeRediscovery       TaskType = "rediscovery"        // re-read an external service
	TaskTypeEventSubscription TaskType = "event_subscription" // ensure we are subscribed to a service's events
	TaskTypeNodeRecovery      TaskType = "node_recovery"      // re-link and recover failed nodes
	TaskTypeNotification      TaskType = "notification"       // deliver a node lifecycle event
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusRunning    TaskStatus = "running"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
	StatusDeadLetter TaskStatus = "dead_letter" // retries exhausted
	StatusCancelled  TaskStatus = "cancelled"
)

type TaskPriority int

const (
	PriorityLow    TaskPriority = 0
	PriorityNormal TaskPriority = 5
	PriorityHigh   TaskPriority = 10
	PriorityUrgent TaskPriority = 20
)

// Task represents a unit of work to be processed.
type Task struct {
	ID       string       `json:"id"`
	Type     TaskType     `json:"type"`
	Status   TaskStatus   `json:"status"`
	Priority TaskPriority `json:"priority"`

	Payload json.RawMessage `json:"payload"`

	ScheduledAt time.Time  `json:"scheduled_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Attempts   int       `json:"attempts"`
	MaxRetries int       `json:"max_retries"`
	RetryAfter time.Time `json:"retry_after,omitempty"`
	LastError  string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// Key groups tasks about the same subject, e.g. an external service UUID.
	Key      string `json:"key,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
}

// NewTask builds a pending task with a JSON payload.
func NewTask(taskType TaskType, key string, payload any) (*Task, error) {
	raw, err := MarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &Task{
		Type:       taskType,
		Key:        key,
		Priority:   PriorityNormal,
		Payload:    raw,
		MaxRetries: DefaultMaxRetries,
	}, nil
}

func (t *Task) clone() *Task {
	c := *t
	if t.StartedAt != nil {
		s := *t.StartedAt
		c.StartedAt = &s
	}
	if t.CompletedAt != nil {
		s := *t.CompletedAt
		c.CompletedAt = &s
	}
	c.Payload = append(json.RawMessage(nil), t.Payload...)
	return &c
}

type TaskFilter struct {
	Type   TaskType   `json:"type,omitempty"`
	Status TaskStatus `json:"status,omitempty"`
	Key    string     `json:"key,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}

type QueueStats struct {
	Pending    int64 `json:"pending"`
	Running    int64 `json:"running"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	DeadLetter int64 `json:"dead_letter"`

	// pending tasks by type
	ByType map[TaskType]int64 `json:"by_type"`

	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// RetryBackoff is the delay before retry number attempts: 2^attempts
// seconds, capped at five minutes.
func RetryBackoff(attempts int) time.Duration {
	if attempts > 8 {
		return maxRetryBackoff
	}
	return min(time.Duration(1<<attempts)*time.Second, maxRetryBackoff)
}

func MarshalPayload(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

func UnmarshalPayload[T any](payload json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(payload, &v)
	return v, err
}
