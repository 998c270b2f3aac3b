// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	dbsql "github.com/LeeDigitalWorks/podm/pkg/store/sql"
)

const (
	maxDeadlockRetries  = 3
	baseDeadlockBackoff = 10 * time.Millisecond

	taskColumns = `id, type, status, priority, payload, scheduled_at, started_at,
		completed_at, attempts, max_retries, retry_after, last_error,
		created_at, updated_at, heartbeat_at, task_key, worker_id`
)

// DBQueue is a database-backed Queue on the store's tasks table. Multiple
// PodM instances may dequeue concurrently via FOR UPDATE SKIP LOCKED.
// Queries use $N placeholders rewritten by the dialect.
type DBQueue struct {
	db                *sql.DB
	dialect           dbsql.Dialect
	tableName         string
	visibilityTimeout time.Duration
}

var _ Queue = (*DBQueue)(nil)

type DBQueueConfig struct {
	DB                *sql.DB
	Dialect           dbsql.Dialect // defaults to PostgreSQL
	TableName         string        // defaults to "tasks"
	VisibilityTimeout time.Duration // running tasks without a heartbeat for this long are reclaimed
}

func NewDBQueue(cfg DBQueueConfig) (*DBQueue, error) {
	if cfg.DB == nil {
		return nil, errors.New("database connection is required")
	}
	if cfg.Dialect == nil {
		cfg.Dialect = dbsql.PostgresDialect{}
	}
	if cfg.TableName == "" {
		cfg.TableName = "tasks"
	}
	if cfg.VisibilityTimeout == 0 {
		cfg.VisibilityTimeout = DefaultVisibilityTimeout
	}
	return &DBQueue{
		db:                cfg.DB,
		dialect:           cfg.Dialect,
		tableName:         cfg.TableName,
		visibilityTimeout: cfg.VisibilityTimeout,
	}, nil
}

func (q *DBQueue) query(format string) string {
	return q.dialect.ReplacePlaceholders(fmt.Sprintf(format, q.tableName))
}

func (q *DBQueue) Enqueue(ctx context.Context, task *Task) error {
	now := time.Now().UTC()
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

	_, err := q.db.ExecContext(ctx, q.query(`
		INSERT INTO %s (id, type, status, priority, payload, scheduled_at,
			attempts, max_retries, created_at, updated_at, task_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`),
		task.ID, string(task.Type), string(task.Status), int(task.Priority), []byte(task.Payload),
		task.ScheduledAt, task.Attempts, task.MaxRetries,
		task.CreatedAt, task.UpdatedAt, task.Key,
	)
	if err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Type, err)
	}
	TasksEnqueuedTotal.WithLabelValues(string(task.Type)).Inc()
	return nil
}

// withDeadlockRetry runs fn, retrying with jittered exponential backoff
// while the database reports a deadlock.
func (q *DBQueue) withDeadlockRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := range maxDeadlockRetries {
		err := fn()
		if err == nil || !q.dialect.IsDeadlock(err) {
			return err
		}
		lastErr = err
		dbsql.DeadlockRetries.Inc()

		backoff := baseDeadlockBackoff * time.Duration(1<<attempt)
		jitter := time.Duration(rand.Int64N(int64(backoff)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}
	return lastErr
}

func (q *DBQueue) Dequeue(ctx context.Context, workerID string, taskTypes ...TaskType) (*Task, error) {
	var task *Task
	err := q.withDeadlockRetry(ctx, func() error {
		var err error
		task, err = q.dequeueOnce(ctx, workerID, taskTypes...)
		return err
	})
	return task, err
}

func (q *DBQueue) dequeueOnce(ctx context.Context, workerID string, taskTypes ...TaskType) (*Task, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	args := []any{now, now, now.Add(-q.visibilityTimeout)}
	typeFilter := ""
	if len(taskTypes) > 0 {
		placeholders := make([]string, len(taskTypes))
		for i, t := range taskTypes {
			args = append(args, string(t))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		typeFilter = " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}

	// Running tasks whose worker stopped heartbeating are claimable again.
	row := tx.QueryRowContext(ctx, q.query(`
		SELECT `+taskColumns+`
		FROM %s
		WHERE (
			(status = 'pending' AND scheduled_at <= $1 AND (retry_after IS NULL OR retry_after <= $2))
			OR
			(status = 'running' AND heartbeat_at < $3)
		)`+typeFilter+`
		ORDER BY priority DESC, scheduled_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`), args...)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	attempts := task.Attempts
	if task.Status == StatusRunning {
		attempts++
	}

	_, err = tx.ExecContext(ctx, q.query(`
		UPDATE %s SET status = 'running', started_at = $1, heartbeat_at = $2,
			worker_id = $3, attempts = $4, updated_at = $5
		WHERE id = $6`),
		now, now, workerID, attempts, now, task.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	task.Status = StatusRunning
	task.StartedAt = &now
	task.WorkerID = workerID
	task.Attempts = attempts
	task.UpdatedAt = now
	return task, nil
}

func (q *DBQueue) Complete(ctx context.Context, taskID string) error {
	now := time.Now().UTC()
	return q.execOne(ctx, q.query(`
		UPDATE %s SET status = 'completed', completed_at = $1, updated_at = $2
		WHERE id = $3`), now, now, taskID)
}

func (q *DBQueue) Fail(ctx context.Context, taskID string, taskErr error) error {
	task, err := q.Get(ctx, taskID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	task.Attempts++
	task.LastError = taskErr.Error()

	var retryAfter, completedAt *time.Time
	if task.Attempts >= task.MaxRetries {
		task.Status = StatusDeadLetter
		completedAt = &now
	} else {
		next := now.Add(RetryBackoff(task.Attempts))
		retryAfter = &next
		task.Status = StatusPending
		TaskRetries.WithLabelValues(string(task.Type)).Inc()
	}

	return q.execOne(ctx, q.query(`
		UPDATE %s SET status = $1, attempts = $2, last_error = $3,
			retry_after = $4, completed_at = $5, worker_id = NULL, updated_at = $6
		WHERE id = $7`),
		string(task.Status), task.Attempts, task.LastError,
		retryAfter, completedAt, now, taskID,
	)
}

func (q *DBQueue) Cancel(ctx context.Context, taskID string) error {
	now := time.Now().UTC()
	return q.execOne(ctx, q.query(`
		UPDATE %s SET status = 'cancelled', completed_at = $1, updated_at = $2
		WHERE id = $3`), now, now, taskID)
}

func (q *DBQueue) Get(ctx context.Context, taskID string) (*Task, error) {
	row := q.db.QueryRowContext(ctx, q.query(`SELECT `+taskColumns+` FROM %s WHERE id = $1`), taskID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// List returns matching tasks ordered by creation time.
func (q *DBQueue) List(ctx context.Context, filter TaskFilter) ([]*Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		where = append(where, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Type != "" {
		add("type", string(filter.Type))
	}
	if filter.Status != "" {
		add("status", string(filter.Status))
	}
	if filter.Key != "" {
		add("task_key", filter.Key)
	}

	query := `SELECT ` + taskColumns + ` FROM %s`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := q.db.QueryContext(ctx, q.query(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (q *DBQueue) Stats(ctx context.Context) (*QueueStats, error) {
	stats := &QueueStats{ByType: make(map[TaskType]int64)}

	rows, err := q.db.QueryContext(ctx, q.query(`SELECT status, COUNT(*) FROM %s GROUP BY status`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch TaskStatus(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusCompleted:
			stats.Completed = count
		case StatusFailed:
			stats.Failed = count
		case StatusDeadLetter:
			stats.DeadLetter = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byType, err := q.db.QueryContext(ctx, q.query(`SELECT type, COUNT(*) FROM %s WHERE status = 'pending' GROUP BY type`))
	if err != nil {
		return nil, err
	}
	defer byType.Close()
	for byType.Next() {
		var taskType string
		var count int64
		if err := byType.Scan(&taskType, &count); err != nil {
			return nil, err
		}
		stats.ByType[TaskType(taskType)] = count
	}
	if err := byType.Err(); err != nil {
		return nil, err
	}

	var oldest sql.NullTime
	if err := q.db.QueryRowContext(ctx, q.query(`SELECT MIN(scheduled_at) FROM %s WHERE status = 'pending'`)).Scan(&oldest); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if oldest.Valid {
		stats.OldestPending = &oldest.Time
	}
	return stats, nil
}

func (q *DBQueue) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	result, err := q.db.ExecContext(ctx, q.query(`
		DELETE FROM %s
		WHERE status IN ('completed', 'cancelled') AND completed_at < $1`),
		time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// Heartbeat extends the visibility timeout of a running task.
func (q *DBQueue) Heartbeat(ctx context.Context, taskID string, workerID string) error {
	return q.withDeadlockRetry(ctx, func() error {
		now := time.Now().UTC()
		return q.execOne(ctx, q.query(`
			UPDATE %s SET heartbeat_at = $1, updated_at = $2
			WHERE id = $3 AND worker_id = $4 AND status = 'running'`),
			now, now, taskID, workerID)
	})
}

// ReclaimStale returns running tasks without a recent heartbeat to pending,
// or to dead_letter once their retries are spent.
func (q *DBQueue) ReclaimStale(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	stale := now.Add(-q.visibilityTimeout)

	result, err := q.db.ExecContext(ctx, q.query(`
		UPDATE %s
		SET status = 'pending', worker_id = NULL, attempts = attempts + 1,
			last_error = 'reclaimed: worker timeout', updated_at = $1
		WHERE status = 'running' AND heartbeat_at < $2 AND attempts + 1 < max_retries`),
		now, stale)
	if err != nil {
		return 0, err
	}
	reclaimed, _ := result.RowsAffected()

	result, err = q.db.ExecContext(ctx, q.query(`
		UPDATE %s
		SET status = 'dead_letter', worker_id = NULL, attempts = attempts + 1,
			last_error = 'reclaimed: max retries exceeded', completed_at = $1, updated_at = $2
		WHERE status = 'running' AND heartbeat_at < $3`),
		now, now, stale)
	if err != nil {
		return int(reclaimed), err
	}
	dead, _ := result.RowsAffected()
	return int(reclaimed + dead), nil
}

func (q *DBQueue) VisibilityTimeout() time.Duration {
	return q.visibilityTimeout
}

// Close is a no-op; the connection pool belongs to the store.
func (q *DBQueue) Close() error {
	return nil
}

func (q *DBQueue) execOne(ctx context.Context, query string, args ...any) error {
	result, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var task Task
	var taskType, status string
	var priority int
	var payload []byte
	var startedAt, completedAt, retryAfter, heartbeat sql.NullTime
	var lastError, workerID sql.NullString
	err := row.Scan(
		&task.ID, &taskType, &status, &priority, &payload,
		&task.ScheduledAt, &startedAt, &completedAt, &task.Attempts,
		&task.MaxRetries, &retryAfter, &lastError, &task.CreatedAt,
		&task.UpdatedAt, &heartbeat, &task.Key, &workerID,
	)
	if err != nil {
		return nil, err
	}
	task.Type = TaskType(taskType)
	task.Status = TaskStatus(status)
	task.Priority = TaskPriority(priority)
	task.Payload = payload
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if retryAfter.Valid {
		task.RetryAfter = retryAfter.Time
	}
	task.LastError = lastError.String
	task.WorkerID = workerID.String
	return &task, nil
}
