// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

var ErrNoHandler = errors.New("no handler registered")

// Worker polls the queue and executes tasks with registered handlers.
type Worker struct {
	id       string
	queue    Queue
	handlers map[TaskType]Handler

	pollInterval      time.Duration
	concurrency       int
	heartbeatInterval time.Duration
	reclaimInterval   time.Duration
	retention         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type WorkerConfig struct {
	ID           string
	Queue        Queue
	PollInterval time.Duration
	Concurrency  int

	// HeartbeatInterval is how often a running task is heartbeated.
	// Zero disables heartbeats.
	HeartbeatInterval time.Duration

	// ReclaimInterval is how often the queue is maintained: stale tasks are
	// reclaimed when the queue implements Reclaimer and finished tasks older
	// than Retention are removed. Zero disables maintenance.
	ReclaimInterval time.Duration
	Retention       time.Duration
}

func NewWorker(cfg WorkerConfig) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = DefaultConcurrency
	}

	return &Worker{
		id:                cfg.ID,
		queue:             cfg.Queue,
		handlers:          make(map[TaskType]Handler),
		pollInterval:      cfg.PollInterval,
		concurrency:       cfg.Concurrency,
		heartbeatInterval: cfg.HeartbeatInterval,
		reclaimInterval:   cfg.ReclaimInterval,
		retention:         cfg.Retention,
		stopCh:            make(chan struct{}),
	}
}

// RegisterHandler registers a handler for its task type. Handlers must be
// registered before Start.
func (w *Worker) RegisterHandler(h Handler) {
	if h == nil {
		return
	}
	w.handlers[h.Type()] = h
	logger.Debug().
		Str("type", string(h.Type())).
		Msg("taskqueue: registered handler")
}

// Start launches the worker goroutines and returns immediately.
func (w *Worker) Start(ctx context.Context) {
	types := w.HandlerTypes()
	if len(types) == 0 {
		logger.Warn().Msg("taskqueue: worker started with no handlers")
		return
	}

	logger.Info().
		Str("worker_id", w.id).
		Int("concurrency", w.concurrency).
		Int("handlers", len(types)).
		Msg("taskqueue: worker starting")

	for range w.concurrency {
		w.wg.Add(1)
		go w.work(ctx, types)
	}

	if w.reclaimInterval > 0 {
		w.wg.Add(1)
		go w.maintain(ctx)
	}
}

// Stop waits for in-flight tasks to finish. It is safe to call more than once.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		logger.Info().Str("worker_id", w.id).Msg("taskqueue: worker stopped")
	})
}

func (w *Worker) work(ctx context.Context, types []TaskType) {
	defer w.wg.Done()
	WorkerActive.Inc()
	defer WorkerActive.Dec()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for w.processOne(ctx, types) {
				select {
				case <-w.stopCh:
					return
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}
}

func (w *Worker) maintain(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.reclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.maintainOnce(ctx)
		}
	}
}

func (w *Worker) maintainOnce(ctx context.Context) {
	if r, ok := w.queue.(Reclaimer); ok {
		n, err := r.ReclaimStale(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("taskqueue: reclaim failed")
		} else if n > 0 {
			logger.Info().Int("count", n).Msg("taskqueue: reclaimed stale tasks")
		}
	}
	if w.retention > 0 {
		n, err := w.queue.Cleanup(ctx, w.retention)
		if err != nil {
			logger.Warn().Err(err).Msg("taskqueue: cleanup failed")
		} else if n > 0 {
			logger.Debug().Int("count", n).Msg("taskqueue: removed finished tasks")
		}
	}
	if err := ObserveDepth(ctx, w.queue); err != nil {
		logger.Debug().Err(err).Msg("taskqueue: stats failed")
	}
}

// processOne handles at most one task and reports whether it found one.
func (w *Worker) processOne(ctx context.Context, types []TaskType) bool {
	task, err := w.queue.Dequeue(ctx, w.id, types...)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			DequeueErrors.Inc()
			logger.Error().Err(err).Msg("taskqueue: dequeue failed")
		}
		return false
	}
	if task == nil {
		return false
	}

	handler, ok := w.handlers[task.Type]
	if !ok {
		logger.Error().
			Str("task_id", task.ID).
			Str("type", string(task.Type)).
			Msg("taskqueue: no handler for task type")
		TasksProcessedTotal.WithLabelValues(string(task.Type), "no_handler").Inc()
		w.fail(ctx, task, ErrNoHandler)
		return true
	}

	logger.Debug().
		Str("task_id", task.ID).
		Str("type", string(task.Type)).
		Int("attempt", task.Attempts).
		Msg("taskqueue: processing task")

	start := time.Now()
	err = w.handle(ctx, handler, task)
	TaskProcessingDuration.WithLabelValues(string(task.Type)).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Warn().
			Err(err).
			Str("task_id", task.ID).
			Str("type", string(task.Type)).
			Int("attempt", task.Attempts).
			Msg("taskqueue: task failed")
		TasksProcessedTotal.WithLabelValues(string(task.Type), "failed").Inc()
		w.fail(ctx, task, err)
		return true
	}

	logger.Debug().
		Str("task_id", task.ID).
		Str("type", string(task.Type)).
		Msg("taskqueue: task completed")
	TasksProcessedTotal.WithLabelValues(string(task.Type), "completed").Inc()
	if err := w.queue.Complete(ctx, task.ID); err != nil {
		logger.Error().Err(err).Str("task_id", task.ID).Msg("taskqueue: complete failed")
	}
	return true
}

// handle runs the handler, heartbeating while it works and turning panics
// into task failures.
func (w *Worker) handle(ctx context.Context, h Handler, task *Task) (err error) {
	if w.heartbeatInterval > 0 {
		hbCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go w.heartbeat(hbCtx, task.ID)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, task)
}

func (w *Worker) heartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.queue.Heartbeat(ctx, taskID, w.id); err != nil && ctx.Err() == nil {
				logger.Warn().Err(err).Str("task_id", taskID).Msg("taskqueue: heartbeat failed")
			}
		}
	}
}

func (w *Worker) fail(ctx context.Context, task *Task, err error) {
	if ferr := w.queue.Fail(ctx, task.ID, err); ferr != nil {
		logger.Error().Err(ferr).Str("task_id", task.ID).Msg("taskqueue: fail failed")
	}
}

func (w *Worker) Queue() Queue {
	return w.queue
}

// HandlerTypes returns the registered task types in sorted order.
func (w *Worker) HandlerTypes() []TaskType {
	types := make([]TaskType, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
