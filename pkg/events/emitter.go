// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

// Emitter queues node lifecycle notifications for async delivery via the
// taskqueue. Delivery is done by NotificationHandler.
type Emitter struct {
	queue   taskqueue.Queue
	enabled bool
}

type EmitterConfig struct {
	// Queue persists notifications. If nil, they are dropped.
	Queue taskqueue.Queue

	// Enabled controls whether notifications are queued.
	Enabled bool
}

func NewEmitter(cfg EmitterConfig) *Emitter {
	return &Emitter{
		queue:   cfg.Queue,
		enabled: cfg.Enabled && cfg.Queue != nil,
	}
}

// NoopEmitter returns an emitter that drops all notifications.
func NoopEmitter() *Emitter {
	return &Emitter{}
}

func (e *Emitter) IsEnabled() bool {
	return e != nil && e.enabled
}

// Emit queues a notification. Errors are logged, never returned, so node
// operations are not failed by notification trouble.
func (e *Emitter) Emit(ctx context.Context, n Notification) {
	if !e.IsEnabled() {
		NotificationsDroppedTotal.Inc()
		return
	}
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	task, err := taskqueue.NewTask(taskqueue.TaskTypeNotification, n.NodeID, n)
	if err != nil {
		EmitErrorsTotal.WithLabelValues("marshal").Inc()
		logger.Ctx(ctx).Warn().Err(err).Str("event", string(n.Type)).Msg("events: failed to marshal notification")
		return
	}
	task.ID = n.ID

	if err := e.queue.Enqueue(ctx, task); err != nil {
		EmitErrorsTotal.WithLabelValues("enqueue").Inc()
		logger.Ctx(ctx).Warn().
			Err(err).
			Str("event", string(n.Type)).
			Str("node", n.NodeID).
			Msg("events: failed to queue notification")
		return
	}

	NotificationsEmittedTotal.WithLabelValues(string(n.Type)).Inc()
	logger.Ctx(ctx).Debug().
		Str("event", string(n.Type)).
		Str("node", n.NodeID).
		Str("task_id", task.ID).
		Msg("events: queued notification")
}

// EmitNode emits t for node. resource is the attached or detached asset,
// if any.
func (e *Emitter) EmitNode(ctx context.Context, t EventType, node *model.ComposedNode, resource model.ODataID, message string) {
	e.Emit(ctx, Notification{
		Type:     t,
		NodeID:   node.ID,
		Node:     node.ODataID,
		Resource: resource,
		Message:  message,
	})
}
