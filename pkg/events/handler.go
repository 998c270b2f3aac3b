// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"encoding/json"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

// NotificationHandler delivers notification tasks to every publisher.
type NotificationHandler struct {
	publishers []Publisher
	eventTypes []string
}

// NewNotificationHandler delivers notifications whose type matches one of
// eventTypes ("*" suffix wildcards allowed). No eventTypes delivers all.
func NewNotificationHandler(publishers []Publisher, eventTypes []string) *NotificationHandler {
	return &NotificationHandler{publishers: publishers, eventTypes: eventTypes}
}

func (h *NotificationHandler) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeNotification
}

// Handle returns the last publisher error so the task is retried when any
// publisher failed.
func (h *NotificationHandler) Handle(ctx context.Context, task *taskqueue.Task) error {
	n, err := taskqueue.UnmarshalPayload[Notification](task.Payload)
	if err != nil {
		// malformed payloads never succeed
		logger.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID).Msg("events: bad notification payload")
		return nil
	}
	if !MatchesAny(h.eventTypes, n.Type) {
		logger.Ctx(ctx).Debug().Str("event", string(n.Type)).Msg("events: notification filtered")
		return nil
	}

	data, err := json.Marshal(n)
	if err != nil {
		return nil
	}

	var lastErr error
	for _, pub := range h.publishers {
		if err := pub.Publish(ctx, &n, data); err != nil {
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("publisher", pub.Name()).
				Str("event", string(n.Type)).
				Str("node", n.NodeID).
				Msg("events: failed to publish notification")
			DeliveryErrorsTotal.WithLabelValues(pub.Name()).Inc()
			lastErr = err
			continue
		}
		DeliveredTotal.WithLabelValues(pub.Name()).Inc()
	}
	return lastErr
}
