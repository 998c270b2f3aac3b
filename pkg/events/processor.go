// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

// RediscoveryProcessor turns a batch of events from a service into one
// rediscovery task for it.
type RediscoveryProcessor struct {
	queue taskqueue.Queue
}

func NewRediscoveryProcessor(queue taskqueue.Queue) *RediscoveryProcessor {
	return &RediscoveryProcessor{queue: queue}
}

// Process enqueues a rediscovery unless one is already pending for the
// service.
func (p *RediscoveryProcessor) Process(ctx context.Context, serviceUUID string, events []redfish.Event) error {
	task, err := taskqueue.NewServiceTask(taskqueue.TaskTypeRediscovery, serviceUUID, "event")
	if err != nil {
		return err
	}
	task.Priority = taskqueue.PriorityHigh

	queued, err := taskqueue.EnqueueUnique(ctx, p.queue, task)
	if err != nil {
		return fmt.Errorf("enqueue rediscovery for %s: %w", serviceUUID, err)
	}
	logger.Ctx(ctx).Debug().
		Str("service", serviceUUID).
		Int("events", len(events)).
		Bool("queued", queued).
		Msg("events: rediscovery requested")
	return nil
}
