// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package taskqueue

// ServicePayload is the payload of tasks about one external service:
// rediscovery, event_subscription and node_recovery.
type ServicePayload struct {
	ServiceUUID string `json:"service_uuid"`
	// Reason is informational, e.g. "event", "register" or "periodic".
	Reason string `json:"reason,omitempty"`
}

// NewServiceTask builds a task keyed by the service UUID so EnqueueUnique
// collapses duplicates.
func NewServiceTask(taskType TaskType, serviceUUID, reason string) (*Task, error) {
	return NewTask(taskType, serviceUUID, ServicePayload{ServiceUUID: serviceUUID, Reason: reason})
}
