// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"strings"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// EventType names a composed node lifecycle event.
type EventType string

const (
	NodeAllocated      EventType = "NodeAllocated"
	NodeAssembled      EventType = "NodeAssembled"
	NodeAssemblyFailed EventType = "NodeAssemblyFailed"
	NodeReset          EventType = "NodeReset"
	NodeDeleted        EventType = "NodeDeleted"
	NodeDisabled       EventType = "NodeDisabled"
	NodeRecovered      EventType = "NodeRecovered"
	ResourceAttached   EventType = "ResourceAttached"
	ResourceDetached   EventType = "ResourceDetached"
)

// Notification is the document delivered to publishers.
type Notification struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	NodeID    string        `json:"node_id"`
	Node      model.ODataID `json:"node"`
	Resource  model.ODataID `json:"resource,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// MatchesEventType reports whether t matches pattern. A trailing "*"
// matches any suffix, so "Node*" matches "NodeAllocated".
func MatchesEventType(pattern string, t EventType) bool {
	if pattern == string(t) {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(string(t), prefix)
	}
	return false
}

// MatchesAny reports whether t matches one of patterns. No patterns
// matches everything.
func MatchesAny(patterns []string, t EventType) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if MatchesEventType(p, t) {
			return true
		}
	}
	return false
}
