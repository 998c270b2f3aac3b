// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import "context"

// Publisher is a notification backend.
type Publisher interface {
	// Name identifies the publisher in metrics and logs, e.g. "kafka".
	Name() string

	// Publish sends the encoded notification n.
	Publish(ctx context.Context, n *Notification, data []byte) error

	Close() error
}

// NoopPublisher discards notifications.
type NoopPublisher struct{}

func (NoopPublisher) Name() string { return "noop" }

func (NoopPublisher) Publish(context.Context, *Notification, []byte) error { return nil }

func (NoopPublisher) Close() error { return nil }
