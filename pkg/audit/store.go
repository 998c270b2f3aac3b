// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"
)

// Store persists audit records.
type Store interface {
	InsertRecords(ctx context.Context, records []Record) error

	// QueryRecords returns the node's records since the given time, newest
	// first.
	QueryRecords(ctx context.Context, nodeID string, since time.Time, limit int) ([]Record, error)

	Close() error
}

// NopStore is used when auditing has no backend.
type NopStore struct{}

func (NopStore) InsertRecords(context.Context, []Record) error { return nil }

func (NopStore) QueryRecords(context.Context, string, time.Time, int) ([]Record, error) {
	return nil, nil
}

func (NopStore) Close() error { return nil }
