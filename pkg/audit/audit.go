// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records the actions performed on composed nodes.
//
// Records are buffered by a Collector and written in batches to a Store
// (ClickHouse, or a no-op store when auditing is disabled).
package audit

import (
	"context"
	"time"

	podmctx "github.com/LeeDigitalWorks/podm/pkg/context"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record is one audited node action.
type Record struct {
	Time       time.Time `json:"time"`
	RequestID  string    `json:"request_id,omitempty"`
	NodeID     string    `json:"node_id"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	DurationMs uint32    `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Recorder accepts records without blocking.
type Recorder interface {
	Record(r Record)
}

// Track starts timing an action and returns the function that records
// its result.
//
//	done := audit.Track(ctx, rec, node.ID, "Assemble", "")
//	defer func() { done(err) }()
func Track(ctx context.Context, rec Recorder, nodeID, action, resource string) func(error) {
	start := time.Now()
	return func(err error) {
		r := Record{
			Time:       start.UTC(),
			RequestID:  podmctx.RequestID(ctx),
			NodeID:     nodeID,
			Action:     action,
			Resource:   resource,
			Outcome:    OutcomeSuccess,
			DurationMs: uint32(time.Since(start).Milliseconds()),
		}
		if err != nil {
			r.Outcome = OutcomeFailure
			r.Error = err.Error()
		}
		rec.Record(r)
	}
}

// Nop discards records.
type Nop struct{}

func (Nop) Record(Record) {}
