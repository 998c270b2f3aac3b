// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package coordinator serializes work per key. PodM keys tasks by external
// service UUID so that two operations never drive the same service at once,
// and uses AllocationKey to make allocation a critical section.
package coordinator

import (
	"context"
	"errors"
	"slices"
	"time"
)

// AllocationKey serializes node allocation across the whole manager.
const AllocationKey = "allocation"

var ErrLockTimeout = errors.New("coordinator: timed out waiting for lock")

// Coordinator runs functions so that calls sharing a key never overlap.
type Coordinator interface {
	// Run blocks until the key is free, then runs fn while holding it.
	// It returns ErrLockTimeout when the acquire timeout elapses and
	// ctx.Err() when ctx is done first.
	Run(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Call is Run for functions that produce a value.
func Call[T any](ctx context.Context, c Coordinator, key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := c.Run(ctx, key, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// RunAll runs fn while holding every key. Duplicates and empty keys are
// dropped and the rest are acquired in sorted order, so RunAll calls over
// overlapping key sets cannot deadlock.
func RunAll(ctx context.Context, c Coordinator, keys []string, fn func(ctx context.Context) error) error {
	keys = slices.DeleteFunc(slices.Compact(slices.Sorted(slices.Values(keys))), func(k string) bool { return k == "" })
	return runAll(ctx, c, keys, fn)
}

func runAll(ctx context.Context, c Coordinator, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return c.Run(ctx, keys[0], func(ctx context.Context) error {
		return runAll(ctx, c, keys[1:], fn)
	})
}

// acquireContext bounds waiting by timeout when one is set. The returned
// cancel must always be called.
func acquireContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeoutCause(ctx, timeout, ErrLockTimeout)
}

// waitError turns an expired acquire context into ErrLockTimeout when the
// parent is still live.
func waitError(parent, waitCtx context.Context, key string) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(context.Cause(waitCtx), ErrLockTimeout) {
		LockTimeouts.WithLabelValues(keyLabel(key)).Inc()
		return ErrLockTimeout
	}
	return waitCtx.Err()
}

// keyLabel keeps metric cardinality bounded: service UUIDs collapse into
// one label value.
func keyLabel(key string) string {
	if key == AllocationKey {
		return key
	}
	return "service"
}
