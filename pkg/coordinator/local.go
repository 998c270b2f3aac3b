// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"sync"
	"time"
)

// Local serializes work within one process.
type Local struct {
	timeout time.Duration

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a one-slot semaphore shared by everyone waiting on a key.
type keyLock struct {
	sem  chan struct{}
	refs int
}

var _ Coordinator = (*Local)(nil)

// NewLocal returns a Local coordinator. A positive timeout bounds how long
// Run waits for a key.
func NewLocal(timeout time.Duration) *Local {
	return &Local{
		timeout: timeout,
		locks:   make(map[string]*keyLock),
	}
}

func (l *Local) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := l.ref(key)
	defer l.unref(key, lock)

	waitCtx, cancel := acquireContext(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	select {
	case lock.sem <- struct{}{}:
	case <-waitCtx.Done():
		return waitError(ctx, waitCtx, key)
	}
	WaitDuration.WithLabelValues(keyLabel(key)).Observe(time.Since(start).Seconds())

	InFlight.Inc()
	defer func() {
		InFlight.Dec()
		<-lock.sem
	}()
	return fn(ctx)
}

func (l *Local) ref(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	return lock
}

func (l *Local) unref(key string, lock *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// Keys returns the number of keys with a holder or waiter.
func (l *Local) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
