// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
)

const (
	DefaultWindow = 2 * time.Second

	minSweepInterval = 10 * time.Millisecond
)

var ErrBufferClosed = errors.New("events buffer is closed")

// Processor consumes the events of one service after they were coalesced.
type Processor interface {
	Process(ctx context.Context, serviceUUID string, events []redfish.Event) error
}

type ProcessorFunc func(ctx context.Context, serviceUUID string, events []redfish.Event) error

func (f ProcessorFunc) Process(ctx context.Context, serviceUUID string, events []redfish.Event) error {
	return f(ctx, serviceUUID, events)
}

// Buffer coalesces incoming events per service. The first event added to
// an empty bucket opens a window; when it elapses the bucket is handed to
// the processor as one batch.
type Buffer struct {
	window    time.Duration
	processor Processor

	mu      sync.Mutex
	buckets map[string]*bucket
	closed  bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	opened time.Time
	events []redfish.Event
}

// NewBuffer starts a buffer whose sweeper runs every window/4.
func NewBuffer(window time.Duration, processor Processor) *Buffer {
	if window <= 0 {
		window = DefaultWindow
	}
	b := &Buffer{
		window:    window,
		processor: processor,
		buckets:   make(map[string]*bucket),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.sweepLoop(max(window/4, minSweepInterval))
	return b
}

// Add appends events to the service's bucket.
func (b *Buffer) Add(serviceUUID string, events []redfish.Event) error {
	if len(events) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBufferClosed
	}
	bk, ok := b.buckets[serviceUUID]
	if !ok {
		bk = &bucket{opened: time.Now()}
		b.buckets[serviceUUID] = bk
	}
	bk.events = append(bk.events, events...)
	IncomingEventsTotal.Add(float64(len(events)))
	BufferPending.Add(float64(len(events)))
	return nil
}

// Pending returns the number of buffered events.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, bk := range b.buckets {
		n += len(bk.events)
	}
	return n
}

// Close stops the sweeper and flushes every bucket regardless of its
// window. Add fails afterwards.
func (b *Buffer) Close(ctx context.Context) error {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done

	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return b.flush(ctx, true)
}

func (b *Buffer) sweepLoop(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ctx := context.Background()
	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			_ = b.flush(ctx, false)
		}
	}
}

// flush processes expired buckets, or all of them when force is set. The
// processor runs without the lock held.
func (b *Buffer) flush(ctx context.Context, force bool) error {
	now := time.Now()
	ready := make(map[string][]redfish.Event)

	b.mu.Lock()
	for svc, bk := range b.buckets {
		if force || now.Sub(bk.opened) >= b.window {
			ready[svc] = bk.events
			delete(b.buckets, svc)
		}
	}
	b.mu.Unlock()

	var errs []error
	for svc, events := range ready {
		BufferPending.Sub(float64(len(events)))
		if err := b.processor.Process(ctx, svc, events); err != nil {
			BufferFlushesTotal.WithLabelValues("error").Inc()
			logger.Ctx(ctx).Warn().
				Err(err).
				Str("service", svc).
				Int("events", len(events)).
				Msg("events: failed to process buffered events")
			errs = append(errs, err)
			continue
		}
		BufferFlushesTotal.WithLabelValues("success").Inc()
	}
	return errors.Join(errs...)
}
