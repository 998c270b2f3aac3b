// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

// Collector buffers records and writes them to a Store in batches, when a
// batch fills up or every flush interval.
type Collector struct {
	store  Store
	cfg    Config
	buffer chan Record

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewCollector(cfg Config, store Store) *Collector {
	cfg.Validate()
	return &Collector{
		store:  store,
		cfg:    cfg,
		buffer: make(chan Record, cfg.BufferSize),
		done:   make(chan struct{}),
	}
}

// Record queues r. It never blocks; a full buffer drops the record.
func (c *Collector) Record(r Record) {
	select {
	case c.buffer <- r:
		RecordsBuffered.Inc()
	default:
		RecordsDropped.Inc()
		logger.Warn().Str("node", r.NodeID).Str("action", r.Action).Msg("audit: buffer full, record dropped")
	}
}

// Start runs the flush loop until ctx is done or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.flushLoop(ctx)
	logger.Info().
		Int("batch_size", c.cfg.BatchSize).
		Dur("flush_interval", c.cfg.FlushInterval).
		Msg("audit: collector started")
}

// Stop flushes pending records and waits for the flush loop to exit.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

// Flush writes whatever is buffered right now.
func (c *Collector) Flush(ctx context.Context) error {
	return c.flush(ctx, c.drain(nil))
}

func (c *Collector) flushLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, c.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			_ = c.flush(context.WithoutCancel(ctx), c.drain(batch))
			return
		case <-c.done:
			_ = c.flush(context.WithoutCancel(ctx), c.drain(batch))
			return
		case r := <-c.buffer:
			batch = append(batch, r)
			if len(batch) >= c.cfg.BatchSize {
				_ = c.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				_ = c.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain appends everything buffered to batch.
func (c *Collector) drain(batch []Record) []Record {
	for {
		select {
		case r := <-c.buffer:
			batch = append(batch, r)
		default:
			return batch
		}
	}
}

func (c *Collector) flush(ctx context.Context, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	start := time.Now()
	if err := c.store.InsertRecords(ctx, batch); err != nil {
		FlushErrors.Inc()
		logger.Error().Err(err).Int("count", len(batch)).Msg("audit: failed to flush records")
		return err
	}
	FlushDuration.Observe(time.Since(start).Seconds())
	RecordsFlushed.Add(float64(len(batch)))
	return nil
}
