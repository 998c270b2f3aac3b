// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/utils"
)

const defaultShardCount = 64

type entry[V any] struct {
	value      V
	lastAccess atomic.Int64 // unix nanos
}

// Cache is a concurrent, sharded cache with optional idle expiry and an
// optional size bound.
//
// Usage:
//
//	// Redfish response bodies, dropped after 10 minutes without access
//	c := cache.New[Key, []byte](ctx, cache.WithExpiry[Key, []byte](10*time.Minute))
//	defer c.Stop()
type Cache[K comparable, V any] struct {
	ctx context.Context

	store *utils.ShardedMap[K, *entry[V]]

	loadFunc func(ctx context.Context, key K) (V, error)

	// 0 means unlimited
	maxSize int
	// 0 means entries never expire
	expiry time.Duration

	cleanupMu    sync.Mutex
	cleanupTimer *time.Timer
	stopped      bool
}

type Option[K comparable, V any] func(*Cache[K, V])

// WithMaxSize bounds the number of entries. The least recently accessed entry
// is evicted when a Set would exceed it.
func WithMaxSize[K comparable, V any](maxSize int) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.maxSize = maxSize
	}
}

// WithExpiry drops entries that have not been read or written for the given
// duration. Expired entries are invisible immediately and removed by a
// background sweep.
func WithExpiry[K comparable, V any](expiry time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.expiry = expiry
	}
}

// WithLoadFunc is called by GetOrLoad on a miss.
func WithLoadFunc[K comparable, V any](loadFunc func(ctx context.Context, key K) (V, error)) Option[K, V] {
	return func(c *Cache[K, V]) {
		c.loadFunc = loadFunc
	}
}

func New[K comparable, V any](ctx context.Context, opts ...Option[K, V]) *Cache[K, V] {
	c := &Cache[K, V]{
		ctx:   ctx,
		store: utils.NewShardedMap[K, *entry[V]](utils.WithShardCount[K, *entry[V]](defaultShardCount)),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.expiry > 0 {
		c.cleanupMu.Lock()
		c.cleanupTimer = time.AfterFunc(c.expiry, c.runCleanup)
		c.cleanupMu.Unlock()
	}
	return c
}

func (c *Cache[K, V]) runCleanup() {
	c.cleanup()

	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if c.stopped || c.ctx.Err() != nil {
		return
	}
	c.cleanupTimer.Reset(c.expiry)
}

func (c *Cache[K, V]) cleanup() {
	now := time.Now().UnixNano()
	expiryNanos := c.expiry.Nanoseconds()
	c.store.DeleteIf(func(_ K, e *entry[V]) bool {
		return now-e.lastAccess.Load() > expiryNanos
	})
}

// Stop halts the background sweep. It is safe to call more than once.
func (c *Cache[K, V]) Stop() {
	c.cleanupMu.Lock()
	defer c.cleanupMu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	if c.cleanupTimer != nil {
		c.cleanupTimer.Stop()
	}
}

func (c *Cache[K, V]) expired(e *entry[V], now int64) bool {
	return c.expiry > 0 && now-e.lastAccess.Load() > c.expiry.Nanoseconds()
}

// Get returns the value for key and refreshes its access time.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	e, ok := c.store.Load(key)
	now := time.Now().UnixNano()
	if !ok || c.expired(e, now) {
		var zero V
		return zero, false
	}
	e.lastAccess.Store(now)
	return e.value, true
}

// GetOrLoad returns the cached value or calls the load function and caches
// its result. Without a load function a miss returns the zero value.
func (c *Cache[K, V]) GetOrLoad(ctx context.Context, key K) (V, error) {
	if val, ok := c.Get(key); ok {
		return val, nil
	}
	if c.loadFunc == nil {
		var zero V
		return zero, nil
	}

	val, err := c.loadFunc(ctx, key)
	if err != nil {
		var zero V
		return zero, err
	}
	c.Set(key, val)
	return val, nil
}

func (c *Cache[K, V]) Set(key K, value V) {
	e := &entry[V]{value: value}
	e.lastAccess.Store(time.Now().UnixNano())

	if c.maxSize > 0 {
		if _, exists := c.store.Load(key); !exists && c.store.Len() >= c.maxSize {
			c.evictOldest()
		}
	}
	c.store.Store(key, e)
}

func (c *Cache[K, V]) evictOldest() {
	var (
		oldestKey  K
		oldestTime int64
		found      bool
	)
	c.store.Range(func(k K, e *entry[V]) bool {
		if ts := e.lastAccess.Load(); !found || ts < oldestTime {
			oldestKey, oldestTime, found = k, ts, true
		}
		return true
	})
	if found {
		c.store.Delete(oldestKey)
	}
}

func (c *Cache[K, V]) Delete(key K) {
	c.store.Delete(key)
}

// DeleteIf removes every entry whose key matches and returns the count.
func (c *Cache[K, V]) DeleteIf(match func(K) bool) int {
	return c.store.DeleteIf(func(k K, _ *entry[V]) bool { return match(k) })
}

// Size includes expired entries the sweep has not removed yet.
func (c *Cache[K, V]) Size() int {
	return c.store.Len()
}

func (c *Cache[K, V]) Clear() {
	c.store.Clear()
}

// Iter yields live entries. It read-locks one shard at a time.
func (c *Cache[K, V]) Iter() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		now := time.Now().UnixNano()
		c.store.Range(func(key K, e *entry[V]) bool {
			if c.expired(e, now) {
				return true
			}
			return yield(key, e.value)
		})
	}
}
