// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"hash/maphash"
	"sync"
)

const defaultShardCount = 64

// ShardedMap is a concurrent map split across independently locked shards.
type ShardedMap[K comparable, V any] struct {
	seed   maphash.Seed
	shards []shard[K, V]
}

type shard[K comparable, V any] struct {
	sync.RWMutex
	m map[K]V
}

type ShardedMapOption[K comparable, V any] func(*ShardedMap[K, V])

// WithShardCount overrides the number of shards. Values below 1 are raised to 1.
func WithShardCount[K comparable, V any](n int) ShardedMapOption[K, V] {
	return func(sm *ShardedMap[K, V]) {
		if n < 1 {
			n = 1
		}
		sm.shards = make([]shard[K, V], n)
	}
}

func NewShardedMap[K comparable, V any](opts ...ShardedMapOption[K, V]) *ShardedMap[K, V] {
	sm := &ShardedMap[K, V]{
		seed:   maphash.MakeSeed(),
		shards: make([]shard[K, V], defaultShardCount),
	}
	for _, opt := range opts {
		opt(sm)
	}
	for i := range sm.shards {
		sm.shards[i].m = make(map[K]V)
	}
	return sm
}

func (sm *ShardedMap[K, V]) getShard(key K) *shard[K, V] {
	h := maphash.Comparable(sm.seed, key)
	return &sm.shards[h%uint64(len(sm.shards))]
}

func (sm *ShardedMap[K, V]) Load(key K) (V, bool) {
	s := sm.getShard(key)
	s.RLock()
	v, ok := s.m[key]
	s.RUnlock()
	return v, ok
}

func (sm *ShardedMap[K, V]) Store(key K, value V) {
	s := sm.getShard(key)
	s.Lock()
	s.m[key] = value
	s.Unlock()
}

// LoadOrStore returns the existing value if present, otherwise stores value.
// The bool reports whether the value was loaded.
func (sm *ShardedMap[K, V]) LoadOrStore(key K, value V) (V, bool) {
	s := sm.getShard(key)

	s.RLock()
	if v, ok := s.m[key]; ok {
		s.RUnlock()
		return v, true
	}
	s.RUnlock()

	s.Lock()
	defer s.Unlock()
	if v, ok := s.m[key]; ok {
		return v, true
	}
	s.m[key] = value
	return value, false
}

func (sm *ShardedMap[K, V]) Delete(key K) {
	s := sm.getShard(key)
	s.Lock()
	delete(s.m, key)
	s.Unlock()
}

// Range calls f for each entry until f returns false. Each shard is
// read-locked while it is visited, so f must not write to the map.
func (sm *ShardedMap[K, V]) Range(f func(key K, value V) bool) {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		for k, v := range s.m {
			if !f(k, v) {
				s.RUnlock()
				return
			}
		}
		s.RUnlock()
	}
}

func (sm *ShardedMap[K, V]) Len() int {
	count := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.RLock()
		count += len(s.m)
		s.RUnlock()
	}
	return count
}

// DeleteIf deletes entries matching predicate and returns how many were removed.
func (sm *ShardedMap[K, V]) DeleteIf(predicate func(key K, value V) bool) int {
	deleted := 0
	for i := range sm.shards {
		s := &sm.shards[i]
		s.Lock()
		for k, v := range s.m {
			if predicate(k, v) {
				delete(s.m, k)
				deleted++
			}
		}
		s.Unlock()
	}
	return deleted
}

func (sm *ShardedMap[K, V]) Clear() {
	for i := range sm.shards {
		s := &sm.shards[i]
		s.Lock()
		s.m = make(map[K]V)
		s.Unlock()
	}
}

// Keys is not atomic across shards.
func (sm *ShardedMap[K, V]) Keys() []K {
	keys := make([]K, 0, sm.Len())
	sm.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
