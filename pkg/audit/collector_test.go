// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	NopStore
	mu      sync.Mutex
	records []Record
	batches int
	err     error
}

func (m *memStore) InsertRecords(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, records...)
	m.batches++
	return nil
}

func (m *memStore) count() (records, batches int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), m.batches
}

func TestCollector_FlushesOnInterval(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &memStore{}
		c := NewCollector(Config{BatchSize: 100, FlushInterval: time.Second}, store)
		c.Start(t.Context())
		defer c.Stop()

		for range 3 {
			c.Record(Record{NodeID: "n1", Action: "Assemble"})
		}
		synctest.Wait()
		n, _ := store.count()
		assert.Zero(t, n)

		time.Sleep(time.Second)
		synctest.Wait()
		n, batches := store.count()
		assert.Equal(t, 3, n)
		assert.Equal(t, 1, batches)
	})
}

func TestCollector_FlushesFullBatch(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &memStore{}
		c := NewCollector(Config{BatchSize: 2, BufferSize: 10, FlushInterval: time.Hour}, store)
		c.Start(t.Context())
		defer c.Stop()

		for range 5 {
			c.Record(Record{NodeID: "n1", Action: "Reset"})
		}
		synctest.Wait()
		n, batches := store.count()
		assert.Equal(t, 4, n)
		assert.Equal(t, 2, batches)
	})
}

func TestCollector_StopFlushesPending(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		store := &memStore{}
		c := NewCollector(Config{BatchSize: 100, FlushInterval: time.Hour}, store)
		c.Start(context.Background())

		c.Record(Record{NodeID: "n1", Action: "Delete"})
		c.Stop()
		c.Stop()

		n, _ := store.count()
		assert.Equal(t, 1, n)
	})
}

func TestCollector_DropsWhenFull(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	c := NewCollector(Config{BatchSize: 1, BufferSize: 2}, store)
	for range 5 {
		c.Record(Record{NodeID: "n1"})
	}
	require.NoError(t, c.Flush(context.Background()))
	n, _ := store.count()
	assert.Equal(t, 2, n)
}

func TestCollector_FlushError(t *testing.T) {
	t.Parallel()

	store := &memStore{err: errors.New("clickhouse down")}
	c := NewCollector(Config{}, store)
	c.Record(Record{NodeID: "n1"})
	assert.ErrorContains(t, c.Flush(context.Background()), "clickhouse down")
	assert.NoError(t, c.Flush(context.Background()), "empty buffer")
}

func TestNopStore(t *testing.T) {
	t.Parallel()

	var s Store = NopStore{}
	ctx := context.Background()
	require.NoError(t, s.InsertRecords(ctx, []Record{{NodeID: "n1"}}))
	records, err := s.QueryRecords(ctx, "n1", time.Time{}, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NoError(t, s.Close())
}
