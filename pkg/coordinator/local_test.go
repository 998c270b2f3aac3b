// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	t.Parallel()

	c := NewLocal(0)
	ctx := context.Background()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Run(ctx, "svc-1", func(ctx context.Context) error {
				n := active.Add(1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				active.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, c.Keys(), "entries are dropped once the last waiter leaves")
}

func TestLocal_DifferentKeysRunConcurrently(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewLocal(0)
		ctx := context.Background()

		release := make(chan struct{})
		started := make(chan string, 2)
		var wg sync.WaitGroup
		for _, key := range []string{"svc-1", "svc-2"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Run(ctx, key, func(ctx context.Context) error {
					started <- key
					<-release
					return nil
				})
			}()
		}

		synctest.Wait()
		assert.Len(t, started, 2)
		assert.Equal(t, 2, c.Keys())
		close(release)
		wg.Wait()
	})
}

func TestLocal_Timeout(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewLocal(time.Second)
		ctx := context.Background()

		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = c.Run(ctx, AllocationKey, func(ctx context.Context) error {
				<-release
				return nil
			})
		}()
		synctest.Wait()

		called := false
		err := c.Run(ctx, AllocationKey, func(ctx context.Context) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrLockTimeout)
		assert.False(t, called)

		close(release)
		<-done
		assert.Zero(t, c.Keys())
	})
}

func TestLocal_ContextCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewLocal(time.Minute)

		release := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			_ = c.Run(context.Background(), "svc-1", func(ctx context.Context) error {
				<-release
				return nil
			})
		}()
		synctest.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := c.Run(ctx, "svc-1", func(ctx context.Context) error { return nil })
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.NotErrorIs(t, err, ErrLockTimeout)

		close(release)
		<-done
	})
}

func TestCall(t *testing.T) {
	t.Parallel()

	c := NewLocal(0)
	got, err := Call(context.Background(), c, "svc-1", func(ctx context.Context) (string, error) {
		return "/redfish/v1/Nodes/1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "/redfish/v1/Nodes/1", got)

	boom := errors.New("boom")
	_, err = Call(context.Background(), c, "svc-1", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
}

type keyRecorder struct {
	Coordinator
	mu   sync.Mutex
	keys []string
}

func (r *keyRecorder) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	return r.Coordinator.Run(ctx, key, fn)
}

func TestRunAll_AcquiresSortedKeys(t *testing.T) {
	t.Parallel()

	r := &keyRecorder{Coordinator: NewLocal(0)}
	ran := false
	err := RunAll(context.Background(), r, []string{"svc-2", "", "svc-1", "svc-2"}, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, []string{"svc-1", "svc-2"}, r.keys)

	boom := errors.New("boom")
	err = RunAll(context.Background(), r, nil, func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestRunAll_OverlappingKeySets(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := NewLocal(0)
		ctx := context.Background()

		var active, done atomic.Int32
		var wg sync.WaitGroup
		for i := range 10 {
			keys := []string{"svc-1", "svc-2"}
			if i%2 == 1 {
				keys = []string{"svc-2", "svc-1"}
			}
			wg.Go(func() {
				err := RunAll(ctx, c, keys, func(ctx context.Context) error {
					assert.Equal(t, int32(1), active.Add(1))
					time.Sleep(time.Millisecond)
					active.Add(-1)
					done.Add(1)
					return nil
				})
				assert.NoError(t, err)
			})
		}
		wg.Wait()

		assert.Equal(t, int32(10), done.Load())
		assert.Zero(t, c.Keys())
	})
}

func TestKeyLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "allocation", keyLabel(AllocationKey))
	assert.Equal(t, "service", keyLabel("4b3f0a6e-6d5c-4a12-9e8b-0c1d2e3f4a5b"))
}
