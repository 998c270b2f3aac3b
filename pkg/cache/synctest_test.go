// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type responseKey struct {
	service string
	path    string
}

func TestCacheExpiry_GetAfterExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 100 * time.Millisecond
		c := New[string, string](t.Context(), WithExpiry[string, string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")
		val, ok := c.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)

		time.Sleep(expiry + 10*time.Millisecond)
		_, ok = c.Get("key1")
		assert.False(t, ok, "entry should be expired")
	})
}

func TestCacheExpiry_CleanupRemovesEntries(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 50 * time.Millisecond
		c := New[string, string](t.Context(), WithExpiry[string, string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")
		c.Set("key2", "value2")
		assert.Equal(t, 2, c.Size())

		// first sweep fires at expiry, the entries are only stale after it
		time.Sleep(2*expiry + 10*time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 0, c.Size())

		c.Set("key3", "value3")
		time.Sleep(2*expiry + 10*time.Millisecond)
		synctest.Wait()
		assert.Equal(t, 0, c.Size(), "sweep should keep rescheduling")
	})
}

func TestCacheExpiry_AccessRefreshesExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 100 * time.Millisecond
		c := New[string, string](t.Context(), WithExpiry[string, string](expiry))
		defer c.Stop()

		c.Set("key1", "value1")
		for range 5 {
			time.Sleep(50 * time.Millisecond)
			_, ok := c.Get("key1")
			assert.True(t, ok, "entry should still be accessible")
		}

		time.Sleep(expiry + 10*time.Millisecond)
		_, ok := c.Get("key1")
		assert.False(t, ok, "entry should be expired after no access")
	})
}

func TestCacheNoExpiry(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New[string, string](t.Context())

		c.Set("key1", "value1")
		time.Sleep(time.Hour)

		val, ok := c.Get("key1")
		assert.True(t, ok)
		assert.Equal(t, "value1", val)
	})
}

func TestCacheStop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		expiry := 50 * time.Millisecond
		c := New[string, string](t.Context(), WithExpiry[string, string](expiry))

		c.Set("key1", "value1")
		c.Stop()
		c.Stop()

		time.Sleep(expiry + 10*time.Millisecond)
		_, ok := c.Get("key1")
		assert.False(t, ok, "expiry is still checked on read")
		assert.Equal(t, 1, c.Size(), "no sweep after Stop")
	})
}

func TestCacheMaxSize(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		c := New[int, string](t.Context(), WithMaxSize[int, string](3))

		for i := range 3 {
			c.Set(i, "value")
			time.Sleep(time.Millisecond)
		}
		// touch 0 so 1 becomes the least recently used
		_, _ = c.Get(0)
		time.Sleep(time.Millisecond)

		c.Set(3, "value")
		assert.Equal(t, 3, c.Size())
		_, ok := c.Get(1)
		assert.False(t, ok)
		_, ok = c.Get(0)
		assert.True(t, ok)

		// overwriting an existing key does not evict
		c.Set(3, "other")
		assert.Equal(t, 3, c.Size())
	})
}

func TestCacheGetOrLoad(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		ctx := t.Context()
		loadCount := 0

		c := New[string, string](ctx,
			WithExpiry[string, string](100*time.Millisecond),
			WithLoadFunc(func(ctx context.Context, key string) (string, error) {
				loadCount++
				if key == "bad" {
					return "", errors.New("boom")
				}
				return "loaded-" + key, nil
			}),
		)
		defer c.Stop()

		val, err := c.GetOrLoad(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "loaded-key1", val)

		val, err = c.GetOrLoad(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, "loaded-key1", val)
		assert.Equal(t, 1, loadCount)

		time.Sleep(110 * time.Millisecond)
		_, err = c.GetOrLoad(ctx, "key1")
		require.NoError(t, err)
		assert.Equal(t, 2, loadCount)

		_, err = c.GetOrLoad(ctx, "bad")
		require.Error(t, err)
		_, ok := c.Get("bad")
		assert.False(t, ok, "errors are not cached")
	})
}

func TestCacheDeleteIf(t *testing.T) {
	t.Parallel()

	c := New[responseKey, []byte](t.Context())
	c.Set(responseKey{"a", "/redfish/v1/Systems"}, []byte("{}"))
	c.Set(responseKey{"a", "/redfish/v1/Chassis"}, []byte("{}"))
	c.Set(responseKey{"b", "/redfish/v1/Systems"}, []byte("{}"))

	n := c.DeleteIf(func(k responseKey) bool { return k.service == "a" })
	assert.Equal(t, 2, n)

	var left []responseKey
	for k := range c.Iter() {
		left = append(left, k)
	}
	assert.Equal(t, []responseKey{{"b", "/redfish/v1/Systems"}}, left)
}
