// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/storetest"
)

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestReturnedResourcesAreCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	sys := &model.ComputerSystem{Meta: model.Meta{ODataID: "/redfish/v1/Systems/a-1"}}
	require.NoError(t, s.Resources().Put(ctx, sys))

	sys.Allocated = true
	got, err := store.GetAs[*model.ComputerSystem](ctx, s.Resources(), sys.ODataID)
	require.NoError(t, err)
	assert.False(t, got.Allocated, "mutating the caller's value must not leak into the store")
}

func TestConcurrentTransactions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	node := &model.ComposedNode{ID: "n1"}
	require.NoError(t, s.Nodes().Create(ctx, node))

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			err := s.WithTx(ctx, func(tx store.Tx) error {
				n, err := tx.Nodes().Get(ctx, "n1")
				if err != nil {
					return err
				}
				n.RequestedDrives++
				return tx.Nodes().Update(ctx, n)
			})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, err := s.Nodes().Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.RequestedDrives, "transactions are serialized")
}

func TestWithTxCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New().WithTx(ctx, func(store.Tx) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
