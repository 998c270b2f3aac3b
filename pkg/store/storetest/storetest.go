// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package storetest holds behaviour tests shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// Run exercises a store. newStore must return an empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("Resources", func(t *testing.T) { testResources(t, newStore(t)) })
	t.Run("ResourceFilters", func(t *testing.T) { testResourceFilters(t, newStore(t)) })
	t.Run("MarkAbsent", func(t *testing.T) { testMarkAbsent(t, newStore(t)) })
	t.Run("Nodes", func(t *testing.T) { testNodes(t, newStore(t)) })
	t.Run("Services", func(t *testing.T) { testServices(t, newStore(t)) })
	t.Run("TxCommit", func(t *testing.T) { testTxCommit(t, newStore(t)) })
	t.Run("TxRollback", func(t *testing.T) { testTxRollback(t, newStore(t)) })
}

func system(id, svc string) *model.ComputerSystem {
	return &model.ComputerSystem{
		Meta: model.Meta{
			ODataID:     model.ODataID("/redfish/v1/Systems/" + id),
			ID:          id,
			Status:      model.StatusEnabledOK,
			ServiceUUID: svc,
		},
		SystemType: model.SystemTypePhysical,
		UUID:       "uuid-" + id,
	}
}

func testResources(t *testing.T, s store.Store) {
	ctx := context.Background()
	rs := s.Resources()

	sys := system("a-1", "svc-a")
	require.NoError(t, rs.Put(ctx, sys))

	got, err := store.GetAs[*model.ComputerSystem](ctx, rs, sys.ODataID)
	require.NoError(t, err)
	assert.Equal(t, "uuid-a-1", got.UUID)

	got.Allocated = true
	require.NoError(t, rs.Put(ctx, got))
	again, err := store.GetAs[*model.ComputerSystem](ctx, rs, sys.ODataID)
	require.NoError(t, err)
	assert.True(t, again.Allocated)

	_, err = store.GetAs[*model.Drive](ctx, rs, sys.ODataID)
	assert.ErrorIs(t, err, store.ErrKindMismatch)

	require.NoError(t, rs.Delete(ctx, sys.ODataID))
	_, err = rs.Get(ctx, sys.ODataID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, rs.Delete(ctx, sys.ODataID), store.ErrNotFound)
}

func testResourceFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	rs := s.Resources()

	a2, a1, b1 := system("a-2", "svc-a"), system("a-1", "svc-a"), system("b-1", "svc-b")
	b1.Allocated = true
	cores := 8
	proc := &model.Processor{
		Meta:       model.Meta{ODataID: a1.ODataID.Join("Processors", "1"), ID: "1", ServiceUUID: "svc-a"},
		System:     a1.ODataID,
		TotalCores: &cores,
	}
	for _, r := range []model.Resource{a2, a1, b1, proc} {
		require.NoError(t, rs.Put(ctx, r))
	}

	systems, err := store.ListAs[*model.ComputerSystem](ctx, rs, store.ResourceFilter{})
	require.NoError(t, err)
	require.Len(t, systems, 3)
	assert.Equal(t, []model.ODataID{a1.ODataID, a2.ODataID, b1.ODataID},
		[]model.ODataID{systems[0].ODataID, systems[1].ODataID, systems[2].ODataID}, "ordered by URI")

	free, err := store.ListAs[*model.ComputerSystem](ctx, rs, store.ResourceFilter{Allocated: store.Bool(false)})
	require.NoError(t, err)
	assert.Len(t, free, 2)

	svcB, err := rs.List(ctx, store.ResourceFilter{ServiceUUID: "svc-b"})
	require.NoError(t, err)
	require.Len(t, svcB, 1)
	assert.Equal(t, b1.ODataID, svcB[0].Base().ODataID)

	children, err := store.ListAs[*model.Processor](ctx, rs, store.ResourceFilter{Prefix: a1.ODataID + "/"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, 8, *children[0].TotalCores)

	limited, err := rs.List(ctx, store.ResourceFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func testMarkAbsent(t *testing.T, s store.Store) {
	ctx := context.Background()
	rs := s.Resources()

	keep, gone, other := system("a-1", "svc-a"), system("a-2", "svc-a"), system("b-1", "svc-b")
	gone.Allocated = true
	for _, r := range []model.Resource{keep, gone, other} {
		require.NoError(t, rs.Put(ctx, r))
	}

	n, err := rs.MarkAbsent(ctx, "svc-a", map[model.ODataID]struct{}{keep.ODataID: {}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.GetAs[*model.ComputerSystem](ctx, rs, gone.ODataID)
	require.NoError(t, err)
	assert.Equal(t, model.StateAbsent, got.Status.State)
	assert.True(t, got.Allocated, "allocation survives absence")

	for _, id := range []model.ODataID{keep.ODataID, other.ODataID} {
		r, err := rs.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StateEnabled, r.Base().Status.State)
	}

	n, err = rs.MarkAbsent(ctx, "svc-a", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "already absent resources are not counted twice")
}

func testNodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	ns := s.Nodes()

	node := &model.ComposedNode{
		ODataID:   model.NodeURI("n1"),
		ID:        "n1",
		Name:      "web-1",
		State:     model.NodeAllocated,
		Drives:    []model.ODataID{"/redfish/v1/Drives/a-1"},
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, ns.Create(ctx, node))
	assert.ErrorIs(t, ns.Create(ctx, node), store.ErrConflict)

	got, err := ns.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, "web-1", got.Name)
	assert.Equal(t, node.Drives, got.Drives)

	got.State = model.NodeAssembled
	require.NoError(t, ns.Update(ctx, got))

	require.NoError(t, ns.Create(ctx, &model.ComposedNode{ID: "n0", State: model.NodeAllocating}))
	list, err := ns.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "n0", list[0].ID)
	assert.Equal(t, model.NodeAssembled, list[1].State)

	require.NoError(t, ns.Delete(ctx, "n1"))
	_, err = ns.Get(ctx, "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, ns.Update(ctx, node), store.ErrNotFound)
}

func testServices(t *testing.T, s store.Store) {
	ctx := context.Background()
	ss := s.Services()

	svc := &model.ExternalService{UUID: "svc-a", BaseURL: "http://psme:8888", ServiceType: model.ServicePSME}
	require.NoError(t, ss.Put(ctx, svc))
	svc.Reachable = true
	require.NoError(t, ss.Put(ctx, svc))

	got, err := ss.Get(ctx, "svc-a")
	require.NoError(t, err)
	assert.True(t, got.Reachable)

	list, err := ss.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, ss.Delete(ctx, "svc-a"))
	_, err = ss.Get(ctx, "svc-a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testTxCommit(t *testing.T, s store.Store) {
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		sys := system("a-1", "svc-a")
		node := &model.ComposedNode{ODataID: model.NodeURI("n1"), ID: "n1", State: model.NodeAllocated}
		node.AttachAsset(sys)
		if err := tx.Resources().Put(ctx, sys); err != nil {
			return err
		}
		// reads inside the transaction see its own writes
		if _, err := tx.Resources().Get(ctx, sys.ODataID); err != nil {
			return err
		}
		return tx.Nodes().Create(ctx, node)
	})
	require.NoError(t, err)

	sys, err := store.GetAs[*model.ComputerSystem](ctx, s.Resources(), "/redfish/v1/Systems/a-1")
	require.NoError(t, err)
	assert.True(t, sys.Allocated)
	_, err = s.Nodes().Get(ctx, "n1")
	require.NoError(t, err)
}

func testTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Resources().Put(ctx, system("a-1", "svc-a")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		sys, err := store.GetAs[*model.ComputerSystem](ctx, tx.Resources(), "/redfish/v1/Systems/a-1")
		if err != nil {
			return err
		}
		sys.Allocated = true
		if err := tx.Resources().Put(ctx, sys); err != nil {
			return err
		}
		if err := tx.Nodes().Create(ctx, &model.ComposedNode{ID: "n1"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	sys, err := store.GetAs[*model.ComputerSystem](ctx, s.Resources(), "/redfish/v1/Systems/a-1")
	require.NoError(t, err)
	assert.False(t, sys.Allocated)
	_, err = s.Nodes().Get(ctx, "n1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
