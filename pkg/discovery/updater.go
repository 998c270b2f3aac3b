// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// nodeChange is a node the updater changed and the asset responsible.
type nodeChange struct {
	node  *model.ComposedNode
	asset model.ODataID
}

// disableNodes fails every node holding an asset of serviceUUID that is
// no longer operational. Assets that vanished from the service are
// released so recovery can link their replacements. Only nodes that were
// not failed already are returned.
func disableNodes(ctx context.Context, tx store.Tx, serviceUUID string) ([]nodeChange, error) {
	nodes, err := tx.Nodes().List(ctx)
	if err != nil {
		return nil, err
	}

	var changed []nodeChange
	for _, n := range nodes {
		broken, dirty, err := releaseBrokenAssets(ctx, tx, n, serviceUUID)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, err)
		}
		if broken == "" {
			if dirty {
				if err := tx.Nodes().Update(ctx, n); err != nil {
					return nil, err
				}
			}
			continue
		}

		alreadyFailed := n.State == model.NodeFailed && n.Status == model.StatusOfflineCritical
		n.Disable()
		if err := tx.Nodes().Update(ctx, n); err != nil {
			return nil, err
		}
		if alreadyFailed {
			continue
		}
		NodesDisabled.Inc()
		logger.Ctx(ctx).Info().
			Str("node", n.ID).
			Str("asset", broken.String()).
			Bool("eligible_for_recovery", n.EligibleForRecovery).
			Msg("discovery: disabling composed node")
		changed = append(changed, nodeChange{node: n, asset: broken})
	}
	return changed, nil
}

// releaseBrokenAssets checks the node's system, drives and target
// endpoints that belong to serviceUUID. It returns the first one that is
// not operational and whether the node's links changed.
func releaseBrokenAssets(ctx context.Context, tx store.Tx, n *model.ComposedNode, serviceUUID string) (model.ODataID, bool, error) {
	var (
		broken model.ODataID
		dirty  bool
	)
	candidates := slices.Concat(n.Drives, n.Endpoints)
	if n.ComputerSystem != "" {
		candidates = append([]model.ODataID{n.ComputerSystem}, candidates...)
	}

	for _, id := range candidates {
		r, err := tx.Resources().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			if broken == "" {
				broken = id
			}
			continue
		}
		if err != nil {
			return "", false, err
		}
		m := r.Base()
		if m.ServiceUUID != serviceUUID {
			continue
		}
		if e, ok := r.(*model.Endpoint); ok && e.Role != model.RoleTarget {
			continue
		}
		if m.Status.IsOperational() {
			continue
		}
		if broken == "" {
			broken = id
		}
		if m.Status.State != model.StateAbsent {
			continue
		}

		// target endpoints stay linked, their identifiers drive recovery
		switch a := r.(type) {
		case *model.ComputerSystem:
			n.UnlinkComputerSystem()
			a.Allocated = false
		case *model.Drive:
			n.DetachAsset(a)
		default:
			continue
		}
		if err := tx.Resources().Put(ctx, r); err != nil {
			return "", false, err
		}
		dirty = true
	}
	return broken, dirty, nil
}

func anyEligible(ctx context.Context, tx store.Tx) (bool, error) {
	nodes, err := tx.Nodes().List(ctx)
	if err != nil {
		return false, err
	}
	return slices.ContainsFunc(nodes, func(n *model.ComposedNode) bool { return n.EligibleForRecovery }), nil
}

// recoverNodes re-links the assets of nodes eligible for recovery and
// returns the nodes that are whole again:
//   - the system is found by its UUID on the service it was allocated from
//   - the remote target by its durable name on its storage service
//   - drives by PCIe connection ids shared with the system, up to the
//     count the node was allocated with
func recoverNodes(ctx context.Context, tx store.Tx) ([]nodeChange, error) {
	nodes, err := tx.Nodes().List(ctx)
	if err != nil {
		return nil, err
	}
	nodes = slices.DeleteFunc(nodes, func(n *model.ComposedNode) bool { return !n.EligibleForRecovery })
	if len(nodes) == 0 {
		return nil, nil
	}

	rs := tx.Resources()
	systems, err := store.ListAs[*model.ComputerSystem](ctx, rs, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	targets, err := store.ListAs[*model.Endpoint](ctx, rs, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	drives, err := store.ListAs[*model.Drive](ctx, rs, store.ResourceFilter{Allocated: store.Bool(false)})
	if err != nil {
		return nil, err
	}

	var recovered []nodeChange
	for _, n := range nodes {
		r := recovery{ctx: ctx, tx: tx, node: n}
		sys := r.relinkSystem(systems)
		r.relinkTarget(targets)
		r.relinkDrives(sys, drives)
		if r.err != nil {
			return nil, fmt.Errorf("node %s: %w", n.ID, r.err)
		}

		whole, err := r.whole(sys)
		if err != nil {
			return nil, err
		}
		if whole {
			n.State = model.NodeAssembled
			n.Status = model.StatusEnabledOK
			n.EligibleForRecovery = false
			r.dirty = true
			NodesRecovered.Inc()
			logger.Ctx(ctx).Info().Str("node", n.ID).Msg("discovery: composed node recovered")
			recovered = append(recovered, nodeChange{node: n, asset: n.ComputerSystem})
		}
		if r.dirty {
			if err := tx.Nodes().Update(ctx, n); err != nil {
				return nil, err
			}
		}
	}
	return recovered, nil
}

type recovery struct {
	ctx   context.Context
	tx    store.Tx
	node  *model.ComposedNode
	dirty bool
	err   error
}

func (r *recovery) attach(a model.Resource) {
	if r.err != nil {
		return
	}
	r.node.AttachAsset(a)
	r.err = r.tx.Resources().Put(r.ctx, a)
	r.dirty = true
}

// relinkSystem returns the node's system once it is linked and healthy,
// or nil.
func (r *recovery) relinkSystem(systems []*model.ComputerSystem) *model.ComputerSystem {
	n := r.node
	var match []*model.ComputerSystem
	for _, s := range systems {
		if s.UUID != "" && s.UUID == n.ComputerSystemUUID &&
			s.ServiceUUID == n.AssociatedComputeServiceUUID &&
			s.Status.IsEnabledAndHealthy() {
			match = append(match, s)
		}
	}
	if len(match) > 1 {
		logger.Ctx(r.ctx).Error().
			Str("node", n.ID).
			Str("system_uuid", n.ComputerSystemUUID).
			Msg("discovery: more than one computer system with the node's system uuid")
		return nil
	}
	if len(match) == 0 {
		return nil
	}
	s := match[0]
	if n.ComputerSystem != s.ODataID || !s.Allocated {
		r.attach(s)
	}
	return s
}

func (r *recovery) relinkTarget(endpoints []*model.Endpoint) {
	n := r.node
	if n.AssociatedRemoteTarget == "" {
		return
	}
	var match []*model.Endpoint
	for _, e := range endpoints {
		if e.Role == model.RoleTarget &&
			e.DurableName() == n.AssociatedRemoteTarget &&
			e.ServiceUUID == n.AssociatedStorageServiceUUID &&
			e.Status.IsEnabledAndHealthy() {
			match = append(match, e)
		}
	}
	if len(match) != 1 {
		if len(match) > 1 {
			logger.Ctx(r.ctx).Error().
				Str("node", n.ID).
				Str("target", n.AssociatedRemoteTarget).
				Msg("discovery: more than one remote target with the node's durable name")
		}
		return
	}
	if !n.HasAsset(match[0].ODataID) || !match[0].Allocated {
		r.attach(match[0])
	}
}

func (r *recovery) relinkDrives(sys *model.ComputerSystem, drives []*model.Drive) {
	n := r.node
	if sys == nil {
		return
	}
	for _, d := range drives {
		if len(n.Drives) >= n.RequestedDrives {
			return
		}
		if d.Allocated || !d.Status.IsEnabledAndHealthy() {
			continue
		}
		local := d.System == sys.ODataID
		connected := len(d.Endpoints) > 0 && sharesConnection(d.PCIeConnectionIDs, sys.PCIeConnectionIDs)
		if local || connected {
			logger.Ctx(r.ctx).Debug().Str("node", n.ID).Str("drive", d.ODataID.String()).Msg("discovery: reattaching drive")
			r.attach(d)
		}
	}
}

// whole reports whether the node's system, remote targets and drives are
// all back.
func (r *recovery) whole(sys *model.ComputerSystem) (bool, error) {
	n := r.node
	if sys == nil || n.ComputerSystem != sys.ODataID {
		return false, nil
	}
	if n.AssociatedRemoteTarget != "" {
		found := false
		for _, id := range n.Endpoints {
			e, err := store.GetAs[*model.Endpoint](r.ctx, r.tx.Resources(), id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return false, err
			}
			if e.Role != model.RoleTarget {
				continue
			}
			if !e.Status.IsEnabledAndHealthy() {
				return false, nil
			}
			found = true
		}
		if !found {
			return false, nil
		}
	}
	return len(n.Drives) == n.RequestedDrives, nil
}

func sharesConnection(a, b []string) bool {
	return slices.ContainsFunc(a, func(id string) bool { return slices.Contains(b, id) })
}
