// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// attachProtocols are the values offered for the Protocol parameter.
var attachProtocols = []model.Protocol{
	model.ProtocolPCIe,
	model.ProtocolNVMeOverFabrics,
	model.ProtocolFPGAoF,
}

// attachable is a remote asset together with the target endpoint through
// which a node reaches it.
type attachable struct {
	asset    model.Resource
	target   *model.Endpoint
	protocol model.Protocol
}

func (s *serviceImpl) AttachResource(ctx context.Context, id string, req *ResourceRequest) (err error) {
	done := s.track(ctx, id, "AttachResource", req.Resource.ODataID)
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	return s.serializeZoning(ctx, n, func(ctx context.Context) error {
		return s.attach(ctx, id, req)
	})
}

func (s *serviceImpl) attach(ctx context.Context, id string, req *ResourceRequest) error {
	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := requireState(n, model.NodeAssembled); err != nil {
		return err
	}
	sys, err := s.system(ctx, s.store, n)
	if err != nil {
		return err
	}

	rid := req.Resource.ODataID
	var v service.Violations
	if _, err := s.store.Resources().Get(ctx, rid); errors.Is(err, store.ErrNotFound) {
		v.Add("Specified resource (%s) does not exist.", rid)
		return v.Err("Invalid attach request")
	} else if err != nil {
		return err
	}
	candidates, err := s.attachables(ctx, sys)
	if err != nil {
		return err
	}
	idx := slices.IndexFunc(candidates, func(a attachable) bool {
		return a.asset.Base().ODataID == rid || a.target.ODataID == rid
	})
	if idx < 0 {
		v.Add("Resource: %s cannot be attached to composed node %s", rid, n.ID)
		return v.Err("Invalid attach request")
	}
	a := candidates[idx]
	if req.Protocol != "" && req.Protocol != a.protocol {
		v.Add("Protocol: %s does not match %s of resource %s", req.Protocol, a.protocol, rid)
		return v.Err("Invalid attach request")
	}

	zone, created, err := s.zoneWith(ctx, n, sys, a.target)
	if err != nil {
		return service.NewEntityOperationError("Resource could not be attached", err)
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := s.node(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, aid := range []model.ODataID{a.asset.Base().ODataID, a.target.ODataID} {
			r, err := tx.Resources().Get(ctx, aid)
			if err != nil {
				return err
			}
			if r.Base().Allocated && !n.HasAsset(aid) {
				return service.NewStateMismatchError("Resource %s is no longer available", aid)
			}
			n.AttachAsset(r)
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		if created {
			n.AttachAsset(zone)
		}
		if err := putZone(ctx, tx, zone); err != nil {
			return err
		}
		if err := tx.Resources().Put(ctx, zone); err != nil {
			return err
		}
		n.RequestedDrives = len(n.Drives)
		n.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, n)
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("node", n.ID).Str("resource", rid.String()).Msg("node: resource attached")
	s.emitter.EmitNode(ctx, events.ResourceAttached, n, a.asset.Base().ODataID, "")
	return nil
}

// zoneWith adds target to the node's zone in the target's fabric, creating
// the zone when the node has none there yet.
func (s *serviceImpl) zoneWith(ctx context.Context, n *model.ComposedNode, sys *model.ComputerSystem, target *model.Endpoint) (*model.Zone, bool, error) {
	z, err := s.nodeZone(ctx, n, target.Fabric)
	if err != nil {
		return nil, false, err
	}
	if z == nil {
		initiators, err := s.initiators(ctx, target.Fabric, sys)
		if err != nil {
			return nil, false, err
		}
		z, err = s.createZone(ctx, target.Fabric, append(initiators, target))
		return z, true, err
	}

	members, err := s.endpoints(ctx, append(slices.Clone(z.Endpoints), target.ODataID))
	if err != nil {
		return nil, false, err
	}
	if err := s.patch(ctx, z.ServiceUUID, z.SourceURI, redfish.NewZoneRequest(sources(members))); err != nil {
		return nil, false, fmt.Errorf("update zone %s: %w", z.ODataID, err)
	}
	z.Endpoints = append(z.Endpoints, target.ODataID)
	return z, false, nil
}

// nodeZone returns the node's zone in the fabric, nil when there is none.
func (s *serviceImpl) nodeZone(ctx context.Context, n *model.ComposedNode, fabric model.ODataID) (*model.Zone, error) {
	for _, id := range n.Zones {
		z, err := store.GetAs[*model.Zone](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if z.Fabric == fabric {
			return z, nil
		}
	}
	return nil, nil
}

func (s *serviceImpl) endpoints(ctx context.Context, ids []model.ODataID) ([]*model.Endpoint, error) {
	out := make([]*model.Endpoint, 0, len(ids))
	for _, id := range ids {
		e, err := store.GetAs[*model.Endpoint](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// attachables lists the free remote assets sys can reach: PCIe drives
// cabled to it, volumes of a storage service, and FPGAs in a fabric where
// the system has an initiator or behind an FPGA over fabrics target.
func (s *serviceImpl) attachables(ctx context.Context, sys *model.ComputerSystem) ([]attachable, error) {
	rs := s.store.Resources()
	fabrics, err := store.ListAs[*model.Fabric](ctx, rs, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	fabricType := make(map[model.ODataID]model.Protocol, len(fabrics))
	for _, f := range fabrics {
		fabricType[f.ODataID] = f.FabricType
	}
	endpoints, err := store.ListAs[*model.Endpoint](ctx, rs, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	initiatorIn := make(map[model.ODataID]bool)
	for _, e := range endpoints {
		if e.Role == model.RoleInitiator && e.Entity(model.RoleInitiator) == sys.ODataID {
			initiatorIn[e.Fabric] = true
		}
	}

	var out []attachable
	for _, e := range endpoints {
		ft := fabricType[e.Fabric]
		if !e.Attachable() || !free(&e.Meta) || ft == "" || ft == model.ProtocolISCSI {
			continue
		}
		r, err := rs.Get(ctx, e.Entity(model.RoleTarget))
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !free(r.Base()) {
			continue
		}

		ok := false
		switch a := r.(type) {
		case *model.Drive:
			ok = !a.IsLocal() && ft == model.ProtocolPCIe && sharesConnection(sys.PCIeConnectionIDs, a.PCIeConnectionIDs)
		case *model.Volume:
			ok = a.StorageService != "" && a.Protocol != model.ProtocolISCSI && ft == model.ProtocolNVMeOverFabrics
		case *model.Processor:
			ok = a.IsFPGA() && a.System == "" && (ft != model.ProtocolPCIe || initiatorIn[e.Fabric])
		}
		if ok {
			out = append(out, attachable{asset: r, target: e, protocol: ft})
		}
	}
	return out, nil
}

func free(m *model.Meta) bool {
	return !m.Allocated && m.Status.IsEnabledAndHealthy()
}

func sharesConnection(a, b []string) bool {
	return slices.ContainsFunc(a, func(id string) bool { return slices.Contains(b, id) })
}

func (s *serviceImpl) DetachResource(ctx context.Context, id string, req *ResourceRequest) (err error) {
	done := s.track(ctx, id, "DetachResource", req.Resource.ODataID)
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	return s.serializeZoning(ctx, n, func(ctx context.Context) error {
		return s.detach(ctx, id, req)
	})
}

func (s *serviceImpl) detach(ctx context.Context, id string, req *ResourceRequest) error {
	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := requireState(n, model.NodeAssembled); err != nil {
		return err
	}

	rid := req.Resource.ODataID
	asset, target, err := s.detachable(ctx, n, rid)
	if err != nil {
		return err
	}

	var zone *model.Zone
	dropped := false
	if target != nil && target.Zone != "" && slices.Contains(n.Zones, target.Zone) {
		zone, err = store.GetAs[*model.Zone](ctx, s.store.Resources(), target.Zone)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	if zone != nil {
		rest, err := s.endpoints(ctx, slices.DeleteFunc(slices.Clone(zone.Endpoints), func(id model.ODataID) bool {
			return id == target.ODataID
		}))
		if err != nil {
			return err
		}
		if onlyInitiators(rest) {
			err = s.deleteZone(ctx, zone)
			dropped = true
		} else {
			err = s.patch(ctx, zone.ServiceUUID, zone.SourceURI, redfish.NewZoneRequest(sources(rest)))
		}
		if err != nil {
			return service.NewEntityOperationError("Resource could not be detached", err)
		}
	}
	if d, ok := asset.(*model.Drive); ok && d.EraseOnDetach {
		if err := s.secureErase(ctx, d); err != nil {
			return service.NewEntityOperationError("Resource could not be detached", err)
		}
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := s.node(ctx, tx, id)
		if err != nil {
			return err
		}
		ids := []model.ODataID{asset.Base().ODataID}
		if target != nil && target.ODataID != ids[0] {
			ids = append(ids, target.ODataID)
		}
		for _, aid := range ids {
			r, err := tx.Resources().Get(ctx, aid)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n.DetachAsset(r)
			if e, ok := r.(*model.Endpoint); ok && zone != nil && e.Zone == zone.ODataID {
				e.Zone = ""
			}
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		if zone != nil {
			z, err := store.GetAs[*model.Zone](ctx, tx.Resources(), zone.ODataID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			switch {
			case z == nil:
			case dropped:
				n.DetachAsset(z)
				if err := dropZone(ctx, tx, z); err != nil {
					return err
				}
			default:
				z.Endpoints = slices.DeleteFunc(z.Endpoints, func(id model.ODataID) bool { return id == target.ODataID })
				if err := tx.Resources().Put(ctx, z); err != nil {
					return err
				}
			}
		}
		n.RequestedDrives = len(n.Drives)
		n.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, n)
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("node", n.ID).Str("resource", rid.String()).Msg("node: resource detached")
	s.emitter.EmitNode(ctx, events.ResourceDetached, n, asset.Base().ODataID, "")
	return nil
}

// detachable resolves rid, which may name the remote asset or its target
// endpoint, into both.
func (s *serviceImpl) detachable(ctx context.Context, n *model.ComposedNode, rid model.ODataID) (model.Resource, *model.Endpoint, error) {
	var v service.Violations
	if !n.HasAsset(rid) {
		v.Add("Resource: %s is not attached to composed node %s", rid, n.ID)
		return nil, nil, v.Err("Invalid detach request")
	}
	r, err := s.store.Resources().Get(ctx, rid)
	if err != nil {
		return nil, nil, err
	}

	owned := func(ids []model.ODataID) *model.Endpoint {
		for _, id := range ids {
			if !slices.Contains(n.Endpoints, id) {
				continue
			}
			if e, err := store.GetAs[*model.Endpoint](ctx, s.store.Resources(), id); err == nil && e.Role == model.RoleTarget {
				return e
			}
		}
		return nil
	}

	switch a := r.(type) {
	case *model.Endpoint:
		entity := a.Entity(model.RoleTarget)
		if !n.HasAsset(entity) {
			return a, a, nil
		}
		asset, err := s.store.Resources().Get(ctx, entity)
		if err != nil {
			return nil, nil, err
		}
		return asset, a, nil
	case *model.Drive:
		if !a.IsLocal() {
			return a, owned(a.Endpoints), nil
		}
	case *model.Volume:
		return a, owned(a.Endpoints), nil
	case *model.Processor:
		if a.IsFPGA() && a.System == "" {
			return a, owned(a.Endpoints), nil
		}
	}
	v.Add("Resource: %s cannot be detached from composed node %s", rid, n.ID)
	return nil, nil, v.Err("Invalid detach request")
}

func onlyInitiators(endpoints []*model.Endpoint) bool {
	for _, e := range endpoints {
		if e.Role != model.RoleInitiator {
			return false
		}
	}
	return true
}

func (s *serviceImpl) AttachResourceActionInfo(ctx context.Context, id string) (*ActionInfo, error) {
	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return nil, service.Wrap(err)
	}
	var allowable []model.ODataID
	if n.ComputerSystem != "" {
		sys, err := store.GetAs[*model.ComputerSystem](ctx, s.store.Resources(), n.ComputerSystem)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, service.Wrap(err)
		}
		if sys != nil {
			candidates, err := s.attachables(ctx, sys)
			if err != nil {
				return nil, service.Wrap(err)
			}
			for _, a := range candidates {
				allowable = append(allowable, a.asset.Base().ODataID, a.target.ODataID)
			}
		}
	}
	slices.Sort(allowable)
	return actionInfo(n, "AttachResource", slices.Compact(allowable)), nil
}

func (s *serviceImpl) DetachResourceActionInfo(ctx context.Context, id string) (*ActionInfo, error) {
	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return nil, service.Wrap(err)
	}
	var allowable []model.ODataID
	for _, rid := range slices.Concat(n.Drives, n.Volumes, n.Endpoints) {
		if d, err := store.GetAs[*model.Drive](ctx, s.store.Resources(), rid); err == nil && d.IsLocal() {
			continue
		}
		allowable = append(allowable, rid)
	}
	slices.Sort(allowable)
	return actionInfo(n, "DetachResource", allowable), nil
}

func actionInfo(n *model.ComposedNode, action string, allowable []model.ODataID) *ActionInfo {
	id := action + "ActionInfo"
	return &ActionInfo{
		ODataID:   n.ODataID.Join(id),
		ODataType: actionInfoType,
		ID:        id,
		Name:      action + " ActionInfo",
		Parameters: []Parameter{
			{
				Name:            "Resource",
				Required:        true,
				DataType:        "Object",
				ObjectDataType:  "#Resource.Resource",
				AllowableValues: model.Links(allowable),
			},
			{
				Name:            "Protocol",
				DataType:        "String",
				AllowableValues: attachProtocols,
			},
		},
	}
}
