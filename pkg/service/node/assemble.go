// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

func (s *serviceImpl) Assemble(ctx context.Context, id string) (err error) {
	done := s.track(ctx, id, "Assemble", "")
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	return s.serializeZoning(ctx, n, func(ctx context.Context) error {
		return s.assemble(ctx, id)
	})
}

func (s *serviceImpl) assemble(ctx context.Context, id string) error {
	var (
		n   *model.ComposedNode
		sys *model.ComputerSystem
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if n, err = s.node(ctx, tx, id); err != nil {
			return err
		}
		retry := n.State == model.NodeFailed && !n.EligibleForRecovery
		if n.State != model.NodeAllocated && !retry {
			return service.NewStateMismatchError("Composed node %s is in %s state and cannot be assembled", n.ID, n.State)
		}
		if sys, err = s.system(ctx, tx, n); err != nil {
			return err
		}
		if err := s.checkAssets(ctx, tx, n); err != nil {
			return err
		}
		n.State = model.NodeAssembling
		n.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, n)
	})
	if err != nil {
		return err
	}

	zones, err := s.createZones(ctx, n, sys)
	if err == nil && !n.Boot.IsZero() {
		err = s.applyBoot(ctx, sys, n.Boot)
	}
	if err != nil {
		for _, z := range zones {
			if derr := s.deleteZone(ctx, z); derr != nil {
				logger.Ctx(ctx).Warn().Err(derr).Str("zone", z.SourceURI).Msg("node: failed to remove zone of failed assembly")
			}
		}
		s.markFailed(ctx, n.ID)
		logger.Ctx(ctx).Error().Err(err).Str("node", n.ID).Msg("node: assembly failed")
		s.emitter.EmitNode(context.WithoutCancel(ctx), events.NodeAssemblyFailed, n, "", err.Error())
		return service.NewEntityOperationError("Composed node assembly failed", err)
	}

	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		if n, err = s.node(ctx, tx, id); err != nil {
			return err
		}
		for _, z := range zones {
			if err := putZone(ctx, tx, z); err != nil {
				return err
			}
			n.AttachAsset(z)
			if err := tx.Resources().Put(ctx, z); err != nil {
				return err
			}
		}
		n.State = model.NodeAssembled
		n.Status = model.StatusEnabledOK
		n.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, n)
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("node", n.ID).Int("zones", len(zones)).Msg("node: assembled")
	s.emitter.EmitNode(ctx, events.NodeAssembled, n, "", "")
	return nil
}

// checkAssets fails with AssetNotAvailable when an asset is gone, Absent or
// served by an unreachable service.
func (s *serviceImpl) checkAssets(ctx context.Context, tx store.Tx, n *model.ComposedNode) error {
	reachable := make(map[string]bool)
	for _, id := range n.Assets() {
		r, err := tx.Resources().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return s.unavailable("Asset %s is not available", id)
		}
		if err != nil {
			return err
		}
		m := r.Base()
		if m.Status.State == model.StateAbsent {
			return s.unavailable("Asset %s is not available", id)
		}
		ok, seen := reachable[m.ServiceUUID]
		if !seen {
			svc, err := tx.Services().Get(ctx, m.ServiceUUID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			ok = err == nil && svc.Reachable
			reachable[m.ServiceUUID] = ok
		}
		if !ok {
			return s.unavailable("Service of asset %s is not reachable", id)
		}
	}
	return nil
}

// createZones creates one zone per fabric holding the node's target
// endpoints, together with the system's initiator in that fabric. The
// zones created before a failure are returned with the error.
func (s *serviceImpl) createZones(ctx context.Context, n *model.ComposedNode, sys *model.ComputerSystem) ([]*model.Zone, error) {
	targets, err := s.targets(ctx, n)
	if err != nil {
		return nil, err
	}
	byFabric := make(map[model.ODataID][]*model.Endpoint)
	for _, e := range targets {
		byFabric[e.Fabric] = append(byFabric[e.Fabric], e)
	}
	fabrics := make([]model.ODataID, 0, len(byFabric))
	for f := range byFabric {
		fabrics = append(fabrics, f)
	}
	slices.Sort(fabrics)

	var created []*model.Zone
	for _, fid := range fabrics {
		initiators, err := s.initiators(ctx, fid, sys)
		if err != nil {
			return created, err
		}
		z, err := s.createZone(ctx, fid, append(initiators, byFabric[fid]...))
		if err != nil {
			return created, err
		}
		created = append(created, z)
	}
	return created, nil
}

// targets returns the target endpoints of the node's remote assets.
func (s *serviceImpl) targets(ctx context.Context, n *model.ComposedNode) ([]*model.Endpoint, error) {
	seen := make(map[model.ODataID]bool)
	var out []*model.Endpoint
	add := func(ids ...model.ODataID) error {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			e, err := store.GetAs[*model.Endpoint](ctx, s.store.Resources(), id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if e.Role == model.RoleTarget && e.Fabric != "" {
				out = append(out, e)
			}
		}
		return nil
	}

	for _, id := range slices.Concat(n.Drives, n.Volumes, n.Processors) {
		r, err := s.store.Resources().Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var eps []model.ODataID
		switch a := r.(type) {
		case *model.Drive:
			if !a.IsLocal() {
				eps = a.Endpoints
			}
		case *model.Volume:
			eps = a.Endpoints
		case *model.Processor:
			if a.IsFPGA() && a.System == "" {
				eps = a.Endpoints
			}
		}
		// an asset owning one of its endpoints is zoned through it alone
		if slices.ContainsFunc(eps, func(id model.ODataID) bool { return slices.Contains(n.Endpoints, id) }) {
			continue
		}
		if err := add(eps...); err != nil {
			return nil, err
		}
	}
	if err := add(n.Endpoints...); err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *model.Endpoint) int { return cmp.Compare(a.ODataID, b.ODataID) })
	return out, nil
}

// initiators returns the initiator endpoints of sys in the fabric.
func (s *serviceImpl) initiators(ctx context.Context, fabric model.ODataID, sys *model.ComputerSystem) ([]*model.Endpoint, error) {
	all, err := store.ListAs[*model.Endpoint](ctx, s.store.Resources(), store.ResourceFilter{Prefix: fabric.Join("Endpoints") + "/"})
	if err != nil {
		return nil, err
	}
	var out []*model.Endpoint
	for _, e := range all {
		if e.Fabric == fabric && e.Role == model.RoleInitiator && e.Entity(model.RoleInitiator) == sys.ODataID {
			out = append(out, e)
		}
	}
	return out, nil
}

// createZone posts a zone with the endpoints to the external fabric and
// returns its PodM representation.
func (s *serviceImpl) createZone(ctx context.Context, fabricID model.ODataID, endpoints []*model.Endpoint) (*model.Zone, error) {
	f, err := store.GetAs[*model.Fabric](ctx, s.store.Resources(), fabricID)
	if err != nil {
		return nil, fmt.Errorf("fabric %s: %w", fabricID, err)
	}
	c, err := s.clients.Get(ctx, f.ServiceUUID)
	if err != nil {
		return nil, err
	}

	req := redfish.NewZoneRequest(sources(endpoints))
	loc, err := c.Post(ctx, f.SourceURI+"/Zones", req)
	if err != nil {
		return nil, fmt.Errorf("create zone in %s: %w", fabricID, err)
	}
	if loc == "" {
		return nil, fmt.Errorf("create zone in %s: no Location returned", fabricID)
	}

	z := redfish.NewMapper(f.ServiceUUID).Zone(&redfish.Zone{
		Resource: redfish.Resource{
			ODataID: loc,
			ID:      path.Base(loc),
			Name:    "Zone",
			Status:  model.StatusEnabledOK,
		},
		Links: req.Links,
	})
	logger.Ctx(ctx).Debug().Str("zone", z.ODataID.String()).Int("endpoints", len(endpoints)).Msg("node: zone created")
	return z, nil
}

// putZone points the zone's endpoints at it.
func putZone(ctx context.Context, tx store.Tx, z *model.Zone) error {
	for _, id := range z.Endpoints {
		e, err := store.GetAs[*model.Endpoint](ctx, tx.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		e.Zone = z.ODataID
		if err := tx.Resources().Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func sources(endpoints []*model.Endpoint) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, e.SourceURI)
	}
	return out
}

// applyBoot sends the boot override to the system.
func (s *serviceImpl) applyBoot(ctx context.Context, sys *model.ComputerSystem, boot model.Boot) error {
	boot.AllowableTargets = nil
	return s.patch(ctx, sys.ServiceUUID, sys.SourceURI, redfish.BootPatch{Boot: boot})
}

// deleteZone removes a zone from its external fabric. A zone that is
// already gone counts as removed.
func (s *serviceImpl) deleteZone(ctx context.Context, z *model.Zone) error {
	c, err := s.clients.Get(ctx, z.ServiceUUID)
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, z.SourceURI); err != nil && !client.IsNotFound(err) {
		return fmt.Errorf("delete zone %s: %w", z.ODataID, err)
	}
	return nil
}

func (s *serviceImpl) secureErase(ctx context.Context, d *model.Drive) error {
	c, err := s.clients.Get(ctx, d.ServiceUUID)
	if err != nil {
		return err
	}
	if err := c.PostAction(ctx, d.SourceURI+"/Actions/Drive.SecureErase", nil); err != nil {
		return fmt.Errorf("secure erase %s: %w", d.ODataID, err)
	}
	logger.Ctx(ctx).Info().Str("drive", d.ODataID.String()).Msg("node: drive erased")
	return nil
}

func (s *serviceImpl) patch(ctx context.Context, serviceUUID, uri string, body any) error {
	c, err := s.clients.Get(ctx, serviceUUID)
	if err != nil {
		return err
	}
	return c.Patch(ctx, uri, body)
}
