// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"context"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// inventory is a read of every resource taken inside the allocation
// transaction.
type inventory struct {
	byID     map[model.ODataID]model.Resource
	systems  []*model.ComputerSystem
	chassis  []*model.Chassis
	ports    []*model.EthernetSwitchPort
	volumes  []*model.Volume
	drives   []*model.Drive
	services map[string]*model.ExternalService
}

func loadInventory(ctx context.Context, tx store.Tx) (*inventory, error) {
	all, err := tx.Resources().List(ctx, store.ResourceFilter{})
	if err != nil {
		return nil, err
	}
	services, err := tx.Services().List(ctx)
	if err != nil {
		return nil, err
	}

	inv := &inventory{
		byID:     make(map[model.ODataID]model.Resource, len(all)),
		services: make(map[string]*model.ExternalService, len(services)),
	}
	for _, s := range services {
		inv.services[s.UUID] = s
	}
	for _, r := range all {
		inv.byID[r.Base().ODataID] = r
		switch r := r.(type) {
		case *model.ComputerSystem:
			inv.systems = append(inv.systems, r)
		case *model.Chassis:
			inv.chassis = append(inv.chassis, r)
		case *model.EthernetSwitchPort:
			inv.ports = append(inv.ports, r)
		case *model.Volume:
			inv.volumes = append(inv.volumes, r)
		case *model.Drive:
			inv.drives = append(inv.drives, r)
		}
	}
	return inv, nil
}

func lookup[T model.Resource](inv *inventory, id model.ODataID) (T, bool) {
	r, ok := inv.byID[id].(T)
	return r, ok
}

func collect[T model.Resource](inv *inventory, ids []model.ODataID) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if r, ok := lookup[T](inv, id); ok {
			out = append(out, r)
		}
	}
	return out
}

// available reports whether an asset can be handed to a new node.
func available(m *model.Meta) bool {
	return !m.Allocated && m.Status.IsEnabledAndHealthy()
}

func (inv *inventory) reachable(m *model.Meta) bool {
	svc, ok := inv.services[m.ServiceUUID]
	return ok && svc.Reachable
}

// chassisPath returns id followed by the chassis that contain it, up to the
// outermost one.
func (inv *inventory) chassisPath(id model.ODataID) []model.ODataID {
	var path []model.ODataID
	for id != "" && !slices.Contains(path, id) {
		path = append(path, id)
		c, ok := lookup[*model.Chassis](inv, id)
		if !ok {
			break
		}
		id = c.Parent
	}
	return path
}

// within reports whether chassis id is the chassis c or lies below it.
func (inv *inventory) within(id, c model.ODataID) bool {
	return slices.Contains(inv.chassisPath(id), c)
}

// systemsUnder returns the systems held by chassis c or by any chassis
// below it.
func (inv *inventory) systemsUnder(c model.ODataID) []model.ODataID {
	var out []model.ODataID
	for _, s := range inv.systems {
		if inv.within(s.Chassis, c) || slices.ContainsFunc(inv.chassis, func(h *model.Chassis) bool {
			return slices.Contains(h.ContainedSystems, s.ODataID) && inv.within(h.ODataID, c)
		}) {
			out = append(out, s.ODataID)
		}
	}
	return out
}

// targetEndpoints returns the target endpoints exposing id.
func (inv *inventory) targetEndpoints(ids []model.ODataID, id model.ODataID) []*model.Endpoint {
	var out []*model.Endpoint
	for _, e := range collect[*model.Endpoint](inv, ids) {
		if e.Role == model.RoleTarget && e.Entity(model.RoleTarget) == id {
			out = append(out, e)
		}
	}
	return out
}

// fabricType returns the type of the fabric holding e.
func (inv *inventory) fabricType(e *model.Endpoint) model.Protocol {
	if f, ok := lookup[*model.Fabric](inv, e.Fabric); ok && f.FabricType != "" {
		return f.FabricType
	}
	return e.Protocol
}
