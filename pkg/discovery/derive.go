// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// derive fills in the links that need more than one resource to resolve:
// the children of a system, the system owning a local drive, the endpoints
// and protocol of a volume and the zone of an endpoint.
func derive(resources map[model.ODataID]model.Resource) {
	var (
		systems   = make(map[model.ODataID]*model.ComputerSystem)
		chassis   []*model.Chassis
		drives    []*model.Drive
		endpoints []*model.Endpoint
		zones     []*model.Zone
	)
	for _, id := range sortedIDs(resources) {
		switch r := resources[id].(type) {
		case *model.ComputerSystem:
			systems[id] = r
		case *model.Chassis:
			chassis = append(chassis, r)
		case *model.Drive:
			drives = append(drives, r)
		case *model.Endpoint:
			endpoints = append(endpoints, r)
		case *model.Zone:
			zones = append(zones, r)
		}
	}

	for _, id := range sortedIDs(resources) {
		switch r := resources[id].(type) {
		case *model.Processor:
			if s, ok := systems[r.System]; ok {
				s.Processors = addLink(s.Processors, id)
			}
		case *model.Memory:
			if s, ok := systems[r.System]; ok {
				s.Memory = addLink(s.Memory, id)
			}
		case *model.EthernetInterface:
			if s, ok := systems[r.System]; ok {
				s.EthernetInterfaces = addLink(s.EthernetInterfaces, id)
			}
		}
	}

	for _, c := range chassis {
		owners := slices.Clone(c.ContainedSystems)
		for _, id := range sortedIDs(systems) {
			s := systems[id]
			if s.Chassis == c.ODataID {
				owners = addLink(owners, id)
			} else if s.Chassis == "" && slices.Contains(c.ContainedSystems, id) {
				s.Chassis = c.ODataID
			}
		}
		for _, d := range drives {
			if d.Chassis == "" && slices.Contains(c.Drives, d.ODataID) {
				d.Chassis = c.ODataID
			}
			if d.Chassis != c.ODataID {
				continue
			}
			c.Drives = addLink(c.Drives, d.ODataID)
			// drives of a chassis holding a system are local to it
			for _, owner := range owners {
				if s, ok := systems[owner]; ok && d.System == "" {
					d.System = owner
					s.Drives = addLink(s.Drives, d.ODataID)
				}
			}
		}
	}

	fabricType := make(map[model.ODataID]model.Protocol)
	for _, r := range resources {
		if f, ok := r.(*model.Fabric); ok {
			fabricType[f.ODataID] = f.FabricType
		}
	}
	for _, e := range endpoints {
		if e.Protocol == "" {
			e.Protocol = fabricType[e.Fabric]
		}
		target := e.Entity(model.RoleTarget)
		if target == "" {
			continue
		}
		switch r := resources[target].(type) {
		case *model.Drive:
			r.Endpoints = addLink(r.Endpoints, e.ODataID)
		case *model.Volume:
			r.Endpoints = addLink(r.Endpoints, e.ODataID)
		case *model.Processor:
			r.Endpoints = addLink(r.Endpoints, e.ODataID)
		}
	}

	for _, z := range zones {
		for _, id := range z.Endpoints {
			if e, ok := resources[id].(*model.Endpoint); ok {
				e.Zone = z.ODataID
			}
		}
	}

	for _, r := range resources {
		v, ok := r.(*model.Volume)
		if !ok || v.Protocol != "" {
			continue
		}
		for _, id := range v.Endpoints {
			if e, ok := resources[id].(*model.Endpoint); ok && e.Protocol != "" {
				v.Protocol = e.Protocol
				break
			}
		}
	}
}

func addLink(ids []model.ODataID, id model.ODataID) []model.ODataID {
	if id == "" || slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}
