// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"cmp"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// remoteAsset is a drive or volume chosen for a remote drive request,
// with the target endpoints that expose it.
type remoteAsset struct {
	asset     model.Resource
	capacity  int64
	endpoints []*model.Endpoint
}

// selectRemote picks one distinct asset per remote drive request for the
// given system. It fails when any request cannot be served.
func (inv *inventory) selectRemote(s *model.ComputerSystem, specs []remoteSpec) ([]remoteAsset, bool) {
	used := make(map[model.ODataID]struct{}, len(specs))
	out := make([]remoteAsset, 0, len(specs))
	for _, spec := range specs {
		var (
			ra remoteAsset
			ok bool
		)
		switch {
		case spec.pinned != nil:
			ra, ok = inv.pinnedAsset(s, spec.pinned)
		case spec.protocol == model.ProtocolPCIe || spec.protocol == model.ProtocolNVMe:
			ra, ok = inv.pcieDrive(s, spec, used)
		case spec.protocol != "":
			ra, ok = inv.volume(spec, used)
		default:
			if ra, ok = inv.volume(spec, used); !ok {
				ra, ok = inv.pcieDrive(s, spec, used)
			}
		}
		if !ok {
			return nil, false
		}
		used[ra.asset.Base().ODataID] = struct{}{}
		out = append(out, ra)
	}
	return out, true
}

func (inv *inventory) pinnedAsset(s *model.ComputerSystem, r model.Resource) (remoteAsset, bool) {
	switch a := r.(type) {
	case *model.Volume:
		return remoteAsset{asset: a, capacity: deref(a.CapacityBytes), endpoints: inv.targetEndpoints(a.Endpoints, a.ODataID)}, true
	case *model.Drive:
		if !sharesConnection(s, a) {
			return remoteAsset{}, false
		}
		return remoteAsset{asset: a, capacity: deref(a.CapacityBytes), endpoints: inv.targetEndpoints(a.Endpoints, a.ODataID)}, true
	}
	return remoteAsset{}, false
}

// volume returns the smallest free volume of the requested protocol that
// is exposed through a target endpoint.
func (inv *inventory) volume(spec remoteSpec, used map[model.ODataID]struct{}) (remoteAsset, bool) {
	var found []remoteAsset
	for _, v := range inv.volumes {
		if _, taken := used[v.ODataID]; taken || !inv.free(&v.Meta) {
			continue
		}
		if v.CapacityBytes == nil || *v.CapacityBytes < spec.capacity {
			continue
		}
		if spec.protocol == "" && v.Protocol != model.ProtocolNVMeOverFabrics && v.Protocol != model.ProtocolISCSI {
			continue
		}
		if spec.protocol != "" && v.Protocol != spec.protocol {
			continue
		}
		endpoints := inv.targetEndpoints(v.Endpoints, v.ODataID)
		if len(endpoints) == 0 {
			continue
		}
		found = append(found, remoteAsset{asset: v, capacity: *v.CapacityBytes, endpoints: endpoints})
	}
	return smallest(found)
}

// pcieDrive returns the smallest free drive that a PCIe fabric exposes to
// the system.
func (inv *inventory) pcieDrive(s *model.ComputerSystem, spec remoteSpec, used map[model.ODataID]struct{}) (remoteAsset, bool) {
	var found []remoteAsset
	for _, d := range inv.drives {
		if _, taken := used[d.ODataID]; taken || d.IsLocal() || !inv.free(&d.Meta) {
			continue
		}
		if d.CapacityBytes == nil || *d.CapacityBytes < spec.capacity {
			continue
		}
		if !sharesConnection(s, d) {
			continue
		}
		endpoints := slices.DeleteFunc(inv.targetEndpoints(d.Endpoints, d.ODataID), func(e *model.Endpoint) bool {
			return inv.fabricType(e) != model.ProtocolPCIe
		})
		if len(endpoints) == 0 {
			continue
		}
		found = append(found, remoteAsset{asset: d, capacity: *d.CapacityBytes, endpoints: endpoints})
	}
	return smallest(found)
}

func (inv *inventory) free(m *model.Meta) bool {
	return available(m) && inv.reachable(m)
}

// sharesConnection reports whether a PCIe cable links the drive's chassis
// to the system.
func sharesConnection(s *model.ComputerSystem, d *model.Drive) bool {
	for _, id := range d.PCIeConnectionIDs {
		if slices.Contains(s.PCIeConnectionIDs, id) {
			return true
		}
	}
	return false
}

func smallest(found []remoteAsset) (remoteAsset, bool) {
	if len(found) == 0 {
		return remoteAsset{}, false
	}
	return slices.MinFunc(found, func(a, b remoteAsset) int {
		if c := cmp.Compare(a.capacity, b.capacity); c != 0 {
			return c
		}
		return cmp.Compare(a.asset.Base().ODataID, b.asset.Base().ODataID)
	}), true
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
