// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"fmt"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

const bytesPerGiB = 1 << 30

var remoteProtocols = []model.Protocol{
	model.ProtocolNVMeOverFabrics,
	model.ProtocolISCSI,
	model.ProtocolPCIe,
	model.ProtocolNVMe,
}

// constraints narrows the candidate systems and remote assets after a
// request passed validation.
type constraints struct {
	// system is set when the request names resources of one system.
	system         *model.ComputerSystem
	// chassisSystems holds the systems under every requested chassis.
	chassisSystems []model.ODataID
	remote         []remoteSpec
}

type remoteSpec struct {
	protocol model.Protocol
	// capacity in bytes, zero when the drive is pinned.
	capacity int64
	pinned   model.Resource
}

type validator struct {
	inv     *inventory
	v       service.Violations
	seen    map[model.ODataID]struct{}
	systems []model.ODataID
	chassis []model.ODataID
}

// validate checks the request against the inventory. Problems are
// returned together as one RequestValidation error.
func validate(inv *inventory, req *RequestedNode) (*constraints, error) {
	val := &validator{inv: inv, seen: make(map[model.ODataID]struct{})}
	cons := &constraints{}

	if req.Name == "" {
		val.v.Add("Name: may not be empty")
	}
	val.positive("TotalSystemCoreCount", req.TotalSystemCoreCount)
	val.positive("TotalSystemMemoryMiB", req.TotalSystemMemoryMiB)

	for i, p := range req.Processors {
		val.positive(field("Processors", i, "TotalCores"), p.TotalCores)
		val.positive(field("Processors", i, "AchievableSpeedMHz"), p.AchievableSpeedMHz)
		if r, ok := resolve[*model.Processor](val, p.Resource); ok {
			val.onSystem(r.ODataID, r.System)
		}
		val.chassisOf(p.Chassis)
	}
	for i, m := range req.Memory {
		val.positive(field("Memory", i, "CapacityMiB"), m.CapacityMiB)
		val.positive(field("Memory", i, "SpeedMHz"), m.SpeedMHz)
		val.positive(field("Memory", i, "DataWidthBits"), m.DataWidthBits)
		if r, ok := resolve[*model.Memory](val, m.Resource); ok {
			val.onSystem(r.ODataID, r.System)
		}
		val.chassisOf(m.Chassis)
	}
	for i, e := range req.EthernetInterfaces {
		val.positive(field("EthernetInterfaces", i, "SpeedMbps"), e.SpeedMbps)
		if e.PrimaryVLAN != nil && !validVLAN(*e.PrimaryVLAN) {
			val.v.Add("%s: %d is not a valid VLAN id", field("EthernetInterfaces", i, "PrimaryVLAN"), *e.PrimaryVLAN)
		}
		for _, vlan := range e.VLANs {
			if !validVLAN(vlan.VLANId) {
				val.v.Add("%s: %d is not a valid VLAN id", field("EthernetInterfaces", i, "VLANs"), vlan.VLANId)
			}
		}
		if r, ok := resolve[*model.EthernetInterface](val, e.Resource); ok {
			val.onSystem(r.ODataID, r.System)
		}
		val.chassisOf(e.Chassis)
	}
	for i, d := range req.LocalDrives {
		val.positiveGiB(field("LocalDrives", i, "CapacityGiB"), d.CapacityGiB)
		val.positive(field("LocalDrives", i, "MinRPM"), d.MinRPM)
		if r, ok := resolve[*model.Drive](val, d.Resource); ok {
			val.onSystem(r.ODataID, r.System)
		}
		val.chassisOf(d.Chassis)
	}
	for i, d := range req.RemoteDrives {
		cons.remote = append(cons.remote, val.remoteDrive(i, d))
	}

	if len(val.systems) > 1 {
		val.v.Add("Allocation of assets from multiple computer systems is not supported.")
	} else if len(val.systems) == 1 {
		cons.system, _ = lookup[*model.ComputerSystem](inv, val.systems[0])
	}
	if len(val.chassis) > 0 {
		under := inv.systemsUnder(val.chassis[0])
		for _, c := range val.chassis[1:] {
			other := inv.systemsUnder(c)
			under = slices.DeleteFunc(under, func(s model.ODataID) bool { return !slices.Contains(other, s) })
		}
		switch {
		case len(under) > 0:
			cons.chassisSystems = under
		case len(val.chassis) > 1:
			val.v.Add("Allocation of assets on multiple chassis is not supported.")
		default:
			val.v.Add("Allocation of assets on chassis without computer system is not supported.")
		}
	}

	if err := val.v.Err("Allocation request is not valid"); err != nil {
		return nil, err
	}
	return cons, nil
}

func (val *validator) positive(name string, n *int) {
	if n != nil && *n <= 0 {
		val.v.Add("%s: must be greater than 0", name)
	}
}

func (val *validator) positiveGiB(name string, n *float64) {
	if n != nil && *n <= 0 {
		val.v.Add("%s: must be greater than 0", name)
	}
}

// resolve looks up a requested resource of type T. A link to nothing, to
// another kind or to a resource already requested is a violation.
func resolve[T model.Resource](val *validator, l *model.Link) (T, bool) {
	var zero T
	if l == nil {
		return zero, false
	}
	r, ok := lookup[T](val.inv, l.ODataID)
	if !ok {
		val.v.Add("Specified resource (%s) does not exist.", l.ODataID)
		return zero, false
	}
	if _, dup := val.seen[l.ODataID]; dup {
		val.v.Add("Specified resource (%s) is requested more than once.", l.ODataID)
		return zero, false
	}
	val.seen[l.ODataID] = struct{}{}
	return r, true
}

// onSystem records the system owning a requested resource.
func (val *validator) onSystem(id, system model.ODataID) {
	if system == "" {
		val.v.Add("Specified resource (%s) is not valid.", id)
		return
	}
	if !slices.Contains(val.systems, system) {
		val.systems = append(val.systems, system)
	}
}

func (val *validator) chassisOf(l *model.Link) {
	if l == nil {
		return
	}
	if _, ok := lookup[*model.Chassis](val.inv, l.ODataID); !ok {
		val.v.Add("Specified resource (%s) does not exist.", l.ODataID)
		return
	}
	if !slices.Contains(val.chassis, l.ODataID) {
		val.chassis = append(val.chassis, l.ODataID)
	}
}

func (val *validator) remoteDrive(i int, d RequestedRemoteDrive) remoteSpec {
	spec := remoteSpec{protocol: d.Protocol}
	if d.Protocol != "" && !slices.Contains(remoteProtocols, d.Protocol) {
		val.v.Add("%s: %s is not supported", field("RemoteDrives", i, "Protocol"), d.Protocol)
	}
	val.positiveGiB(field("RemoteDrives", i, "CapacityGiB"), d.CapacityGiB)
	if d.CapacityGiB != nil {
		spec.capacity = int64(*d.CapacityGiB * bytesPerGiB)
	}

	var master *model.Volume
	if d.Master != nil {
		if d.Master.Type != "" && d.Master.Type != "Snapshot" && d.Master.Type != "Clone" {
			val.v.Add("%s: %s is not supported", field("RemoteDrives", i, "Master.Type"), d.Master.Type)
		}
		id := linkID(d.Master.Resource)
		v, ok := lookup[*model.Volume](val.inv, id)
		if !ok {
			val.v.Add("Specified resource (%s) does not exist.", id)
		}
		master = v
	}

	if d.Resource != nil {
		if r, ok := val.pinnedRemote(d.Resource); ok {
			spec.pinned = r
		}
		return spec
	}
	if d.CapacityGiB == nil {
		switch {
		case master != nil && master.CapacityBytes != nil:
			spec.capacity = *master.CapacityBytes
		case master != nil:
			val.v.Add("%s: may not be null when Master (%s) has no capacity", field("RemoteDrives", i, "CapacityGiB"), master.ODataID)
		case d.Master == nil:
			val.v.Add("%s: may not be null when no Master is given", field("RemoteDrives", i, "CapacityGiB"))
		}
	}
	return spec
}

// pinnedRemote resolves a remote drive named by the request. It must be a
// free volume or a free drive that is not local to a system.
func (val *validator) pinnedRemote(l *model.Link) (model.Resource, bool) {
	r, ok := val.inv.byID[l.ODataID]
	if !ok {
		val.v.Add("Specified resource (%s) does not exist.", l.ODataID)
		return nil, false
	}
	switch a := r.(type) {
	case *model.Volume:
	case *model.Drive:
		if a.IsLocal() {
			val.v.Add("Specified resource (%s) is not valid.", l.ODataID)
			return nil, false
		}
	default:
		val.v.Add("Specified resource (%s) does not exist.", l.ODataID)
		return nil, false
	}
	if _, dup := val.seen[l.ODataID]; dup {
		val.v.Add("Specified resource (%s) is requested more than once.", l.ODataID)
		return nil, false
	}
	val.seen[l.ODataID] = struct{}{}
	if !available(r.Base()) {
		val.v.Add("Specified resource (%s) is not available.", l.ODataID)
		return nil, false
	}
	return r, true
}

func validVLAN(id int) bool {
	return id >= 1 && id <= 4094
}

func (s remoteSpec) String() string {
	if s.pinned != nil {
		return s.pinned.Base().ODataID.String()
	}
	return fmt.Sprintf("%s drive of %d bytes", s.protocol, s.capacity)
}
