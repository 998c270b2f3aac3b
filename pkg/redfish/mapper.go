// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// Mapper converts wire resources of one external service into PodM
// resources. Links between resources are translated with LocalURI; links
// that need other resources to resolve (a system's processors, an
// endpoint's zone) are filled in by discovery.
type Mapper struct {
	ServiceUUID string
}

func NewMapper(serviceUUID string) Mapper {
	return Mapper{ServiceUUID: serviceUUID}
}

func (m Mapper) local(source string) model.ODataID {
	return LocalURI(m.ServiceUUID, source)
}

func (m Mapper) meta(r Resource) model.Meta {
	id := m.local(r.ODataID)
	return model.Meta{
		ODataID:     id,
		ID:          id.Last(),
		Name:        r.Name,
		Description: r.Description,
		Status:      r.Status,
		ServiceUUID: m.ServiceUUID,
		SourceURI:   r.ODataID,
	}
}

// owner returns the local URI two levels above r, e.g. the system of a
// processor or the fabric of an endpoint. It works on the source path so
// flattened collections still resolve to their parent.
func (m Mapper) owner(r Resource) model.ODataID {
	return m.local(model.ODataID(r.ODataID).Parent().Parent().String())
}

func (m Mapper) System(w *ComputerSystem) *model.ComputerSystem {
	s := &model.ComputerSystem{
		Meta:                 m.meta(w.Resource),
		UUID:                 w.UUID,
		SystemType:           w.SystemType,
		PowerState:           w.PowerState,
		Boot:                 w.Boot,
		PCIeConnectionIDs:    w.Oem.IntelRackScale.PCIeConnectionID,
		TrustedModules:       w.TrustedModules,
		TxtEnabled:           w.Oem.IntelRackScale.TxtEnabled,
		TotalSystemMemoryGiB: w.MemorySummary.TotalSystemMemoryGiB,
		ProcessorModel:       w.ProcessorSummary.Model,
	}
	if s.SystemType == "" {
		s.SystemType = model.SystemTypePhysical
	}
	if w.ProcessorSummary.Count != nil {
		s.ProcessorCount = *w.ProcessorSummary.Count
	}
	if len(w.Links.Chassis) > 0 {
		s.Chassis = m.local(w.Links.Chassis[0].ODataID.String())
	}
	if w.Actions.Reset != nil {
		s.AllowableResetTypes = w.Actions.Reset.AllowableResetTypes
	}
	return s
}

func (m Mapper) Processor(w *Processor) *model.Processor {
	p := &model.Processor{
		Meta:           m.meta(w.Resource),
		Socket:         w.Socket,
		Model:          w.Model,
		Manufacturer:   w.Manufacturer,
		ProcessorType:  w.ProcessorType,
		InstructionSet: w.InstructionSet,
		TotalCores:     w.TotalCores,
		TotalThreads:   w.TotalThreads,
		MaxSpeedMHz:    w.MaxSpeedMHz,
		Capabilities:   w.Oem.IntelRackScale.Capabilities,
		Endpoints:      LocalURIs(m.ServiceUUID, w.Links.Endpoints),
	}
	if owner := m.owner(w.Resource); owner.Parent().Last() == "Systems" {
		p.System = owner
	}
	return p
}

func (m Mapper) Memory(w *Memory) *model.Memory {
	return &model.Memory{
		Meta:              m.meta(w.Resource),
		System:            m.owner(w.Resource),
		MemoryDeviceType:  w.MemoryDeviceType,
		Manufacturer:      w.Manufacturer,
		OperatingSpeedMHz: w.OperatingSpeedMHz,
		DataWidthBits:     w.DataWidthBits,
		CapacityMiB:       w.CapacityMiB,
	}
}

// EthernetInterface maps an interface with its VLANs. The primary VLAN is
// the first enabled untagged one.
func (m Mapper) EthernetInterface(w *EthernetInterface, vlans []*VLAN) *model.EthernetInterface {
	e := &model.EthernetInterface{
		Meta:       m.meta(w.Resource),
		System:     m.owner(w.Resource),
		MACAddress: w.MACAddress,
		SpeedMbps:  w.SpeedMbps,
	}
	e.VLANs = m.vlans(vlans)
	for _, v := range e.VLANs {
		if !v.Tagged {
			id := v.VLANId
			e.PrimaryVLAN = &id
			break
		}
	}
	return e
}

func (m Mapper) vlans(vlans []*VLAN) []model.VLAN {
	var out []model.VLAN
	for _, v := range vlans {
		if v.VLANEnable != nil && !*v.VLANEnable {
			continue
		}
		out = append(out, model.VLAN{VLANId: v.VLANId, Tagged: v.Oem.IntelRackScale.Tagged})
	}
	return out
}

func (m Mapper) SwitchPort(w *EthernetSwitchPort, vlans []*VLAN) *model.EthernetSwitchPort {
	return &model.EthernetSwitchPort{
		Meta:        m.meta(w.Resource),
		PortID:      w.PortID,
		NeighborMAC: w.NeighborMAC,
		SpeedMbps:   w.LinkSpeedMbps,
		VLANs:       m.vlans(vlans),
	}
}

// Drive maps a drive. PCIe connection ids default to those of its chassis.
func (m Mapper) Drive(w *Drive, chassis *Chassis) *model.Drive {
	d := &model.Drive{
		Meta:              m.meta(w.Resource),
		CapacityBytes:     w.CapacityBytes,
		Protocol:          w.Protocol,
		MediaType:         w.MediaType,
		RotationSpeedRPM:  w.RotationSpeedRPM,
		SerialNumber:      w.SerialNumber,
		PCIeConnectionIDs: w.Oem.IntelRackScale.PCIeConnectionID,
		Endpoints:         LocalURIs(m.ServiceUUID, w.Links.Endpoints),
	}
	if w.Oem.IntelRackScale.EraseOnDetach != nil {
		d.EraseOnDetach = *w.Oem.IntelRackScale.EraseOnDetach
	}
	switch {
	case w.Links.Chassis != nil:
		d.Chassis = localLink(m.ServiceUUID, w.Links.Chassis)
	case chassis != nil:
		d.Chassis = m.local(chassis.ODataID)
	}
	if len(d.PCIeConnectionIDs) == 0 && chassis != nil {
		d.PCIeConnectionIDs = chassis.Oem.IntelRackScale.PCIeConnectionID
	}
	return d
}

func (m Mapper) Volume(w *Volume) *model.Volume {
	return &model.Volume{
		Meta:           m.meta(w.Resource),
		StorageService: m.owner(w.Resource),
		CapacityBytes:  w.CapacityBytes,
		Bootable:       w.Oem.IntelRackScale.Bootable,
		Endpoints:      LocalURIs(m.ServiceUUID, w.Links.Endpoints),
	}
}

func (m Mapper) Endpoint(w *Endpoint) *model.Endpoint {
	e := &model.Endpoint{
		Meta:        m.meta(w.Resource),
		Protocol:    w.EndpointProtocol,
		Fabric:      m.owner(w.Resource),
		Identifiers: w.Identifiers,
	}
	for _, ce := range w.ConnectedEntities {
		e.ConnectedEntities = append(e.ConnectedEntities, model.ConnectedEntity{
			Role:   ce.EntityRole,
			Entity: localLink(m.ServiceUUID, ce.EntityLink),
		})
	}
	// endpoints without an explicit role take it from their entity
	if len(e.ConnectedEntities) > 0 {
		e.Role = e.ConnectedEntities[0].Role
	}
	return e
}

func (m Mapper) Zone(w *Zone) *model.Zone {
	return &model.Zone{
		Meta:      m.meta(w.Resource),
		Fabric:    m.owner(w.Resource),
		Endpoints: LocalURIs(m.ServiceUUID, w.Links.Endpoints),
	}
}

func (m Mapper) Fabric(w *Fabric) *model.Fabric {
	return &model.Fabric{
		Meta:       m.meta(w.Resource),
		FabricType: w.FabricType,
		MaxZones:   w.MaxZones,
	}
}

func (m Mapper) Chassis(w *Chassis) *model.Chassis {
	return &model.Chassis{
		Meta:             m.meta(w.Resource),
		ChassisType:      w.ChassisType,
		Parent:           localLink(m.ServiceUUID, w.Links.ContainedBy),
		ContainedSystems: LocalURIs(m.ServiceUUID, w.Links.ComputerSystems),
		Drives:           LocalURIs(m.ServiceUUID, w.Links.Drives),
	}
}
