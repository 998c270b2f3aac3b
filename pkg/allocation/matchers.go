// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"slices"
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// candidate is a free computer system with the assets it brings along.
type candidate struct {
	inv        *inventory
	system     *model.ComputerSystem
	processors []*model.Processor
	memory     []*model.Memory
	nics       []*model.EthernetInterface
	// drives are the system's local drives that are free.
	drives     []*model.Drive
}

func newCandidate(inv *inventory, s *model.ComputerSystem) *candidate {
	c := &candidate{
		inv:        inv,
		system:     s,
		processors: collect[*model.Processor](inv, s.Processors),
		memory:     collect[*model.Memory](inv, s.Memory),
		nics:       collect[*model.EthernetInterface](inv, s.EthernetInterfaces),
	}
	for _, d := range collect[*model.Drive](inv, s.Drives) {
		if available(&d.Meta) {
			c.drives = append(c.drives, d)
		}
	}
	return c
}

func (c *candidate) processorCount() int {
	if len(c.processors) > 0 {
		return len(c.processors)
	}
	return c.system.ProcessorCount
}

func (c *candidate) memoryMiB() int {
	if mib := c.system.TotalSystemMemoryMiB(); mib != nil {
		return *mib
	}
	total := 0
	for _, m := range c.memory {
		if m.CapacityMiB != nil {
			total += *m.CapacityMiB
		}
	}
	return total
}

func (c *candidate) cores() int {
	total := 0
	for _, p := range c.processors {
		if p.TotalCores != nil {
			total += *p.TotalCores
		}
	}
	return total
}

// assignDistinct gives every request its own available item, first fit.
// It returns the indexes of the items chosen, in request order.
func assignDistinct[R, A any](reqs []R, avail []A, match func(R, A) bool) ([]int, bool) {
	used := make([]bool, len(avail))
	chosen := make([]int, 0, len(reqs))
	for _, r := range reqs {
		found := -1
		for i, a := range avail {
			if !used[i] && match(r, a) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, false
		}
		used[found] = true
		chosen = append(chosen, found)
	}
	return chosen, true
}

func atLeast(requested, actual *int) bool {
	return requested == nil || (actual != nil && *actual >= *requested)
}

func same(requested, actual string) bool {
	return requested == "" || strings.EqualFold(requested, actual)
}

func pinnedTo(l *model.Link, id model.ODataID) bool {
	return l == nil || l.ODataID == id
}

func matchProcessors(c *candidate, req *RequestedNode) bool {
	_, ok := assignDistinct(req.Processors, c.processors, processorMatches)
	return ok
}

func processorMatches(r RequestedProcessor, p *model.Processor) bool {
	if r.Model != "" && !strings.Contains(strings.ToLower(p.Model), strings.ToLower(r.Model)) {
		return false
	}
	for _, capability := range r.Capabilities {
		if !slices.Contains(p.Capabilities, capability) {
			return false
		}
	}
	return same(r.Manufacturer, p.Manufacturer) &&
		same(r.InstructionSet, p.InstructionSet) &&
		same(r.ProcessorType, p.ProcessorType) &&
		atLeast(r.TotalCores, p.TotalCores) &&
		atLeast(r.AchievableSpeedMHz, p.MaxSpeedMHz) &&
		pinnedTo(r.Resource, p.ODataID)
}

// matchMemory compares modules. A system without modules can only satisfy
// a request for a total size.
func matchMemory(c *candidate, req *RequestedNode) bool {
	if len(req.Memory) == 0 {
		return true
	}
	if len(c.memory) == 0 {
		total := 0
		for _, m := range req.Memory {
			if !m.IsSizeOnly() {
				return false
			}
			if m.CapacityMiB != nil {
				total += *m.CapacityMiB
			}
		}
		mib := c.system.TotalSystemMemoryMiB()
		return mib != nil && *mib >= total
	}
	_, ok := assignDistinct(req.Memory, c.memory, memoryMatches)
	return ok
}

func memoryMatches(r RequestedMemory, m *model.Memory) bool {
	return same(r.MemoryDeviceType, m.MemoryDeviceType) &&
		same(r.Manufacturer, m.Manufacturer) &&
		atLeast(r.SpeedMHz, m.OperatingSpeedMHz) &&
		atLeast(r.DataWidthBits, m.DataWidthBits) &&
		atLeast(r.CapacityMiB, m.CapacityMiB) &&
		pinnedTo(r.Resource, m.ODataID)
}

// matchEthernet needs a distinct interface per request. VLAN settings
// also need the switch port the interface is cabled to.
func matchEthernet(inv *inventory) func(c *candidate, req *RequestedNode) bool {
	return func(c *candidate, req *RequestedNode) bool {
		if len(req.EthernetInterfaces) > len(c.nics) {
			return false
		}
		_, ok := assignDistinct(req.EthernetInterfaces, c.nics, func(r RequestedEthernetInterface, e *model.EthernetInterface) bool {
			if !atLeast(r.SpeedMbps, e.SpeedMbps) || !pinnedTo(r.Resource, e.ODataID) {
				return false
			}
			if len(r.VLANs) > 0 || r.PrimaryVLAN != nil {
				_, ok := inv.neighbourPort(e.MACAddress)
				return ok
			}
			return true
		})
		return ok
	}
}

// neighbourPort finds the single switch port whose neighbour is mac.
func (inv *inventory) neighbourPort(mac string) (*model.EthernetSwitchPort, bool) {
	if mac == "" {
		return nil, false
	}
	var found []*model.EthernetSwitchPort
	for _, p := range inv.ports {
		if strings.EqualFold(p.NeighborMAC, mac) {
			found = append(found, p)
		}
	}
	if len(found) != 1 {
		return nil, false
	}
	return found[0], true
}

func matchSecurity(c *candidate, req *RequestedNode) bool {
	sec := req.Security
	if sec == nil {
		return true
	}
	s := c.system
	if sec.TxtEnabled != nil && (s.TxtEnabled == nil || *s.TxtEnabled != *sec.TxtEnabled) {
		return false
	}
	modules := s.TrustedModules
	if sec.TpmPresent != nil {
		if *sec.TpmPresent && len(modules) == 0 {
			return false
		}
		if !*sec.TpmPresent && (len(modules) > 0 || sec.TpmInterfaceType != "") {
			return false
		}
	}
	if sec.TpmInterfaceType != "" {
		return slices.ContainsFunc(modules, func(m model.TrustedModule) bool {
			return strings.EqualFold(m.InterfaceType, sec.TpmInterfaceType)
		})
	}
	return true
}

func matchLocalDrives(c *candidate, req *RequestedNode) bool {
	_, ok := assignDistinct(req.LocalDrives, c.drives, c.driveMatches)
	return ok
}

func localDriveMatches(r RequestedLocalDrive, d *model.Drive) bool {
	if r.CapacityGiB != nil && (d.CapacityBytes == nil || *d.CapacityBytes < int64(*r.CapacityGiB*bytesPerGiB)) {
		return false
	}
	if r.MinRPM != nil && (d.RotationSpeedRPM == nil || *d.RotationSpeedRPM < float64(*r.MinRPM)) {
		return false
	}
	if r.SerialNumber != "" && r.SerialNumber != d.SerialNumber {
		return false
	}
	return same(r.Type, d.MediaType) &&
		same(string(r.Interface), string(d.Protocol)) &&
		pinnedTo(r.Resource, d.ODataID)
}

// driveMatches adds the chassis constraint, which also accepts drives in a
// chassis below the requested one.
func (c *candidate) driveMatches(r RequestedLocalDrive, d *model.Drive) bool {
	return localDriveMatches(r, d) && (r.Chassis == nil || c.inv.within(d.Chassis, r.Chassis.ODataID))
}

func matchTotals(c *candidate, req *RequestedNode) bool {
	if req.TotalSystemCoreCount != nil && c.cores() < *req.TotalSystemCoreCount {
		return false
	}
	if req.TotalSystemMemoryMiB != nil && c.memoryMiB() < *req.TotalSystemMemoryMiB {
		return false
	}
	return true
}

// localDrives returns the drives assigned to the request's local drives.
func (c *candidate) localDrives(req *RequestedNode) []*model.Drive {
	idx, _ := assignDistinct(req.LocalDrives, c.drives, c.driveMatches)
	out := make([]*model.Drive, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.drives[i])
	}
	return out
}
