// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/memory"
)

const (
	testService = "svc-a"

	drawerPath = model.ODataID("/redfish/v1/Chassis/drawer")
	pcieDrive  = model.ODataID("/redfish/v1/Drives/p-1")
	smallVol   = model.ODataID("/redfish/v1/Volumes/v-1")
	largeVol   = model.ODataID("/redfish/v1/Volumes/v-2")
	cableID    = "cable-1"
)

func ptr[T any](v T) *T { return &v }

func meta(id model.ODataID) model.Meta {
	return model.Meta{ODataID: id, ID: id.Last(), ServiceUUID: testService, Status: model.StatusEnabledOK}
}

// testSystem is a physical system with one of each child and a chassis.
type testSystem struct {
	sys     *model.ComputerSystem
	chassis *model.Chassis
	cpu     *model.Processor
	mem     *model.Memory
	nic     *model.EthernetInterface
	drives  []*model.Drive
}

func newSystem(n, cores, memMiB int) *testSystem {
	base := model.ODataID(fmt.Sprintf("/redfish/v1/Systems/s-%d", n))
	ts := &testSystem{
		sys: &model.ComputerSystem{
			Meta:           meta(base),
			UUID:           fmt.Sprintf("uuid-%d", n),
			SystemType:     model.SystemTypePhysical,
			ProcessorCount: 1,
			Boot:           model.Boot{BootSourceOverrideEnabled: "Disabled", BootSourceOverrideTarget: "None"},
		},
		chassis: &model.Chassis{Meta: meta(model.ODataID(fmt.Sprintf("/redfish/v1/Chassis/c-%d", n)))},
		cpu: &model.Processor{
			Meta:           meta(base.Join("Processors", "1")),
			System:         base,
			Model:          "Intel Xeon Gold 6148",
			Manufacturer:   "Intel",
			InstructionSet: "x86-64",
			ProcessorType:  "CPU",
			TotalCores:     ptr(cores),
			MaxSpeedMHz:    ptr(3000),
		},
		mem: &model.Memory{
			Meta:              meta(base.Join("Memory", "1")),
			System:            base,
			MemoryDeviceType:  "DDR4",
			Manufacturer:      "Samsung",
			OperatingSpeedMHz: ptr(2666),
			DataWidthBits:     ptr(64),
			CapacityMiB:       ptr(memMiB),
		},
		nic: &model.EthernetInterface{
			Meta:       meta(base.Join("EthernetInterfaces", "1")),
			System:     base,
			MACAddress: fmt.Sprintf("00:00:00:00:00:%02x", n),
			SpeedMbps:  ptr(10000),
		},
	}
	ts.sys.Chassis = ts.chassis.ODataID
	ts.chassis.ContainedSystems = []model.ODataID{base}
	ts.sys.Processors = []model.ODataID{ts.cpu.ODataID}
	ts.sys.Memory = []model.ODataID{ts.mem.ODataID}
	ts.sys.EthernetInterfaces = []model.ODataID{ts.nic.ODataID}
	return ts
}

// withDrive adds a local SSD of the given size.
func (ts *testSystem) withDrive(gib int64) *testSystem {
	id := model.ODataID(fmt.Sprintf("/redfish/v1/Drives/%s-%d", ts.sys.ID, len(ts.drives)+1))
	d := &model.Drive{
		Meta:          meta(id),
		System:        ts.sys.ODataID,
		Chassis:       ts.chassis.ODataID,
		CapacityBytes: ptr(gib << 30),
		Protocol:      model.ProtocolSATA,
		MediaType:     "SSD",
		SerialNumber:  fmt.Sprintf("SN-%s", id.Last()),
	}
	ts.drives = append(ts.drives, d)
	ts.sys.Drives = append(ts.sys.Drives, id)
	ts.chassis.Drives = append(ts.chassis.Drives, id)
	return ts
}

func (ts *testSystem) resources() []model.Resource {
	rs := []model.Resource{ts.sys, ts.chassis, ts.cpu, ts.mem, ts.nic}
	for _, d := range ts.drives {
		rs = append(rs, d)
	}
	return rs
}

func target(fabric string, entity model.ODataID, nqn string) *model.Endpoint {
	return &model.Endpoint{
		Meta:              meta(model.ODataID(fmt.Sprintf("/redfish/v1/Fabrics/%s/Endpoints/%s", fabric, entity.Last()))),
		Role:              model.RoleTarget,
		Fabric:            model.ODataID("/redfish/v1/Fabrics/" + fabric),
		ConnectedEntities: []model.ConnectedEntity{{Role: model.RoleTarget, Entity: entity}},
		Identifiers:       []model.Identifier{{DurableName: nqn, DurableNameFormat: "NQN"}},
	}
}

// pooledStorage is a PCIe drawer with one drive and two NVMe-oF volumes.
func pooledStorage() []model.Resource {
	drawer := &model.Chassis{Meta: meta(drawerPath), ChassisType: "Drawer", Drives: []model.ODataID{pcieDrive}}
	pcie := &model.Fabric{Meta: meta("/redfish/v1/Fabrics/pcie"), FabricType: model.ProtocolPCIe}
	nvmeof := &model.Fabric{Meta: meta("/redfish/v1/Fabrics/nvmeof"), FabricType: model.ProtocolNVMeOverFabrics}

	driveEP := target("pcie", pcieDrive, "")
	drive := &model.Drive{
		Meta:              meta(pcieDrive),
		Chassis:           drawerPath,
		CapacityBytes:     ptr(int64(1024) << 30),
		Protocol:          model.ProtocolNVMe,
		MediaType:         "SSD",
		PCIeConnectionIDs: []string{cableID},
		Endpoints:         []model.ODataID{driveEP.ODataID},
	}

	smallEP := target("nvmeof", smallVol, "nqn.2025-01.podm:v-1")
	small := &model.Volume{
		Meta:          meta(smallVol),
		CapacityBytes: ptr(int64(100) << 30),
		Protocol:      model.ProtocolNVMeOverFabrics,
		Endpoints:     []model.ODataID{smallEP.ODataID},
	}
	largeEP := target("nvmeof", largeVol, "nqn.2025-01.podm:v-2")
	large := &model.Volume{
		Meta:          meta(largeVol),
		CapacityBytes: ptr(int64(200) << 30),
		Protocol:      model.ProtocolNVMeOverFabrics,
		Endpoints:     []model.ODataID{largeEP.ODataID},
	}
	return []model.Resource{drawer, pcie, nvmeof, drive, driveEP, small, smallEP, large, largeEP}
}

// newStore stores the resources under a reachable service.
func newStore(t *testing.T, rs ...model.Resource) *memory.Store {
	t.Helper()
	st := memory.New()
	require.NoError(t, st.Services().Put(t.Context(), &model.ExternalService{
		ODataID:   model.ServiceURI(testService),
		UUID:      testService,
		Reachable: true,
	}))
	for _, r := range rs {
		require.NoError(t, st.Resources().Put(t.Context(), r))
	}
	return st
}

func load(t *testing.T, st store.Store) *inventory {
	t.Helper()
	inv, err := loadInventory(t.Context(), st)
	require.NoError(t, err)
	return inv
}
