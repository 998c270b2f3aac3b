// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

const testService = "AB12CD34-0000-4000-8000-000000000001"

func TestLocalURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		source string
		want   model.ODataID
	}{
		{"/redfish/v1/Systems/1", "/redfish/v1/Systems/ab12cd34-1"},
		{"/redfish/v1/Systems/1/", "/redfish/v1/Systems/ab12cd34-1"},
		{"/redfish/v1/Systems/1/Processors/2", "/redfish/v1/Systems/ab12cd34-1/Processors/ab12cd34-2"},
		{"/redfish/v1/Fabrics/PCIe/Endpoints/7", "/redfish/v1/Fabrics/ab12cd34-PCIe/Endpoints/ab12cd34-7"},
		{"/redfish/v1/Chassis/3/Drives/4", "/redfish/v1/Drives/ab12cd34-3-4"},
		{"/redfish/v1/StorageServices/s1/Volumes/v1", "/redfish/v1/Volumes/ab12cd34-s1-v1"},
		{"/redfish/v1/StorageServices/s1", "/redfish/v1/StorageServices/ab12cd34-s1"},
		{"/redfish/v1", ""},
		{"/other/Systems/1", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LocalURI(testService, tt.source), tt.source)
	}
}

func TestLocalURIs_SkipsForeign(t *testing.T) {
	t.Parallel()

	got := LocalURIs(testService, []model.Link{
		{ODataID: "/redfish/v1/Chassis/1"},
		{ODataID: "http://elsewhere/x"},
	})
	assert.Equal(t, []model.ODataID{"/redfish/v1/Chassis/ab12cd34-1"}, got)
}

func TestMapper_System(t *testing.T) {
	t.Parallel()

	var w ComputerSystem
	require.NoError(t, json.Unmarshal([]byte(`{
		"@odata.id": "/redfish/v1/Systems/1",
		"Id": "1",
		"Name": "Computer System",
		"UUID": "8f3b9c1e-0000-4000-8000-00000000aaaa",
		"SystemType": "Physical",
		"PowerState": "Off",
		"Status": {"State": "Enabled", "Health": "OK"},
		"ProcessorSummary": {"Count": 2, "Model": "Intel Xeon"},
		"MemorySummary": {"TotalSystemMemoryGiB": 64},
		"TrustedModules": [{"InterfaceType": "TPM2_0", "Status": {"State": "Enabled"}}],
		"Links": {"Chassis": [{"@odata.id": "/redfish/v1/Chassis/1"}]},
		"Actions": {"#ComputerSystem.Reset": {
			"target": "/redfish/v1/Systems/1/Actions/ComputerSystem.Reset",
			"ResetType@Redfish.AllowableValues": ["On", "ForceOff"]
		}},
		"Oem": {"Intel_RackScale": {"PCIeConnectionId": ["XYZ1234567890"], "TrustedExecutionTechnologyEnabled": true}}
	}`), &w))

	got := NewMapper(testService).System(&w)

	gib := 64.0
	txt := true
	want := &model.ComputerSystem{
		Meta: model.Meta{
			ODataID:     "/redfish/v1/Systems/ab12cd34-1",
			ID:          "ab12cd34-1",
			Name:        "Computer System",
			Status:      model.Status{State: model.StateEnabled, Health: model.HealthOK},
			ServiceUUID: testService,
			SourceURI:   "/redfish/v1/Systems/1",
		},
		UUID:                 "8f3b9c1e-0000-4000-8000-00000000aaaa",
		SystemType:           model.SystemTypePhysical,
		PowerState:           model.PowerStateOff,
		AllowableResetTypes:  []model.ResetType{model.ResetOn, model.ResetForceOff},
		Chassis:              "/redfish/v1/Chassis/ab12cd34-1",
		PCIeConnectionIDs:    []string{"XYZ1234567890"},
		TrustedModules:       []model.TrustedModule{{InterfaceType: "TPM2_0", Status: model.Status{State: model.StateEnabled}}},
		TxtEnabled:           &txt,
		TotalSystemMemoryGiB: &gib,
		ProcessorCount:       2,
		ProcessorModel:       "Intel Xeon",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("System() mismatch (-want +got):\n%s", diff)
	}
}

func TestMapper_Endpoint(t *testing.T) {
	t.Parallel()

	var w Endpoint
	require.NoError(t, json.Unmarshal([]byte(`{
		"@odata.id": "/redfish/v1/Fabrics/NVMeoE/Endpoints/2",
		"Id": "2",
		"EndpointProtocol": "NVMeOverFabrics",
		"ConnectedEntities": [{"EntityRole": "Target", "EntityLink": {"@odata.id": "/redfish/v1/StorageServices/1/Volumes/5"}}],
		"Identifiers": [{"DurableName": "nqn.2014-08.org.nvmexpress:uuid:1234", "DurableNameFormat": "NQN"}],
		"Status": {"State": "Enabled", "Health": "OK"}
	}`), &w))

	e := NewMapper(testService).Endpoint(&w)
	assert.Equal(t, model.ODataID("/redfish/v1/Fabrics/ab12cd34-NVMeoE"), e.Fabric)
	assert.Equal(t, model.RoleTarget, e.Role)
	assert.Equal(t, model.ODataID("/redfish/v1/Volumes/ab12cd34-1-5"), e.Entity(model.RoleTarget))
	assert.True(t, e.Attachable())
	assert.Equal(t, "nqn.2014-08.org.nvmexpress:uuid:1234", e.DurableName())
}

func TestMapper_DriveInheritsChassis(t *testing.T) {
	t.Parallel()

	capacity := int64(1 << 40)
	w := &Drive{
		Resource:      Resource{ODataID: "/redfish/v1/Chassis/pcie1/Drives/3", ID: "3"},
		CapacityBytes: &capacity,
		Protocol:      model.ProtocolNVMe,
	}
	erase := true
	w.Oem.IntelRackScale.EraseOnDetach = &erase
	chassis := &Chassis{Resource: Resource{ODataID: "/redfish/v1/Chassis/pcie1"}}
	chassis.Oem.IntelRackScale.PCIeConnectionID = []string{"conn-1"}

	d := NewMapper(testService).Drive(w, chassis)
	assert.Equal(t, model.ODataID("/redfish/v1/Drives/ab12cd34-pcie1-3"), d.ODataID)
	assert.Equal(t, model.ODataID("/redfish/v1/Chassis/ab12cd34-pcie1"), d.Chassis)
	assert.Equal(t, []string{"conn-1"}, d.PCIeConnectionIDs)
	assert.True(t, d.EraseOnDetach)
	assert.False(t, d.IsLocal())
}

func TestMapper_EthernetInterfaceVLANs(t *testing.T) {
	t.Parallel()

	disabled := false
	tagged := &VLAN{VLANId: 100}
	tagged.Oem.IntelRackScale.Tagged = true
	untagged := &VLAN{VLANId: 1}
	off := &VLAN{VLANId: 7, VLANEnable: &disabled}

	e := NewMapper(testService).EthernetInterface(&EthernetInterface{
		Resource:   Resource{ODataID: "/redfish/v1/Systems/1/EthernetInterfaces/1"},
		MACAddress: "aa:bb:cc:dd:ee:ff",
	}, []*VLAN{tagged, off, untagged})

	assert.Equal(t, model.ODataID("/redfish/v1/Systems/ab12cd34-1"), e.System)
	assert.Equal(t, []model.VLAN{{VLANId: 100, Tagged: true}, {VLANId: 1}}, e.VLANs)
	require.NotNil(t, e.PrimaryVLAN)
	assert.Equal(t, 1, *e.PrimaryVLAN)
}

func TestMapper_ZoneAndProcessorOwner(t *testing.T) {
	t.Parallel()

	m := NewMapper(testService)
	z := m.Zone(&Zone{
		Resource: Resource{ODataID: "/redfish/v1/Fabrics/PCIe/Zones/1"},
		Links:    ZoneLinks{Endpoints: []model.Link{{ODataID: "/redfish/v1/Fabrics/PCIe/Endpoints/1"}}},
	})
	assert.Equal(t, model.ODataID("/redfish/v1/Fabrics/ab12cd34-PCIe"), z.Fabric)
	assert.Equal(t, []model.ODataID{"/redfish/v1/Fabrics/ab12cd34-PCIe/Endpoints/ab12cd34-1"}, z.Endpoints)

	fpga := m.Processor(&Processor{Resource: Resource{ODataID: "/redfish/v1/Chassis/1/Processors/fpga"}, ProcessorType: "FPGA"})
	assert.Empty(t, fpga.System, "processors outside a system have no owner system")
	assert.True(t, fpga.IsFPGA())
}

func TestZoneRequest(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(NewZoneRequest([]string{"/redfish/v1/Fabrics/1/Endpoints/1"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Links":{"Endpoints":[{"@odata.id":"/redfish/v1/Fabrics/1/Endpoints/1"}]}}`, string(body))

	body, err = json.Marshal(NewClearTPMPatch())
	require.NoError(t, err)
	assert.JSONEq(t, `{"Oem":{"Intel_RackScale":{"ClearTPMOnRestart":true}}}`, string(body))
}
