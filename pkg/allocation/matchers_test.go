// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

func TestProcessorMatches(t *testing.T) {
	t.Parallel()
	cpu := newSystem(1, 8, 16384).cpu
	cpu.Capabilities = []string{"AVX512", "SGX"}

	tests := []struct {
		name string
		req  RequestedProcessor
		want bool
	}{
		{name: "anything", want: true},
		{name: "model substring ignores case", req: RequestedProcessor{Model: "xeon gold"}, want: true},
		{name: "other model", req: RequestedProcessor{Model: "EPYC"}, want: false},
		{name: "manufacturer", req: RequestedProcessor{Manufacturer: "AMD"}, want: false},
		{name: "instruction set", req: RequestedProcessor{InstructionSet: "x86-64"}, want: true},
		{name: "type", req: RequestedProcessor{ProcessorType: "FPGA"}, want: false},
		{name: "fewer cores", req: RequestedProcessor{TotalCores: ptr(4)}, want: true},
		{name: "more cores", req: RequestedProcessor{TotalCores: ptr(16)}, want: false},
		{name: "speed", req: RequestedProcessor{AchievableSpeedMHz: ptr(3000)}, want: true},
		{name: "faster", req: RequestedProcessor{AchievableSpeedMHz: ptr(3001)}, want: false},
		{name: "capability subset", req: RequestedProcessor{Capabilities: []string{"SGX"}}, want: true},
		{name: "missing capability", req: RequestedProcessor{Capabilities: []string{"SGX", "TSX"}}, want: false},
		{name: "same resource", req: RequestedProcessor{Resource: ptr(cpu.ODataID.Link())}, want: true},
		{name: "other resource", req: RequestedProcessor{Resource: ptr(model.ODataID("/redfish/v1/Systems/s-2/Processors/1").Link())}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, processorMatches(tt.req, cpu))
		})
	}

	unknownSpeed := *cpu
	unknownSpeed.MaxSpeedMHz = nil
	assert.False(t, processorMatches(RequestedProcessor{AchievableSpeedMHz: ptr(1)}, &unknownSpeed), "unknown speed fails a speed request")
}

func TestMatchMemory(t *testing.T) {
	t.Parallel()
	ts := newSystem(1, 4, 16384)
	withModules := newCandidate(load(t, newStore(t, ts.resources()...)), ts.sys)

	bare := newSystem(2, 4, 0).sys
	bare.Memory = nil
	bare.TotalSystemMemoryGiB = ptr(32.0)
	noModules := &candidate{system: bare}

	unknown := newSystem(3, 4, 0).sys
	unknown.Memory = nil
	noTotal := &candidate{system: unknown}

	tests := []struct {
		name string
		c    *candidate
		req  []RequestedMemory
		want bool
	}{
		{name: "nothing requested", c: noTotal, want: true},
		{name: "module fits", c: withModules, req: []RequestedMemory{{CapacityMiB: ptr(8192), MemoryDeviceType: "DDR4"}}, want: true},
		{name: "module too small", c: withModules, req: []RequestedMemory{{CapacityMiB: ptr(32768)}}, want: false},
		{name: "other type", c: withModules, req: []RequestedMemory{{MemoryDeviceType: "DDR5"}}, want: false},
		{name: "modules are not shared", c: withModules, req: []RequestedMemory{{}, {}}, want: false},
		{name: "total without modules", c: noModules, req: []RequestedMemory{{CapacityMiB: ptr(16384)}, {CapacityMiB: ptr(16384)}}, want: true},
		{name: "total exceeded", c: noModules, req: []RequestedMemory{{CapacityMiB: ptr(32769)}}, want: false},
		{name: "details without modules", c: noModules, req: []RequestedMemory{{SpeedMHz: ptr(2400)}}, want: false},
		{name: "unknown total", c: noTotal, req: []RequestedMemory{{CapacityMiB: ptr(1)}}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchMemory(tt.c, &RequestedNode{Memory: tt.req}))
		})
	}
}

func TestMatchEthernet(t *testing.T) {
	t.Parallel()
	ts := newSystem(1, 4, 16384)
	port := func(id, mac string) *model.EthernetSwitchPort {
		return &model.EthernetSwitchPort{Meta: meta(model.ODataID("/redfish/v1/EthernetSwitches/sw-1/Ports/" + id)), NeighborMAC: mac}
	}
	vlanReq := &RequestedNode{EthernetInterfaces: []RequestedEthernetInterface{{VLANs: []model.VLAN{{VLANId: 10, Tagged: true}}}}}

	tests := []struct {
		name  string
		ports []model.Resource
		req   *RequestedNode
		want  bool
	}{
		{name: "speed", req: &RequestedNode{EthernetInterfaces: []RequestedEthernetInterface{{SpeedMbps: ptr(10000)}}}, want: true},
		{name: "too fast", req: &RequestedNode{EthernetInterfaces: []RequestedEthernetInterface{{SpeedMbps: ptr(25000)}}}, want: false},
		{name: "more interfaces than available", req: &RequestedNode{EthernetInterfaces: []RequestedEthernetInterface{{}, {}}}, want: false},
		{name: "vlan without neighbour", req: vlanReq, want: false},
		{name: "vlan with neighbour", ports: []model.Resource{port("p1", "00:00:00:00:00:01")}, req: vlanReq, want: true},
		{name: "primary vlan with neighbour", ports: []model.Resource{port("p1", "00:00:00:00:00:01")}, req: &RequestedNode{EthernetInterfaces: []RequestedEthernetInterface{{PrimaryVLAN: ptr(5)}}}, want: true},
		{
			name:  "ambiguous neighbour",
			ports: []model.Resource{port("p1", "00:00:00:00:00:01"), port("p2", "00:00:00:00:00:01")},
			req:   vlanReq,
			want:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inv := load(t, newStore(t, append(ts.resources(), tt.ports...)...))
			c := newCandidate(inv, ts.sys)
			assert.Equal(t, tt.want, matchEthernet(inv)(c, tt.req))
		})
	}
}

func TestMatchSecurity(t *testing.T) {
	t.Parallel()
	plain := &candidate{system: &model.ComputerSystem{TxtEnabled: ptr(false)}}
	trusted := &candidate{system: &model.ComputerSystem{
		TxtEnabled:     ptr(true),
		TrustedModules: []model.TrustedModule{{InterfaceType: "TPM2_0"}},
	}}

	tests := []struct {
		name string
		c    *candidate
		sec  *RequestedSecurity
		want bool
	}{
		{name: "nothing requested", c: plain, want: true},
		{name: "txt", c: trusted, sec: &RequestedSecurity{TxtEnabled: ptr(true)}, want: true},
		{name: "txt mismatch", c: plain, sec: &RequestedSecurity{TxtEnabled: ptr(true)}, want: false},
		{name: "tpm present", c: trusted, sec: &RequestedSecurity{TpmPresent: ptr(true)}, want: true},
		{name: "tpm missing", c: plain, sec: &RequestedSecurity{TpmPresent: ptr(true)}, want: false},
		{name: "tpm absent", c: plain, sec: &RequestedSecurity{TpmPresent: ptr(false)}, want: true},
		{name: "tpm unwanted", c: trusted, sec: &RequestedSecurity{TpmPresent: ptr(false)}, want: false},
		{name: "absent with interface", c: plain, sec: &RequestedSecurity{TpmPresent: ptr(false), TpmInterfaceType: "TPM2_0"}, want: false},
		{name: "interface", c: trusted, sec: &RequestedSecurity{TpmInterfaceType: "tpm2_0"}, want: true},
		{name: "other interface", c: trusted, sec: &RequestedSecurity{TpmInterfaceType: "TPM1_2"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, matchSecurity(tt.c, &RequestedNode{Security: tt.sec}))
		})
	}
}

func TestLocalDriveMatches(t *testing.T) {
	t.Parallel()
	d := newSystem(1, 4, 16384).withDrive(480).drives[0]
	d.RotationSpeedRPM = ptr(7200.0)

	tests := []struct {
		name string
		req  RequestedLocalDrive
		want bool
	}{
		{name: "anything", want: true},
		{name: "capacity", req: RequestedLocalDrive{CapacityGiB: ptr(480.0)}, want: true},
		{name: "too small", req: RequestedLocalDrive{CapacityGiB: ptr(480.5)}, want: false},
		{name: "type", req: RequestedLocalDrive{Type: "HDD"}, want: false},
		{name: "interface", req: RequestedLocalDrive{Interface: model.ProtocolSATA}, want: true},
		{name: "other interface", req: RequestedLocalDrive{Interface: model.ProtocolNVMe}, want: false},
		{name: "rpm", req: RequestedLocalDrive{MinRPM: ptr(5400)}, want: true},
		{name: "faster rpm", req: RequestedLocalDrive{MinRPM: ptr(10000)}, want: false},
		{name: "serial", req: RequestedLocalDrive{SerialNumber: "SN-s-1-1"}, want: true},
		{name: "other serial", req: RequestedLocalDrive{SerialNumber: "SN-x"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, localDriveMatches(tt.req, d))
		})
	}
}

func TestAssignDistinct(t *testing.T) {
	t.Parallel()
	ge := func(want, have int) bool { return have >= want }

	idx, ok := assignDistinct([]int{4, 2}, []int{1, 3, 5}, ge)
	assert.True(t, ok)
	assert.Equal(t, []int{2, 1}, idx)

	_, ok = assignDistinct([]int{2, 2, 2}, []int{3, 5}, ge)
	assert.False(t, ok)

	idx, ok = assignDistinct([]int(nil), []int{1}, ge)
	assert.True(t, ok)
	assert.Empty(t, idx)
}

func TestChoose_Totals(t *testing.T) {
	t.Parallel()
	a := newSystem(1, 4, 8192)
	a.sys.TotalSystemMemoryGiB = ptr(64.0)
	b := newSystem(2, 12, 16384)
	inv := load(t, newStore(t, append(a.resources(), b.resources()...)...))

	p, ok := choose(inv, &RequestedNode{TotalSystemMemoryMiB: ptr(32768)}, &constraints{})
	assert.True(t, ok)
	assert.Equal(t, a.sys.ODataID, p.system.ODataID, "the reported total wins over module sizes")

	p, ok = choose(inv, &RequestedNode{TotalSystemCoreCount: ptr(8)}, &constraints{})
	assert.True(t, ok)
	assert.Equal(t, b.sys.ODataID, p.system.ODataID)

	_, ok = choose(inv, &RequestedNode{TotalSystemCoreCount: ptr(16)}, &constraints{})
	assert.False(t, ok)
}
