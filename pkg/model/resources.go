// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

import "slices"

type SystemType string

const (
	SystemTypePhysical SystemType = "Physical"
	SystemTypeVirtual  SystemType = "Virtual"
)

type PowerState string

const (
	PowerStateOn          PowerState = "On"
	PowerStateOff         PowerState = "Off"
	PowerStatePoweringOn  PowerState = "PoweringOn"
	PowerStatePoweringOff PowerState = "PoweringOff"
)

type ResetType string

const (
	ResetOn               ResetType = "On"
	ResetForceOff         ResetType = "ForceOff"
	ResetGracefulShutdown ResetType = "GracefulShutdown"
	ResetGracefulRestart  ResetType = "GracefulRestart"
	ResetForceRestart     ResetType = "ForceRestart"
	ResetNmi              ResetType = "Nmi"
	ResetForceOn          ResetType = "ForceOn"
	ResetPushPowerButton  ResetType = "PushPowerButton"
	ResetPowerCycle       ResetType = "PowerCycle"
)

// PowerStateAfter returns the power state a system settles in after a reset
// of type t, given its current state.
func PowerStateAfter(t ResetType, current PowerState) PowerState {
	switch t {
	case ResetOn, ResetForceOn, ResetGracefulRestart, ResetForceRestart, ResetPowerCycle, ResetNmi:
		return PowerStateOn
	case ResetForceOff, ResetGracefulShutdown:
		return PowerStateOff
	case ResetPushPowerButton:
		if current == PowerStateOn {
			return PowerStateOff
		}
		return PowerStateOn
	}
	return current
}

type Protocol string

const (
	ProtocolPCIe            Protocol = "PCIe"
	ProtocolNVMe            Protocol = "NVMe"
	ProtocolNVMeOverFabrics Protocol = "NVMeOverFabrics"
	ProtocolISCSI           Protocol = "iSCSI"
	ProtocolFPGAoF          Protocol = "FPGAoF"
	ProtocolSATA            Protocol = "SATA"
	ProtocolSAS             Protocol = "SAS"
)

type Boot struct {
	BootSourceOverrideEnabled string   `json:"BootSourceOverrideEnabled,omitempty"`
	BootSourceOverrideTarget  string   `json:"BootSourceOverrideTarget,omitempty"`
	BootSourceOverrideMode    string   `json:"BootSourceOverrideMode,omitempty"`
	AllowableTargets          []string `json:"BootSourceOverrideTarget@Redfish.AllowableValues,omitempty"`
}

func (b Boot) IsZero() bool {
	return b.BootSourceOverrideEnabled == "" && b.BootSourceOverrideTarget == "" && b.BootSourceOverrideMode == ""
}

type TrustedModule struct {
	InterfaceType string `json:"InterfaceType,omitempty"`
	Status        Status `json:"Status"`
}

type ComputerSystem struct {
	Meta
	UUID                string      `json:"UUID,omitempty"`
	SystemType          SystemType  `json:"SystemType,omitempty"`
	PowerState          PowerState  `json:"PowerState,omitempty"`
	AllowableResetTypes []ResetType `json:"AllowableResetTypes,omitempty"`
	Boot                Boot        `json:"Boot"`

	Chassis           ODataID         `json:"Chassis,omitempty"`
	PCIeConnectionIDs []string        `json:"PCIeConnectionIDs,omitempty"`
	TrustedModules    []TrustedModule `json:"TrustedModules,omitempty"`
	TxtEnabled        *bool           `json:"TxtEnabled,omitempty"`

	TotalSystemMemoryGiB *float64 `json:"TotalSystemMemoryGiB,omitempty"`
	ProcessorCount       int      `json:"ProcessorCount,omitempty"`
	ProcessorModel       string   `json:"ProcessorModel,omitempty"`

	Processors         []ODataID `json:"Processors,omitempty"`
	Memory             []ODataID `json:"Memory,omitempty"`
	EthernetInterfaces []ODataID `json:"EthernetInterfaces,omitempty"`
	Drives             []ODataID `json:"Drives,omitempty"`
}

func (*ComputerSystem) Kind() Kind { return KindComputerSystem }

// ResetTypes returns the reset types the system accepts. A system that
// advertises none accepts every type.
func (s *ComputerSystem) ResetTypes() []ResetType {
	if len(s.AllowableResetTypes) > 0 {
		return s.AllowableResetTypes
	}
	return []ResetType{
		ResetOn, ResetForceOff, ResetGracefulShutdown,
		ResetGracefulRestart, ResetForceRestart, ResetNmi,
		ResetForceOn, ResetPushPowerButton, ResetPowerCycle,
	}
}

func (s *ComputerSystem) AllowsReset(t ResetType) bool {
	return slices.Contains(s.ResetTypes(), t)
}

// TotalSystemMemoryMiB converts the reported GiB summary, nil when unknown.
func (s *ComputerSystem) TotalSystemMemoryMiB() *int {
	if s.TotalSystemMemoryGiB == nil {
		return nil
	}
	mib := int(*s.TotalSystemMemoryGiB * 1024)
	return &mib
}

type Processor struct {
	Meta
	// System is empty for processors exposed only through a fabric.
	System         ODataID   `json:"System,omitempty"`
	Socket         string    `json:"Socket,omitempty"`
	Model          string    `json:"Model,omitempty"`
	Manufacturer   string    `json:"Manufacturer,omitempty"`
	ProcessorType  string    `json:"ProcessorType,omitempty"`
	InstructionSet string    `json:"InstructionSet,omitempty"`
	TotalCores     *int      `json:"TotalCores,omitempty"`
	TotalThreads   *int      `json:"TotalThreads,omitempty"`
	MaxSpeedMHz    *int      `json:"MaxSpeedMHz,omitempty"`
	Capabilities   []string  `json:"Capabilities,omitempty"`
	Endpoints      []ODataID `json:"Endpoints,omitempty"`
}

func (*Processor) Kind() Kind { return KindProcessor }

func (p *Processor) IsFPGA() bool { return p.ProcessorType == "FPGA" }

type Memory struct {
	Meta
	System            ODataID `json:"System,omitempty"`
	MemoryDeviceType  string  `json:"MemoryDeviceType,omitempty"`
	Manufacturer      string  `json:"Manufacturer,omitempty"`
	OperatingSpeedMHz *int    `json:"OperatingSpeedMhz,omitempty"`
	DataWidthBits     *int    `json:"DataWidthBits,omitempty"`
	CapacityMiB       *int    `json:"CapacityMiB,omitempty"`
}

func (*Memory) Kind() Kind { return KindMemory }

type VLAN struct {
	VLANId int  `json:"VLANId"`
	Tagged bool `json:"Tagged"`
}

type EthernetInterface struct {
	Meta
	System      ODataID `json:"System,omitempty"`
	MACAddress  string  `json:"MACAddress,omitempty"`
	SpeedMbps   *int    `json:"SpeedMbps,omitempty"`
	VLANs       []VLAN  `json:"VLANs,omitempty"`
	PrimaryVLAN *int    `json:"PrimaryVLAN,omitempty"`
}

func (*EthernetInterface) Kind() Kind { return KindEthernetInterface }

type EthernetSwitchPort struct {
	Meta
	PortID      string `json:"PortId,omitempty"`
	NeighborMAC string `json:"NeighborMAC,omitempty"`
	SpeedMbps   *int   `json:"LinkSpeedMbps,omitempty"`
	VLANs       []VLAN `json:"VLANs,omitempty"`
}

func (*EthernetSwitchPort) Kind() Kind { return KindEthernetSwitchPort }

type Drive struct {
	Meta
	// System is set for drives local to a computer system.
	System            ODataID   `json:"System,omitempty"`
	Chassis           ODataID   `json:"Chassis,omitempty"`
	CapacityBytes     *int64    `json:"CapacityBytes,omitempty"`
	Protocol          Protocol  `json:"Protocol,omitempty"`
	MediaType         string    `json:"MediaType,omitempty"`
	RotationSpeedRPM  *float64  `json:"RotationSpeedRPM,omitempty"`
	SerialNumber      string    `json:"SerialNumber,omitempty"`
	PCIeConnectionIDs []string  `json:"PCIeConnectionIDs,omitempty"`
	EraseOnDetach     bool      `json:"EraseOnDetach,omitempty"`
	Endpoints         []ODataID `json:"Endpoints,omitempty"`
}

func (*Drive) Kind() Kind { return KindDrive }

func (d *Drive) IsLocal() bool { return d.System != "" }

type Volume struct {
	Meta
	StorageService ODataID   `json:"StorageService,omitempty"`
	CapacityBytes  *int64    `json:"CapacityBytes,omitempty"`
	Protocol       Protocol  `json:"Protocol,omitempty"`
	Bootable       bool      `json:"Bootable,omitempty"`
	Endpoints      []ODataID `json:"Endpoints,omitempty"`
}

func (*Volume) Kind() Kind { return KindVolume }

type EndpointRole string

const (
	RoleInitiator EndpointRole = "Initiator"
	RoleTarget    EndpointRole = "Target"
)

type ConnectedEntity struct {
	Role   EndpointRole `json:"EntityRole,omitempty"`
	Entity ODataID      `json:"EntityLink,omitempty"`
}

type Identifier struct {
	DurableName       string `json:"DurableName"`
	DurableNameFormat string `json:"DurableNameFormat,omitempty"`
}

type Endpoint struct {
	Meta
	Protocol          Protocol          `json:"EndpointProtocol,omitempty"`
	Role              EndpointRole      `json:"Role,omitempty"`
	ConnectedEntities []ConnectedEntity `json:"ConnectedEntities,omitempty"`
	Fabric            ODataID           `json:"Fabric,omitempty"`
	Zone              ODataID           `json:"Zone,omitempty"`
	Identifiers       []Identifier      `json:"Identifiers,omitempty"`
}

func (*Endpoint) Kind() Kind { return KindEndpoint }

// Entity returns the first connected entity with the given role.
func (e *Endpoint) Entity(role EndpointRole) ODataID {
	for _, ce := range e.ConnectedEntities {
		if ce.Role == role && ce.Entity != "" {
			return ce.Entity
		}
	}
	return ""
}

// Attachable reports whether the endpoint is a target exposing a drive,
// volume or processor.
func (e *Endpoint) Attachable() bool {
	if e.Role != RoleTarget {
		return false
	}
	entity := e.Entity(RoleTarget)
	if entity == "" {
		return false
	}
	switch entity.Parent().Last() {
	case "Drives", "Volumes", "Processors":
		return true
	}
	return false
}

// DurableName returns the first identifier, typically an NQN or IQN.
func (e *Endpoint) DurableName() string {
	if len(e.Identifiers) == 0 {
		return ""
	}
	return e.Identifiers[0].DurableName
}

type Zone struct {
	Meta
	Fabric    ODataID   `json:"Fabric,omitempty"`
	Endpoints []ODataID `json:"Endpoints,omitempty"`
	// Node is the composed node owning the zone, if any.
	Node ODataID `json:"Node,omitempty"`
}

func (*Zone) Kind() Kind { return KindZone }

type Fabric struct {
	Meta
	FabricType Protocol `json:"FabricType,omitempty"`
	MaxZones   *int     `json:"MaxZones,omitempty"`
}

func (*Fabric) Kind() Kind { return KindFabric }

type Chassis struct {
	Meta
	ChassisType      string    `json:"ChassisType,omitempty"`
	Parent           ODataID   `json:"ContainedBy,omitempty"`
	ContainedSystems []ODataID `json:"ComputerSystems,omitempty"`
	Drives           []ODataID `json:"Drives,omitempty"`
}

func (*Chassis) Kind() Kind { return KindChassis }
