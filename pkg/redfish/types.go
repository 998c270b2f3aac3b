// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package redfish holds the JSON wire types exchanged with external Redfish
// services and their mapping onto PodM resources.
package redfish

import (
	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// Resource carries the properties every Redfish resource has.
type Resource struct {
	ODataID     string       `json:"@odata.id"`
	ODataType   string       `json:"@odata.type,omitempty"`
	ID          string       `json:"Id"`
	Name        string       `json:"Name,omitempty"`
	Description string       `json:"Description,omitempty"`
	Status      model.Status `json:"Status"`
}

// Collection is a Redfish resource collection.
type Collection struct {
	ODataID      string       `json:"@odata.id,omitempty"`
	Name         string       `json:"Name,omitempty"`
	Members      []model.Link `json:"Members"`
	MembersCount int          `json:"Members@odata.count"`
}

// NewCollection builds a collection body for the given member URIs.
func NewCollection(id model.ODataID, name string, members []model.ODataID) Collection {
	return Collection{
		ODataID:      id.String(),
		Name:         name,
		Members:      model.Links(members),
		MembersCount: len(members),
	}
}

type ServiceRoot struct {
	Resource
	RedfishVersion   string      `json:"RedfishVersion,omitempty"`
	UUID             string      `json:"UUID"`
	Systems          *model.Link `json:"Systems,omitempty"`
	Chassis          *model.Link `json:"Chassis,omitempty"`
	Fabrics          *model.Link `json:"Fabrics,omitempty"`
	StorageServices  *model.Link `json:"StorageServices,omitempty"`
	EthernetSwitches *model.Link `json:"EthernetSwitches,omitempty"`
	EventService     *model.Link `json:"EventService,omitempty"`
	Nodes            *model.Link `json:"Nodes,omitempty"`
	Services         *model.Link `json:"Services,omitempty"`
	Oem              struct {
		IntelRackScale struct {
			ServiceType string `json:"ServiceType,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type ResetAction struct {
	Target              string            `json:"target"`
	AllowableResetTypes []model.ResetType `json:"ResetType@Redfish.AllowableValues,omitempty"`
}

type ComputerSystem struct {
	Resource
	UUID             string           `json:"UUID,omitempty"`
	SystemType       model.SystemType `json:"SystemType,omitempty"`
	PowerState       model.PowerState `json:"PowerState,omitempty"`
	Boot             model.Boot       `json:"Boot"`
	ProcessorSummary struct {
		Count *int   `json:"Count,omitempty"`
		Model string `json:"Model,omitempty"`
	} `json:"ProcessorSummary"`
	MemorySummary struct {
		TotalSystemMemoryGiB *float64 `json:"TotalSystemMemoryGiB,omitempty"`
	} `json:"MemorySummary"`
	TrustedModules     []model.TrustedModule `json:"TrustedModules,omitempty"`
	Processors         *model.Link           `json:"Processors,omitempty"`
	Memory             *model.Link           `json:"Memory,omitempty"`
	EthernetInterfaces *model.Link           `json:"EthernetInterfaces,omitempty"`
	Links              struct {
		Chassis   []model.Link `json:"Chassis,omitempty"`
		Endpoints []model.Link `json:"Endpoints,omitempty"`
	} `json:"Links"`
	Actions struct {
		Reset *ResetAction `json:"#ComputerSystem.Reset,omitempty"`
	} `json:"Actions"`
	Oem struct {
		IntelRackScale struct {
			PCIeConnectionID []string `json:"PCIeConnectionId,omitempty"`
			TxtEnabled       *bool    `json:"TrustedExecutionTechnologyEnabled,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type Processor struct {
	Resource
	Socket         string `json:"Socket,omitempty"`
	Model          string `json:"Model,omitempty"`
	Manufacturer   string `json:"Manufacturer,omitempty"`
	ProcessorType  string `json:"ProcessorType,omitempty"`
	InstructionSet string `json:"InstructionSet,omitempty"`
	TotalCores     *int   `json:"TotalCores,omitempty"`
	TotalThreads   *int   `json:"TotalThreads,omitempty"`
	MaxSpeedMHz    *int   `json:"MaxSpeedMHz,omitempty"`
	Links          struct {
		Endpoints []model.Link `json:"Endpoints,omitempty"`
	} `json:"Links"`
	Oem struct {
		IntelRackScale struct {
			Capabilities []string `json:"Capabilities,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type Memory struct {
	Resource
	MemoryDeviceType  string `json:"MemoryDeviceType,omitempty"`
	Manufacturer      string `json:"Manufacturer,omitempty"`
	OperatingSpeedMHz *int   `json:"OperatingSpeedMhz,omitempty"`
	DataWidthBits     *int   `json:"DataWidthBits,omitempty"`
	CapacityMiB       *int   `json:"CapacityMiB,omitempty"`
}

type VLAN struct {
	Resource
	VLANEnable *bool `json:"VLANEnable,omitempty"`
	VLANId     int   `json:"VLANId"`
	Oem        struct {
		IntelRackScale struct {
			Tagged bool `json:"Tagged"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type EthernetInterface struct {
	Resource
	MACAddress string      `json:"MACAddress,omitempty"`
	SpeedMbps  *int        `json:"SpeedMbps,omitempty"`
	VLANs      *model.Link `json:"VLANs,omitempty"`
	Links      struct {
		Oem struct {
			IntelRackScale struct {
				NeighborPort *model.Link `json:"NeighborPort,omitempty"`
			} `json:"Intel_RackScale"`
		} `json:"Oem"`
	} `json:"Links"`
}

type EthernetSwitch struct {
	Resource
	Ports *model.Link `json:"Ports,omitempty"`
}

type EthernetSwitchPort struct {
	Resource
	PortID        string      `json:"PortId,omitempty"`
	LinkSpeedMbps *int        `json:"LinkSpeedMbps,omitempty"`
	NeighborMAC   string      `json:"NeighborMAC,omitempty"`
	VLANs         *model.Link `json:"VLANs,omitempty"`
}

type Drive struct {
	Resource
	CapacityBytes    *int64         `json:"CapacityBytes,omitempty"`
	Protocol         model.Protocol `json:"Protocol,omitempty"`
	MediaType        string         `json:"MediaType,omitempty"`
	RotationSpeedRPM *float64       `json:"RotationSpeedRPM,omitempty"`
	SerialNumber     string         `json:"SerialNumber,omitempty"`
	Links            struct {
		Chassis   *model.Link  `json:"Chassis,omitempty"`
		Endpoints []model.Link `json:"Endpoints,omitempty"`
	} `json:"Links"`
	Oem struct {
		IntelRackScale struct {
			EraseOnDetach    *bool    `json:"EraseOnDetach,omitempty"`
			PCIeConnectionID []string `json:"PCIeConnectionId,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type Volume struct {
	Resource
	CapacityBytes *int64 `json:"CapacityBytes,omitempty"`
	Links         struct {
		Endpoints []model.Link `json:"Endpoints,omitempty"`
	} `json:"Links"`
	Oem struct {
		IntelRackScale struct {
			Bootable bool `json:"Bootable,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type StorageService struct {
	Resource
	Volumes   *model.Link `json:"Volumes,omitempty"`
	Drives    *model.Link `json:"Drives,omitempty"`
	Endpoints *model.Link `json:"Endpoints,omitempty"`
}

type ConnectedEntity struct {
	EntityRole model.EndpointRole `json:"EntityRole,omitempty"`
	EntityLink *model.Link        `json:"EntityLink,omitempty"`
}

type Endpoint struct {
	Resource
	EndpointProtocol  model.Protocol     `json:"EndpointProtocol,omitempty"`
	ConnectedEntities []ConnectedEntity  `json:"ConnectedEntities,omitempty"`
	Identifiers       []model.Identifier `json:"Identifiers,omitempty"`
}

// ZoneLinks is both the Links object of a zone and the body PodM sends to
// create or update one.
type ZoneLinks struct {
	Endpoints []model.Link `json:"Endpoints"`
}

type Zone struct {
	Resource
	Links ZoneLinks `json:"Links"`
}

// ZoneRequest is the POST/PATCH body for a fabric zone.
type ZoneRequest struct {
	Links ZoneLinks `json:"Links"`
}

func NewZoneRequest(sourceEndpoints []string) ZoneRequest {
	links := make([]model.Link, 0, len(sourceEndpoints))
	for _, e := range sourceEndpoints {
		links = append(links, model.Link{ODataID: model.ODataID(e)})
	}
	return ZoneRequest{Links: ZoneLinks{Endpoints: links}}
}

type Fabric struct {
	Resource
	FabricType model.Protocol `json:"FabricType,omitempty"`
	MaxZones   *int           `json:"MaxZones,omitempty"`
	Zones      *model.Link    `json:"Zones,omitempty"`
	Endpoints  *model.Link    `json:"Endpoints,omitempty"`
}

type Chassis struct {
	Resource
	ChassisType string      `json:"ChassisType,omitempty"`
	Drives      *model.Link `json:"Drives,omitempty"`
	Links       struct {
		ComputerSystems []model.Link `json:"ComputerSystems,omitempty"`
		ContainedBy     *model.Link  `json:"ContainedBy,omitempty"`
		Drives          []model.Link `json:"Drives,omitempty"`
	} `json:"Links"`
	Oem struct {
		IntelRackScale struct {
			PCIeConnectionID []string `json:"PCIeConnectionId,omitempty"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

type ResetRequest struct {
	ResetType model.ResetType `json:"ResetType"`
}

// BootPatch is the PATCH body applying a boot override to a system.
type BootPatch struct {
	Boot model.Boot `json:"Boot"`
}

// ClearTPMPatch asks a system to clear its TPM on the next restart.
type ClearTPMPatch struct {
	Oem struct {
		IntelRackScale struct {
			ClearTPMOnRestart bool `json:"ClearTPMOnRestart"`
		} `json:"Intel_RackScale"`
	} `json:"Oem"`
}

func NewClearTPMPatch() ClearTPMPatch {
	var p ClearTPMPatch
	p.Oem.IntelRackScale.ClearTPMOnRestart = true
	return p
}
