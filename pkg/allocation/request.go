// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

// RequestedNode is the body of the Allocate action.
type RequestedNode struct {
	Name                 string                       `json:"Name"`
	Description          string                       `json:"Description,omitempty"`
	Processors           []RequestedProcessor         `json:"Processors,omitempty"`
	Memory               []RequestedMemory            `json:"Memory,omitempty"`
	RemoteDrives         []RequestedRemoteDrive       `json:"RemoteDrives,omitempty"`
	LocalDrives          []RequestedLocalDrive        `json:"LocalDrives,omitempty"`
	EthernetInterfaces   []RequestedEthernetInterface `json:"EthernetInterfaces,omitempty"`
	Security             *RequestedSecurity           `json:"Security,omitempty"`
	TotalSystemCoreCount *int                         `json:"TotalSystemCoreCount,omitempty"`
	TotalSystemMemoryMiB *int                         `json:"TotalSystemMemoryMiB,omitempty"`
	Oem                  RequestedOem                 `json:"Oem"`
}

type RequestedProcessor struct {
	Model              string      `json:"Model,omitempty"`
	TotalCores         *int        `json:"TotalCores,omitempty"`
	AchievableSpeedMHz *int        `json:"AchievableSpeedMHz,omitempty"`
	InstructionSet     string      `json:"InstructionSet,omitempty"`
	Manufacturer       string      `json:"Manufacturer,omitempty"`
	ProcessorType      string      `json:"ProcessorType,omitempty"`
	Capabilities       []string    `json:"Capabilities,omitempty"`
	Resource           *model.Link `json:"Resource,omitempty"`
	Chassis            *model.Link `json:"Chassis,omitempty"`
}

type RequestedMemory struct {
	CapacityMiB      *int        `json:"CapacityMiB,omitempty"`
	MemoryDeviceType string      `json:"MemoryDeviceType,omitempty"`
	SpeedMHz         *int        `json:"SpeedMHz,omitempty"`
	Manufacturer     string      `json:"Manufacturer,omitempty"`
	DataWidthBits    *int        `json:"DataWidthBits,omitempty"`
	Resource         *model.Link `json:"Resource,omitempty"`
	Chassis          *model.Link `json:"Chassis,omitempty"`
}

// IsSizeOnly reports whether only a capacity is requested.
func (m RequestedMemory) IsSizeOnly() bool {
	return m.MemoryDeviceType == "" && m.SpeedMHz == nil && m.Manufacturer == "" &&
		m.DataWidthBits == nil && m.Resource == nil && m.Chassis == nil
}

type RequestedMaster struct {
	// Type is Snapshot or Clone.
	Type     string      `json:"Type,omitempty"`
	Resource *model.Link `json:"Resource,omitempty"`
}

type RequestedRemoteDrive struct {
	CapacityGiB *float64         `json:"CapacityGiB,omitempty"`
	Protocol    model.Protocol   `json:"Protocol,omitempty"`
	Master      *RequestedMaster `json:"Master,omitempty"`
	Resource    *model.Link      `json:"Resource,omitempty"`
}

type RequestedLocalDrive struct {
	CapacityGiB  *float64       `json:"CapacityGiB,omitempty"`
	Type         string         `json:"Type,omitempty"`
	MinRPM       *int           `json:"MinRPM,omitempty"`
	SerialNumber string         `json:"SerialNumber,omitempty"`
	Interface    model.Protocol `json:"Interface,omitempty"`
	Resource     *model.Link    `json:"Resource,omitempty"`
	Chassis      *model.Link    `json:"Chassis,omitempty"`
}

type RequestedEthernetInterface struct {
	SpeedMbps   *int         `json:"SpeedMbps,omitempty"`
	PrimaryVLAN *int         `json:"PrimaryVLAN,omitempty"`
	VLANs       []model.VLAN `json:"VLANs,omitempty"`
	Resource    *model.Link  `json:"Resource,omitempty"`
	Chassis     *model.Link  `json:"Chassis,omitempty"`
}

type RequestedSecurity struct {
	TpmPresent       *bool  `json:"TpmPresent,omitempty"`
	TpmInterfaceType string `json:"TpmInterfaceType,omitempty"`
	TxtEnabled       *bool  `json:"TxtEnabled,omitempty"`
}

type RequestedOem struct {
	IntelRackScale RackScaleOem `json:"Intel_RackScale"`
}

type RackScaleOem struct {
	ClearTPMOnDelete *bool          `json:"ClearTPMOnDelete,omitempty"`
	TaggedValues     map[string]any `json:"TaggedValues,omitempty"`
}

// DecodeRequest reads an allocation request. Unknown properties and
// malformed JSON are validation errors.
func DecodeRequest(r io.Reader) (*RequestedNode, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var req RequestedNode
	if err := dec.Decode(&req); err != nil {
		var v service.Violations
		switch {
		case errors.Is(err, io.EOF):
			v.Add("Request body is empty.")
		default:
			v.Add("%s", err.Error())
		}
		return nil, v.Err("Malformed allocation request")
	}
	return &req, nil
}

func linkID(l *model.Link) model.ODataID {
	if l == nil {
		return ""
	}
	return l.ODataID
}

func field(collection string, i int, name string) string {
	return fmt.Sprintf("%s[%d].%s", collection, i, name)
}
