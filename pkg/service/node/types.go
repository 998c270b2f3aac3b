// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

const (
	nodeType       = "#ComposedNode.v1_1_0.ComposedNode"
	nodeContext    = "/redfish/v1/$metadata#Nodes/Members/$entity"
	actionInfoType = "#ActionInfo.v1_0_0.ActionInfo"
	nodesRoot      = model.ODataID("/redfish/v1/Nodes")
)

// Node is the Redfish document of a composed node.
type Node struct {
	ODataContext              string                  `json:"@odata.context"`
	ODataID                   model.ODataID           `json:"@odata.id"`
	ODataType                 string                  `json:"@odata.type"`
	ID                        string                  `json:"Id"`
	Name                      string                  `json:"Name"`
	Description               string                  `json:"Description,omitempty"`
	UUID                      string                  `json:"UUID,omitempty"`
	Status                    model.Status            `json:"Status"`
	ComposedNodeState         model.ComposedNodeState `json:"ComposedNodeState"`
	PowerState                model.PowerState        `json:"PowerState,omitempty"`
	Boot                      model.Boot              `json:"Boot"`
	ClearTPMOnDelete          bool                    `json:"ClearTPMOnDelete"`
	ClearOptaneMemoryOnDelete bool                    `json:"ClearOptaneMemoryOnDelete"`
	Processors                ProcessorSummary        `json:"Processors"`
	Memory                    MemorySummary           `json:"Memory"`
	Links                     Links                   `json:"Links"`
	Actions                   Actions                 `json:"Actions"`
	Oem                       Oem                     `json:"Oem"`
}

type ProcessorSummary struct {
	Count  int          `json:"Count"`
	Model  string       `json:"Model,omitempty"`
	Status model.Status `json:"Status"`
}

type MemorySummary struct {
	TotalSystemMemoryGiB *float64     `json:"TotalSystemMemoryGiB,omitempty"`
	Status               model.Status `json:"Status"`
}

type Links struct {
	ComputerSystem     *model.Link  `json:"ComputerSystem,omitempty"`
	Processors         []model.Link `json:"Processors"`
	Memory             []model.Link `json:"Memory"`
	EthernetInterfaces []model.Link `json:"EthernetInterfaces"`
	Storage            []model.Link `json:"Storage"`
	Endpoints          []model.Link `json:"Endpoints"`
	Zones              []model.Link `json:"Zones,omitempty"`
}

type Action struct {
	Target string `json:"target"`
}

type ResetAction struct {
	Target          string            `json:"target"`
	AllowableValues []model.ResetType `json:"ResetType@Redfish.AllowableValues"`
}

// InfoAction is an action whose parameters are described by an ActionInfo
// resource.
type InfoAction struct {
	Target     string `json:"target"`
	ActionInfo string `json:"@Redfish.ActionInfo"`
}

type Actions struct {
	Reset          ResetAction `json:"#ComposedNode.Reset"`
	Assemble       Action      `json:"#ComposedNode.Assemble"`
	AttachResource InfoAction  `json:"#ComposedNode.AttachResource"`
	DetachResource InfoAction  `json:"#ComposedNode.DetachResource"`
	ForceDelete    Action      `json:"#ComposedNode.ForceDelete"`
}

type Oem struct {
	IntelRackScale struct {
		TaggedValues map[string]any `json:"TaggedValues"`
	} `json:"Intel_RackScale"`
}

// ActionInfo describes the parameters of AttachResource or DetachResource.
type ActionInfo struct {
	ODataID    model.ODataID `json:"@odata.id"`
	ODataType  string        `json:"@odata.type"`
	ID         string        `json:"Id"`
	Name       string        `json:"Name"`
	Parameters []Parameter   `json:"Parameters"`
}

type Parameter struct {
	Name            string `json:"Name"`
	Required        bool   `json:"Required"`
	DataType        string `json:"DataType"`
	ObjectDataType  string `json:"ObjectDataType,omitempty"`
	AllowableValues any    `json:"AllowableValues"`
}

// ResourceRequest is the body of AttachResource and DetachResource.
type ResourceRequest struct {
	Resource *model.Link    `json:"Resource"`
	Protocol model.Protocol `json:"Protocol,omitempty"`
}

// Patch holds the writable properties of a node. Nil fields are left
// unchanged.
type Patch struct {
	Name                      *string       `json:"Name"`
	Description               *string       `json:"Description"`
	Boot                      *BootOverride `json:"Boot"`
	ClearTPMOnDelete          *bool         `json:"ClearTPMOnDelete"`
	ClearOptaneMemoryOnDelete *bool         `json:"ClearOptaneMemoryOnDelete"`
	Oem                       *PatchOem     `json:"Oem"`
}

type BootOverride struct {
	BootSourceOverrideEnabled *string `json:"BootSourceOverrideEnabled"`
	BootSourceOverrideTarget  *string `json:"BootSourceOverrideTarget"`
	BootSourceOverrideMode    *string `json:"BootSourceOverrideMode"`
}

type PatchOem struct {
	IntelRackScale *struct {
		// A null value removes the tag.
		TaggedValues map[string]any `json:"TaggedValues"`
	} `json:"Intel_RackScale"`
}

// DecodePatch reads a node PATCH body. Unknown properties are rejected.
func DecodePatch(r io.Reader) (*Patch, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var p Patch
	if err := dec.Decode(&p); err != nil {
		var v service.Violations
		if errors.Is(err, io.EOF) {
			v.Add("Request body is empty.")
		} else {
			v.Add("%s", err.Error())
		}
		return nil, v.Err("Malformed node update")
	}
	return &p, nil
}

// DecodeResourceRequest reads an AttachResource or DetachResource body.
func DecodeResourceRequest(r io.Reader) (*ResourceRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var req ResourceRequest
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var v service.Violations
		v.Add("%s", err.Error())
		return nil, v.Err("Malformed resource request")
	}
	if req.Resource == nil || req.Resource.ODataID == "" {
		var v service.Violations
		v.Add("Resource: may not be null")
		return nil, v.Err("Malformed resource request")
	}
	return &req, nil
}
