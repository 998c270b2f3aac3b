// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"time"
)

type ComposedNodeState string

const (
	NodeAllocating ComposedNodeState = "Allocating"
	NodeAllocated  ComposedNodeState = "Allocated"
	NodeAssembling ComposedNodeState = "Assembling"
	NodeAssembled  ComposedNodeState = "Assembled"
	NodeFailed     ComposedNodeState = "Failed"
)

// ComposedNode is a logical server built from allocated assets.
type ComposedNode struct {
	ODataID     ODataID           `json:"@odata.id"`
	ID          string            `json:"Id"`
	Name        string            `json:"Name"`
	Description string            `json:"Description,omitempty"`
	Status      Status            `json:"Status"`
	State       ComposedNodeState `json:"ComposedNodeState"`

	ComputerSystem         ODataID  `json:"ComputerSystem,omitempty"`
	RemoteDriveCapacityGiB *float64 `json:"RemoteDriveCapacityGiB,omitempty"`

	Processors         []ODataID `json:"Processors,omitempty"`
	Memory             []ODataID `json:"Memory,omitempty"`
	EthernetInterfaces []ODataID `json:"EthernetInterfaces,omitempty"`
	Drives             []ODataID `json:"Drives,omitempty"`
	Volumes            []ODataID `json:"Volumes,omitempty"`
	Endpoints          []ODataID `json:"Endpoints,omitempty"`
	Zones              []ODataID `json:"Zones,omitempty"`

	// Associations survive the loss of the linked resources and drive
	// recovery once they are rediscovered.
	ComputerSystemUUID           string `json:"ComputerSystemUUID,omitempty"`
	AssociatedComputeServiceUUID string `json:"AssociatedComputeServiceUUID,omitempty"`
	AssociatedStorageServiceUUID string `json:"AssociatedStorageServiceUUID,omitempty"`
	AssociatedRemoteTarget       string `json:"AssociatedRemoteTarget,omitempty"`
	RequestedDrives              int    `json:"RequestedDrives,omitempty"`
	EligibleForRecovery          bool   `json:"EligibleForRecovery,omitempty"`

	ClearTPMOnDelete          bool           `json:"ClearTPMOnDelete,omitempty"`
	ClearOptaneMemoryOnDelete bool           `json:"ClearOptaneMemoryOnDelete,omitempty"`
	TaggedValues              map[string]any `json:"TaggedValues,omitempty"`
	Boot                      Boot           `json:"Boot"`
	PriorUntaggedVLAN         *int           `json:"PriorUntaggedVLAN,omitempty"`

	CreatedAt time.Time `json:"CreatedAt"`
	UpdatedAt time.Time `json:"UpdatedAt"`
}

func NodeURI(id string) ODataID {
	return ODataID("/redfish/v1/Nodes/" + id)
}

func (n *ComposedNode) IsInAnyOfStates(states ...ComposedNodeState) bool {
	return slices.Contains(states, n.State)
}

// AttachAsset links the resource to the node and marks it allocated.
func (n *ComposedNode) AttachAsset(r Resource) {
	m := r.Base()
	m.Allocated = true
	id := m.ODataID

	switch a := r.(type) {
	case *ComputerSystem:
		n.ComputerSystem = id
		n.ComputerSystemUUID = a.UUID
		n.AssociatedComputeServiceUUID = m.ServiceUUID
	case *Processor:
		n.Processors = addID(n.Processors, id)
	case *Memory:
		n.Memory = addID(n.Memory, id)
	case *EthernetInterface:
		n.EthernetInterfaces = addID(n.EthernetInterfaces, id)
	case *Drive:
		n.Drives = addID(n.Drives, id)
	case *Volume:
		n.Volumes = addID(n.Volumes, id)
	case *Endpoint:
		n.Endpoints = addID(n.Endpoints, id)
		if a.Role == RoleTarget && a.DurableName() != "" {
			n.AssociatedRemoteTarget = a.DurableName()
			n.AssociatedStorageServiceUUID = m.ServiceUUID
		}
	case *Zone:
		n.Zones = addID(n.Zones, id)
		a.Node = n.ODataID
	}
}

// DetachAsset unlinks the resource and releases its allocation.
func (n *ComposedNode) DetachAsset(r Resource) {
	m := r.Base()
	m.Allocated = false
	id := m.ODataID

	switch a := r.(type) {
	case *ComputerSystem:
		if n.ComputerSystem == id {
			n.ComputerSystem = ""
		}
	case *Processor:
		n.Processors = removeID(n.Processors, id)
	case *Memory:
		n.Memory = removeID(n.Memory, id)
	case *EthernetInterface:
		n.EthernetInterfaces = removeID(n.EthernetInterfaces, id)
	case *Drive:
		n.Drives = removeID(n.Drives, id)
	case *Volume:
		n.Volumes = removeID(n.Volumes, id)
	case *Endpoint:
		n.Endpoints = removeID(n.Endpoints, id)
		if a.DurableName() != "" && a.DurableName() == n.AssociatedRemoteTarget {
			n.AssociatedRemoteTarget = ""
			n.AssociatedStorageServiceUUID = ""
		}
	case *Zone:
		n.Zones = removeID(n.Zones, id)
		if a.Node == n.ODataID {
			a.Node = ""
		}
	}
}

// HasAsset reports whether id is linked to the node in any role.
func (n *ComposedNode) HasAsset(id ODataID) bool {
	return slices.Contains(n.Assets(), id)
}

// Assets lists every linked resource, system first.
func (n *ComposedNode) Assets() []ODataID {
	var out []ODataID
	if n.ComputerSystem != "" {
		out = append(out, n.ComputerSystem)
	}
	for _, ids := range [][]ODataID{
		n.Processors, n.Memory, n.EthernetInterfaces,
		n.Drives, n.Volumes, n.Endpoints, n.Zones,
	} {
		out = append(out, ids...)
	}
	return out
}

// UnlinkComputerSystem drops the system link and takes the node offline.
// The UUID association is kept for recovery.
func (n *ComposedNode) UnlinkComputerSystem() {
	n.ComputerSystem = ""
	n.Status = StatusOfflineCritical
}

// Disable fails the node. An assembled node becomes eligible for recovery.
func (n *ComposedNode) Disable() {
	if n.State == NodeAssembled {
		n.EligibleForRecovery = true
	}
	n.State = NodeFailed
	n.Status = StatusOfflineCritical
}

// SetTaggedValues merges values into the node's tags. A nil value removes
// the key.
func (n *ComposedNode) SetTaggedValues(values map[string]any) {
	for k, v := range values {
		if v == nil {
			delete(n.TaggedValues, k)
			continue
		}
		if n.TaggedValues == nil {
			n.TaggedValues = make(map[string]any)
		}
		n.TaggedValues[k] = v
	}
}
