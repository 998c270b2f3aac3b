// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Kind string

const (
	KindComputerSystem     Kind = "ComputerSystem"
	KindProcessor          Kind = "Processor"
	KindMemory             Kind = "Memory"
	KindEthernetInterface  Kind = "EthernetInterface"
	KindEthernetSwitchPort Kind = "EthernetSwitchPort"
	KindDrive              Kind = "Drive"
	KindVolume             Kind = "Volume"
	KindEndpoint           Kind = "Endpoint"
	KindZone               Kind = "Zone"
	KindFabric             Kind = "Fabric"
	KindChassis            Kind = "Chassis"
)

var ErrUnknownKind = errors.New("unknown resource kind")

// Meta holds the fields shared by every discovered resource.
type Meta struct {
	ODataID     ODataID `json:"@odata.id"`
	ID          string  `json:"Id"`
	Name        string  `json:"Name,omitempty"`
	Description string  `json:"Description,omitempty"`
	Status      Status  `json:"Status"`

	// ServiceUUID identifies the external service the resource was
	// discovered from, SourceURI is its path on that service.
	ServiceUUID string `json:"ServiceUUID,omitempty"`
	SourceURI   string `json:"SourceURI,omitempty"`

	Allocated bool `json:"Allocated,omitempty"`
}

func (m *Meta) Base() *Meta { return m }

// Resource is implemented by pointers to every discoverable resource type.
type Resource interface {
	Base() *Meta
	Kind() Kind
}

// New returns an empty resource of the given kind.
func New(kind Kind) (Resource, error) {
	switch kind {
	case KindComputerSystem:
		return &ComputerSystem{}, nil
	case KindProcessor:
		return &Processor{}, nil
	case KindMemory:
		return &Memory{}, nil
	case KindEthernetInterface:
		return &EthernetInterface{}, nil
	case KindEthernetSwitchPort:
		return &EthernetSwitchPort{}, nil
	case KindDrive:
		return &Drive{}, nil
	case KindVolume:
		return &Volume{}, nil
	case KindEndpoint:
		return &Endpoint{}, nil
	case KindZone:
		return &Zone{}, nil
	case KindFabric:
		return &Fabric{}, nil
	case KindChassis:
		return &Chassis{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// Encode serializes a resource into its stored document form.
func Encode(r Resource) ([]byte, error) {
	return json.Marshal(r)
}

// Decode is the inverse of Encode.
func Decode(kind Kind, data []byte) (Resource, error) {
	r, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return r, nil
}

// Clone returns a deep copy through the document form.
func Clone[T Resource](r T) (T, error) {
	var zero T
	data, err := Encode(r)
	if err != nil {
		return zero, err
	}
	c, err := Decode(r.Kind(), data)
	if err != nil {
		return zero, err
	}
	return c.(T), nil
}
