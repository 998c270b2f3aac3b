// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import "github.com/LeeDigitalWorks/podm/pkg/model"

type EventType string

const (
	EventStatusChange    EventType = "StatusChange"
	EventResourceUpdated EventType = "ResourceUpdated"
	EventResourceAdded   EventType = "ResourceAdded"
	EventResourceRemoved EventType = "ResourceRemoved"
	EventAlert           EventType = "Alert"
)

// Event is one record of an EventArray pushed by an external service.
type Event struct {
	EventType         EventType  `json:"EventType"`
	EventID           string     `json:"EventId,omitempty"`
	EventTimestamp    string     `json:"EventTimestamp,omitempty"`
	Message           string     `json:"Message,omitempty"`
	MessageID         string     `json:"MessageId,omitempty"`
	OriginOfCondition model.Link `json:"OriginOfCondition"`
}

type EventArray struct {
	ODataType string  `json:"@odata.type,omitempty"`
	ID        string  `json:"Id,omitempty"`
	Name      string  `json:"Name,omitempty"`
	Context   string  `json:"Context,omitempty"`
	Events    []Event `json:"Events"`
}

type EventService struct {
	Resource
	ServiceEnabled            *bool       `json:"ServiceEnabled,omitempty"`
	EventTypesForSubscription []EventType `json:"EventTypesForSubscription,omitempty"`
	Subscriptions             *model.Link `json:"Subscriptions,omitempty"`
}

// EventDestination is a subscription on an external service.
type EventDestination struct {
	ODataID     string      `json:"@odata.id,omitempty"`
	Name        string      `json:"Name,omitempty"`
	Destination string      `json:"Destination"`
	EventTypes  []EventType `json:"EventTypes,omitempty"`
	Context     string      `json:"Context,omitempty"`
	Protocol    string      `json:"Protocol,omitempty"`
}

// SubscriptionContext tags the subscriptions PodM creates.
const SubscriptionContext = "podm"

func NewSubscription(destination string, types []EventType) EventDestination {
	return EventDestination{
		Name:        "PodM event subscription",
		Destination: destination,
		EventTypes:  types,
		Context:     SubscriptionContext,
		Protocol:    "Redfish",
	}
}
