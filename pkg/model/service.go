// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"strings"
	"time"
)

type ServiceType string

const (
	ServicePSME    ServiceType = "PSME"
	ServiceRSS     ServiceType = "RSS"
	ServiceRMM     ServiceType = "RMM"
	ServiceSPDK    ServiceType = "SPDK"
	ServiceUnknown ServiceType = "Unknown"
)

func ParseServiceType(s string) ServiceType {
	for _, t := range []ServiceType{ServicePSME, ServiceRSS, ServiceRMM, ServiceSPDK} {
		if strings.EqualFold(s, string(t)) {
			return t
		}
	}
	return ServiceUnknown
}

// ExternalService is a Redfish agent PodM discovers resources from.
type ExternalService struct {
	ODataID           ODataID     `json:"@odata.id"`
	UUID              string      `json:"UUID"`
	BaseURL           string      `json:"BaseURL"`
	ServiceType       ServiceType `json:"ServiceType"`
	Reachable         bool        `json:"Reachable"`
	LastDiscovery     time.Time   `json:"LastDiscovery"`
	EventingAvailable bool        `json:"EventingAvailable"`
	SubscriptionURI   string      `json:"SubscriptionURI,omitempty"`
	CreatedAt         time.Time   `json:"CreatedAt"`
}

func ServiceURI(uuid string) ODataID {
	return ODataID("/redfish/v1/Services/" + uuid)
}

// ShortID is the service prefix used in PodM resource ids.
func ShortID(serviceUUID string) string {
	s := strings.ReplaceAll(serviceUUID, "-", "")
	if len(s) > 8 {
		s = s[:8]
	}
	return strings.ToLower(s)
}

// ResourceID derives a PodM id from the service and the source path. Only
// the last segment is used unless withParent is set, for collections that
// flatten resources from several parents.
func ResourceID(serviceUUID, sourceURI string, withParent bool) string {
	src := ODataID(sourceURI)
	id := ShortID(serviceUUID) + "-" + src.Last()
	if withParent {
		// /Chassis/X/Drives/1 -> X-1
		if p := src.Parent().Parent().Last(); p != "" && p != "v1" {
			id = ShortID(serviceUUID) + "-" + p + "-" + src.Last()
		}
	}
	return id
}
