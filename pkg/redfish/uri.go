// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package redfish

import (
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

const rootPath = "/redfish/v1"

// flattened collections are served at the top level regardless of which
// chassis or storage service holds them.
var flattened = map[string]bool{
	"Drives":  true,
	"Volumes": true,
}

// LocalURI translates a URI on an external service into the PodM URI of
// the same resource. Every id segment gets the service's short id as a
// prefix, so ids from different services cannot collide:
//
//	/redfish/v1/Systems/1/Processors/2 -> /redfish/v1/Systems/ab12cd34-1/Processors/ab12cd34-2
//	/redfish/v1/Chassis/3/Drives/4     -> /redfish/v1/Drives/ab12cd34-3-4
//
// It returns "" for URIs outside /redfish/v1.
func LocalURI(serviceUUID, source string) model.ODataID {
	rest, ok := strings.CutPrefix(strings.TrimRight(source, "/"), rootPath+"/")
	if !ok || rest == "" {
		return ""
	}
	segs := strings.Split(rest, "/")
	short := model.ShortID(serviceUUID)

	// {Parent}/{pid}/{Drives|Volumes}/{id}
	if len(segs) == 4 && flattened[segs[2]] {
		return model.ODataID(rootPath).Join(segs[2], model.ResourceID(serviceUUID, source, true))
	}

	for i := 1; i < len(segs); i += 2 {
		segs[i] = short + "-" + segs[i]
	}
	return model.ODataID(rootPath).Join(segs...)
}

// LocalURIs translates a list of links, dropping those outside /redfish/v1.
func LocalURIs(serviceUUID string, links []model.Link) []model.ODataID {
	out := make([]model.ODataID, 0, len(links))
	for _, l := range links {
		if id := LocalURI(serviceUUID, l.ODataID.String()); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func localLink(serviceUUID string, l *model.Link) model.ODataID {
	if l == nil {
		return ""
	}
	return LocalURI(serviceUUID, l.ODataID.String())
}
