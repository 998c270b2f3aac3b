// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// topLevel maps the collections directly under the service root to the
// kind of their members.
var topLevel = map[string]model.Kind{
	"Systems": model.KindComputerSystem,
	"Chassis": model.KindChassis,
	"Fabrics": model.KindFabric,
	"Drives":  model.KindDrive,
	"Volumes": model.KindVolume,
}

var odataTypes = map[model.Kind]string{
	model.KindComputerSystem:     "#ComputerSystem.v1_3_0.ComputerSystem",
	model.KindProcessor:          "#Processor.v1_0_0.Processor",
	model.KindMemory:             "#Memory.v1_1_0.Memory",
	model.KindEthernetInterface:  "#EthernetInterface.v1_1_0.EthernetInterface",
	model.KindEthernetSwitchPort: "#EthernetSwitchPort.v1_0_0.EthernetSwitchPort",
	model.KindDrive:              "#Drive.v1_1_1.Drive",
	model.KindVolume:             "#Volume.v1_1_0.Volume",
	model.KindEndpoint:           "#Endpoint.v1_0_0.Endpoint",
	model.KindZone:               "#Zone.v1_0_0.Zone",
	model.KindFabric:             "#Fabric.v1_0_0.Fabric",
	model.KindChassis:            "#Chassis.v1_3_0.Chassis",
}

// internalProperties are stored with a resource but not served.
var internalProperties = []string{"ServiceUUID", "SourceURI"}

// collection serves the members of kind directly below the request path.
func (s *Server) collection(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestURI(r)
		all, err := s.cfg.Store.Resources().List(r.Context(), store.ResourceFilter{Kind: kind, Prefix: id + "/"})
		if err != nil {
			writeError(w, r, service.Wrap(err))
			return
		}
		members := make([]model.ODataID, 0, len(all))
		for _, res := range all {
			if m := res.Base().ODataID; m.Parent() == id {
				members = append(members, m)
			}
		}
		writeJSON(w, r, http.StatusOK, redfish.NewCollection(id, collectionName(id), members))
	}
}

// resource serves the resource at the request path when it is of kind.
func (s *Server) resource(kind model.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := requestURI(r)
		res, err := s.cfg.Store.Resources().Get(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) || (err == nil && res.Kind() != kind) {
			writeError(w, r, service.NewNotFoundError(id))
			return
		}
		if err != nil {
			writeError(w, r, service.Wrap(err))
			return
		}
		doc, err := render(res)
		if err != nil {
			writeError(w, r, service.NewInternalError(err))
			return
		}
		writeJSON(w, r, http.StatusOK, doc)
	}
}

// render returns the served document of a stored resource.
func render(res model.Resource) (map[string]any, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for _, k := range internalProperties {
		delete(doc, k)
	}
	if t, ok := odataTypes[res.Kind()]; ok {
		doc["@odata.type"] = t
	}
	return doc, nil
}

func requestURI(r *http.Request) model.ODataID {
	return model.ODataID(strings.TrimRight(r.URL.Path, "/"))
}

func collectionName(id model.ODataID) string {
	return id.Last() + " Collection"
}
