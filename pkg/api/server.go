// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package api serves the northbound Redfish API of the pod manager:
// composed nodes and their actions, the discovered resources, fabric zones,
// external service registration and the event listener external services
// post their events to.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LeeDigitalWorks/podm/pkg/allocation"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/service/fabric"
	"github.com/LeeDigitalWorks/podm/pkg/service/node"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

const (
	root     = "/redfish/v1"
	idVar    = "{id}"
	nodePath = root + "/Nodes/" + idVar
)

// Registrar adds an external service by the URL of its Redfish root.
type Registrar interface {
	Register(ctx context.Context, baseURL string) (*model.ExternalService, error)
}

// EventSink accepts the events an external service posted.
type EventSink interface {
	Add(serviceUUID string, events []redfish.Event) error
}

// Config holds the dependencies of the API server
type Config struct {
	// UUID is reported in the service root.
	UUID      string
	Store     store.Store
	Nodes     node.Service
	Allocator allocation.Service
	// Fabrics, Registrar and Events are optional. Their routes answer 501
	// when unset.
	Fabrics   fabric.Service
	Registrar Registrar
	Events    EventSink
}

// Server is the Redfish API handler.
type Server struct {
	cfg     Config
	router  *mux.Router
	handler http.Handler
}

// NewServer builds the router and middleware chain.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Nodes == nil {
		return nil, errors.New("Nodes is required")
	}
	if cfg.Allocator == nil {
		return nil, errors.New("Allocator is required")
	}

	s := &Server{cfg: cfg, router: mux.NewRouter()}
	s.routes()
	s.handler = withRequestID(withAccessLog(withRecovery(s.router)))
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(withMetrics)
	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	r.HandleFunc(root, s.serviceRoot).Methods(http.MethodGet)
	r.HandleFunc(root+"/", s.serviceRoot).Methods(http.MethodGet)

	// composed nodes
	r.HandleFunc(root+"/Nodes", s.listNodes).Methods(http.MethodGet)
	r.HandleFunc(root+"/Nodes/Actions/Allocate", s.allocate).Methods(http.MethodPost)
	r.HandleFunc(nodePath, s.getNode).Methods(http.MethodGet)
	r.HandleFunc(nodePath, s.updateNode).Methods(http.MethodPatch)
	r.HandleFunc(nodePath, s.deleteNode).Methods(http.MethodDelete)
	r.HandleFunc(nodePath+"/Actions/ComposedNode.{action}", s.nodeAction).Methods(http.MethodPost)
	r.HandleFunc(nodePath+"/Actions/ComposedNode.{action}/ActionInfo", s.nodeActionInfo).Methods(http.MethodGet)
	r.HandleFunc(nodePath+"/{action:AttachResource|DetachResource}ActionInfo", s.nodeActionInfo).Methods(http.MethodGet)

	// discovered resources
	for name, kind := range topLevel {
		r.HandleFunc(root+"/"+name, s.collection(kind)).Methods(http.MethodGet)
		r.HandleFunc(root+"/"+name+"/"+idVar, s.resource(kind)).Methods(http.MethodGet)
	}
	for _, sub := range []struct {
		parent string
		name   string
		kind   model.Kind
	}{
		{"Systems", "Processors", model.KindProcessor},
		{"Systems", "Memory", model.KindMemory},
		{"Systems", "EthernetInterfaces", model.KindEthernetInterface},
		{"Fabrics", "Endpoints", model.KindEndpoint},
		{"Fabrics", "Zones", model.KindZone},
	} {
		p := root + "/" + sub.parent + "/{parent}/" + sub.name
		r.HandleFunc(p, s.collection(sub.kind)).Methods(http.MethodGet)
		r.HandleFunc(p+"/"+idVar, s.resource(sub.kind)).Methods(http.MethodGet)
	}

	// zones
	r.HandleFunc(root+"/Fabrics/{parent}/Zones", s.createZone).Methods(http.MethodPost)
	r.HandleFunc(root+"/Fabrics/{parent}/Zones/"+idVar, s.updateZone).Methods(http.MethodPatch)
	r.HandleFunc(root+"/Fabrics/{parent}/Zones/"+idVar, s.deleteZone).Methods(http.MethodDelete)

	// external services
	r.HandleFunc(root+"/Services", s.listServices).Methods(http.MethodGet)
	r.HandleFunc(root+"/Services", s.registerService).Methods(http.MethodPost)
	r.HandleFunc(root+"/Services/"+idVar, s.getService).Methods(http.MethodGet)
	r.HandleFunc(root+"/EventListener/{uuid}", s.eventListener).Methods(http.MethodPost)
}

func (s *Server) serviceRoot(w http.ResponseWriter, r *http.Request) {
	doc := redfish.ServiceRoot{
		Resource: redfish.Resource{
			ODataID:   root,
			ODataType: "#ServiceRoot.v1_1_0.ServiceRoot",
			ID:        "RootService",
			Name:      "PODM Service Root",
			Status:    model.StatusEnabledOK,
		},
		RedfishVersion: "1.1.0",
		UUID:           s.cfg.UUID,
		Systems:        link(root + "/Systems"),
		Chassis:        link(root + "/Chassis"),
		Fabrics:        link(root + "/Fabrics"),
		Nodes:          link(root + "/Nodes"),
		Services:       link(root + "/Services"),
	}
	doc.Oem.IntelRackScale.ServiceType = "PODM"
	writeJSON(w, r, http.StatusOK, doc)
}

func link(p string) *model.Link {
	l := model.ODataID(p).Link()
	return &l
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, service.NewNotFoundError(model.ODataID(r.URL.Path)))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusMethodNotAllowed, errorBody{Error: errorDetail{
		Code:         generalError,
		Message:      "Method " + r.Method + " is not allowed on " + r.URL.Path,
		ExtendedInfo: []extendedInfo{},
	}})
}

func unsupported(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, service.NewUnsupportedOperationError("Operation is not supported by this pod manager"))
}
