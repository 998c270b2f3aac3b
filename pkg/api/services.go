// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"

	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

func (s *Server) listServices(w http.ResponseWriter, r *http.Request) {
	svcs, err := s.cfg.Store.Services().List(r.Context())
	if err != nil {
		writeError(w, r, service.Wrap(err))
		return
	}
	ids := make([]model.ODataID, 0, len(svcs))
	for _, svc := range svcs {
		ids = append(ids, svc.ODataID)
	}
	writeJSON(w, r, http.StatusOK, redfish.NewCollection(root+"/Services", "Services Collection", ids))
}

func (s *Server) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.cfg.Store.Services().Get(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, service.NewNotFoundError(requestURI(r)))
		return
	}
	if err != nil {
		writeError(w, r, service.Wrap(err))
		return
	}
	writeJSON(w, r, http.StatusOK, svc)
}

type registerRequest struct {
	URL string `json:"Url"`
}

func decodeRegister(body io.Reader) (string, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req registerRequest
	var v service.Violations
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		v.Add("%s", err.Error())
		return "", v.Err("Malformed service registration")
	}
	if u, err := url.Parse(req.URL); req.URL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		v.Add("Url: must be an absolute URL")
	}
	return req.URL, v.Err("Invalid service registration")
}

func (s *Server) registerService(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Registrar == nil {
		unsupported(w, r)
		return
	}
	baseURL, err := decodeRegister(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	svc, err := s.cfg.Registrar.Register(r.Context(), baseURL)
	if err != nil {
		writeError(w, r, service.NewEntityOperationError("Service could not be registered", err))
		return
	}
	writeCreated(w, r, svc.ODataID.String(), svc)
}

// eventListener accepts an event batch from an external service.
func (s *Server) eventListener(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		unsupported(w, r)
		return
	}
	uuid := mux.Vars(r)["uuid"]
	if _, err := s.cfg.Store.Services().Get(r.Context(), uuid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = service.NewNotFoundError(requestURI(r))
		}
		writeError(w, r, service.Wrap(err))
		return
	}

	var batch redfish.EventArray
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		var v service.Violations
		v.Add("%s", err.Error())
		writeError(w, r, v.Err("Malformed event"))
		return
	}
	if err := s.cfg.Events.Add(uuid, batch.Events); err != nil {
		if errors.Is(err, events.ErrBufferClosed) {
			err = service.NewTimeoutError(err)
		}
		writeError(w, r, service.Wrap(err))
		return
	}
	writeNoContent(w)
}
