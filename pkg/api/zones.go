// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/service/fabric"
)

func (s *Server) createZone(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Fabrics == nil {
		unsupported(w, r)
		return
	}
	req, err := fabric.DecodeZoneRequest(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fabricID := requestURI(r).Parent()
	z, err := s.cfg.Fabrics.CreateZone(r.Context(), fabricID, req.Endpoints())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeZone(w, r, http.StatusCreated, z)
}

func (s *Server) updateZone(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Fabrics == nil {
		unsupported(w, r)
		return
	}
	req, err := fabric.DecodeZoneRequest(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	z, err := s.cfg.Fabrics.UpdateZone(r.Context(), requestURI(r), req.Endpoints())
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeZone(w, r, http.StatusOK, z)
}

func (s *Server) deleteZone(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Fabrics == nil {
		unsupported(w, r)
		return
	}
	if err := s.cfg.Fabrics.DeleteZone(r.Context(), requestURI(r)); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) writeZone(w http.ResponseWriter, r *http.Request, status int, z *model.Zone) {
	doc, err := render(z)
	if err != nil {
		writeError(w, r, service.NewInternalError(err))
		return
	}
	if status == http.StatusCreated {
		writeCreated(w, r, z.ODataID.String(), doc)
		return
	}
	writeJSON(w, r, status, doc)
}
