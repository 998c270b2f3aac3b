// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/LeeDigitalWorks/podm/pkg/allocation"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/service/node"
)

func (s *Server) listNodes(w http.ResponseWriter, r *http.Request) {
	coll, err := s.cfg.Nodes.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, coll)
}

func (s *Server) allocate(w http.ResponseWriter, r *http.Request) {
	req, err := allocation.DecodeRequest(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.cfg.Allocator.Allocate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeCreated(w, r, n.ODataID.String(), nil)
}

func (s *Server) getNode(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Nodes.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func (s *Server) updateNode(w http.ResponseWriter, r *http.Request) {
	patch, err := node.DecodePatch(r.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := s.cfg.Nodes.Update(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

func (s *Server) deleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Nodes.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

type resetRequest struct {
	ResetType model.ResetType `json:"ResetType"`
}

func decodeReset(body io.Reader) (model.ResetType, error) {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	var req resetRequest
	var v service.Violations
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		v.Add("%s", err.Error())
		return "", v.Err("Malformed reset request")
	}
	if req.ResetType == "" {
		v.Add("ResetType: may not be null")
	}
	return req.ResetType, v.Err("Invalid reset request")
}

func (s *Server) nodeAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	ctx := r.Context()

	var err error
	switch vars["action"] {
	case "Reset":
		var resetType model.ResetType
		if resetType, err = decodeReset(r.Body); err == nil {
			err = s.cfg.Nodes.Reset(ctx, id, resetType)
		}
	case "Assemble":
		err = s.cfg.Nodes.Assemble(ctx, id)
	case "AttachResource":
		var req *node.ResourceRequest
		if req, err = node.DecodeResourceRequest(r.Body); err == nil {
			err = s.cfg.Nodes.AttachResource(ctx, id, req)
		}
	case "DetachResource":
		var req *node.ResourceRequest
		if req, err = node.DecodeResourceRequest(r.Body); err == nil {
			err = s.cfg.Nodes.DetachResource(ctx, id, req)
		}
	case "ForceDelete":
		err = s.cfg.Nodes.ForceDelete(ctx, id)
	default:
		s.notFound(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (s *Server) nodeActionInfo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var (
		info *node.ActionInfo
		err  error
	)
	switch vars["action"] {
	case "AttachResource":
		info, err = s.cfg.Nodes.AttachResourceActionInfo(r.Context(), vars["id"])
	case "DetachResource":
		info, err = s.cfg.Nodes.DetachResourceActionInfo(r.Context(), vars["id"])
	default:
		s.notFound(w, r)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, info)
}
