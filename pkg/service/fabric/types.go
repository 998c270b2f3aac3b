// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

// ZoneRequest is the body of a zone POST or PATCH.
type ZoneRequest struct {
	Links struct {
		Endpoints []model.Link `json:"Endpoints"`
	} `json:"Links"`
}

// Endpoints returns the requested endpoint URIs.
func (r *ZoneRequest) Endpoints() []model.ODataID {
	out := make([]model.ODataID, 0, len(r.Links.Endpoints))
	for _, l := range r.Links.Endpoints {
		out = append(out, l.ODataID)
	}
	return out
}

// DecodeZoneRequest reads a zone body. Unknown properties are rejected.
func DecodeZoneRequest(r io.Reader) (*ZoneRequest, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var req ZoneRequest
	if err := dec.Decode(&req); err != nil {
		var v service.Violations
		if errors.Is(err, io.EOF) {
			v.Add("Request body is empty.")
		} else {
			v.Add("%s", err.Error())
		}
		return nil, v.Err("Malformed zone request")
	}
	var v service.Violations
	for i, l := range req.Links.Endpoints {
		if l.ODataID == "" {
			v.Add("Links.Endpoints[%d]: may not be null", i)
		}
	}
	if err := v.Err("Invalid zone request"); err != nil {
		return nil, err
	}
	return &req, nil
}
