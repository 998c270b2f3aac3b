// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"strings"
)

// ODataID is the URI of a Redfish resource, e.g. /redfish/v1/Systems/1a2b-1.
type ODataID string

func (id ODataID) String() string { return string(id) }

// Last returns the final path segment.
func (id ODataID) Last() string {
	s := strings.TrimRight(string(id), "/")
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Parent returns the URI with its final segment removed.
func (id ODataID) Parent() ODataID {
	s := strings.TrimRight(string(id), "/")
	if i := strings.LastIndexByte(s, '/'); i > 0 {
		return ODataID(s[:i])
	}
	return ""
}

// Join appends path segments.
func (id ODataID) Join(segments ...string) ODataID {
	s := strings.TrimRight(string(id), "/")
	for _, seg := range segments {
		s += "/" + strings.Trim(seg, "/")
	}
	return ODataID(s)
}

func (id ODataID) Link() Link { return Link{ODataID: id} }

// Link is the Redfish reference object {"@odata.id": "..."}.
type Link struct {
	ODataID ODataID `json:"@odata.id"`
}

func Links(ids []ODataID) []Link {
	out := make([]Link, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Link())
	}
	return out
}

func addID(ids []ODataID, id ODataID) []ODataID {
	if id == "" || slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func removeID(ids []ODataID, id ODataID) []ODataID {
	return slices.DeleteFunc(ids, func(x ODataID) bool { return x == id })
}
