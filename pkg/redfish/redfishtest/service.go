// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package redfishtest runs an in-memory external Redfish service over
// httptest for tests of discovery and the node services.
package redfishtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"slices"
	"strings"
	"sync"
	"testing"
)

const Root = "/redfish/v1"

// TopLevel collections linked from every fake service root.
var TopLevel = []string{"Systems", "Chassis", "Fabrics", "StorageServices", "EthernetSwitches"}

// Request is a mutation received by the service.
type Request struct {
	Method string
	Path   string
	Body   map[string]any
}

// Service serves resources from a path -> document map. POST to a
// collection creates a member, POST elsewhere is recorded as an action,
// PATCH merges top level properties and DELETE removes the document.
type Service struct {
	UUID   string
	Server *httptest.Server

	mu       sync.Mutex
	docs     map[string]map[string]any
	failures map[string]int
	requests []Request
	nextID   int
}

// NewService starts a service with an empty resource tree. It is closed
// when the test ends.
func NewService(t testing.TB, uuid string) *Service {
	t.Helper()
	s := &Service{
		UUID:     uuid,
		docs:     make(map[string]map[string]any),
		failures: make(map[string]int),
		nextID:   100,
	}
	root := map[string]any{
		"@odata.id":      Root,
		"Id":             "RootService",
		"Name":           "Root Service",
		"RedfishVersion": "1.1.0",
		"UUID":           uuid,
		"EventService":   link(Root + "/EventService"),
	}
	for _, name := range TopLevel {
		root[name] = link(Root + "/" + name)
		s.docs[Root+"/"+name] = collection(Root + "/" + name)
	}
	s.docs[Root] = root
	s.Server = httptest.NewServer(s)
	t.Cleanup(s.Server.Close)
	return s
}

func (s *Service) URL() string { return s.Server.URL }

// Add stores body at p and lists it in the parent collection, creating the
// collection when needed.
func (s *Service) Add(p string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := toDoc(body)
	doc["@odata.id"] = p
	if id, _ := doc["Id"].(string); id == "" {
		doc["Id"] = path.Base(p)
	}
	s.docs[p] = doc
	s.addMember(path.Dir(p), p)
}

// Set stores body at p without touching any collection.
func (s *Service) Set(p string, body any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := toDoc(body)
	if _, ok := doc["@odata.id"]; !ok {
		doc["@odata.id"] = p
	}
	s.docs[p] = doc
}

// Collection makes sure an (empty) collection exists at p.
func (s *Service) Collection(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[p]; !ok {
		s.docs[p] = collection(p)
	}
}

// Remove deletes the document at p and its collection membership.
func (s *Service) Remove(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(p)
}

// Update merges props into the document at p.
func (s *Service) Update(p string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[p]; ok {
		for k, v := range props {
			doc[k] = v
		}
	}
}

// Fail answers every request to p with status until cleared with 0.
func (s *Service) Fail(p string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, p)
		return
	}
	s.failures[p] = status
}

// Doc returns a copy of the document at p.
func (s *Service) Doc(p string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[p]
	if !ok {
		return nil, false
	}
	return toDoc(doc), true
}

// Requests returns the mutations received, optionally only those of one
// method.
func (s *Service) Requests(method string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Request
	for _, r := range s.requests {
		if method == "" || r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := strings.TrimRight(r.URL.Path, "/")
	if status, ok := s.failures[p]; ok {
		http.Error(w, http.StatusText(status), status)
		return
	}

	var body map[string]any
	if r.Method != http.MethodGet {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			if err := json.Unmarshal(data, &body); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
		s.requests = append(s.requests, Request{Method: r.Method, Path: p, Body: body})
	}

	switch r.Method {
	case http.MethodGet:
		doc, ok := s.docs[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodPost:
		if _, ok := s.docs[p]["Members"]; !ok {
			// actions
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.nextID++
		member := fmt.Sprintf("%s/%d", p, s.nextID)
		if body == nil {
			body = make(map[string]any)
		}
		body["@odata.id"] = member
		body["Id"] = path.Base(member)
		s.docs[member] = body
		s.addMember(p, member)
		w.Header().Set("Location", s.Server.URL+member)
		writeJSON(w, http.StatusCreated, body)
	case http.MethodPatch:
		doc, ok := s.docs[p]
		if !ok {
			http.NotFound(w, r)
			return
		}
		for k, v := range body {
			doc[k] = v
		}
		writeJSON(w, http.StatusOK, doc)
	case http.MethodDelete:
		if _, ok := s.docs[p]; !ok {
			http.NotFound(w, r)
			return
		}
		s.remove(p)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Service) addMember(coll, member string) {
	doc, ok := s.docs[coll]
	if !ok {
		doc = collection(coll)
		s.docs[coll] = doc
	}
	members, _ := doc["Members"].([]any)
	for _, m := range members {
		if l, ok := m.(map[string]any); ok && l["@odata.id"] == member {
			return
		}
	}
	members = append(members, link(member))
	doc["Members"] = members
	doc["Members@odata.count"] = len(members)
}

func (s *Service) remove(p string) {
	delete(s.docs, p)
	coll, ok := s.docs[path.Dir(p)]
	if !ok {
		return
	}
	members, _ := coll["Members"].([]any)
	members = slices.DeleteFunc(members, func(m any) bool {
		l, ok := m.(map[string]any)
		return ok && l["@odata.id"] == p
	})
	coll["Members"] = members
	coll["Members@odata.count"] = len(members)
}

func collection(p string) map[string]any {
	return map[string]any{
		"@odata.id":           p,
		"Name":                path.Base(p) + " Collection",
		"Members":             []any{},
		"Members@odata.count": 0,
	}
}

func link(p string) map[string]any {
	return map[string]any{"@odata.id": p}
}

// toDoc round trips v through JSON so stored documents never alias the
// caller's values.
func toDoc(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(data, &doc); err != nil {
		panic(err)
	}
	return doc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("OData-Version", "4.0")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
