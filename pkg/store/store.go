// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists discovered resources, composed nodes and external
// services.
//
// Backends:
//   - memory: btree-indexed documents, for tests and single-process setups
//   - sql: PostgreSQL (pgx) or MySQL, with embedded migrations
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("already exists")
	ErrKindMismatch = errors.New("resource kind mismatch")
)

// ResourceFilter narrows a resource listing. Zero fields match everything.
type ResourceFilter struct {
	Kind        model.Kind
	ServiceUUID string
	Allocated   *bool
	// Prefix matches resources whose ODataID starts with it.
	Prefix model.ODataID
	Limit  int
}

func (f ResourceFilter) Match(kind model.Kind, m *model.Meta) bool {
	if f.Kind != "" && f.Kind != kind {
		return false
	}
	if f.ServiceUUID != "" && f.ServiceUUID != m.ServiceUUID {
		return false
	}
	if f.Allocated != nil && *f.Allocated != m.Allocated {
		return false
	}
	if f.Prefix != "" && !hasPrefix(m.ODataID, f.Prefix) {
		return false
	}
	return true
}

func hasPrefix(id, prefix model.ODataID) bool {
	return len(id) >= len(prefix) && id[:len(prefix)] == prefix
}

type NodeStore interface {
	// Create fails with ErrConflict when the id is taken.
	Create(ctx context.Context, node *model.ComposedNode) error
	Get(ctx context.Context, id string) (*model.ComposedNode, error)
	Update(ctx context.Context, node *model.ComposedNode) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.ComposedNode, error)
}

type ResourceStore interface {
	// Put inserts or replaces the resource keyed by its ODataID.
	Put(ctx context.Context, r model.Resource) error
	Get(ctx context.Context, id model.ODataID) (model.Resource, error)
	// List returns matches in ODataID order.
	List(ctx context.Context, filter ResourceFilter) ([]model.Resource, error)
	Delete(ctx context.Context, id model.ODataID) error
	// MarkAbsent sets the status of every resource of the service that is
	// not in keep to Absent and returns how many changed.
	MarkAbsent(ctx context.Context, serviceUUID string, keep map[model.ODataID]struct{}) (int, error)
}

type ServiceStore interface {
	Put(ctx context.Context, svc *model.ExternalService) error
	Get(ctx context.Context, uuid string) (*model.ExternalService, error)
	List(ctx context.Context) ([]*model.ExternalService, error)
	Delete(ctx context.Context, uuid string) error
}

// Tx is the view of the store inside WithTx.
type Tx interface {
	Nodes() NodeStore
	Resources() ResourceStore
	Services() ServiceStore
}

type Store interface {
	Tx

	// WithTx runs fn atomically. Changes are discarded if fn returns an
	// error. fn must only use the Tx it is given.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Migrate(ctx context.Context) error
	Close() error
}

// GetAs loads a resource and asserts its concrete type.
func GetAs[T model.Resource](ctx context.Context, rs ResourceStore, id model.ODataID) (T, error) {
	var zero T
	r, err := rs.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	t, ok := r.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is a %s", ErrKindMismatch, id, r.Kind())
	}
	return t, nil
}

// ListAs lists resources of T's kind. The filter's Kind is overridden.
func ListAs[T model.Resource](ctx context.Context, rs ResourceStore, filter ResourceFilter) ([]T, error) {
	var zero T
	filter.Kind = kindOf(zero)
	rs2, err := rs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rs2))
	for _, r := range rs2 {
		if t, ok := r.(T); ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// kindOf relies on Kind being safe to call on a nil pointer receiver.
func kindOf(r model.Resource) model.Kind {
	return r.Kind()
}

func Bool(b bool) *bool { return &b }
