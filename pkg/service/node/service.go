// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package node drives the lifecycle of composed nodes after allocation:
// assembly onto the external fabrics, power control, attaching and
// detaching remote assets, and disassembly.
//
// Operations touching an external service run under the coordinator key of
// the node's compute service. Every error returned is a *service.Error.
package node

import (
	"context"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
)

// Service defines the interface for composed node operations
type Service interface {
	// Get returns the node document. The power state is read live from
	// the node's computer system when possible.
	Get(ctx context.Context, id string) (*Node, error)

	// List returns the node collection.
	List(ctx context.Context) (*redfish.Collection, error)

	// Assemble creates the node's zones on the external fabrics and applies
	// its boot override.
	Assemble(ctx context.Context, id string) error

	// Reset forwards a reset to the node's computer system.
	Reset(ctx context.Context, id string, resetType model.ResetType) error

	// AttachResource adds a remote asset to an assembled node.
	AttachResource(ctx context.Context, id string, req *ResourceRequest) error

	// DetachResource removes a remote asset from an assembled node.
	DetachResource(ctx context.Context, id string, req *ResourceRequest) error

	// AttachResourceActionInfo lists the assets AttachResource accepts.
	AttachResourceActionInfo(ctx context.Context, id string) (*ActionInfo, error)

	// DetachResourceActionInfo lists the assets DetachResource accepts.
	DetachResourceActionInfo(ctx context.Context, id string) (*ActionInfo, error)

	// Update applies a PATCH to the node.
	Update(ctx context.Context, id string, patch *Patch) (*Node, error)

	// Delete disassembles the node and releases its assets.
	Delete(ctx context.Context, id string) error

	// ForceDelete removes the node and releases its assets without
	// contacting any external service.
	ForceDelete(ctx context.Context, id string) error
}
