// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package fabric manages zones on the external fabrics on behalf of API
// clients. Zones created for composed nodes are managed by the node
// service and cannot be deleted here.
package fabric

import (
	"context"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

// Service defines the interface for fabric zone operations
type Service interface {
	// CreateZone creates a zone holding endpoints in the fabric.
	CreateZone(ctx context.Context, fabricID model.ODataID, endpoints []model.ODataID) (*model.Zone, error)

	// UpdateZone replaces the endpoints of a zone.
	UpdateZone(ctx context.Context, zoneID model.ODataID, endpoints []model.ODataID) (*model.Zone, error)

	// DeleteZone removes a zone that no composed node owns.
	DeleteZone(ctx context.Context, zoneID model.ODataID) error
}

// Rediscoverer refreshes the stored resources of an external service.
type Rediscoverer interface {
	Discover(ctx context.Context, serviceUUID string) error
}
