// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// Config holds configuration for the fabric service
type Config struct {
	Store       store.Store
	Clients     *client.Pool
	Coordinator coordinator.Coordinator
	// Discoverer refreshes a fabric's service after a zone change. Optional.
	Discoverer Rediscoverer
}

// serviceImpl implements the Service interface
type serviceImpl struct {
	store      store.Store
	clients    *client.Pool
	coord      coordinator.Coordinator
	discoverer Rediscoverer
}

// NewService creates a new fabric service
func NewService(cfg Config) (Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Clients == nil {
		return nil, errors.New("Clients is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("Coordinator is required")
	}
	return &serviceImpl{
		store:      cfg.Store,
		clients:    cfg.Clients,
		coord:      cfg.Coordinator,
		discoverer: cfg.Discoverer,
	}, nil
}

func (s *serviceImpl) CreateZone(ctx context.Context, fabricID model.ODataID, endpoints []model.ODataID) (z *model.Zone, err error) {
	defer func() {
		err = service.Wrap(err)
		ZoneActionsTotal.WithLabelValues("create", result(err)).Inc()
	}()

	f, err := store.GetAs[*model.Fabric](ctx, s.store.Resources(), fabricID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrKindMismatch) {
		return nil, service.NewNotFoundError(fabricID)
	}
	if err != nil {
		return nil, err
	}

	err = s.coord.Run(ctx, f.ServiceUUID, func(ctx context.Context) error {
		members, err := s.members(ctx, f, "", endpoints)
		if err != nil {
			return err
		}
		c, err := s.clients.Get(ctx, f.ServiceUUID)
		if err != nil {
			return service.NewEntityOperationError("Zone could not be created", err)
		}
		req := redfish.NewZoneRequest(sources(members))
		loc, err := c.Post(ctx, f.SourceURI+"/Zones", req)
		if err == nil && loc == "" {
			err = errors.New("no Location returned")
		}
		if err != nil {
			return service.NewEntityOperationError("Zone could not be created", err)
		}

		z = redfish.NewMapper(f.ServiceUUID).Zone(&redfish.Zone{
			Resource: redfish.Resource{
				ODataID: loc,
				ID:      path.Base(loc),
				Name:    "Zone",
				Status:  model.StatusEnabledOK,
			},
			Links: req.Links,
		})
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			return putZone(ctx, tx, z, nil)
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("zone", z.ODataID.String()).Int("endpoints", len(z.Endpoints)).Msg("fabric: zone created")
	return s.refresh(ctx, z), nil
}

func (s *serviceImpl) UpdateZone(ctx context.Context, zoneID model.ODataID, endpoints []model.ODataID) (z *model.Zone, err error) {
	defer func() {
		err = service.Wrap(err)
		ZoneActionsTotal.WithLabelValues("update", result(err)).Inc()
	}()

	z, f, err := s.zone(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	err = s.coord.Run(ctx, f.ServiceUUID, func(ctx context.Context) error {
		members, err := s.members(ctx, f, zoneID, endpoints)
		if err != nil {
			return err
		}
		c, err := s.clients.Get(ctx, z.ServiceUUID)
		if err != nil {
			return service.NewEntityOperationError("Zone could not be updated", err)
		}
		if err := c.Patch(ctx, z.SourceURI, redfish.NewZoneRequest(sources(members))); err != nil {
			return service.NewEntityOperationError("Zone could not be updated", err)
		}

		previous := z.Endpoints
		z.Endpoints = ids(members)
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			return putZone(ctx, tx, z, previous)
		})
	})
	if err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().Str("zone", z.ODataID.String()).Int("endpoints", len(z.Endpoints)).Msg("fabric: zone updated")
	return s.refresh(ctx, z), nil
}

func (s *serviceImpl) DeleteZone(ctx context.Context, zoneID model.ODataID) (err error) {
	defer func() {
		err = service.Wrap(err)
		ZoneActionsTotal.WithLabelValues("delete", result(err)).Inc()
	}()

	z, f, err := s.zone(ctx, zoneID)
	if err != nil {
		return err
	}
	if z.Node != "" {
		return service.NewStateMismatchError("Zone %s is used by composed node %s and cannot be deleted", z.ID, z.Node)
	}
	err = s.coord.Run(ctx, f.ServiceUUID, func(ctx context.Context) error {
		c, err := s.clients.Get(ctx, z.ServiceUUID)
		if err != nil {
			return service.NewEntityOperationError("Zone could not be deleted", err)
		}
		if err := c.Delete(ctx, z.SourceURI); err != nil && !client.IsNotFound(err) {
			return service.NewEntityOperationError("Zone could not be deleted", err)
		}
		return s.store.WithTx(ctx, func(tx store.Tx) error {
			return dropZone(ctx, tx, z)
		})
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("zone", z.ODataID.String()).Msg("fabric: zone deleted")
	s.rediscover(ctx, z.ServiceUUID)
	return nil
}

// zone loads a zone with its fabric.
func (s *serviceImpl) zone(ctx context.Context, id model.ODataID) (*model.Zone, *model.Fabric, error) {
	z, err := store.GetAs[*model.Zone](ctx, s.store.Resources(), id)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrKindMismatch) {
		return nil, nil, service.NewNotFoundError(id)
	}
	if err != nil {
		return nil, nil, err
	}
	f, err := store.GetAs[*model.Fabric](ctx, s.store.Resources(), z.Fabric)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, service.NewNotFoundError(id)
	}
	if err != nil {
		return nil, nil, err
	}
	return z, f, nil
}

// members resolves the requested endpoints. Each must belong to the fabric,
// be in no zone other than zoneID and, unless already in zoneID, be owned by
// no composed node.
func (s *serviceImpl) members(ctx context.Context, f *model.Fabric, zoneID model.ODataID, ids []model.ODataID) ([]*model.Endpoint, error) {
	var (
		v         service.Violations
		out       []*model.Endpoint
		inUse     []string
		allocated []model.ODataID
	)
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		e, err := store.GetAs[*model.Endpoint](ctx, s.store.Resources(), id)
		if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrKindMismatch) {
			return nil, err
		}
		if err != nil || e.Fabric != f.ODataID {
			v.Add("Endpoint %s does not belong to fabric %s", id, f.ID)
			continue
		}
		if e.Zone != "" && e.Zone != zoneID {
			inUse = append(inUse, fmt.Sprintf("%s (zone %s)", id, e.Zone))
			continue
		}
		// members of the zone being updated keep their place
		if e.Allocated && (zoneID == "" || e.Zone != zoneID) {
			allocated = append(allocated, id)
			continue
		}
		out = append(out, e)
	}
	if err := v.Err("Invalid zone request"); err != nil {
		return nil, err
	}
	if len(inUse) > 0 {
		return nil, service.NewStateMismatchError("Endpoints already in a zone: %v", inUse)
	}
	if len(allocated) > 0 {
		return nil, service.NewStateMismatchError("Endpoints owned by a composed node: %v", allocated)
	}
	return out, nil
}

// putZone stores z and points its endpoints at it. Endpoints in previous
// that are no longer members lose the zone.
func putZone(ctx context.Context, tx store.Tx, z *model.Zone, previous []model.ODataID) error {
	if err := setZone(ctx, tx, z.ODataID, z.Endpoints, previous); err != nil {
		return err
	}
	return tx.Resources().Put(ctx, z)
}

// dropZone deletes z and clears the zone of its endpoints.
func dropZone(ctx context.Context, tx store.Tx, z *model.Zone) error {
	if err := setZone(ctx, tx, z.ODataID, nil, z.Endpoints); err != nil {
		return err
	}
	err := tx.Resources().Delete(ctx, z.ODataID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func setZone(ctx context.Context, tx store.Tx, zone model.ODataID, members, previous []model.ODataID) error {
	for _, id := range slices.Concat(previous, members) {
		e, err := store.GetAs[*model.Endpoint](ctx, tx.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		member := slices.Contains(members, id)
		switch {
		case member && e.Zone != zone:
			e.Zone = zone
		case !member && e.Zone == zone:
			e.Zone = ""
		default:
			continue
		}
		if err := tx.Resources().Put(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// refresh rediscovers the zone's service and returns the stored zone,
// falling back to z.
func (s *serviceImpl) refresh(ctx context.Context, z *model.Zone) *model.Zone {
	s.rediscover(ctx, z.ServiceUUID)
	if fresh, err := store.GetAs[*model.Zone](ctx, s.store.Resources(), z.ODataID); err == nil {
		return fresh
	}
	return z
}

func (s *serviceImpl) rediscover(ctx context.Context, serviceUUID string) {
	if s.discoverer == nil {
		return
	}
	if err := s.discoverer.Discover(ctx, serviceUUID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("service", serviceUUID).Msg("fabric: rediscovery after zone change failed")
	}
}

func sources(endpoints []*model.Endpoint) []string {
	out := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, e.SourceURI)
	}
	return out
}

func ids(endpoints []*model.Endpoint) []model.ODataID {
	out := make([]model.ODataID, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, e.ODataID)
	}
	return out
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	return service.CodeOf(err).String()
}
