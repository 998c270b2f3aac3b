// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package allocation turns an allocation request into a composed node.
//
// A request is validated against the stored inventory, matched against
// every free computer system, and the system with the fewest spare
// resources wins. Allocation runs under coordinator.AllocationKey so two
// requests never pick the same assets.
package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/LeeDigitalWorks/podm/pkg/audit"
	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// Service allocates composed nodes.
type Service interface {
	// Allocate validates req, chooses the assets and stores a new node in
	// the Allocated state. The returned error is a *service.Error.
	Allocate(ctx context.Context, req *RequestedNode) (*model.ComposedNode, error)
}

type Config struct {
	Store       store.Store
	Coordinator coordinator.Coordinator
	Emitter     *events.Emitter
	Audit       audit.Recorder
}

type serviceImpl struct {
	store   store.Store
	coord   coordinator.Coordinator
	emitter *events.Emitter
	audit   audit.Recorder
}

func NewService(cfg Config) (Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("Store is required")
	}
	if cfg.Coordinator == nil {
		return nil, errors.New("Coordinator is required")
	}
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	return &serviceImpl{
		store:   cfg.Store,
		coord:   cfg.Coordinator,
		emitter: cfg.Emitter,
		audit:   cfg.Audit,
	}, nil
}

func (s *serviceImpl) Allocate(ctx context.Context, req *RequestedNode) (node *model.ComposedNode, err error) {
	start := time.Now()
	done := audit.Track(ctx, s.audit, "", "Allocate", req.Name)
	defer func() {
		done(err)
		AllocationDuration.Observe(time.Since(start).Seconds())
		AllocationsTotal.WithLabelValues(result(err)).Inc()
	}()

	node, err = coordinator.Call(ctx, s.coord, coordinator.AllocationKey, func(ctx context.Context) (*model.ComposedNode, error) {
		return s.allocate(ctx, req)
	})
	if err != nil {
		return nil, service.Wrap(err)
	}

	ev := logger.Ctx(ctx).Info().
		Str("node", node.ID).
		Str("system", string(node.ComputerSystem)).
		Int("assets", len(node.Assets()))
	if gib := node.RemoteDriveCapacityGiB; gib != nil {
		ev = ev.Str("remote_capacity", humanize.IBytes(uint64(*gib*bytesPerGiB)))
	}
	ev.Msg("allocation: node allocated")
	s.emitter.EmitNode(ctx, events.NodeAllocated, node, "", "")
	return node, nil
}

// allocate creates the node first and attaches its assets in a second
// transaction. A failure in the second step removes the node again.
func (s *serviceImpl) allocate(ctx context.Context, req *RequestedNode) (*model.ComposedNode, error) {
	var (
		node *model.ComposedNode
		p    *plan
	)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		inv, err := loadInventory(ctx, tx)
		if err != nil {
			return err
		}
		cons, err := validate(inv, req)
		if err != nil {
			return err
		}
		var ok bool
		if p, ok = choose(inv, req, cons); !ok {
			return service.NewAllocationFailedError()
		}
		node = newNode(req, p)
		return tx.Nodes().Create(ctx, node)
	})
	if err != nil {
		return nil, err
	}

	if err := s.attach(ctx, node, p); err != nil {
		s.compensate(ctx, node.ID)
		return nil, err
	}
	return node, nil
}

func newNode(req *RequestedNode, p *plan) *model.ComposedNode {
	id := uuid.NewString()
	now := time.Now().UTC()
	n := &model.ComposedNode{
		ODataID:          model.NodeURI(id),
		ID:               id,
		Name:             req.Name,
		Description:      req.Description,
		Status:           model.StatusEnabledOK,
		State:            model.NodeAllocating,
		ClearTPMOnDelete: p.clearTPMOnDelete(),
		TaggedValues:     req.Oem.IntelRackScale.TaggedValues,
		Boot:             p.system.Boot,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.remoteBytes > 0 {
		gib := float64(p.remoteBytes) / bytesPerGiB
		n.RemoteDriveCapacityGiB = &gib
	}
	return n
}

// attach re-reads every planned asset, links it to the node and moves the
// node to Allocated.
func (s *serviceImpl) attach(ctx context.Context, node *model.ComposedNode, p *plan) error {
	attached := *node
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		for _, planned := range p.assets {
			id := planned.Base().ODataID
			if attached.HasAsset(id) {
				continue
			}
			r, err := tx.Resources().Get(ctx, id)
			if err != nil {
				return err
			}
			if !available(r.Base()) {
				return service.NewStateMismatchError("Resource %s is no longer available", id)
			}
			attached.AttachAsset(r)
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		attached.State = model.NodeAllocated
		attached.RequestedDrives = len(attached.Drives)
		attached.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, &attached)
	})
	if err != nil {
		return err
	}
	*node = attached
	return nil
}

// compensate releases whatever the node holds and deletes it. It runs
// detached from ctx so a cancelled request still cleans up.
func (s *serviceImpl) compensate(ctx context.Context, nodeID string) {
	ctx = context.WithoutCancel(ctx)
	CompensationsTotal.Inc()
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Nodes().Get(ctx, nodeID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for _, id := range n.Assets() {
			r, err := tx.Resources().Get(ctx, id)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n.DetachAsset(r)
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		return tx.Nodes().Delete(ctx, nodeID)
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("node", nodeID).Msg("allocation: failed to remove partially allocated node")
	}
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	return service.CodeOf(err).String()
}
