// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/audit"
	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/service"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// DefaultAssetRetryAfter is sent as Retry-After when an asset of the node
// cannot be reached.
const DefaultAssetRetryAfter = 30 * time.Second

var (
	bootEnabledValues = []string{"Disabled", "Once", "Continuous"}
	bootModeValues    = []string{"Legacy", "UEFI"}
)

// Config holds configuration for the node service
type Config struct {
	Store       store.Store
	Clients     *client.Pool
	Coordinator coordinator.Coordinator
	Emitter     *events.Emitter
	Audit       audit.Recorder
	// AssetRetryAfter defaults to DefaultAssetRetryAfter.
	AssetRetryAfter time.Duration
}

// serviceImpl implements the Service interface
type serviceImpl struct {
	store      store.Store
	clients    *client.Pool
	coord      coordinator.Coordinator
	emitter    *events.Emitter
	audit      audit.Recorder
	retryAfter time.Duration
}

// NewService creates a new node service
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
	if cfg.Audit == nil {
		cfg.Audit = audit.Nop{}
	}
	if cfg.AssetRetryAfter <= 0 {
		cfg.AssetRetryAfter = DefaultAssetRetryAfter
	}

	return &serviceImpl{
		store:      cfg.Store,
		clients:    cfg.Clients,
		coord:      cfg.Coordinator,
		emitter:    cfg.Emitter,
		audit:      cfg.Audit,
		retryAfter: cfg.AssetRetryAfter,
	}, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (*Node, error) {
	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return nil, service.Wrap(err)
	}
	doc, err := s.document(ctx, n, true)
	return doc, service.Wrap(err)
}

func (s *serviceImpl) List(ctx context.Context) (*redfish.Collection, error) {
	nodes, err := s.store.Nodes().List(ctx)
	if err != nil {
		return nil, service.Wrap(err)
	}
	ids := make([]model.ODataID, 0, len(nodes))
	for _, n := range nodes {
		ids = append(ids, n.ODataID)
	}
	coll := redfish.NewCollection(nodesRoot, "Composed Nodes Collection", ids)
	return &coll, nil
}

func (s *serviceImpl) Reset(ctx context.Context, id string, resetType model.ResetType) (err error) {
	done := s.track(ctx, id, "Reset", "")
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	return s.serialize(ctx, n, func(ctx context.Context) error {
		n, err := s.node(ctx, s.store, id)
		if err != nil {
			return err
		}
		if err := requireState(n, model.NodeAssembled); err != nil {
			return err
		}
		sys, err := s.system(ctx, s.store, n)
		if err != nil {
			return err
		}
		if !sys.AllowsReset(resetType) {
			var v service.Violations
			v.Add("ResetType: %s is not allowed", resetType)
			return v.Err("Invalid reset request")
		}

		c, err := s.clients.Get(ctx, sys.ServiceUUID)
		if err != nil {
			return service.NewEntityOperationError("Reset of the computer system failed", err)
		}
		target := sys.SourceURI + "/Actions/ComputerSystem.Reset"
		if err := c.PostAction(ctx, target, redfish.ResetRequest{ResetType: resetType}); err != nil {
			return service.NewEntityOperationError("Reset of the computer system failed", err)
		}

		err = s.store.WithTx(ctx, func(tx store.Tx) error {
			sys, err := store.GetAs[*model.ComputerSystem](ctx, tx.Resources(), sys.ODataID)
			if err != nil {
				return err
			}
			sys.PowerState = model.PowerStateAfter(resetType, sys.PowerState)
			return tx.Resources().Put(ctx, sys)
		})
		if err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Str("node", n.ID).Str("reset_type", string(resetType)).Msg("node: reset")
		s.emitter.EmitNode(ctx, events.NodeReset, n, "", string(resetType))
		return nil
	})
}

func (s *serviceImpl) Update(ctx context.Context, id string, patch *Patch) (doc *Node, err error) {
	done := s.track(ctx, id, "Update", "")
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	err = s.serialize(ctx, n, func(ctx context.Context) error {
		var err error
		n, err = s.node(ctx, s.store, id)
		if err != nil {
			return err
		}
		boot, err := validatePatch(n, patch)
		if err != nil {
			return err
		}

		if patch.Boot != nil && n.State == model.NodeAssembled {
			sys, err := s.system(ctx, s.store, n)
			if err != nil {
				return err
			}
			if err := s.applyBoot(ctx, sys, boot); err != nil {
				return service.NewEntityOperationError("Boot override could not be applied", err)
			}
		}

		applyPatch(n, patch, boot)
		return s.store.Nodes().Update(ctx, n)
	})
	if err != nil {
		return nil, err
	}
	return s.document(ctx, n, false)
}

func validatePatch(n *model.ComposedNode, p *Patch) (model.Boot, error) {
	var v service.Violations
	if p.Name != nil && *p.Name == "" {
		v.Add("Name: may not be empty")
	}

	boot := n.Boot
	if b := p.Boot; b != nil {
		if b.BootSourceOverrideEnabled != nil {
			if !slices.Contains(bootEnabledValues, *b.BootSourceOverrideEnabled) {
				v.Add("Boot.BootSourceOverrideEnabled: %s is not allowed", *b.BootSourceOverrideEnabled)
			}
			boot.BootSourceOverrideEnabled = *b.BootSourceOverrideEnabled
		}
		if b.BootSourceOverrideTarget != nil {
			allowed := n.Boot.AllowableTargets
			if len(allowed) > 0 && !slices.Contains(allowed, *b.BootSourceOverrideTarget) {
				v.Add("Boot.BootSourceOverrideTarget: %s is not allowed", *b.BootSourceOverrideTarget)
			}
			boot.BootSourceOverrideTarget = *b.BootSourceOverrideTarget
		}
		if b.BootSourceOverrideMode != nil {
			if !slices.Contains(bootModeValues, *b.BootSourceOverrideMode) {
				v.Add("Boot.BootSourceOverrideMode: %s is not allowed", *b.BootSourceOverrideMode)
			}
			boot.BootSourceOverrideMode = *b.BootSourceOverrideMode
		}
	}
	return boot, v.Err("Invalid node update")
}

func applyPatch(n *model.ComposedNode, p *Patch, boot model.Boot) {
	if p.Name != nil {
		n.Name = *p.Name
	}
	if p.Description != nil {
		n.Description = *p.Description
	}
	if p.ClearTPMOnDelete != nil {
		n.ClearTPMOnDelete = *p.ClearTPMOnDelete
	}
	if p.ClearOptaneMemoryOnDelete != nil {
		n.ClearOptaneMemoryOnDelete = *p.ClearOptaneMemoryOnDelete
	}
	if p.Oem != nil && p.Oem.IntelRackScale != nil {
		n.SetTaggedValues(p.Oem.IntelRackScale.TaggedValues)
	}
	n.Boot = boot
	n.UpdatedAt = time.Now().UTC()
}

func (s *serviceImpl) Delete(ctx context.Context, id string) (err error) {
	done := s.track(ctx, id, "Delete", "")
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	err = s.serializeZoning(ctx, n, func(ctx context.Context) error {
		var err error
		n, err = s.node(ctx, s.store, id)
		if err != nil {
			return err
		}
		if n.State == model.NodeAssembling {
			return service.NewStateMismatchError("Composed node %s is being assembled and cannot be deleted", n.ID)
		}
		if err := s.disassemble(ctx, n); err != nil {
			s.markFailed(ctx, n.ID)
			return service.NewEntityOperationError("Composed node could not be disassembled", err)
		}
		return s.release(ctx, n.ID, true)
	})
	if err != nil {
		return err
	}
	logger.Ctx(ctx).Info().Str("node", n.ID).Msg("node: deleted")
	s.emitter.EmitNode(ctx, events.NodeDeleted, n, "", "")
	return nil
}

func (s *serviceImpl) ForceDelete(ctx context.Context, id string) (err error) {
	done := s.track(ctx, id, "ForceDelete", "")
	defer func() {
		err = service.Wrap(err)
		done(err)
	}()

	n, err := s.node(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := s.release(ctx, id, false); err != nil {
		return err
	}
	logger.Ctx(ctx).Warn().Str("node", n.ID).Msg("node: force deleted")
	s.emitter.EmitNode(ctx, events.NodeDeleted, n, "", "force")
	return nil
}

// disassemble undoes on the external services what assembly and
// attachment did: zones are removed, drives flagged for it are erased and
// the TPM is cleared when asked for.
func (s *serviceImpl) disassemble(ctx context.Context, n *model.ComposedNode) error {
	for _, id := range n.Zones {
		z, err := store.GetAs[*model.Zone](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := s.deleteZone(ctx, z); err != nil {
			return err
		}
	}

	for _, id := range n.Drives {
		d, err := store.GetAs[*model.Drive](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if !d.IsLocal() && d.EraseOnDetach {
			if err := s.secureErase(ctx, d); err != nil {
				return err
			}
		}
	}

	if n.ClearTPMOnDelete && n.ComputerSystem != "" {
		sys, err := store.GetAs[*model.ComputerSystem](ctx, s.store.Resources(), n.ComputerSystem)
		if err == nil && len(sys.TrustedModules) > 0 {
			err = s.patch(ctx, sys.ServiceUUID, sys.SourceURI, redfish.NewClearTPMPatch())
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			logger.Ctx(ctx).Warn().Err(err).Str("node", n.ID).Msg("node: failed to request TPM clear")
		}
	}
	return nil
}

// release deallocates every asset of the node and removes it. Zones are
// dropped from the store when dropZones is set, otherwise they only lose
// their owner.
func (s *serviceImpl) release(ctx context.Context, id string, dropZones bool) error {
	return s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := s.node(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, aid := range n.Assets() {
			r, err := tx.Resources().Get(ctx, aid)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			n.DetachAsset(r)
			if z, ok := r.(*model.Zone); ok && dropZones {
				if err := dropZone(ctx, tx, z); err != nil {
					return err
				}
				continue
			}
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		return tx.Nodes().Delete(ctx, id)
	})
}

// dropZone deletes z from the store and clears the zone of its endpoints.
func dropZone(ctx context.Context, tx store.Tx, z *model.Zone) error {
	for _, id := range z.Endpoints {
		e, err := store.GetAs[*model.Endpoint](ctx, tx.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if e.Zone == z.ODataID {
			e.Zone = ""
			if err := tx.Resources().Put(ctx, e); err != nil {
				return err
			}
		}
	}
	err := tx.Resources().Delete(ctx, z.ODataID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// markFailed records a failed external operation on the node. It runs
// detached from ctx so a cancelled request still leaves the node Failed.
func (s *serviceImpl) markFailed(ctx context.Context, id string) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithTx(ctx, func(tx store.Tx) error {
		n, err := s.node(ctx, tx, id)
		if err != nil {
			return err
		}
		n.State = model.NodeFailed
		n.Status = model.StatusEnabledCritical
		n.UpdatedAt = time.Now().UTC()
		return tx.Nodes().Update(ctx, n)
	})
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("node", id).Msg("node: failed to mark node failed")
	}
}

// node loads a node, translating a missing one into NotFound.
func (s *serviceImpl) node(ctx context.Context, tx store.Tx, id string) (*model.ComposedNode, error) {
	n, err := tx.Nodes().Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, service.NewNotFoundError(model.NodeURI(id))
	}
	return n, err
}

// system loads the node's computer system. A node without one cannot be
// driven until it is recovered.
func (s *serviceImpl) system(ctx context.Context, tx store.Tx, n *model.ComposedNode) (*model.ComputerSystem, error) {
	if n.ComputerSystem == "" {
		return nil, s.unavailable("Computer system of composed node %s is not available", n.ID)
	}
	sys, err := store.GetAs[*model.ComputerSystem](ctx, tx.Resources(), n.ComputerSystem)
	if errors.Is(err, store.ErrNotFound) {
		return nil, s.unavailable("Computer system %s is not available", n.ComputerSystem)
	}
	return sys, err
}

func (s *serviceImpl) unavailable(format string, args ...any) error {
	return service.NewAssetNotAvailableError(fmt.Sprintf(format, args...), s.retryAfter)
}

// serialize runs fn under the coordinator key of the node's compute
// service.
func (s *serviceImpl) serialize(ctx context.Context, n *model.ComposedNode, fn func(ctx context.Context) error) error {
	return s.coord.Run(ctx, computeKey(n), fn)
}

// serializeZoning is serialize for operations that change zones. It also
// holds the key of every fabric service, the one fabric zone actions run
// under.
func (s *serviceImpl) serializeZoning(ctx context.Context, n *model.ComposedNode, fn func(ctx context.Context) error) error {
	fabrics, err := store.ListAs[*model.Fabric](ctx, s.store.Resources(), store.ResourceFilter{})
	if err != nil {
		return err
	}
	keys := []string{computeKey(n)}
	for _, f := range fabrics {
		keys = append(keys, f.ServiceUUID)
	}
	return coordinator.RunAll(ctx, s.coord, keys, fn)
}

func computeKey(n *model.ComposedNode) string {
	if n.AssociatedComputeServiceUUID == "" {
		return "node:" + n.ID
	}
	return n.AssociatedComputeServiceUUID
}

func requireState(n *model.ComposedNode, states ...model.ComposedNodeState) error {
	if n.IsInAnyOfStates(states...) {
		return nil
	}
	return service.NewStateMismatchError("Composed node %s is in %s state, operation requires %s", n.ID, n.State, states[0])
}

// track audits an action and records its metrics.
func (s *serviceImpl) track(ctx context.Context, id, action string, resource model.ODataID) func(error) {
	start := time.Now()
	done := audit.Track(ctx, s.audit, id, action, resource.String())
	return func(err error) {
		done(err)
		ActionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
		ActionsTotal.WithLabelValues(action, result(err)).Inc()
	}
}

func result(err error) string {
	if err == nil {
		return "success"
	}
	return service.CodeOf(err).String()
}
