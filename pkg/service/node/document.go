// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

// document renders n. With live set the power state is read from the
// external system, falling back to the stored value.
func (s *serviceImpl) document(ctx context.Context, n *model.ComposedNode, live bool) (*Node, error) {
	uri := n.ODataID
	action := func(name string) string {
		return uri.Join("Actions", "ComposedNode."+name).String()
	}

	doc := &Node{
		ODataContext:              nodeContext,
		ODataID:                   uri,
		ODataType:                 nodeType,
		ID:                        n.ID,
		Name:                      n.Name,
		Description:               n.Description,
		UUID:                      n.ComputerSystemUUID,
		Status:                    n.Status,
		ComposedNodeState:         n.State,
		Boot:                      n.Boot,
		ClearTPMOnDelete:          n.ClearTPMOnDelete,
		ClearOptaneMemoryOnDelete: n.ClearOptaneMemoryOnDelete,
		Processors:                ProcessorSummary{Status: n.Status},
		Memory:                    MemorySummary{Status: n.Status},
		Links: Links{
			Processors:         model.Links(n.Processors),
			Memory:             model.Links(n.Memory),
			EthernetInterfaces: model.Links(n.EthernetInterfaces),
			Storage:            model.Links(append(slices.Clone(n.Drives), n.Volumes...)),
			Endpoints:          model.Links(n.Endpoints),
			Zones:              model.Links(n.Zones),
		},
		Actions: Actions{
			Reset:    ResetAction{Target: action("Reset"), AllowableValues: []model.ResetType{}},
			Assemble: Action{Target: action("Assemble")},
			AttachResource: InfoAction{
				Target:     action("AttachResource"),
				ActionInfo: uri.Join("AttachResourceActionInfo").String(),
			},
			DetachResource: InfoAction{
				Target:     action("DetachResource"),
				ActionInfo: uri.Join("DetachResourceActionInfo").String(),
			},
			ForceDelete: Action{Target: action("ForceDelete")},
		},
	}
	doc.Oem.IntelRackScale.TaggedValues = n.TaggedValues
	if doc.Oem.IntelRackScale.TaggedValues == nil {
		doc.Oem.IntelRackScale.TaggedValues = map[string]any{}
	}

	if n.ComputerSystem != "" {
		link := n.ComputerSystem.Link()
		doc.Links.ComputerSystem = &link

		sys, err := store.GetAs[*model.ComputerSystem](ctx, s.store.Resources(), n.ComputerSystem)
		switch {
		case err == nil:
			doc.Actions.Reset.AllowableValues = sys.ResetTypes()
			doc.PowerState = sys.PowerState
			if live {
				doc.PowerState = s.powerState(ctx, sys)
			}
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}

	for _, id := range n.Processors {
		p, err := store.GetAs[*model.Processor](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		doc.Processors.Count++
		if doc.Processors.Model == "" {
			doc.Processors.Model = p.Model
		}
	}

	var mib int
	for _, id := range n.Memory {
		m, err := store.GetAs[*model.Memory](ctx, s.store.Resources(), id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if m.CapacityMiB != nil {
			mib += *m.CapacityMiB
		}
	}
	if mib > 0 {
		gib := float64(mib) / 1024
		doc.Memory.TotalSystemMemoryGiB = &gib
	}
	return doc, nil
}

func (s *serviceImpl) powerState(ctx context.Context, sys *model.ComputerSystem) model.PowerState {
	c, err := s.clients.Get(ctx, sys.ServiceUUID)
	if err == nil {
		var w redfish.ComputerSystem
		if err = c.Get(ctx, sys.SourceURI, &w); err == nil && w.PowerState != "" {
			return w.PowerState
		}
	}
	logger.Ctx(ctx).Debug().Err(err).Str("system", sys.ODataID.String()).Msg("node: using stored power state")
	return sys.PowerState
}
