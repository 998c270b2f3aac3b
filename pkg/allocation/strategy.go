// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"cmp"
	"slices"

	"github.com/LeeDigitalWorks/podm/pkg/model"
)

type matcher func(c *candidate, req *RequestedNode) bool

// plan is the set of assets chosen for a new node.
type plan struct {
	system       *model.ComputerSystem
	// assets are attached in order, the system first.
	assets       []model.Resource
	remoteBytes  int64
	hasTPM       bool
	requestedTPM *bool
}

// choose finds the candidate system with the fewest spare resources that
// satisfies every matcher, and the remote assets that go with it.
func choose(inv *inventory, req *RequestedNode, cons *constraints) (*plan, bool) {
	matchers := []matcher{
		matchProcessors,
		matchMemory,
		matchEthernet(inv),
		matchSecurity,
		matchLocalDrives,
		matchTotals,
	}

	type match struct {
		c      *candidate
		remote []remoteAsset
	}
	var matches []match
	for _, s := range inv.systems {
		if !eligible(inv, s, cons) {
			continue
		}
		c := newCandidate(inv, s)
		if !slices.ContainsFunc(matchers, func(m matcher) bool { return !m(c, req) }) {
			remote, ok := inv.selectRemote(s, cons.remote)
			if ok {
				matches = append(matches, match{c: c, remote: remote})
			}
		}
	}
	if len(matches) == 0 {
		return nil, false
	}

	best := slices.MinFunc(matches, func(a, b match) int {
		return cmp.Or(
			cmp.Compare(a.c.processorCount(), b.c.processorCount()),
			cmp.Compare(a.c.memoryMiB(), b.c.memoryMiB()),
			cmp.Compare(a.c.system.ODataID, b.c.system.ODataID),
		)
	})
	return best.c.plan(req, best.remote), true
}

// eligible reports whether the system can host a new node at all.
func eligible(inv *inventory, s *model.ComputerSystem, cons *constraints) bool {
	if s.SystemType != model.SystemTypePhysical || !inv.free(&s.Meta) {
		return false
	}
	if cons.system != nil && cons.system.ODataID != s.ODataID {
		return false
	}
	if cons.chassisSystems != nil && !slices.Contains(cons.chassisSystems, s.ODataID) {
		return false
	}
	return true
}

func (c *candidate) plan(req *RequestedNode, remote []remoteAsset) *plan {
	p := &plan{
		system:       c.system,
		assets:       []model.Resource{c.system},
		hasTPM:       len(c.system.TrustedModules) > 0,
		requestedTPM: req.Oem.IntelRackScale.ClearTPMOnDelete,
	}
	for _, r := range c.processors {
		p.assets = append(p.assets, r)
	}
	for _, r := range c.memory {
		p.assets = append(p.assets, r)
	}
	for _, r := range c.nics {
		p.assets = append(p.assets, r)
	}
	for _, d := range c.localDrives(req) {
		p.assets = append(p.assets, d)
	}
	for _, ra := range remote {
		p.assets = append(p.assets, ra.asset)
		for _, e := range ra.endpoints {
			p.assets = append(p.assets, e)
		}
		p.remoteBytes += ra.capacity
	}
	return p
}

// clearTPMOnDelete defaults to clearing when the system carries a TPM.
func (p *plan) clearTPMOnDelete() bool {
	if p.requestedTPM != nil {
		return *p.requestedTPM
	}
	return p.hasTPM
}
