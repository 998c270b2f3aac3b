// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
)

const rootPath = "/redfish/v1"

var ErrServiceMismatch = errors.New("service root reports a different uuid")

// snapshot holds the resources read from a service in one crawl, keyed by
// PodM URI.
type snapshot struct {
	mu        sync.Mutex
	root      *redfish.ServiceRoot
	resources map[model.ODataID]model.Resource
	// drives listed by storage services only; chassis listings carry more
	// detail and win.
	late []model.Resource
}

func newSnapshot(root *redfish.ServiceRoot) *snapshot {
	return &snapshot{root: root, resources: make(map[model.ODataID]model.Resource)}
}

func (s *snapshot) add(r model.Resource) {
	id := r.Base().ODataID
	if id == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[id]; !ok {
		s.resources[id] = r
	}
}

func (s *snapshot) addLate(r model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.late = append(s.late, r)
}

// sorted returns the resources in URI order.
func (s *snapshot) sorted() []model.Resource {
	ids := sortedIDs(s.resources)
	out := make([]model.Resource, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.resources[id])
	}
	return out
}

func (s *snapshot) serviceType() model.ServiceType {
	return model.ParseServiceType(s.root.Oem.IntelRackScale.ServiceType)
}

func sortedIDs[V any](m map[model.ODataID]V) []model.ODataID {
	ids := make([]model.ODataID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type crawler struct {
	c      *client.Client
	mapper redfish.Mapper
	limit  int
	snap   *snapshot
}

// crawl reads every resource PodM models from the service behind c. Each
// top level collection is walked concurrently; members of a collection are
// fetched at most limit at a time. Cached responses are never used, so a
// failing service fails the crawl.
func crawl(ctx context.Context, c *client.Client, limit int) (*snapshot, error) {
	ctx = client.Fresh(ctx)
	root, err := client.GetAs[redfish.ServiceRoot](ctx, c, rootPath)
	if err != nil {
		return nil, fmt.Errorf("service root: %w", err)
	}
	if root.UUID != "" && !strings.EqualFold(root.UUID, c.ServiceUUID()) {
		return nil, fmt.Errorf("%w: %s", ErrServiceMismatch, root.UUID)
	}
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	cr := &crawler{
		c:      c,
		mapper: redfish.NewMapper(c.ServiceUUID()),
		limit:  limit,
		snap:   newSnapshot(root),
	}
	g, gctx := errgroup.WithContext(ctx)
	branch := func(l *model.Link, walk func(ctx context.Context, coll string) error) {
		if p := linkPath(l); p != "" {
			g.Go(func() error { return walk(gctx, p) })
		}
	}
	branch(root.Systems, cr.systems)
	branch(root.Chassis, cr.chassis)
	branch(root.Fabrics, cr.fabrics)
	branch(root.StorageServices, cr.storageServices)
	branch(root.EthernetSwitches, cr.switches)
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, r := range cr.snap.late {
		cr.snap.add(r)
	}
	return cr.snap, nil
}

func linkPath(l *model.Link) string {
	if l == nil {
		return ""
	}
	return l.ODataID.String()
}

// eachMember fetches the members of coll and calls fn for each. A missing
// collection or member is skipped, it may have been removed since it was
// linked.
func eachMember[T any](ctx context.Context, cr *crawler, coll string, fn func(ctx context.Context, w *T) error) error {
	if coll == "" {
		return nil
	}
	members, err := cr.c.Members(ctx, coll)
	if client.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("list %s: %w", coll, err)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cr.limit)
	for _, m := range members {
		g.Go(func() error {
			w, err := client.GetAs[T](gctx, cr.c, m)
			if client.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", m, err)
			}
			return fn(gctx, w)
		})
	}
	return g.Wait()
}

// fetchAll returns the members of coll in listing order.
func fetchAll[T any](ctx context.Context, cr *crawler, coll string) ([]*T, error) {
	if coll == "" {
		return nil, nil
	}
	members, err := cr.c.Members(ctx, coll)
	if client.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", coll, err)
	}
	out := make([]*T, len(members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cr.limit)
	for i, m := range members {
		g.Go(func() error {
			w, err := client.GetAs[T](gctx, cr.c, m)
			if client.IsNotFound(err) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", m, err)
			}
			out[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.DeleteFunc(out, func(w *T) bool { return w == nil }), nil
}

func (cr *crawler) systems(ctx context.Context, coll string) error {
	return eachMember(ctx, cr, coll, func(ctx context.Context, w *redfish.ComputerSystem) error {
		cr.snap.add(cr.mapper.System(w))

		g, gctx := errgroup.WithContext(ctx)
		if p := linkPath(w.Processors); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Processor) error {
					cr.snap.add(cr.mapper.Processor(w))
					return nil
				})
			})
		}
		if p := linkPath(w.Memory); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Memory) error {
					cr.snap.add(cr.mapper.Memory(w))
					return nil
				})
			})
		}
		if p := linkPath(w.EthernetInterfaces); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(ctx context.Context, w *redfish.EthernetInterface) error {
					vlans, err := fetchAll[redfish.VLAN](ctx, cr, linkPath(w.VLANs))
					if err != nil {
						return err
					}
					cr.snap.add(cr.mapper.EthernetInterface(w, vlans))
					return nil
				})
			})
		}
		return g.Wait()
	})
}

func (cr *crawler) chassis(ctx context.Context, coll string) error {
	return eachMember(ctx, cr, coll, func(ctx context.Context, w *redfish.Chassis) error {
		cr.snap.add(cr.mapper.Chassis(w))

		drives := make([]string, 0, len(w.Links.Drives))
		for _, l := range w.Links.Drives {
			drives = append(drives, l.ODataID.String())
		}
		if p := linkPath(w.Drives); p != "" {
			members, err := cr.c.Members(ctx, p)
			if err != nil && !client.IsNotFound(err) {
				return fmt.Errorf("list %s: %w", p, err)
			}
			drives = append(drives, members...)
		}
		slices.Sort(drives)
		drives = slices.Compact(drives)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cr.limit)
		for _, p := range drives {
			g.Go(func() error {
				d, err := client.GetAs[redfish.Drive](gctx, cr.c, p)
				if client.IsNotFound(err) {
					return nil
				}
				if err != nil {
					return fmt.Errorf("get %s: %w", p, err)
				}
				cr.snap.add(cr.mapper.Drive(d, w))
				return nil
			})
		}
		return g.Wait()
	})
}

func (cr *crawler) fabrics(ctx context.Context, coll string) error {
	return eachMember(ctx, cr, coll, func(ctx context.Context, w *redfish.Fabric) error {
		cr.snap.add(cr.mapper.Fabric(w))

		g, gctx := errgroup.WithContext(ctx)
		if p := linkPath(w.Zones); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Zone) error {
					cr.snap.add(cr.mapper.Zone(w))
					return nil
				})
			})
		}
		if p := linkPath(w.Endpoints); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Endpoint) error {
					cr.snap.add(cr.mapper.Endpoint(w))
					return nil
				})
			})
		}
		return g.Wait()
	})
}

func (cr *crawler) storageServices(ctx context.Context, coll string) error {
	return eachMember(ctx, cr, coll, func(ctx context.Context, w *redfish.StorageService) error {
		g, gctx := errgroup.WithContext(ctx)
		if p := linkPath(w.Volumes); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Volume) error {
					cr.snap.add(cr.mapper.Volume(w))
					return nil
				})
			})
		}
		if p := linkPath(w.Drives); p != "" {
			g.Go(func() error {
				return eachMember(gctx, cr, p, func(_ context.Context, w *redfish.Drive) error {
					cr.snap.addLate(cr.mapper.Drive(w, nil))
					return nil
				})
			})
		}
		return g.Wait()
	})
}

func (cr *crawler) switches(ctx context.Context, coll string) error {
	return eachMember(ctx, cr, coll, func(ctx context.Context, w *redfish.EthernetSwitch) error {
		return eachMember(ctx, cr, linkPath(w.Ports), func(ctx context.Context, w *redfish.EthernetSwitchPort) error {
			vlans, err := fetchAll[redfish.VLAN](ctx, cr, linkPath(w.VLANs))
			if err != nil {
				return err
			}
			cr.snap.add(cr.mapper.SwitchPort(w, vlans))
			return nil
		})
	})
}
