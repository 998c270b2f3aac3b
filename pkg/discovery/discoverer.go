// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery pulls resources from external services into the store
// and keeps composed nodes consistent with what it finds.
//
// A discovery run of one service is serialized with every other task on
// that service through the coordinator. Runs are triggered by registration,
// by incoming events (via rediscovery tasks) and by a periodic ticker.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LeeDigitalWorks/podm/pkg/coordinator"
	"github.com/LeeDigitalWorks/podm/pkg/events"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
	"github.com/LeeDigitalWorks/podm/pkg/utils"
)

const (
	DefaultInterval    = time.Minute
	DefaultJitter      = 0.1
	DefaultConcurrency = 8
	DefaultTimeout     = 2 * time.Minute

	// unreachableTimeout bounds marking a service unreachable after its
	// discovery ran out of time.
	unreachableTimeout = 10 * time.Second
)

var ErrNoServiceUUID = errors.New("service root has no UUID")

type Config struct {
	Interval    time.Duration `mapstructure:"discovery_interval"`
	Jitter      float64       `mapstructure:"discovery_jitter"`
	Concurrency int           `mapstructure:"discovery_concurrency"`
	Timeout     time.Duration `mapstructure:"discovery_timeout"`

	// Services are registered on the first pass. Those that cannot be
	// reached are retried on every following pass.
	Services []string `mapstructure:"service_urls"`
}

func DefaultConfig() Config {
	return Config{
		Interval:    DefaultInterval,
		Jitter:      DefaultJitter,
		Concurrency: DefaultConcurrency,
		Timeout:     DefaultTimeout,
	}
}

type Discoverer struct {
	cfg     Config
	store   store.Store
	clients *client.Pool
	coord   coordinator.Coordinator
	queue   taskqueue.Queue
	emitter *events.Emitter

	mu        sync.Mutex
	unreached map[string]struct{}
	firstPass atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// New builds a discoverer. queue may be nil, then registration discovers
// synchronously and recovery runs right after discovery.
func New(cfg Config, st store.Store, clients *client.Pool, coord coordinator.Coordinator, queue taskqueue.Queue, emitter *events.Emitter) *Discoverer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	d := &Discoverer{
		cfg:       cfg,
		store:     st,
		clients:   clients,
		coord:     coord,
		queue:     queue,
		emitter:   emitter,
		unreached: make(map[string]struct{}),
		stopCh:    make(chan struct{}),
	}
	for _, u := range cfg.Services {
		if u = strings.TrimSpace(u); u != "" {
			d.unreached[u] = struct{}{}
		}
	}
	return d
}

// Register reads the service root at baseURL and stores the service under
// the UUID it reports, then schedules its discovery and event subscription.
func (d *Discoverer) Register(ctx context.Context, baseURL string) (*model.ExternalService, error) {
	c, err := d.clients.ForURL(baseURL)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	root, err := client.GetAs[redfish.ServiceRoot](client.Fresh(ctx), c, rootPath)
	if err != nil {
		return nil, fmt.Errorf("register %s: %w", baseURL, err)
	}
	if root.UUID == "" {
		return nil, fmt.Errorf("register %s: %w", baseURL, ErrNoServiceUUID)
	}

	svc, err := d.store.Services().Get(ctx, root.UUID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		svc = &model.ExternalService{
			ODataID:   model.ServiceURI(root.UUID),
			UUID:      root.UUID,
			CreatedAt: time.Now().UTC(),
		}
	case err != nil:
		return nil, err
	}
	svc.BaseURL = c.BaseURL()
	if t := model.ParseServiceType(root.Oem.IntelRackScale.ServiceType); t != model.ServiceUnknown || svc.ServiceType == "" {
		svc.ServiceType = t
	}
	if err := d.store.Services().Put(ctx, svc); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("service", svc.UUID).
		Str("url", svc.BaseURL).
		Str("type", string(svc.ServiceType)).
		Msg("discovery: registered service")

	if d.queue == nil {
		return svc, d.Discover(ctx, svc.UUID)
	}
	d.enqueue(ctx, taskqueue.TaskTypeRediscovery, svc.UUID, "register")
	d.enqueue(ctx, taskqueue.TaskTypeEventSubscription, svc.UUID, "register")
	return svc, nil
}

func (d *Discoverer) enqueue(ctx context.Context, t taskqueue.TaskType, serviceUUID, reason string) {
	task, err := taskqueue.NewServiceTask(t, serviceUUID, reason)
	if err == nil {
		_, err = taskqueue.EnqueueUnique(ctx, d.queue, task)
	}
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("service", serviceUUID).Str("type", string(t)).Msg("discovery: failed to queue task")
	}
}

// Discover refreshes the store with the current resources of a service.
// When the service cannot be read it is marked unreachable and its
// resources go offline. Either way nodes using its assets are updated.
func (d *Discoverer) Discover(ctx context.Context, serviceUUID string) error {
	start := time.Now()
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	var (
		disabled []nodeChange
		eligible bool
	)
	err := d.coord.Run(ctx, serviceUUID, func(ctx context.Context) error {
		var err error
		disabled, eligible, err = d.discover(ctx, serviceUUID)
		return err
	})

	result := "success"
	if err != nil {
		result = "error"
	}
	RunsTotal.WithLabelValues(result).Inc()
	RunDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	for _, c := range disabled {
		d.emitter.EmitNode(ctx, events.NodeDisabled, c.node, c.asset, "asset "+c.asset.String()+" is not operational")
	}
	if eligible {
		d.requestRecovery(ctx, serviceUUID)
	}
	if err != nil {
		return fmt.Errorf("discover %s: %w", serviceUUID, err)
	}
	logger.Ctx(ctx).Debug().
		Str("service", serviceUUID).
		Dur("duration", time.Since(start)).
		Msg("discovery: service discovered")
	return nil
}

func (d *Discoverer) discover(ctx context.Context, serviceUUID string) ([]nodeChange, bool, error) {
	svc, err := d.store.Services().Get(ctx, serviceUUID)
	if err != nil {
		return nil, false, err
	}
	c, err := d.clients.Get(ctx, serviceUUID)
	if err != nil {
		return nil, false, err
	}

	snap, err := crawl(ctx, c, d.cfg.Concurrency)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		logger.Ctx(ctx).Warn().Err(err).Str("service", serviceUUID).Msg("discovery: service unreachable")
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unreachableTimeout)
		defer cancel()
		disabled, eligible, merr := d.markUnreachable(mctx, svc)
		return disabled, eligible, errors.Join(err, merr)
	}
	derive(snap.resources)

	var (
		disabled []nodeChange
		eligible bool
	)
	err = d.store.WithTx(ctx, func(tx store.Tx) error {
		rs := tx.Resources()
		keep := make(map[model.ODataID]struct{}, len(snap.resources))
		for _, r := range snap.sorted() {
			if err := carryOver(ctx, rs, r); err != nil {
				return err
			}
			if err := rs.Put(ctx, r); err != nil {
				return fmt.Errorf("put %s: %w", r.Base().ODataID, err)
			}
			keep[r.Base().ODataID] = struct{}{}
			ResourcesDiscovered.WithLabelValues(string(r.Kind())).Inc()
		}
		absent, err := rs.MarkAbsent(ctx, serviceUUID, keep)
		if err != nil {
			return err
		}
		if absent > 0 {
			ResourcesAbsent.Add(float64(absent))
			logger.Ctx(ctx).Info().Str("service", serviceUUID).Int("count", absent).Msg("discovery: resources absent")
		}

		svc.Reachable = true
		svc.LastDiscovery = time.Now().UTC()
		if t := snap.serviceType(); t != model.ServiceUnknown {
			svc.ServiceType = t
		}
		if err := tx.Services().Put(ctx, svc); err != nil {
			return err
		}

		if disabled, err = disableNodes(ctx, tx, serviceUUID); err != nil {
			return err
		}
		eligible, err = anyEligible(ctx, tx)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return disabled, eligible, nil
}

// carryOver keeps the state PodM owns on a rediscovered resource: its
// allocation and, for zones, the owning node.
func carryOver(ctx context.Context, rs store.ResourceStore, r model.Resource) error {
	old, err := rs.Get(ctx, r.Base().ODataID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	r.Base().Allocated = old.Base().Allocated
	if z, ok := r.(*model.Zone); ok {
		if oz, ok := old.(*model.Zone); ok {
			z.Node = oz.Node
		}
	}
	return nil
}

func (d *Discoverer) markUnreachable(ctx context.Context, svc *model.ExternalService) ([]nodeChange, bool, error) {
	var (
		disabled []nodeChange
		eligible bool
	)
	err := d.store.WithTx(ctx, func(tx store.Tx) error {
		svc.Reachable = false
		if err := tx.Services().Put(ctx, svc); err != nil {
			return err
		}
		resources, err := tx.Resources().List(ctx, store.ResourceFilter{ServiceUUID: svc.UUID})
		if err != nil {
			return err
		}
		for _, r := range resources {
			m := r.Base()
			if m.Status.State == model.StateAbsent || m.Status.State == model.StateUnavailableOffline {
				continue
			}
			m.Status.State = model.StateUnavailableOffline
			if err := tx.Resources().Put(ctx, r); err != nil {
				return err
			}
		}
		if disabled, err = disableNodes(ctx, tx, svc.UUID); err != nil {
			return err
		}
		eligible, err = anyEligible(ctx, tx)
		return err
	})
	return disabled, eligible, err
}

func (d *Discoverer) requestRecovery(ctx context.Context, serviceUUID string) {
	if d.queue != nil {
		d.enqueue(ctx, taskqueue.TaskTypeNodeRecovery, serviceUUID, "discovery")
		return
	}
	if err := d.Recover(ctx, serviceUUID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("service", serviceUUID).Msg("discovery: node recovery failed")
	}
}

// Recover re-links the assets of nodes eligible for recovery and returns
// complete ones to Assembled. It runs under the service's key so it does
// not interleave with that service's discovery.
func (d *Discoverer) Recover(ctx context.Context, serviceUUID string) error {
	var recovered []nodeChange
	err := d.coord.Run(ctx, serviceUUID, func(ctx context.Context) error {
		return d.store.WithTx(ctx, func(tx store.Tx) error {
			var err error
			recovered, err = recoverNodes(ctx, tx)
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("recover nodes for %s: %w", serviceUUID, err)
	}
	for _, c := range recovered {
		d.emitter.EmitNode(ctx, events.NodeRecovered, c.node, c.asset, "")
	}
	return nil
}

// Handlers returns the task handlers for rediscovery and node recovery.
func (d *Discoverer) Handlers() []taskqueue.Handler {
	return []taskqueue.Handler{
		taskqueue.HandlerFunc{TaskType: taskqueue.TaskTypeRediscovery, Fn: d.handleRediscovery},
		taskqueue.HandlerFunc{TaskType: taskqueue.TaskTypeNodeRecovery, Fn: d.handleRecovery},
	}
}

func (d *Discoverer) handleRediscovery(ctx context.Context, task *taskqueue.Task) error {
	p, ok := servicePayload(ctx, task)
	if !ok {
		return nil
	}
	err := d.Discover(ctx, p.ServiceUUID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Ctx(ctx).Debug().Str("service", p.ServiceUUID).Msg("discovery: service gone, dropping rediscovery")
		return nil
	}
	return err
}

func (d *Discoverer) handleRecovery(ctx context.Context, task *taskqueue.Task) error {
	p, ok := servicePayload(ctx, task)
	if !ok {
		return nil
	}
	return d.Recover(ctx, p.ServiceUUID)
}

func servicePayload(ctx context.Context, task *taskqueue.Task) (taskqueue.ServicePayload, bool) {
	p, err := taskqueue.UnmarshalPayload[taskqueue.ServicePayload](task.Payload)
	if err != nil || p.ServiceUUID == "" {
		logger.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID).Msg("discovery: bad service payload")
		return p, false
	}
	return p, true
}

// DiscoverAll registers configured services not registered yet, then
// discovers every known service. Failures are logged.
func (d *Discoverer) DiscoverAll(ctx context.Context) {
	d.mu.Lock()
	pending := make([]string, 0, len(d.unreached))
	for u := range d.unreached {
		pending = append(pending, u)
	}
	d.mu.Unlock()

	for _, u := range pending {
		if _, err := d.Register(ctx, u); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Str("url", u).Msg("discovery: registration failed")
			continue
		}
		d.mu.Lock()
		delete(d.unreached, u)
		d.mu.Unlock()
	}

	services, err := d.store.Services().List(ctx)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("discovery: listing services failed")
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for _, svc := range services {
		g.Go(func() error {
			if err := d.Discover(gctx, svc.UUID); err != nil {
				logger.Ctx(gctx).Warn().Err(err).Str("service", svc.UUID).Msg("discovery: run failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Start runs a first pass in the background, then rediscovers every
// service on a jittered interval until Stop or ctx is done.
func (d *Discoverer) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.DiscoverAll(ctx)
		d.firstPass.Store(true)
		logger.Ctx(ctx).Info().Msg("discovery: first pass complete")

		ticks, stop := utils.JitteredTicker(d.cfg.Interval, d.cfg.Jitter)
		defer stop()
		for {
			select {
			case <-d.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticks:
				d.DiscoverAll(ctx)
			}
		}
	}()
}

// Stop waits for the running pass to finish. It is safe to call more than
// once.
func (d *Discoverer) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
		d.wg.Wait()
	})
}

// FirstPassDone reports whether every service has been tried once. It is
// used as a readiness check.
func (d *Discoverer) FirstPassDone() bool {
	return d.firstPass.Load()
}
