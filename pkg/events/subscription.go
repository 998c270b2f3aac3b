// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"context"
	"fmt"
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/redfish"
	"github.com/LeeDigitalWorks/podm/pkg/redfish/client"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

const (
	eventServicePath  = "/redfish/v1/EventService"
	subscriptionsPath = "/redfish/v1/EventService/Subscriptions"

	// ListenerPath is where external services push events, followed by
	// the service UUID.
	ListenerPath = "/redfish/v1/EventListener/"
)

// SubscriptionRegistrar makes sure every external service pushes its
// events to our listener.
type SubscriptionRegistrar struct {
	clients      *client.Pool
	services     store.ServiceStore
	listenerBase string
}

// NewSubscriptionRegistrar builds destinations from listenerBase, the URL
// external services can reach the API on.
func NewSubscriptionRegistrar(clients *client.Pool, services store.ServiceStore, listenerBase string) *SubscriptionRegistrar {
	return &SubscriptionRegistrar{
		clients:      clients,
		services:     services,
		listenerBase: strings.TrimRight(listenerBase, "/"),
	}
}

// ListenerURL is the subscription destination for a service.
func (r *SubscriptionRegistrar) ListenerURL(serviceUUID string) string {
	return r.listenerBase + ListenerPath + serviceUUID
}

func (r *SubscriptionRegistrar) Type() taskqueue.TaskType {
	return taskqueue.TaskTypeEventSubscription
}

func (r *SubscriptionRegistrar) Handle(ctx context.Context, task *taskqueue.Task) error {
	p, err := taskqueue.UnmarshalPayload[taskqueue.ServicePayload](task.Payload)
	if err != nil || p.ServiceUUID == "" {
		logger.Ctx(ctx).Warn().Err(err).Str("task_id", task.ID).Msg("events: bad subscription payload")
		return nil
	}
	return r.Ensure(ctx, p.ServiceUUID)
}

// Ensure subscribes to the service's events unless a subscription to our
// listener already exists. Nothing is created when the subscription
// collection has no Members, or when an existing subscription cannot be
// inspected.
func (r *SubscriptionRegistrar) Ensure(ctx context.Context, serviceUUID string) error {
	c, err := r.clients.Get(ctx, serviceUUID)
	if err != nil {
		return err
	}
	log := logger.Ctx(ctx).With().Str("service", serviceUUID).Logger()

	var coll struct {
		Members *[]struct {
			ODataID string `json:"@odata.id"`
		} `json:"Members"`
	}
	if err := c.Get(ctx, subscriptionsPath, &coll); err != nil {
		return fmt.Errorf("list subscriptions of %s: %w", serviceUUID, err)
	}
	if coll.Members == nil {
		log.Warn().Msg("events: subscription collection has no Members, not subscribing")
		return nil
	}

	destination := r.ListenerURL(serviceUUID)
	for _, m := range *coll.Members {
		var sub struct {
			Destination *string `json:"Destination"`
		}
		if err := c.Get(ctx, m.ODataID, &sub); err != nil {
			log.Warn().Err(err).Str("subscription", m.ODataID).Msg("events: cannot read subscription, not subscribing")
			return nil
		}
		if sub.Destination == nil {
			log.Warn().Str("subscription", m.ODataID).Msg("events: subscription without Destination, not subscribing")
			return nil
		}
		if *sub.Destination == destination {
			log.Debug().Str("subscription", m.ODataID).Msg("events: already subscribed")
			return r.markEventing(ctx, serviceUUID, m.ODataID)
		}
	}

	var es redfish.EventService
	if err := c.Get(ctx, eventServicePath, &es); err != nil {
		return fmt.Errorf("read event service of %s: %w", serviceUUID, err)
	}
	if len(es.EventTypesForSubscription) == 0 {
		log.Info().Msg("events: service supports no event types, not subscribing")
		return nil
	}

	location, err := c.Post(ctx, subscriptionsPath, redfish.NewSubscription(destination, es.EventTypesForSubscription))
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", serviceUUID, err)
	}
	SubscriptionsCreatedTotal.Inc()
	log.Info().Str("destination", destination).Str("subscription", location).Msg("events: subscribed")
	return r.markEventing(ctx, serviceUUID, location)
}

func (r *SubscriptionRegistrar) markEventing(ctx context.Context, serviceUUID, subscription string) error {
	svc, err := r.services.Get(ctx, serviceUUID)
	if err != nil {
		return err
	}
	if svc.EventingAvailable && svc.SubscriptionURI == subscription {
		return nil
	}
	svc.EventingAvailable = true
	svc.SubscriptionURI = subscription
	return r.services.Put(ctx, svc)
}
