// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeeDigitalWorks/podm/pkg/debug"
)

var (
	// IncomingEventsTotal counts events received from external services.
	IncomingEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "incoming_total",
		Help:      "Total number of Redfish events received from external services",
	})

	// BufferFlushesTotal counts buffer flushes by outcome.
	BufferFlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "buffer_flushes_total",
		Help:      "Total number of incoming event buckets flushed to the processor",
	}, []string{"result"}) // result: "success", "error"

	// BufferPending is the number of buffered events not yet flushed.
	BufferPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "buffer_pending",
		Help:      "Number of incoming events waiting for their window to elapse",
	})

	// NotificationsEmittedTotal tracks lifecycle events queued by type.
	NotificationsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total number of node lifecycle events queued for delivery",
	}, []string{"event_type"})

	NotificationsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total number of node lifecycle events dropped (emitter disabled)",
	})

	// EmitErrorsTotal tracks emission errors.
	EmitErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "errors_total",
		Help:      "Total number of event emission errors",
	}, []string{"error_type"}) // error_type: "marshal", "enqueue"

	DeliveredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "delivered_total",
		Help:      "Total number of notifications delivered to publishers",
	}, []string{"publisher"})

	DeliveryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "delivery_errors_total",
		Help:      "Total number of notification delivery errors",
	}, []string{"publisher"})

	DeliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "delivery_duration_seconds",
		Help:      "Time spent delivering notifications to publishers",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"publisher"})

	// SubscriptionsCreatedTotal counts subscriptions registered on external
	// services.
	SubscriptionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "events",
		Name:      "subscriptions_created_total",
		Help:      "Total number of event subscriptions created on external services",
	})
)

func init() {
	debug.Registry().MustRegister(
		IncomingEventsTotal,
		BufferFlushesTotal,
		BufferPending,
		NotificationsEmittedTotal,
		NotificationsDroppedTotal,
		EmitErrorsTotal,
		DeliveredTotal,
		DeliveryErrorsTotal,
		DeliveryDuration,
		SubscriptionsCreatedTotal,
	)
}
