// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Total requests sent to external services",
	}, []string{"method", "code"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Latency of requests to external services",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// CacheFallbacks counts GETs answered from the response cache because
	// the service failed.
	CacheFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "client",
		Name:      "cache_fallbacks_total",
		Help:      "Total GETs served from cache after a service failure",
	})

	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "podm",
		Subsystem: "client",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per service (0 closed, 1 half-open, 2 open)",
	}, []string{"service"})

	TaskMonitorPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "client",
		Name:      "task_monitor_polls_total",
		Help:      "Total polls of asynchronous action task monitors",
	})
)

func init() {
	debug.Registry().MustRegister(
		RequestsTotal,
		RequestDuration,
		CacheFallbacks,
		BreakerState,
		TaskMonitorPolls,
	)
}
