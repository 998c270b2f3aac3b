// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Total API requests by route, method and status",
	}, []string{"route", "method", "status"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Duration of API requests by route and method",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	PanicsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "api",
		Name:      "panics_total",
		Help:      "Total handler panics recovered",
	})
)

func init() {
	debug.Registry().MustRegister(
		RequestsTotal,
		RequestDuration,
		PanicsTotal,
	)
}
