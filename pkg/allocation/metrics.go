// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	AllocationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "allocation",
		Name:      "requests_total",
		Help:      "Total allocation requests by result",
	}, []string{"result"})

	AllocationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "allocation",
		Name:      "duration_seconds",
		Help:      "Duration of allocation requests, lock wait included",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	CompensationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "allocation",
		Name:      "compensations_total",
		Help:      "Total allocations rolled back after the node was created",
	})
)

func init() {
	debug.Registry().MustRegister(
		AllocationsTotal,
		AllocationDuration,
		CompensationsTotal,
	)
}
