// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package discovery

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "runs_total",
		Help:      "Total discovery runs by result",
	}, []string{"result"})

	RunDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "run_duration_seconds",
		Help:      "Duration of a discovery run of one external service",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"result"})

	ResourcesDiscovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "resources_discovered_total",
		Help:      "Total resources read from external services, by kind",
	}, []string{"kind"})

	ResourcesAbsent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "resources_absent_total",
		Help:      "Total resources marked absent after disappearing from their service",
	})

	NodesDisabled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "nodes_disabled_total",
		Help:      "Total composed nodes failed because an asset stopped being operational",
	})

	NodesRecovered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "discovery",
		Name:      "nodes_recovered_total",
		Help:      "Total composed nodes returned to Assembled by recovery",
	})
)

func init() {
	debug.Registry().MustRegister(
		RunsTotal,
		RunDuration,
		ResourcesDiscovered,
		ResourcesAbsent,
		NodesDisabled,
		NodesRecovered,
	)
}
