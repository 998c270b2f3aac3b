// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package coordinator

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WaitDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "coordinator",
		Name:      "wait_duration_seconds",
		Help:      "Time spent waiting to acquire a key",
		Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"key"})

	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "podm",
		Subsystem: "coordinator",
		Name:      "in_flight",
		Help:      "Number of tasks currently holding a key",
	})

	LockTimeouts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "coordinator",
		Name:      "lock_timeouts_total",
		Help:      "Total number of acquire timeouts",
	}, []string{"key"})
)

func init() {
	debug.Registry().MustRegister(WaitDuration, InFlight, LockTimeouts)
}
