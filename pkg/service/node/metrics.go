// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "node",
		Name:      "actions_total",
		Help:      "Total composed node actions by action and result",
	}, []string{"action", "result"})

	ActionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "node",
		Name:      "action_duration_seconds",
		Help:      "Duration of composed node actions, external calls included",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"action"})
)

func init() {
	debug.Registry().MustRegister(
		ActionsTotal,
		ActionDuration,
	)
}
