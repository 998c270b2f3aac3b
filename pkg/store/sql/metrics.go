// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeeDigitalWorks/podm/pkg/debug"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "podm",
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Duration of store statements",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
		[]string{"dialect", "op"},
	)

	DeadlockRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "podm",
			Subsystem: "store",
			Name:      "deadlock_retries_total",
			Help:      "Transactions retried after a deadlock",
		},
	)
)

func init() {
	debug.Registry().MustRegister(QueryDuration, DeadlockRetries)
}
