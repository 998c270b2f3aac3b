// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/LeeDigitalWorks/podm/pkg/debug"
)

var (
	RecordsBuffered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "audit",
		Name:      "records_buffered_total",
		Help:      "Total number of audit records accepted by the collector",
	})

	// RecordsDropped counts records lost to a full buffer.
	RecordsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "audit",
		Name:      "records_dropped_total",
		Help:      "Total number of audit records dropped because the buffer was full",
	})

	RecordsFlushed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "audit",
		Name:      "records_flushed_total",
		Help:      "Total number of audit records written to the store",
	})

	FlushErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "podm",
		Subsystem: "audit",
		Name:      "flush_errors_total",
		Help:      "Total number of failed audit flushes",
	})

	FlushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "podm",
		Subsystem: "audit",
		Name:      "flush_duration_seconds",
		Help:      "Time spent writing audit batches",
		Buckets:   prometheus.DefBuckets,
	})
)

func init() {
	debug.Registry().MustRegister(
		RecordsBuffered,
		RecordsDropped,
		RecordsFlushed,
		FlushErrors,
		FlushDuration,
	)
}
