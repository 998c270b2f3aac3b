// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package fabric

import (
	"github.com/LeeDigitalWorks/podm/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var ZoneActionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "podm",
	Subsystem: "fabric",
	Name:      "zone_actions_total",
	Help:      "Total zone actions by action and result",
}, []string{"action", "result"})

func init() {
	debug.Registry().MustRegister(ZoneActionsTotal)
}
