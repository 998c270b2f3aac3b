// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/LeeDigitalWorks/podm/cmd"
)

func main() {
	// The DSN comes from SENTRY_DSN. Without it events are dropped.
	err := sentry.Init(sentry.ClientOptions{
		Release:          "podm@" + cmd.Version,
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
