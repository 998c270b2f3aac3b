// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

// leveledLogger routes retryablehttp logs to zerolog. Retry chatter is
// logged at debug, failures at warn.
type leveledLogger struct {
	service string
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, keysAndValues ...any) {
	l.log(logger.Warn(), msg, keysAndValues)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...any) {
	l.log(logger.Warn(), msg, keysAndValues)
}

func (l leveledLogger) Info(msg string, keysAndValues ...any) {
	l.log(logger.Debug(), msg, keysAndValues)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...any) {
	l.log(logger.Debug(), msg, keysAndValues)
}

func (l leveledLogger) log(e *zerolog.Event, msg string, kv []any) {
	e = e.Str("service", l.service)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kv[i+1])
	}
	e.Msg("client: " + msg)
}
