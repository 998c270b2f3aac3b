// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"

	podmctx "github.com/LeeDigitalWorks/podm/pkg/context"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/service"
)

// withRequestID reads or assigns the request id, echoes it and attaches a
// request scoped logger to the context.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.Header.Get(podmctx.RequestIDHeader)
		if id != "" {
			ctx = podmctx.FromRequestID(ctx, id)
		} else {
			ctx, id = podmctx.WithRequestID(ctx)
		}
		w.Header().Set(podmctx.RequestIDHeader, id)

		l := logger.Ctx(ctx).With().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithLogger(ctx, &l)))
	})
}

// withRecovery turns a handler panic into a 500 and reports it to Sentry.
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			PanicsTotal.Inc()
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(r)
			hub.Scope().SetTag("request_id", podmctx.RequestID(r.Context()))
			hub.RecoverWithContext(r.Context(), rec)

			logger.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("api: handler panicked")
			writeError(w, r, service.NewInternalError(fmt.Errorf("panic: %v", rec)))
		}()
		next.ServeHTTP(w, r)
	})
}

// withAccessLog logs each request once it completes.
func withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &wrappedResponseRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		status := rw.status()
		// a client that went away is not a server failure
		if status == http.StatusInternalServerError && errors.Is(r.Context().Err(), context.Canceled) {
			status = 0
		}
		ev := logger.Ctx(r.Context()).Debug()
		if status >= http.StatusInternalServerError {
			ev = logger.Ctx(r.Context()).Warn()
		}
		ev.Int("status", status).
			Int64("bytes", rw.bytesWritten).
			Dur("duration", time.Since(start)).
			Msg("api: request")
	})
}

// withMetrics records request metrics by route template. It runs inside the
// router so the matched route is known.
func withMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &wrappedResponseRecorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		RequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.status())).Inc()
		RequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
