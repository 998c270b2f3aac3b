// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package debug serves the operational endpoints of a podm process:
// prometheus metrics, pprof, liveness and readiness.
package debug

import (
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	checksMu sync.RWMutex
	checks   = make(map[string]func() bool)

	customHandlersMu sync.RWMutex
	customHandlers   = make(map[string]http.Handler)

	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// AddReadyCheck registers a named readiness check. IsReady is true only when
// SetReady was called and every check passes.
func AddReadyCheck(name string, check func() bool) {
	checksMu.Lock()
	defer checksMu.Unlock()
	checks[name] = check
}

// RemoveReadyCheck drops a previously registered check.
func RemoveReadyCheck(name string) {
	checksMu.Lock()
	defer checksMu.Unlock()
	delete(checks, name)
}

func IsReady() bool {
	ok, _ := readiness()
	return ok
}

// readiness returns the overall state and the names of failing checks.
func readiness() (bool, []string) {
	checksMu.RLock()
	defer checksMu.RUnlock()

	var failing []string
	for name, check := range checks {
		if !check() {
			failing = append(failing, name)
		}
	}
	sort.Strings(failing)
	return ready.Load() && len(failing) == 0, failing
}

// RegisterHandler registers a custom handler on the debug mux.
// Must be called before GetMux() to be included.
func RegisterHandler(pattern string, handler http.Handler) {
	customHandlersMu.Lock()
	defer customHandlersMu.Unlock()
	customHandlers[pattern] = handler
}

func RegisterHandlerFunc(pattern string, handler http.HandlerFunc) {
	RegisterHandler(pattern, handler)
}

// Registry returns the registerer every podm package uses for its metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer exposes the podm registry, mostly for tests.
func Gatherer() prometheus.Gatherer {
	return globalRegistry
}

func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/allocs/", pprof.Handler("allocs"))
	mux.Handle("/debug/block/", pprof.Handler("block"))
	mux.Handle("/debug/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/goroutine/", pprof.Handler("goroutine"))
	mux.Handle("/debug/heap/", pprof.Handler("heap"))
	mux.Handle("/debug/mutex/", pprof.Handler("mutex"))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ok, failing := readiness()
		w.Header().Set("Content-Type", "application/json")
		if ok {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ready":   ok,
			"failing": failing,
		})
	})

	customHandlersMu.RLock()
	defer customHandlersMu.RUnlock()
	for pattern, handler := range customHandlers {
		mux.Handle(pattern, handler)
	}

	return mux
}
