// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package env

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

const (
	Local      = "local"
	Production = "production"
	Testing    = "testing"
)

var (
	mu  sync.RWMutex
	env = Local
)

func init() {
	Load()
}

// Load re-reads ENV through viper. Call it again after the config file is merged.
func Load() {
	Set(viper.GetString("ENV"))
}

// Set overrides the environment. Unknown values fall back to local.
func Set(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case Local, Production, Testing:
	default:
		name = Local
	}
	mu.Lock()
	env = name
	mu.Unlock()
}

func Name() string {
	mu.RLock()
	defer mu.RUnlock()
	return env
}

func IsLocal() bool {
	return Name() == Local
}

func IsProduction() bool {
	return Name() == Production
}
