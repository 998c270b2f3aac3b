// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package utils

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

var (
	ConfigurationFileDirectory string
)

// LoadConfiguration merges <name>.{yaml,json,toml} from the podm search path
// into viper. Environment variables override file values, with dots in keys
// mapped to underscores.
func LoadConfiguration(configFileName string, required bool) bool {
	viper.SetConfigName(configFileName)
	viper.AddConfigPath(configDir(ConfigurationFileDirectory))
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.podm")
	viper.AddConfigPath("/usr/local/etc/podm/")
	viper.AddConfigPath("/etc/podm/")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			if required {
				log.Fatal().Msgf("config file not found: %s", configFileName)
			}
			log.Info().Msgf("config file not found: %s", configFileName)
			return false
		}

		if required {
			log.Fatal().Err(err).Msgf("failed to load required config file: %s", configFileName)
		}
		log.Warn().Err(err).Msgf("failed to load config file: %s", configFileName)
		return false
	}
	log.Info().Msgf("loaded config file: %s", viper.ConfigFileUsed())

	return true
}

// configDir expands a leading ~ and environment variables in dir.
func configDir(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home + dir[1:]
		}
	}
	dir = os.ExpandEnv(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
