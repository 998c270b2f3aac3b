// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LeeDigitalWorks/podm/pkg/env"
	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "podm",
	Short: "PodM - A Redfish pod manager",
	Long: `PodM composes logical servers out of the compute, storage and fabric
resources exposed by Redfish services in a rack. It discovers the external
services, allocates and assembles composed nodes, and serves the pod through
a Redfish API.`,
	PersistentPreRun: initializeEnvironment,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&utils.ConfigurationFileDirectory, "config_dir", ".", "Directory for configuration files")
}

// initializeEnvironment loads the config file so ENV and LOG_LEVEL may come
// from it.
func initializeEnvironment(cmd *cobra.Command, args []string) {
	utils.LoadConfiguration("podm", false)
	env.Load()
	logger.Debug().Str("env", env.Name()).Msg("environment loaded")
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
