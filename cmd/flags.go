// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package cmd provides the podm subcommands.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// FlagLoader reads configuration values with CLI flag precedence.
// A flag set explicitly wins. Otherwise viper decides: env > config file > default.
type FlagLoader struct {
	cmd *cobra.Command
}

func NewFlagLoader(cmd *cobra.Command) *FlagLoader {
	return &FlagLoader{cmd: cmd}
}

func (f *FlagLoader) String(name string) string {
	return load(f, name, f.cmd.Flags().GetString, viper.GetString)
}

func (f *FlagLoader) Int(name string) int {
	return load(f, name, f.cmd.Flags().GetInt, viper.GetInt)
}

func (f *FlagLoader) Float64(name string) float64 {
	return load(f, name, f.cmd.Flags().GetFloat64, viper.GetFloat64)
}

func (f *FlagLoader) Duration(name string) time.Duration {
	return load(f, name, f.cmd.Flags().GetDuration, viper.GetDuration)
}

func (f *FlagLoader) StringSlice(name string) []string {
	return load(f, name, f.cmd.Flags().GetStringSlice, viper.GetStringSlice)
}

func load[T any](f *FlagLoader, name string, flag func(string) (T, error), fallback func(string) T) T {
	if f.cmd.Flags().Changed(name) {
		if v, err := flag(name); err == nil {
			return v
		}
	}
	return fallback(name)
}

// bindFlags binds the flags of the command being run to viper. Commands
// share flag names with different defaults, so binding happens per run.
func bindFlags(cmd *cobra.Command, args []string) {
	viper.BindPFlags(cmd.Flags())
}
