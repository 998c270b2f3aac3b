// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import "time"

type Config struct {
	// DSN of the ClickHouse database. Empty disables the ClickHouse store.
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration

	BatchSize     int
	FlushInterval time.Duration
	// BufferSize is the collector channel size (default: BatchSize * 2).
	BufferSize int
}

func DefaultConfig() Config {
	return Config{
		MaxOpenConns:  5,
		MaxIdleConns:  2,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   30 * time.Second,
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
		BufferSize:    2000,
	}
}

// Validate sets defaults for zero values.
func (c *Config) Validate() {
	def := DefaultConfig()
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = def.MaxOpenConns
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = def.MaxIdleConns
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = def.FlushInterval
	}
	if c.BufferSize <= 0 {
		c.BufferSize = c.BatchSize * 2
	}
}
