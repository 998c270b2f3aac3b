// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/memory"
	"github.com/LeeDigitalWorks/podm/pkg/store/mysql"
	"github.com/LeeDigitalWorks/podm/pkg/store/postgres"
	dbsql "github.com/LeeDigitalWorks/podm/pkg/store/sql"
	"github.com/LeeDigitalWorks/podm/pkg/taskqueue"
)

const (
	driverMemory   = "memory"
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
)

type dbOpts struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func openStore(opts dbOpts) (store.Store, error) {
	logger.Info().Str("driver", opts.Driver).Str("dsn", maskDSN(opts.DSN)).Msg("initializing store")

	cfg := dbsql.DefaultConfig(opts.DSN)
	if opts.MaxOpenConns > 0 {
		cfg.MaxOpenConns = opts.MaxOpenConns
	}
	if opts.MaxIdleConns > 0 {
		cfg.MaxIdleConns = opts.MaxIdleConns
	}

	switch opts.Driver {
	case driverMemory:
		return memory.New(), nil
	case driverPostgres:
		if opts.DSN == "" {
			return nil, fmt.Errorf("--db_dsn required for %s driver", opts.Driver)
		}
		return postgres.Open(cfg)
	case driverMySQL:
		if opts.DSN == "" {
			return nil, fmt.Errorf("--db_dsn required for %s driver", opts.Driver)
		}
		return mysql.Open(cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", opts.Driver)
	}
}

// openQueue puts the task queue next to the store: in the database for SQL
// stores, in memory otherwise.
func openQueue(st store.Store) (taskqueue.Queue, error) {
	s, ok := st.(*dbsql.Store)
	if !ok {
		logger.Warn().Msg("task queue is in memory, pending tasks are lost on restart")
		return taskqueue.NewMemoryQueue(), nil
	}
	return taskqueue.NewDBQueue(taskqueue.DBQueueConfig{
		DB:                s.DB(),
		Dialect:           s.Dialect(),
		TableName:         "tasks",
		VisibilityTimeout: 2 * time.Minute,
	})
}

func maskDSN(dsn string) string {
	if dsn == "" {
		return "(none)"
	}
	if len(dsn) > 20 {
		return dsn[:10] + "***" + dsn[len(dsn)-5:]
	}
	return "***"
}
