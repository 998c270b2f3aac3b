// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package postgres opens the SQL store on PostgreSQL through pgx.
package postgres

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	dbsql "github.com/LeeDigitalWorks/podm/pkg/store/sql"
)

func Open(cfg dbsql.Config) (*dbsql.Store, error) {
	s, err := dbsql.Open("pgx", dbsql.PostgresDialect{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return s, nil
}
