// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package mysql opens the SQL store on MySQL through go-sql-driver.
package mysql

import (
	"fmt"

	"github.com/go-sql-driver/mysql"

	dbsql "github.com/LeeDigitalWorks/podm/pkg/store/sql"
)

// Open normalizes the DSN before connecting: timestamps are parsed into
// time.Time, stored as UTC, and UPDATE reports matched rather than changed
// rows so that no-op updates are not mistaken for missing rows.
func Open(cfg dbsql.Config) (*dbsql.Store, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg.DSN = dsn

	s, err := dbsql.Open("mysql", dbsql.MySQLDialect{}, cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: %w", err)
	}
	return s, nil
}

func NormalizeDSN(dsn string) (string, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.MultiStatements = false
	if mc.Params == nil {
		mc.Params = map[string]string{}
	}
	if _, ok := mc.Params["time_zone"]; !ok {
		mc.Params["time_zone"] = "'+00:00'"
	}
	return mc.FormatDSN(), nil
}
