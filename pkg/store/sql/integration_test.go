//go:build integration

// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LeeDigitalWorks/podm/pkg/store"
	"github.com/LeeDigitalWorks/podm/pkg/store/mysql"
	"github.com/LeeDigitalWorks/podm/pkg/store/postgres"
	dbsql "github.com/LeeDigitalWorks/podm/pkg/store/sql"
	"github.com/LeeDigitalWorks/podm/pkg/store/storetest"
)

// Each subtest truncates the tables, so backends are not run in parallel.
func openForTest(t *testing.T, open func(dbsql.Config) (*dbsql.Store, error), dsn string) func(t *testing.T) store.Store {
	return func(t *testing.T) store.Store {
		s, err := open(dbsql.DefaultConfig(dsn))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })

		ctx := context.Background()
		require.NoError(t, s.Migrate(ctx))
		for _, table := range []string{"resources", "composed_nodes", "external_services", "tasks"} {
			_, err := s.DB().ExecContext(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
		return s
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("PODM_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PODM_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, openForTest(t, postgres.Open, dsn))
}

func TestMySQLStore(t *testing.T) {
	dsn := os.Getenv("PODM_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("PODM_TEST_MYSQL_DSN not set")
	}
	storetest.Run(t, openForTest(t, mysql.Open, dsn))
}
