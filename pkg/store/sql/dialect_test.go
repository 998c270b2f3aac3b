// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacePlaceholders(t *testing.T) {
	t.Parallel()

	query := `UPDATE composed_nodes SET state = $1, body = $2, updated_at = $3 WHERE id = $4`
	assert.Equal(t, query, PostgresDialect{}.ReplacePlaceholders(query))
	assert.Equal(t,
		`UPDATE composed_nodes SET state = ?, body = ?, updated_at = ? WHERE id = ?`,
		MySQLDialect{}.ReplacePlaceholders(query))

	// two digit placeholders must not leave a stray digit behind
	assert.Equal(t, "VALUES (?, ?)", MySQLDialect{}.ReplacePlaceholders("VALUES ($11, $12)"))
}

func TestUpsertSuffix(t *testing.T) {
	t.Parallel()

	cols := []string{"body", "updated_at"}
	assert.Equal(t,
		" ON CONFLICT (uuid) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at",
		PostgresDialect{}.UpsertSuffix("uuid", cols))
	assert.Equal(t,
		" ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)",
		MySQLDialect{}.UpsertSuffix("uuid", cols))
	assert.Equal(t, " ON CONFLICT (id) DO NOTHING", PostgresDialect{}.UpsertSuffix("id", nil))
	assert.Equal(t, " ON DUPLICATE KEY UPDATE id = id", MySQLDialect{}.UpsertSuffix("id", nil))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	pgDup := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	pgDeadlock := &pgconn.PgError{Code: "40P01"}
	myDup := fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})
	myDeadlock := &mysql.MySQLError{Number: 1213}
	other := errors.New("connection refused")

	pg, my := PostgresDialect{}, MySQLDialect{}
	assert.True(t, pg.IsDuplicateKey(pgDup))
	assert.False(t, pg.IsDuplicateKey(myDup))
	assert.True(t, pg.IsDeadlock(pgDeadlock))
	assert.True(t, my.IsDuplicateKey(myDup))
	assert.True(t, my.IsDeadlock(myDeadlock))
	assert.False(t, my.IsDeadlock(other))
	assert.False(t, pg.IsDuplicateKey(nil))
}

func TestDialectFor(t *testing.T) {
	t.Parallel()

	d, err := DialectFor("pgx")
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = DialectFor("mysql")
	require.NoError(t, err)
	assert.Equal(t, "mysql", d.Name())

	_, err = DialectFor("sqlite")
	assert.Error(t, err)
}

func TestSplitSQLStatements(t *testing.T) {
	t.Parallel()

	script := `-- header; with a semicolon
CREATE TABLE a (x TEXT DEFAULT 'a;b');
INSERT INTO a VALUES ('it''s');

CREATE INDEX i ON a (x)`

	stmts := splitSQLStatements(script)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (x TEXT DEFAULT 'a;b')", stripLeadingComments(stmts[0]))
	assert.Equal(t, "INSERT INTO a VALUES ('it''s')", stmts[1])
	assert.Equal(t, "CREATE INDEX i ON a (x)", stmts[2])
}

func TestLoadMigrations(t *testing.T) {
	t.Parallel()

	for _, dialect := range []string{"postgres", "mysql"} {
		t.Run(dialect, func(t *testing.T) {
			t.Parallel()
			migrations, err := LoadMigrations(dialect)
			require.NoError(t, err)
			require.Len(t, migrations, 2)
			assert.Equal(t, 1, migrations[0].Version)
			assert.Equal(t, "initial", migrations[0].Name)
			assert.Equal(t, "tasks", migrations[1].Name)
			assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS resources")
		})
	}

	_, err := LoadMigrations("sqlite")
	assert.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `/redfish/v1/Systems/a\_b/Processors`, escapeLike("/redfish/v1/Systems/a_b/Processors"))
	assert.Equal(t, `100\%`, escapeLike("100%"))
}
