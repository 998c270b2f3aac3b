// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

// Package sql is the dialect-aware database/sql store. Queries are written
// with PostgreSQL placeholders ($1, $2, ...) and rewritten per dialect.
package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Dialect abstracts database-specific SQL syntax differences.
type Dialect interface {
	Name() string

	// ReplacePlaceholders converts $N placeholders to the dialect's form.
	ReplacePlaceholders(query string) string

	// BoolColumn renders a boolean comparison for WHERE clauses.
	BoolColumn(column string, value bool) string

	// UpsertSuffix returns the clause that turns an INSERT into an upsert
	// updating updateColumns on a conflict over conflictColumns.
	UpsertSuffix(conflictColumns string, updateColumns []string) string

	// IsDuplicateKey reports a unique constraint violation.
	IsDuplicateKey(err error) bool

	// IsDeadlock reports a deadlock or serialization failure worth retrying.
	IsDeadlock(err error) bool
}

type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) ReplacePlaceholders(query string) string { return query }

func (PostgresDialect) BoolColumn(column string, value bool) string {
	if value {
		return column + " = TRUE"
	}
	return column + " = FALSE"
}

func (PostgresDialect) UpsertSuffix(conflictColumns string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", conflictColumns)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", conflictColumns, strings.Join(updates, ", "))
}

func (PostgresDialect) IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (PostgresDialect) IsDeadlock(err error) bool {
	var pgErr *pgconn.PgError
	// 40P01 deadlock_detected, 40001 serialization_failure
	return errors.As(err, &pgErr) && (pgErr.Code == "40P01" || pgErr.Code == "40001")
}

type MySQLDialect struct{}

var _ Dialect = MySQLDialect{}

var pgPlaceholder = regexp.MustCompile(`\$\d+`)

func (MySQLDialect) Name() string { return "mysql" }

// ReplacePlaceholders assumes each $N appears once and in order, since MySQL
// binds positionally.
func (MySQLDialect) ReplacePlaceholders(query string) string {
	return pgPlaceholder.ReplaceAllString(query, "?")
}

func (MySQLDialect) BoolColumn(column string, value bool) string {
	if value {
		return column + " = 1"
	}
	return column + " = 0"
}

func (MySQLDialect) UpsertSuffix(conflictColumns string, updateColumns []string) string {
	if len(updateColumns) == 0 {
		// no-op update keeps the row
		first := strings.TrimSpace(strings.Split(conflictColumns, ",")[0])
		return fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", first, first)
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
}

func (MySQLDialect) IsDuplicateKey(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1062
}

func (MySQLDialect) IsDeadlock(err error) bool {
	var myErr *mysql.MySQLError
	// 1213 deadlock, 1205 lock wait timeout
	return errors.As(err, &myErr) && (myErr.Number == 1213 || myErr.Number == 1205)
}

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "postgres", "pgx":
		return PostgresDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported sql driver %q", driver)
}
