// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

//go:embed schema.sql
var schemaSQL string

// ClickHouseStore writes audit records to ClickHouse.
type ClickHouseStore struct {
	conn driver.Conn
}

// NewClickHouseStore connects and creates the audit table if needed.
func NewClickHouseStore(cfg Config) (*ClickHouseStore, error) {
	cfg.Validate()

	opts, err := clickhouse.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse DSN: %w", err)
	}
	opts.MaxOpenConns = cfg.MaxOpenConns
	opts.MaxIdleConns = cfg.MaxIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	s := &ClickHouseStore{conn: conn}
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info().Str("dsn", maskDSN(cfg.DSN)).Msg("audit: connected to clickhouse")
	return s, nil
}

// EnsureSchema runs the embedded schema statements.
func (s *ClickHouseStore) EnsureSchema(ctx context.Context) error {
	for i, stmt := range splitSQLStatements(schemaSQL) {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("execute statement %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *ClickHouseStore) InsertRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO node_audit (
			event_time, request_id, node_id, action, resource,
			outcome, duration_ms, error
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range records {
		if err := batch.Append(
			r.Time,
			r.RequestID,
			r.NodeID,
			r.Action,
			r.Resource,
			string(r.Outcome),
			r.DurationMs,
			r.Error,
		); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseStore) QueryRecords(ctx context.Context, nodeID string, since time.Time, limit int) ([]Record, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT event_time, request_id, node_id, action, resource, outcome, duration_ms, error
		FROM node_audit
		WHERE node_id = ? AND event_time >= ?
		ORDER BY event_time DESC
		LIMIT ?
	`, nodeID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var outcome string
		if err := rows.Scan(&r.Time, &r.RequestID, &r.NodeID, &r.Action, &r.Resource, &outcome, &r.DurationMs, &r.Error); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.Outcome = Outcome(outcome)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// splitSQLStatements splits on trailing semicolons and drops comment lines.
func splitSQLStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	for _, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";"); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		statements = append(statements, rest)
	}
	return statements
}

// maskDSN hides the password in a URL-style DSN or a password query
// parameter.
func maskDSN(dsn string) string {
	if i := strings.Index(dsn, "://"); i != -1 {
		rest := dsn[i+3:]
		if at := strings.LastIndex(rest, "@"); at != -1 {
			if colon := strings.Index(rest[:at], ":"); colon != -1 {
				return dsn[:i+3] + rest[:colon] + ":***" + rest[at:]
			}
		}
	}
	lower := strings.ToLower(dsn)
	for _, key := range []string{"password=", "passwd="} {
		if idx := strings.Index(lower, key); idx != -1 {
			start := idx + len(key)
			end := strings.IndexByte(dsn[start:], '&')
			if end == -1 {
				return dsn[:start] + "***"
			}
			return dsn[:start] + "***" + dsn[start+end:]
		}
	}
	return dsn
}
