// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/LeeDigitalWorks/podm/pkg/logger"
)

//go:embed migrations/postgres/*.sql migrations/mysql/*.sql
var migrationsFS embed.FS

type Migration struct {
	Version int
	Name    string
	SQL     string
}

// LoadMigrations returns the dialect's migrations sorted by version.
// Files are named NNN_name.sql.
func LoadMigrations(dialect string) ([]Migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(migrationsFS, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		var version int
		var name string
		if _, err := fmt.Sscanf(entry.Name(), "%d_%s", &version, &name); err != nil {
			return nil, fmt.Errorf("parse migration filename %s: %w", entry.Name(), err)
		}
		content, err := fs.ReadFile(migrationsFS, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version: version,
			Name:    strings.TrimSuffix(name, ".sql"),
			SQL:     string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// Migrate applies pending migrations and records them in schema_migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	migrations, err := LoadMigrations(s.dialect.Name())
	if err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	c := s.conn()
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		for _, stmt := range splitSQLStatements(m.SQL) {
			if stmt = stripLeadingComments(stmt); stmt == "" {
				continue
			}
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
			}
		}
		if _, err := c.exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("store: applied migration")
	}
	return nil
}

func stripLeadingComments(stmt string) string {
	lines := strings.Split(strings.TrimSpace(stmt), "\n")
	for len(lines) > 0 {
		line := strings.TrimSpace(lines[0])
		if line != "" && !strings.HasPrefix(line, "--") {
			break
		}
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// splitSQLStatements splits a script on semicolons outside of quotes and
// comments.
func splitSQLStatements(script string) []string {
	var (
		statements    []string
		current       strings.Builder
		quote         byte
		inLineComment bool
	)
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inLineComment:
			if c == '\n' {
				inLineComment = false
			}
		case quote != 0:
			if c == quote {
				if i+1 < len(script) && script[i+1] == quote {
					current.WriteByte(c)
					i++
				} else {
					quote = 0
				}
			}
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			inLineComment = true
		case c == '\'' || c == '"':
			quote = c
		case c == ';':
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
