// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

type resources struct{ c conn }

func (r resources) Put(ctx context.Context, res model.Resource) error {
	m := res.Base()
	if m.ODataID == "" {
		return fmt.Errorf("put %s: empty @odata.id", res.Kind())
	}
	body, err := model.Encode(res)
	if err != nil {
		return err
	}

	query := `INSERT INTO resources (odata_id, kind, service_uuid, allocated, state, body, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)` +
		r.c.dialect.UpsertSuffix("odata_id", []string{"kind", "service_uuid", "allocated", "state", "body", "updated_at"})

	_, err = r.c.exec(ctx, query,
		string(m.ODataID), string(res.Kind()), m.ServiceUUID, m.Allocated,
		string(m.Status.State), string(body), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("put resource %s: %w", m.ODataID, err)
	}
	return nil
}

func (r resources) Get(ctx context.Context, id model.ODataID) (model.Resource, error) {
	var kind string
	var body []byte
	err := r.c.queryRow(ctx, `SELECT kind, body FROM resources WHERE odata_id = $1`, string(id)).Scan(&kind, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource %s: %w", id, err)
	}
	return model.Decode(model.Kind(kind), body)
}

func (r resources) List(ctx context.Context, filter store.ResourceFilter) ([]model.Resource, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Kind != "" {
		where = append(where, "kind = "+arg(string(filter.Kind)))
	}
	if filter.ServiceUUID != "" {
		where = append(where, "service_uuid = "+arg(filter.ServiceUUID))
	}
	if filter.Allocated != nil {
		where = append(where, r.c.dialect.BoolColumn("allocated", *filter.Allocated))
	}
	if filter.Prefix != "" {
		where = append(where, "odata_id LIKE "+arg(escapeLike(string(filter.Prefix))+"%"))
	}

	query := "SELECT kind, body FROM resources"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY odata_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	var out []model.Resource
	for rows.Next() {
		var kind string
		var body []byte
		if err := rows.Scan(&kind, &body); err != nil {
			return nil, err
		}
		res, err := model.Decode(model.Kind(kind), body)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// escapeLike escapes LIKE wildcards; backslash is the default escape
// character in both PostgreSQL and MySQL.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r resources) Delete(ctx context.Context, id model.ODataID) error {
	res, err := r.c.exec(ctx, `DELETE FROM resources WHERE odata_id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("delete resource %s: %w", id, err)
	}
	return mustAffect(res, "resource "+string(id))
}

func (r resources) MarkAbsent(ctx context.Context, serviceUUID string, keep map[model.ODataID]struct{}) (int, error) {
	rows, err := r.c.query(ctx,
		`SELECT kind, body FROM resources WHERE service_uuid = $1 AND state <> $2`,
		serviceUUID, string(model.StateAbsent))
	if err != nil {
		return 0, fmt.Errorf("mark absent: %w", err)
	}

	var stale []model.Resource
	for rows.Next() {
		var kind string
		var body []byte
		if err := rows.Scan(&kind, &body); err != nil {
			rows.Close()
			return 0, err
		}
		res, err := model.Decode(model.Kind(kind), body)
		if err != nil {
			rows.Close()
			return 0, err
		}
		if _, kept := keep[res.Base().ODataID]; !kept {
			stale = append(stale, res)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, res := range stale {
		res.Base().Status = model.StatusAbsent
		if err := r.Put(ctx, res); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}
