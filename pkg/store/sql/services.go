// Copyright 2025 PodM Authors
// SPDX-License-Identifier: Apache-2.0

package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/LeeDigitalWorks/podm/pkg/model"
	"github.com/LeeDigitalWorks/podm/pkg/store"
)

type services struct{ c conn }

func (s services) Put(ctx context.Context, svc *model.ExternalService) error {
	body, err := json.Marshal(svc)
	if err != nil {
		return err
	}
	query := `INSERT INTO external_services (uuid, base_url, body, updated_at) VALUES ($1, $2, $3, $4)` +
		s.c.dialect.UpsertSuffix("uuid", []string{"base_url", "body", "updated_at"})
	if _, err := s.c.exec(ctx, query, svc.UUID, svc.BaseURL, string(body), time.Now().UTC()); err != nil {
		return fmt.Errorf("put service %s: %w", svc.UUID, err)
	}
	return nil
}

func (s services) Get(ctx context.Context, uuid string) (*model.ExternalService, error) {
	var body []byte
	err := s.c.queryRow(ctx, `SELECT body FROM external_services WHERE uuid = $1`, uuid).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", uuid, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get service %s: %w", uuid, err)
	}
	svc := &model.ExternalService{}
	if err := json.Unmarshal(body, svc); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s services) List(ctx context.Context) ([]*model.ExternalService, error) {
	rows, err := s.c.query(ctx, `SELECT body FROM external_services ORDER BY uuid`)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	var out []*model.ExternalService
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		svc := &model.ExternalService{}
		if err := json.Unmarshal(body, svc); err != nil {
			return nil, err
		}
		out = append(out, svc)
	}
	return out, rows.Err()
}

func (s services) Delete(ctx context.Context, uuid string) error {
	res, err := s.c.exec(ctx, `DELETE FROM external_services WHERE uuid = $1`, uuid)
	if err != nil {
		return fmt.Errorf("delete service %s: %w", uuid, err)
	}
	return mustAffect(res, "service "+uuid)
}
