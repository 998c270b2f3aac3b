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

type nodes struct{ c conn }

func (n nodes) Create(ctx context.Context, node *model.ComposedNode) error {
	body, err := json.Marshal(node)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err = n.c.exec(ctx,
		`INSERT INTO composed_nodes (id, state, body, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		node.ID, string(node.State), string(body), now, now)
	if n.c.dialect.IsDuplicateKey(err) {
		return fmt.Errorf("node %s: %w", node.ID, store.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create node %s: %w", node.ID, err)
	}
	return nil
}

func (n nodes) Get(ctx context.Context, id string) (*model.ComposedNode, error) {
	var body []byte
	err := n.c.queryRow(ctx, `SELECT body FROM composed_nodes WHERE id = $1`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("node %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	node := &model.ComposedNode{}
	if err := json.Unmarshal(body, node); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return node, nil
}

func (n nodes) Update(ctx context.Context, node *model.ComposedNode) error {
	body, err := json.Marshal(node)
	if err != nil {
		return err
	}
	res, err := n.c.exec(ctx,
		`UPDATE composed_nodes SET state = $1, body = $2, updated_at = $3 WHERE id = $4`,
		string(node.State), string(body), time.Now().UTC(), node.ID)
	if err != nil {
		return fmt.Errorf("update node %s: %w", node.ID, err)
	}
	return mustAffect(res, "node "+node.ID)
}

func (n nodes) Delete(ctx context.Context, id string) error {
	res, err := n.c.exec(ctx, `DELETE FROM composed_nodes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return mustAffect(res, "node "+id)
}

func (n nodes) List(ctx context.Context) ([]*model.ComposedNode, error) {
	rows, err := n.c.query(ctx, `SELECT body FROM composed_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []*model.ComposedNode
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		node := &model.ComposedNode{}
		if err := json.Unmarshal(body, node); err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, rows.Err()
}
