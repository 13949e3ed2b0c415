// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frontbase/frontbase/internal/types"
)

// viewRow is the persisted form of a view: the queryable identity columns
// plus the full specification as one JSON document.
type viewRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	DatasourceID string    `db:"datasource_id"`
	TargetTable  string    `db:"target_table"`
	Spec         string    `db:"spec"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *viewRow) toView() (*types.DatasourceView, error) {
	var v types.DatasourceView
	if err := json.Unmarshal([]byte(r.Spec), &v); err != nil {
		return nil, fmt.Errorf("decode view spec: %w", err)
	}
	v.ID = r.ID
	v.Name = r.Name
	v.DatasourceID = r.DatasourceID
	v.TargetTable = r.TargetTable
	v.CreatedAt = r.CreatedAt
	v.UpdatedAt = r.UpdatedAt
	return &v, nil
}

func (s *Store) CreateView(ctx context.Context, v *types.DatasourceView) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UpdatedAt = now

	spec, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view spec: %w", err)
	}
	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO datasource_views (id, name, datasource_id, target_table, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		v.ID, v.Name, v.DatasourceID, v.TargetTable, string(spec), v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert view: %w", err)
	}
	return nil
}

func (s *Store) UpdateView(ctx context.Context, v *types.DatasourceView) error {
	v.UpdatedAt = time.Now().UTC()
	spec, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view spec: %w", err)
	}
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE datasource_views SET name = ?, target_table = ?, spec = ?, updated_at = ?
		WHERE id = ?`),
		v.Name, v.TargetTable, string(spec), v.UpdatedAt, v.ID)
	if err != nil {
		return fmt.Errorf("update view: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetView(ctx context.Context, id string) (*types.DatasourceView, error) {
	var row viewRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT id, name, datasource_id, target_table, spec, created_at, updated_at
		FROM datasource_views WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get view: %w", err)
	}
	return row.toView()
}

// ListViews returns all views, or the views of one datasource when
// datasourceID is non-empty.
func (s *Store) ListViews(ctx context.Context, datasourceID string) ([]*types.DatasourceView, error) {
	query := `SELECT id, name, datasource_id, target_table, spec, created_at, updated_at
		FROM datasource_views`
	var args []any
	if datasourceID != "" {
		query += ` WHERE datasource_id = ?`
		args = append(args, datasourceID)
	}
	query += ` ORDER BY name`

	var rows []viewRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	out := make([]*types.DatasourceView, 0, len(rows))
	for i := range rows {
		v, err := rows[i].toView()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Store) DeleteView(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM datasource_views WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete view: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
