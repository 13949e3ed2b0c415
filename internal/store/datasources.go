// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frontbase/frontbase/internal/types"
)

// ErrNotFound is returned by lookups that matched no row.
var ErrNotFound = errors.New("not found")

const dsColumns = `id, name, kind, host, port, database_name, username, password,
	rest_base_url, anon_key, service_key, table_prefix, pooler_mode, active,
	last_tested_at, last_test_success, created_at, updated_at`

// CreateDatasource inserts a datasource, assigning an id when absent.
// Password and service key are encrypted at rest.
func (s *Store) CreateDatasource(ctx context.Context, ds *types.Datasource) error {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now

	row, err := s.sealDatasource(ds)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO datasources (`+dsColumns+`)
		VALUES (:id, :name, :kind, :host, :port, :database_name, :username, :password,
			:rest_base_url, :anon_key, :service_key, :table_prefix, :pooler_mode, :active,
			:last_tested_at, :last_test_success, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert datasource: %w", err)
	}
	return nil
}

// UpdateDatasource rewrites every mutable column. Empty password or service
// key keeps the stored value, so clients can update a datasource without
// re-supplying its secrets.
func (s *Store) UpdateDatasource(ctx context.Context, ds *types.Datasource) error {
	current, err := s.GetDatasource(ctx, ds.ID)
	if err != nil {
		return err
	}
	if ds.Password == "" {
		ds.Password = current.Password
	}
	if ds.ServiceKey == "" {
		ds.ServiceKey = current.ServiceKey
	}
	ds.CreatedAt = current.CreatedAt
	ds.UpdatedAt = time.Now().UTC()

	row, err := s.sealDatasource(ds)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE datasources SET name = :name, kind = :kind, host = :host, port = :port,
			database_name = :database_name, username = :username, password = :password,
			rest_base_url = :rest_base_url, anon_key = :anon_key, service_key = :service_key,
			table_prefix = :table_prefix, pooler_mode = :pooler_mode, active = :active,
			updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update datasource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetDatasource(ctx context.Context, id string) (*types.Datasource, error) {
	var ds types.Datasource
	err := s.db.GetContext(ctx, &ds, s.q(`SELECT `+dsColumns+` FROM datasources WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get datasource: %w", err)
	}
	return s.openDatasource(&ds)
}

func (s *Store) GetDatasourceByName(ctx context.Context, name string) (*types.Datasource, error) {
	var ds types.Datasource
	err := s.db.GetContext(ctx, &ds, s.q(`SELECT `+dsColumns+` FROM datasources WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get datasource by name: %w", err)
	}
	return s.openDatasource(&ds)
}

func (s *Store) ListDatasources(ctx context.Context) ([]*types.Datasource, error) {
	var rows []types.Datasource
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+dsColumns+` FROM datasources ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list datasources: %w", err)
	}
	out := make([]*types.Datasource, 0, len(rows))
	for i := range rows {
		ds, err := s.openDatasource(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, ds)
	}
	return out, nil
}

// DeleteDatasource removes the datasource; views, cached schemas and sync
// configuration cascade with it.
func (s *Store) DeleteDatasource(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM datasources WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete datasource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDatasourceTested records the result of a connection test.
func (s *Store) MarkDatasourceTested(ctx context.Context, id string, ok bool) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		s.q(`UPDATE datasources SET last_tested_at = ?, last_test_success = ? WHERE id = ?`),
		now, ok, id)
	if err != nil {
		return fmt.Errorf("mark datasource tested: %w", err)
	}
	return nil
}

// sealDatasource returns a copy with secret fields encrypted.
func (s *Store) sealDatasource(ds *types.Datasource) (*types.Datasource, error) {
	row := *ds
	var err error
	if row.Password, err = s.box.Encrypt(ds.Password); err != nil {
		return nil, fmt.Errorf("encrypt password: %w", err)
	}
	if row.ServiceKey, err = s.box.Encrypt(ds.ServiceKey); err != nil {
		return nil, fmt.Errorf("encrypt service key: %w", err)
	}
	return &row, nil
}

// openDatasource decrypts secret fields in place and returns ds.
func (s *Store) openDatasource(ds *types.Datasource) (*types.Datasource, error) {
	var err error
	if ds.Password, err = s.box.Decrypt(ds.Password); err != nil {
		return nil, fmt.Errorf("decrypt password: %w", err)
	}
	if ds.ServiceKey, err = s.box.Decrypt(ds.ServiceKey); err != nil {
		return nil, fmt.Errorf("decrypt service key: %w", err)
	}
	return ds, nil
}
