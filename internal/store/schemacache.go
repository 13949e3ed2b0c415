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

	"github.com/frontbase/frontbase/internal/types"
)

type schemaRow struct {
	DatasourceID string    `db:"datasource_id"`
	TableName    string    `db:"table_name"`
	Columns      string    `db:"columns"`
	ForeignKeys  string    `db:"foreign_keys"`
	FetchedAt    time.Time `db:"fetched_at"`
}

func (r *schemaRow) toEntry() (*types.TableSchemaEntry, error) {
	entry := &types.TableSchemaEntry{
		DatasourceID: r.DatasourceID,
		TableName:    r.TableName,
		FetchedAt:    r.FetchedAt,
	}
	if err := json.Unmarshal([]byte(r.Columns), &entry.Columns); err != nil {
		return nil, fmt.Errorf("decode cached columns for %s: %w", r.TableName, err)
	}
	if err := json.Unmarshal([]byte(r.ForeignKeys), &entry.ForeignKeys); err != nil {
		return nil, fmt.Errorf("decode cached foreign keys for %s: %w", r.TableName, err)
	}
	return entry, nil
}

// UpsertSchemaEntry writes one table's cached schema whole, replacing any
// previous entry for the (datasource, table) pair.
func (s *Store) UpsertSchemaEntry(ctx context.Context, entry *types.TableSchemaEntry) error {
	cols, err := json.Marshal(entry.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	fks, err := json.Marshal(entry.ForeignKeys)
	if err != nil {
		return fmt.Errorf("encode foreign keys: %w", err)
	}
	if entry.FetchedAt.IsZero() {
		entry.FetchedAt = time.Now().UTC()
	}

	// Delete-then-insert keeps the statement portable across both backends.
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM schema_cache WHERE datasource_id = ? AND table_name = ?`),
		entry.DatasourceID, entry.TableName); err != nil {
		return fmt.Errorf("clear schema entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO schema_cache (datasource_id, table_name, columns, foreign_keys, fetched_at)
		VALUES (?, ?, ?, ?, ?)`),
		entry.DatasourceID, entry.TableName, string(cols), string(fks), entry.FetchedAt); err != nil {
		return fmt.Errorf("insert schema entry: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetSchemaEntry(ctx context.Context, datasourceID, table string) (*types.TableSchemaEntry, error) {
	var row schemaRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT datasource_id, table_name, columns, foreign_keys, fetched_at
		FROM schema_cache WHERE datasource_id = ? AND table_name = ?`),
		datasourceID, table)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get schema entry: %w", err)
	}
	return row.toEntry()
}

func (s *Store) ListSchemaEntries(ctx context.Context, datasourceID string) ([]*types.TableSchemaEntry, error) {
	var rows []schemaRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT datasource_id, table_name, columns, foreign_keys, fetched_at
		FROM schema_cache WHERE datasource_id = ? ORDER BY table_name`), datasourceID)
	if err != nil {
		return nil, fmt.Errorf("list schema entries: %w", err)
	}
	out := make([]*types.TableSchemaEntry, 0, len(rows))
	for i := range rows {
		entry, err := rows[i].toEntry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// DeleteSchemaEntries drops every cached table of a datasource.
func (s *Store) DeleteSchemaEntries(ctx context.Context, datasourceID string) error {
	if _, err := s.db.ExecContext(ctx,
		s.q(`DELETE FROM schema_cache WHERE datasource_id = ?`), datasourceID); err != nil {
		return fmt.Errorf("delete schema entries: %w", err)
	}
	return nil
}
