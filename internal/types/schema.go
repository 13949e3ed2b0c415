// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

import "time"

// ColumnDef describes a single column of an external table as discovered by
// an adapter. Foreign-key columns carry the referred table and column so the
// publish compiler can bake relations without a second lookup.
type ColumnDef struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Nullable      bool   `json:"nullable"`
	PrimaryKey    bool   `json:"primary_key"`
	Default       string `json:"default,omitempty"`
	IsForeign     bool   `json:"is_foreign,omitempty"`
	ForeignTable  string `json:"foreign_table,omitempty"`
	ForeignColumn string `json:"foreign_column,omitempty"`
}

// FKDef describes a foreign-key constraint on a table.
type FKDef struct {
	ConstrainedColumns []string `json:"constrained_columns"`
	ReferredTable      string   `json:"referred_table"`
	ReferredColumns    []string `json:"referred_columns"`
}

// TableSchema is the column and foreign-key set of one table.
type TableSchema struct {
	Columns     []ColumnDef `json:"columns"`
	ForeignKeys []FKDef     `json:"foreign_keys"`
}

// TableSchemaEntry is a persisted schema-cache row, unique on
// (DatasourceID, TableName). Entries are written whole, never piecemeal.
type TableSchemaEntry struct {
	DatasourceID string      `json:"datasource_id"`
	TableName    string      `json:"table_name"`
	Columns      []ColumnDef `json:"columns"`
	ForeignKeys  []FKDef     `json:"foreign_keys"`
	FetchedAt    time.Time   `json:"fetched_at"`
}

// Relationship is one normalized foreign-key edge, one row per
// (source column, referred column) pair.
type Relationship struct {
	SourceTable  string `json:"source_table"`
	SourceColumn string `json:"source_column"`
	TargetTable  string `json:"target_table"`
	TargetColumn string `json:"target_column"`
}

// RelatedSpec names a related table to enrich a read with. FKCol is the
// foreign-key column on the base table, RefCol the referred column on Table.
type RelatedSpec struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	FKCol   string   `json:"fk_col"`
	RefCol  string   `json:"ref_col"`
}
