// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

import "time"

// LinkedView attaches another view's record to each row of a view under an
// alias, joined on JoinOn (a column of this view) against TargetKey (a column
// of the linked view's target table).
type LinkedView struct {
	ViewID    string `json:"view_id"`
	JoinOn    string `json:"join_on"`
	TargetKey string `json:"target_key"`
}

// DatasourceView is a saved, named projection over an adapter table: filters,
// per-field mapping expressions, linked views and column metadata. It is a
// pure specification; reading through it never mutates it.
type DatasourceView struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	DatasourceID   string                `json:"datasource_id"`
	TargetTable    string                `json:"target_table"`
	Filters        []FilterExpr          `json:"filters,omitempty"`
	FieldMappings  map[string]string     `json:"field_mappings,omitempty"`
	LinkedViews    map[string]LinkedView `json:"linked_views,omitempty"`
	VisibleColumns []string              `json:"visible_columns,omitempty"`
	PinnedColumns  []string              `json:"pinned_columns,omitempty"`
	ColumnOrder    []string              `json:"column_order,omitempty"`
	Webhooks       []string              `json:"webhooks,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}
