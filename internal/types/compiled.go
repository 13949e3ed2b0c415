// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

import "time"

// DataRequest is a fully formed HTTP request spec, pre-computed at publish
// time so the edge can execute it verbatim without any adapter logic. Header
// values may contain {{ENV_NAME}} placeholders the edge substitutes from its
// environment at render time.
type DataRequest struct {
	URL              string            `json:"url"`
	Method           string            `json:"method"`
	Headers          map[string]string `json:"headers"`
	Body             map[string]any    `json:"body,omitempty"`
	ResultPath       string            `json:"result_path"`
	FlattenRelations bool              `json:"flatten_relations"`
}

// Join is one left-join the edge's row RPC performs, derived from cached
// foreign keys at publish time.
type Join struct {
	Type  string `json:"type"`
	Table string `json:"table"`
	On    string `json:"on"`
}

// QueryConfig mirrors the parameters of the main DataRequest so the edge can
// rebuild subsequent-page requests without reparsing the projection.
type QueryConfig struct {
	TableName       string           `json:"tableName"`
	Columns         string           `json:"columns"`
	Joins           []Join           `json:"joins"`
	PageSize        int              `json:"pageSize"`
	SortColumn      string           `json:"sortColumn,omitempty"`
	SortDirection   string           `json:"sortDirection"`
	SearchColumns   []string         `json:"searchColumns,omitempty"`
	FrontendFilters []FrontendFilter `json:"frontendFilters,omitempty"`
}

// DatasourceBundle is the reduced, secret-free datasource description shipped
// inside a compiled page. EnvKey names the environment variable the edge
// resolves the secret key from.
type DatasourceBundle struct {
	ID      string         `json:"id"`
	Kind    DatasourceKind `json:"kind"`
	URL     string         `json:"url,omitempty"`
	AnonKey string         `json:"anon_key,omitempty"`
	EnvKey  string         `json:"env_key"`
}

// CompiledPage is the publish-time output handed to a publish strategy. The
// core retains no state about it after delivery.
type CompiledPage struct {
	ID          string             `json:"id"`
	Slug        string             `json:"slug"`
	Name        string             `json:"name"`
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	LayoutData  []map[string]any   `json:"layout_data"`
	SEOData     map[string]any     `json:"seo_data,omitempty"`
	Datasources []DatasourceBundle `json:"datasources"`
	CSSBundle   string             `json:"css_bundle"`
	Version     int                `json:"version"`
	PublishedAt time.Time          `json:"published_at"`
	IsPublic    bool               `json:"is_public"`
	IsHomepage  bool               `json:"is_homepage"`
}

// PublishResult is what a strategy reports back on success.
type PublishResult struct {
	PreviewURL string `json:"previewUrl,omitempty"`
	Version    int    `json:"version,omitempty"`
}
