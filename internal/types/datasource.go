// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package types holds the domain model shared across the core: datasources,
// schema entries, views, sync configuration and the compiled-page shapes the
// publish pipeline emits.
package types

import "time"

// DatasourceKind identifies the backend family a datasource connects to.
type DatasourceKind string

const (
	KindPostgres         DatasourceKind = "postgres"
	KindSupabase         DatasourceKind = "supabase"
	KindMySQL            DatasourceKind = "mysql"
	KindWordPressDB      DatasourceKind = "wordpress_db"
	KindWordPressREST    DatasourceKind = "wordpress_rest"
	KindWordPressGraphQL DatasourceKind = "wordpress_graphql"
	KindNeon             DatasourceKind = "neon"
)

// ValidKinds lists every datasource kind accepted by validation.
var ValidKinds = []DatasourceKind{
	KindPostgres, KindSupabase, KindMySQL, KindWordPressDB,
	KindWordPressREST, KindWordPressGraphQL, KindNeon,
}

// Datasource is a registered external data backend. Names are unique across
// the project. ServiceKey is stored encrypted at rest and is never shipped
// in a compiled page; the edge resolves it from its own environment.
type Datasource struct {
	ID              string         `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	Kind            DatasourceKind `db:"kind" json:"kind"`
	Host            string         `db:"host" json:"host,omitempty"`
	Port            int            `db:"port" json:"port,omitempty"`
	Database        string         `db:"database_name" json:"database,omitempty"`
	Username        string         `db:"username" json:"username,omitempty"`
	Password        string         `db:"password" json:"-"`
	RESTBaseURL     string         `db:"rest_base_url" json:"rest_base_url,omitempty"`
	AnonKey         string         `db:"anon_key" json:"anon_key,omitempty"`
	ServiceKey      string         `db:"service_key" json:"-"`
	TablePrefix     string         `db:"table_prefix" json:"table_prefix,omitempty"`
	PoolerMode      bool           `db:"pooler_mode" json:"pooler_mode,omitempty"`
	Active          bool           `db:"active" json:"active"`
	LastTestedAt    *time.Time     `db:"last_tested_at" json:"last_tested_at,omitempty"`
	LastTestSuccess *bool          `db:"last_test_success" json:"last_test_success,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// IsSQL reports whether the datasource is served by a SQL adapter.
func (d *Datasource) IsSQL() bool {
	switch d.Kind {
	case KindPostgres, KindSupabase, KindMySQL, KindWordPressDB, KindNeon:
		return true
	}
	return false
}

// EnvKeyName returns the environment-variable name the edge uses to resolve
// this datasource's secret key at render time.
func (d *Datasource) EnvKeyName() string {
	switch d.Kind {
	case KindSupabase:
		return "SUPABASE_ANON_KEY"
	case KindNeon:
		return "NEON_API_KEY"
	default:
		return "DATASOURCE_KEY"
	}
}
