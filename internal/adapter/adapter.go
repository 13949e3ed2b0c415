// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package adapter provides a uniform capability interface over the external
// data backends a datasource can point at: PostgreSQL, Supabase, MySQL,
// WordPress (database or REST) and Neon. Every variant implements the same
// method set; the factory selects a variant from the datasource kind.
package adapter

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/types"
)

// Record is one row of external data. Related columns are flat, keyed as
// "table.col"; base-table columns are unprefixed. Adapters never return
// nested objects.
type Record = map[string]any

// Adapter is the capability set every datasource backend implements.
//
// Transient I/O failures are not retried inside the adapter; retries are the
// caller's decision. Connection failures surface as *ConnectionError.
type Adapter interface {
	// Connect establishes the backend connection or pool. Safe to call once;
	// Close must be called on all exit paths after a successful Connect.
	Connect(ctx context.Context) error
	Close() error

	ListTables(ctx context.Context) ([]string, error)
	GetSchema(ctx context.Context, table string) (*types.TableSchema, error)
	ListAllRelationships(ctx context.Context) ([]types.Relationship, error)

	ReadRecords(ctx context.Context, table string, opts types.ReadOptions) ([]Record, error)
	ReadRecordsWithRelations(ctx context.Context, table string, related []types.RelatedSpec, opts types.ReadOptions) ([]Record, error)
	ReadRecordByKey(ctx context.Context, table, keyCol string, keyVal any) (Record, error)

	UpsertRecord(ctx context.Context, table string, record Record, keyCol string) (Record, error)
	DeleteRecord(ctx context.Context, table, keyCol string, keyVal any) (bool, error)

	CountRecords(ctx context.Context, table string, where []types.FilterExpr) (int, error)
	SearchRecords(ctx context.Context, table, query string, limit int) ([]Record, error)
	CountSearchMatches(ctx context.Context, table, query string) (int, error)
}

// New builds the adapter variant for the datasource kind. The returned
// adapter is not yet connected.
func New(ds *types.Datasource, log logr.Logger) (Adapter, error) {
	switch ds.Kind {
	case types.KindPostgres:
		return NewPostgres(ds, log), nil
	case types.KindSupabase:
		return NewSupabase(ds, log), nil
	case types.KindNeon:
		return NewNeon(ds, log), nil
	case types.KindMySQL, types.KindWordPressDB:
		return NewMySQL(ds, log), nil
	case types.KindWordPressREST:
		return NewWordPressREST(ds, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, ds.Kind)
	}
}

// Connected builds and connects an adapter in one step.
func Connected(ctx context.Context, ds *types.Datasource, log logr.Logger) (Adapter, error) {
	a, err := New(ds, log)
	if err != nil {
		return nil, err
	}
	if err := a.Connect(ctx); err != nil {
		return nil, err
	}
	return a, nil
}
