// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package schemacache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/secrets"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

// fakeAdapter serves canned schemas and records its concurrency.
type fakeAdapter struct {
	tables  []string
	schemas map[string]*types.TableSchema
	rels    []types.Relationship

	mu         sync.Mutex
	inflight   int32
	maxSeen    int32
	schemaHits map[string]int
}

func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) Close() error                  { return nil }

func (f *fakeAdapter) ListTables(context.Context) ([]string, error) { return f.tables, nil }

func (f *fakeAdapter) GetSchema(_ context.Context, table string) (*types.TableSchema, error) {
	cur := atomic.AddInt32(&f.inflight, 1)
	defer atomic.AddInt32(&f.inflight, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if cur <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, cur) {
			break
		}
	}

	f.mu.Lock()
	if f.schemaHits == nil {
		f.schemaHits = map[string]int{}
	}
	f.schemaHits[table]++
	f.mu.Unlock()

	schema, ok := f.schemas[table]
	if !ok {
		return nil, errors.New("permission denied")
	}
	return schema, nil
}

func (f *fakeAdapter) ListAllRelationships(context.Context) ([]types.Relationship, error) {
	return f.rels, nil
}

func (f *fakeAdapter) ReadRecords(context.Context, string, types.ReadOptions) ([]adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) ReadRecordsWithRelations(context.Context, string, []types.RelatedSpec, types.ReadOptions) ([]adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) ReadRecordByKey(context.Context, string, string, any) (adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) UpsertRecord(context.Context, string, adapter.Record, string) (adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) DeleteRecord(context.Context, string, string, any) (bool, error) {
	return false, nil
}
func (f *fakeAdapter) CountRecords(context.Context, string, []types.FilterExpr) (int, error) {
	return 0, nil
}
func (f *fakeAdapter) SearchRecords(context.Context, string, string, int) ([]adapter.Record, error) {
	return nil, nil
}
func (f *fakeAdapter) CountSearchMatches(context.Context, string, string) (int, error) {
	return 0, nil
}

func testService(t *testing.T, fake *fakeAdapter) (*Service, *store.Store, *types.Datasource) {
	t.Helper()
	dir := t.TempDir()
	box, err := secrets.New("test-key", dir)
	require.NoError(t, err)
	st, err := store.Open(context.Background(), "", dir, box, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ds := &types.Datasource{Name: "primary", Kind: types.KindPostgres, Active: true}
	require.NoError(t, st.CreateDatasource(context.Background(), ds))

	svc := New(st, logr.Discard())
	svc.connect = func(context.Context, *types.Datasource, logr.Logger) (adapter.Adapter, error) {
		return fake, nil
	}
	return svc, st, ds
}

func simpleSchema(pk string, cols ...string) *types.TableSchema {
	schema := &types.TableSchema{
		Columns: []types.ColumnDef{{Name: pk, Type: "integer", PrimaryKey: true}},
	}
	for _, c := range cols {
		schema.Columns = append(schema.Columns, types.ColumnDef{Name: c, Type: "text", Nullable: true})
	}
	return schema
}

func TestDiscoverAllQuarantinesFailures(t *testing.T) {
	fake := &fakeAdapter{
		tables: []string{"users", "orders", "broken"},
		schemas: map[string]*types.TableSchema{
			"users":  simpleSchema("id", "email"),
			"orders": simpleSchema("id", "total"),
		},
	}
	svc, st, ds := testService(t, fake)

	result, err := svc.DiscoverAll(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Discovered)
	require.Contains(t, result.Failed, "broken")
	assert.Contains(t, result.Failed["broken"], "permission denied")

	entries, err := st.ListSchemaEntries(context.Background(), ds.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestDiscoverAllBoundsParallelism(t *testing.T) {
	schemas := map[string]*types.TableSchema{}
	var tables []string
	for i := 0; i < 40; i++ {
		name := "t" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		tables = append(tables, name)
		schemas[name] = simpleSchema("id")
	}
	fake := &fakeAdapter{tables: tables, schemas: schemas}
	svc, _, ds := testService(t, fake)

	result, err := svc.DiscoverAll(context.Background(), ds)
	require.NoError(t, err)
	assert.Equal(t, len(tables), result.Discovered)
	assert.LessOrEqual(t, fake.maxSeen, int32(discoveryParallelism))
}

func TestRefreshDropsStaleEntries(t *testing.T) {
	fake := &fakeAdapter{
		tables: []string{"users", "legacy"},
		schemas: map[string]*types.TableSchema{
			"users":  simpleSchema("id"),
			"legacy": simpleSchema("id"),
		},
	}
	svc, st, ds := testService(t, fake)
	_, err := svc.DiscoverAll(context.Background(), ds)
	require.NoError(t, err)

	// The table disappears upstream.
	fake.tables = []string{"users"}
	delete(fake.schemas, "legacy")

	_, err = svc.RefreshAll(context.Background(), ds)
	require.NoError(t, err)

	entries, err := st.ListSchemaEntries(context.Background(), ds.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "users", entries[0].TableName)
}

func TestGetDiscoversOnMiss(t *testing.T) {
	fake := &fakeAdapter{
		tables:  []string{"users"},
		schemas: map[string]*types.TableSchema{"users": simpleSchema("id", "email")},
	}
	svc, _, ds := testService(t, fake)

	entry, err := svc.Get(context.Background(), ds, "users")
	require.NoError(t, err)
	assert.Len(t, entry.Columns, 2)
	assert.Equal(t, 1, fake.schemaHits["users"])

	// Second read is served from the cache.
	_, err = svc.Get(context.Background(), ds, "users")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.schemaHits["users"])
}

func TestRelationshipsNormalizedFromCache(t *testing.T) {
	fake := &fakeAdapter{
		tables: []string{"orders"},
		schemas: map[string]*types.TableSchema{
			"orders": {
				Columns: []types.ColumnDef{
					{Name: "id", Type: "integer", PrimaryKey: true},
					{Name: "user_id", Type: "integer", IsForeign: true, ForeignTable: "users", ForeignColumn: "id"},
				},
				ForeignKeys: []types.FKDef{{
					ConstrainedColumns: []string{"user_id"},
					ReferredTable:      "users",
					ReferredColumns:    []string{"id"},
				}},
			},
		},
	}
	svc, _, ds := testService(t, fake)
	_, err := svc.DiscoverAll(context.Background(), ds)
	require.NoError(t, err)

	rels, err := svc.Relationships(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, types.Relationship{
		SourceTable: "orders", SourceColumn: "user_id",
		TargetTable: "users", TargetColumn: "id",
	}, rels[0])
}
