// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package testutil provides in-memory test doubles shared by the service
// packages' tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/types"
)

// FakeAdapter is an in-memory adapter.Adapter over seeded tables. It applies
// the closed filter-operator set client-side, so service tests exercise real
// filter semantics without a database.
type FakeAdapter struct {
	mu      sync.Mutex
	Tables  map[string][]adapter.Record
	Schemas map[string]*types.TableSchema
	Rels    []types.Relationship

	// FailConnect makes Connect return this error.
	FailConnect error

	// Upserts records every UpsertRecord call in order.
	Upserts []adapter.Record
	// Deletes records every deleted key value.
	Deletes []any
}

var _ adapter.Adapter = (*FakeAdapter)(nil)

func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		Tables:  map[string][]adapter.Record{},
		Schemas: map[string]*types.TableSchema{},
	}
}

func (f *FakeAdapter) Connect(context.Context) error { return f.FailConnect }
func (f *FakeAdapter) Close() error                  { return nil }

func (f *FakeAdapter) ListTables(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.Tables))
	for t := range f.Tables {
		names = append(names, t)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FakeAdapter) GetSchema(_ context.Context, table string) (*types.TableSchema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.Schemas[table]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("table %s: %w", table, adapter.ErrNotFound)
}

func (f *FakeAdapter) ListAllRelationships(context.Context) ([]types.Relationship, error) {
	return f.Rels, nil
}

func (f *FakeAdapter) ReadRecords(_ context.Context, table string, opts types.ReadOptions) ([]adapter.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []adapter.Record
	for _, rec := range f.Tables[table] {
		if !matchAll(rec, opts.Where) {
			continue
		}
		if opts.Search != "" && !matchSearch(rec, opts.Search) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	if opts.OrderBy != "" {
		desc := strings.EqualFold(opts.OrderDirection, "desc")
		sort.SliceStable(out, func(i, j int) bool {
			a := fmt.Sprintf("%v", out[i][opts.OrderBy])
			b := fmt.Sprintf("%v", out[j][opts.OrderBy])
			if desc {
				return a > b
			}
			return a < b
		})
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return []adapter.Record{}, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (f *FakeAdapter) ReadRecordsWithRelations(ctx context.Context, table string, _ []types.RelatedSpec, opts types.ReadOptions) ([]adapter.Record, error) {
	return f.ReadRecords(ctx, table, opts)
}

func (f *FakeAdapter) ReadRecordByKey(_ context.Context, table, keyCol string, keyVal any) (adapter.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.Tables[table] {
		if fmt.Sprintf("%v", rec[keyCol]) == fmt.Sprintf("%v", keyVal) {
			return cloneRecord(rec), nil
		}
	}
	return nil, nil
}

func (f *FakeAdapter) UpsertRecord(_ context.Context, table string, record adapter.Record, keyCol string) (adapter.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Upserts = append(f.Upserts, cloneRecord(record))

	key := fmt.Sprintf("%v", record[keyCol])
	for i, existing := range f.Tables[table] {
		if fmt.Sprintf("%v", existing[keyCol]) == key {
			merged := cloneRecord(existing)
			for k, v := range record {
				merged[k] = v
			}
			f.Tables[table][i] = merged
			return cloneRecord(merged), nil
		}
	}
	f.Tables[table] = append(f.Tables[table], cloneRecord(record))
	return cloneRecord(record), nil
}

func (f *FakeAdapter) DeleteRecord(_ context.Context, table, keyCol string, keyVal any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%v", keyVal)
	for i, rec := range f.Tables[table] {
		if fmt.Sprintf("%v", rec[keyCol]) == key {
			f.Tables[table] = append(f.Tables[table][:i], f.Tables[table][i+1:]...)
			f.Deletes = append(f.Deletes, keyVal)
			return true, nil
		}
	}
	return false, nil
}

func (f *FakeAdapter) CountRecords(ctx context.Context, table string, where []types.FilterExpr) (int, error) {
	records, err := f.ReadRecords(ctx, table, types.ReadOptions{Where: where})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (f *FakeAdapter) SearchRecords(ctx context.Context, table, query string, limit int) ([]adapter.Record, error) {
	return f.ReadRecords(ctx, table, types.ReadOptions{Search: query, Limit: limit})
}

func (f *FakeAdapter) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	records, err := f.ReadRecords(ctx, table, types.ReadOptions{Search: query})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func cloneRecord(rec adapter.Record) adapter.Record {
	out := make(adapter.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

func matchAll(rec adapter.Record, filters []types.FilterExpr) bool {
	for _, f := range filters {
		if !matchOne(rec, f) {
			return false
		}
	}
	return true
}

func matchOne(rec adapter.Record, f types.FilterExpr) bool {
	raw := rec[f.Column]
	val := fmt.Sprintf("%v", raw)
	if raw == nil {
		val = ""
	}
	want := fmt.Sprintf("%v", f.Value)

	switch f.Operator {
	case types.OpEquals:
		return val == want
	case types.OpNotEquals:
		return val != want
	case types.OpGreaterThan:
		return numCompare(raw, f.Value) > 0
	case types.OpLessThan:
		return numCompare(raw, f.Value) < 0
	case types.OpContains:
		return strings.Contains(strings.ToLower(val), strings.ToLower(want))
	case types.OpNotContains:
		return !strings.Contains(strings.ToLower(val), strings.ToLower(want))
	case types.OpStartsWith:
		return strings.HasPrefix(strings.ToLower(val), strings.ToLower(want))
	case types.OpEndsWith:
		return strings.HasSuffix(strings.ToLower(val), strings.ToLower(want))
	case types.OpIsEmpty:
		return raw == nil || val == ""
	case types.OpIsNotEmpty:
		return raw != nil && val != ""
	case types.OpIn, types.OpNotIn:
		found := false
		for _, item := range listValues(f.Value) {
			if fmt.Sprintf("%v", item) == val {
				found = true
				break
			}
		}
		if f.Operator == types.OpIn {
			return found
		}
		return !found
	default:
		return false
	}
}

func listValues(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case string:
		var out []any
		for _, part := range strings.Split(val, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return []any{v}
	}
}

func numCompare(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func matchSearch(rec adapter.Record, query string) bool {
	q := strings.ToLower(query)
	for _, v := range rec {
		if strings.Contains(strings.ToLower(fmt.Sprintf("%v", v)), q) {
			return true
		}
	}
	return false
}
