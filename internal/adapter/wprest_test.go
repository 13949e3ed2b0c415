// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/types"
)

// wpSite is a minimal WordPress REST stand-in serving a posts collection.
type wpSite struct {
	posts []map[string]any
}

func (s *wpSite) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/wp-json/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"name": "Test Site"})
	})
	mux.HandleFunc("/wp-json/wp/v2/types", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"post":    map[string]any{"rest_base": "posts"},
			"page":    map[string]any{"rest_base": "pages"},
			"product": map[string]any{"rest_base": "products"},
		})
	})
	mux.HandleFunc("/wp-json/wp/v2/taxonomies", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"category": map[string]any{"rest_base": "categories"},
			"post_tag": map[string]any{"rest_base": "tags"},
		})
	})
	mux.HandleFunc("/wp-json/wp/v2/posts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"schema": map[string]any{
					"properties": map[string]any{
						"id":     map[string]any{"type": "integer"},
						"title":  map[string]any{"type": "object"},
						"status": map[string]any{"type": "string"},
					},
				},
			})
			return
		}
		filtered := s.posts
		if status := r.URL.Query().Get("status"); status != "" {
			filtered = nil
			for _, p := range s.posts {
				if p["status"] == status {
					filtered = append(filtered, p)
				}
			}
		}
		perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
		if perPage <= 0 {
			perPage = 10
		}
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if page <= 0 {
			page = 1
		}
		start := (page - 1) * perPage
		if start > len(filtered) {
			start = len(filtered)
		}
		end := start + perPage
		if end > len(filtered) {
			end = len(filtered)
		}
		w.Header().Set("X-WP-Total", strconv.Itoa(len(filtered)))
		_ = json.NewEncoder(w).Encode(filtered[start:end])
	})
	return mux
}

func newWPAdapter(t *testing.T, site *wpSite) *WordPressREST {
	t.Helper()
	srv := httptest.NewServer(site.handler())
	t.Cleanup(srv.Close)
	return NewWordPressREST(&types.Datasource{
		Name:        "wp",
		Kind:        types.KindWordPressREST,
		RESTBaseURL: srv.URL,
	}, logr.Discard())
}

func seedPosts(n int) []map[string]any {
	posts := make([]map[string]any, 0, n)
	for i := 1; i <= n; i++ {
		status := "publish"
		if i%3 == 0 {
			status = "draft"
		}
		posts = append(posts, map[string]any{
			"id":     i,
			"title":  map[string]any{"rendered": fmt.Sprintf("Post %d", i)},
			"status": status,
			"views":  i * 10,
		})
	}
	return posts
}

func TestWPListTablesDedups(t *testing.T) {
	a := newWPAdapter(t, &wpSite{})
	tables, err := a.ListTables(context.Background())
	require.NoError(t, err)

	assert.Contains(t, tables, "posts")
	assert.Contains(t, tables, "products")
	assert.Contains(t, tables, "categories")
	assert.Contains(t, tables, "users")
	// posts appears in both the builtins and the types map, once in output.
	count := 0
	for _, tbl := range tables {
		if tbl == "posts" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestWPSchemaMergesOptionsAndSample(t *testing.T) {
	a := newWPAdapter(t, &wpSite{posts: seedPosts(1)})
	schema, err := a.GetSchema(context.Background(), "posts")
	require.NoError(t, err)

	byName := map[string]types.ColumnDef{}
	for _, c := range schema.Columns {
		byName[c.Name] = c
	}
	// Declared via OPTIONS; the declared type wins over the sampled one.
	assert.Equal(t, "integer", byName["id"].Type)
	assert.Equal(t, "object", byName["title"].Type)
	// Present only in the sample; type inferred from the value.
	assert.Equal(t, "number", byName["views"].Type)
	assert.True(t, byName["id"].PrimaryKey)
}

func TestWPReadRecordsNativeFilter(t *testing.T) {
	a := newWPAdapter(t, &wpSite{posts: seedPosts(9)})
	records, err := a.ReadRecords(context.Background(), "posts", types.ReadOptions{
		Where: []types.FilterExpr{{Column: "status", Operator: types.OpEquals, Value: "draft"}},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Equal(t, "draft", r["status"])
	}
}

func TestWPReadRecordsClientSideFilter(t *testing.T) {
	a := newWPAdapter(t, &wpSite{posts: seedPosts(9)})
	records, err := a.ReadRecords(context.Background(), "posts", types.ReadOptions{
		Where: []types.FilterExpr{{Column: "views", Operator: types.OpGreaterThan, Value: 50}},
		Limit: 100,
	})
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestWPRenderedFieldFilter(t *testing.T) {
	a := newWPAdapter(t, &wpSite{posts: seedPosts(9)})
	records, err := a.ReadRecords(context.Background(), "posts", types.ReadOptions{
		Where: []types.FilterExpr{{Column: "title", Operator: types.OpContains, Value: "post 4"}},
		Limit: 100,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestWPCountExactWhenUnfiltered(t *testing.T) {
	a := newWPAdapter(t, &wpSite{posts: seedPosts(9)})
	count, err := a.CountRecords(context.Background(), "posts", nil)
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	// Native filters stay exact too, the server reports the filtered total.
	count, err = a.CountRecords(context.Background(), "posts",
		[]types.FilterExpr{{Column: "status", Operator: types.OpEquals, Value: "draft"}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestWPCountClientSideFullScan(t *testing.T) {
	// Collection below one page: the scan sees everything, count is exact.
	a := newWPAdapter(t, &wpSite{posts: seedPosts(9)})
	count, err := a.CountRecords(context.Background(), "posts",
		[]types.FilterExpr{{Column: "views", Operator: types.OpGreaterThan, Value: 50}})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestWPConnectRequiresBaseURL(t *testing.T) {
	a := NewWordPressREST(&types.Datasource{Name: "wp"}, logr.Discard())
	err := a.Connect(context.Background())
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "unknown", ce.Kind)
}

func TestSplitWPFilters(t *testing.T) {
	native, clientSide := splitWPFilters([]types.FilterExpr{
		{Column: "slug", Operator: types.OpEquals, Value: "hello-world"},
		{Column: "status", Operator: types.OpEquals, Value: "publish"},
		{Column: "views", Operator: types.OpGreaterThan, Value: 10},
		{Column: "slug", Operator: types.OpContains, Value: "hello"},
		{Column: "x", Operator: "bogus", Value: "dropped"},
	})
	assert.Len(t, native, 2)
	// Non-equality predicates fall back to client-side even on native params.
	assert.Len(t, clientSide, 2)
}

func TestMatchFilterOperators(t *testing.T) {
	rec := Record{
		"title":  map[string]any{"rendered": "Hello World"},
		"status": "publish",
		"views":  float64(120),
		"empty":  "",
	}
	tests := []struct {
		name   string
		filter types.FilterExpr
		want   bool
	}{
		{"equals", types.FilterExpr{Column: "status", Operator: types.OpEquals, Value: "publish"}, true},
		{"not equals", types.FilterExpr{Column: "status", Operator: types.OpNotEquals, Value: "draft"}, true},
		{"rendered contains", types.FilterExpr{Column: "title", Operator: types.OpContains, Value: "world"}, true},
		{"numeric greater", types.FilterExpr{Column: "views", Operator: types.OpGreaterThan, Value: 100}, true},
		{"numeric less false", types.FilterExpr{Column: "views", Operator: types.OpLessThan, Value: 100}, false},
		{"is_empty", types.FilterExpr{Column: "empty", Operator: types.OpIsEmpty}, true},
		{"missing is empty", types.FilterExpr{Column: "nothere", Operator: types.OpIsEmpty}, true},
		{"in list", types.FilterExpr{Column: "status", Operator: types.OpIn, Value: "draft,publish"}, true},
		{"not_in list", types.FilterExpr{Column: "status", Operator: types.OpNotIn, Value: "draft,publish"}, false},
		{"starts_with", types.FilterExpr{Column: "title", Operator: types.OpStartsWith, Value: "hello"}, true},
		{"ends_with", types.FilterExpr{Column: "title", Operator: types.OpEndsWith, Value: "world"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchFilter(rec, tt.filter))
		})
	}
}
