// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frontbase/frontbase/internal/types"
)

func TestBuildWherePostgres(t *testing.T) {
	pg := &Postgres{}

	tests := []struct {
		name       string
		filters    []types.FilterExpr
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "equals casts to text",
			filters:    []types.FilterExpr{{Column: "status", Operator: types.OpEquals, Value: "active"}},
			wantClause: `CAST("status" AS TEXT) = $1`,
			wantArgs:   []any{"active"},
		},
		{
			name:       "equals stringifies non-string values",
			filters:    []types.FilterExpr{{Column: "id", Operator: types.OpEquals, Value: 42}},
			wantClause: `CAST("id" AS TEXT) = $1`,
			wantArgs:   []any{"42"},
		},
		{
			name:       "comparison keeps native type",
			filters:    []types.FilterExpr{{Column: "age", Operator: types.OpGreaterThan, Value: 21}},
			wantClause: `"age" > $1`,
			wantArgs:   []any{21},
		},
		{
			name:       "contains uses ilike with wildcards",
			filters:    []types.FilterExpr{{Column: "title", Operator: types.OpContains, Value: "go"}},
			wantClause: `CAST("title" AS TEXT) ILIKE $1`,
			wantArgs:   []any{"%go%"},
		},
		{
			name:       "starts_with anchors the prefix",
			filters:    []types.FilterExpr{{Column: "name", Operator: types.OpStartsWith, Value: "Al"}},
			wantClause: `CAST("name" AS TEXT) ILIKE $1`,
			wantArgs:   []any{"Al%"},
		},
		{
			name:       "is_empty matches null or blank",
			filters:    []types.FilterExpr{{Column: "bio", Operator: types.OpIsEmpty}},
			wantClause: `("bio" IS NULL OR CAST("bio" AS TEXT) = '')`,
			wantArgs:   nil,
		},
		{
			name:       "in expands a comma list",
			filters:    []types.FilterExpr{{Column: "status", Operator: types.OpIn, Value: "draft, published"}},
			wantClause: `CAST("status" AS TEXT) IN ($1, $2)`,
			wantArgs:   []any{"draft", "published"},
		},
		{
			name:       "not_in expands a slice",
			filters:    []types.FilterExpr{{Column: "kind", Operator: types.OpNotIn, Value: []any{"a", "b"}}},
			wantClause: `CAST("kind" AS TEXT) NOT IN ($1, $2)`,
			wantArgs:   []any{"a", "b"},
		},
		{
			name:       "dotted column quotes per part",
			filters:    []types.FilterExpr{{Column: "users.email", Operator: types.OpEquals, Value: "x@y.z"}},
			wantClause: `CAST("users"."email" AS TEXT) = $1`,
			wantArgs:   []any{"x@y.z"},
		},
		{
			name: "unknown operator is dropped",
			filters: []types.FilterExpr{
				{Column: "id", Operator: "raw_sql", Value: "1; DROP TABLE users"},
				{Column: "status", Operator: types.OpEquals, Value: "ok"},
			},
			wantClause: `CAST("status" AS TEXT) = $1`,
			wantArgs:   []any{"ok"},
		},
		{
			name:       "empty column is dropped",
			filters:    []types.FilterExpr{{Column: "", Operator: types.OpEquals, Value: "x"}},
			wantClause: "",
			wantArgs:   nil,
		},
		{
			name: "placeholders number across filters",
			filters: []types.FilterExpr{
				{Column: "a", Operator: types.OpEquals, Value: "1"},
				{Column: "b", Operator: types.OpNotEquals, Value: "2"},
			},
			wantClause: `CAST("a" AS TEXT) = $1 AND CAST("b" AS TEXT) != $2`,
			wantArgs:   []any{"1", "2"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := buildWhere(pg, tt.filters)
			assert.Equal(t, tt.wantClause, clause)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildWhereMySQL(t *testing.T) {
	my := &MySQL{}

	clause, args := buildWhere(my, []types.FilterExpr{
		{Column: "post_title", Operator: types.OpContains, Value: "hello"},
		{Column: "post_status", Operator: types.OpEquals, Value: "publish"},
	})
	assert.Equal(t, "CAST(`post_title` AS CHAR) LIKE ? AND CAST(`post_status` AS CHAR) = ?", clause)
	assert.Equal(t, []any{"%hello%", "publish"}, args)
}

func TestSplitListValue(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, splitListValue("a, b"))
	assert.Equal(t, []any{"a"}, splitListValue("a,,"))
	assert.Equal(t, []any{"x", "y"}, splitListValue([]string{"x", "y"}))
	assert.Equal(t, []any{1, 2}, splitListValue([]any{1, 2}))
	assert.Nil(t, splitListValue(nil))
	assert.Equal(t, []any{7}, splitListValue(7))
}

func TestMetaFilterRewrite(t *testing.T) {
	ds := &types.Datasource{Kind: types.KindWordPressDB}
	m := &MySQL{}
	m.sqlBase = sqlBase{ds: ds, v: m}

	joins, rewritten := m.rewriteFilters("wp_posts", []types.FilterExpr{
		{Column: "meta.price", Operator: types.OpGreaterThan, Value: 10},
		{Column: "post_status", Operator: types.OpEquals, Value: "publish"},
		{Column: "meta.color", Operator: types.OpEquals, Value: "red"},
	})

	assert.Len(t, joins, 2)
	assert.Equal(t, "JOIN `wp_postmeta` AS `pm0` ON `pm0`.`post_id` = `wp_posts`.`ID` AND `pm0`.`meta_key` = 'price'", joins[0])
	assert.Equal(t, "JOIN `wp_postmeta` AS `pm1` ON `pm1`.`post_id` = `wp_posts`.`ID` AND `pm1`.`meta_key` = 'color'", joins[1])

	assert.Equal(t, []types.FilterExpr{
		{Column: "pm0.meta_value", Operator: types.OpGreaterThan, Value: 10},
		{Column: "post_status", Operator: types.OpEquals, Value: "publish"},
		{Column: "pm1.meta_value", Operator: types.OpEquals, Value: "red"},
	}, rewritten)
}

func TestMetaFilterRewriteNonPostsTable(t *testing.T) {
	ds := &types.Datasource{Kind: types.KindWordPressDB}
	m := &MySQL{}
	m.sqlBase = sqlBase{ds: ds, v: m}

	where := []types.FilterExpr{{Column: "meta.price", Operator: types.OpEquals, Value: "1"}}
	joins, rewritten := m.rewriteFilters("wp_users", where)
	assert.Nil(t, joins)
	assert.Equal(t, where, rewritten)
}

func TestQuoteMySQLStringEscapes(t *testing.T) {
	assert.Equal(t, `'o''brien'`, quoteMySQLString("o'brien"))
	assert.Equal(t, `'a\\b'`, quoteMySQLString(`a\b`))
}
