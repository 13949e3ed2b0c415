// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frontbase/frontbase/internal/types"
)

const defaultPageSize = 1000

// buildDataRequest computes the pre-baked request the edge executes for a
// bound component. Supabase datasources get the row RPC; SQL-over-HTTP
// vendors get a SELECT in their envelope.
func buildDataRequest(ds *types.Datasource, binding map[string]any, schema *types.TableSchemaEntry) (*types.DataRequest, *types.QueryConfig, error) {
	table := bindingTable(binding)
	if table == "" {
		return nil, nil, fmt.Errorf("binding has no table")
	}

	columns := bindingColumns(binding)
	joins := buildJoins(table, columns, schema)
	projection := buildProjection(table, columns)
	sortCol, sortDir := bindingSort(binding)
	pageSize := bindingPageSize(binding)

	cfg := &types.QueryConfig{
		TableName:       table,
		Columns:         projection,
		Joins:           joins,
		PageSize:        pageSize,
		SortColumn:      sortCol,
		SortDirection:   sortDir,
		SearchColumns:   bindingStrings(binding, "search_columns"),
		FrontendFilters: frontendFilters(binding),
	}

	switch ds.Kind {
	case types.KindSupabase:
		// sort_col is present-but-null when unsorted; the RPC contract wants
		// the key either way.
		var sortColValue any
		if sortCol != "" {
			sortColValue = sortCol
		}
		body := map[string]any{
			"table_name": table,
			"columns":    projection,
			"joins":      joins,
			"sort_col":   sortColValue,
			"sort_dir":   sortDir,
			"page":       1,
			"page_size":  pageSize,
			"filters":    []any{},
		}
		return &types.DataRequest{
			URL:              strings.TrimRight(ds.RESTBaseURL, "/") + "/rest/v1/rpc/frontbase_get_rows",
			Method:           "POST",
			Headers:          requestHeaders(ds),
			Body:             body,
			ResultPath:       "",
			FlattenRelations: true,
		}, cfg, nil

	case types.KindNeon:
		sql := buildSelect(table, projection, joins, sortCol, sortDir, pageSize)
		return &types.DataRequest{
			URL:              strings.TrimRight(ds.RESTBaseURL, "/") + "/sql",
			Method:           "POST",
			Headers:          requestHeaders(ds),
			Body:             map[string]any{"query": sql},
			ResultPath:       "rows",
			FlattenRelations: true,
		}, cfg, nil

	default:
		return nil, nil, fmt.Errorf("datasource kind %s has no edge request form", ds.Kind)
	}
}

// buildOptionsRequest computes the distinct-value request backing a dropdown
// or multiselect filter. Dotted columns resolve against the related table.
func buildOptionsRequest(ds *types.Datasource, table, column string) *types.DataRequest {
	targetTable, targetCol := table, column
	if i := strings.Index(column, "."); i > 0 {
		targetTable, targetCol = column[:i], column[i+1:]
	}
	return &types.DataRequest{
		URL:    strings.TrimRight(ds.RESTBaseURL, "/") + "/rest/v1/rpc/frontbase_get_distinct_values",
		Method: "POST",
		Headers: requestHeaders(ds),
		Body: map[string]any{
			"target_table": targetTable,
			"target_col":   targetCol,
		},
		ResultPath: "",
	}
}

// requestHeaders emits auth headers with an {{ENV}} placeholder, never the
// key itself. The edge substitutes from its own environment at render time.
func requestHeaders(ds *types.Datasource) map[string]string {
	placeholder := "{{" + ds.EnvKeyName() + "}}"
	h := map[string]string{
		"Content-Type":  "application/json",
		"Authorization": "Bearer " + placeholder,
	}
	if ds.Kind == types.KindSupabase {
		h["apikey"] = placeholder
	}
	return h
}

// buildProjection renders the SQL column projection: base columns qualified
// against the table, dotted columns against their related table with an
// aliased flat name.
func buildProjection(table string, columns []string) string {
	if len(columns) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		if rel, c, ok := splitDotted(col); ok {
			parts = append(parts, fmt.Sprintf(`%s.%s AS %s`, quoteIdent(rel), quoteIdent(c), quoteIdent(col)))
			continue
		}
		parts = append(parts, fmt.Sprintf(`%s.%s`, quoteIdent(table), quoteIdent(col)))
	}
	return strings.Join(parts, ", ")
}

// buildJoins derives one left join per distinct related table referenced by
// dotted columns, resolved against the cached foreign keys.
func buildJoins(table string, columns []string, schema *types.TableSchemaEntry) []types.Join {
	if schema == nil {
		return nil
	}
	related := map[string]struct{}{}
	for _, col := range columns {
		if rel, _, ok := splitDotted(col); ok {
			related[rel] = struct{}{}
		}
	}
	names := make([]string, 0, len(related))
	for rel := range related {
		names = append(names, rel)
	}
	sort.Strings(names)

	var joins []types.Join
	for _, rel := range names {
		fk := findFK(schema, rel)
		if fk == nil || len(fk.ConstrainedColumns) == 0 || len(fk.ReferredColumns) == 0 {
			continue
		}
		joins = append(joins, types.Join{
			Type:  "left",
			Table: rel,
			On: fmt.Sprintf(`%s.%s = %s.%s`,
				quoteIdent(table), quoteIdent(fk.ConstrainedColumns[0]),
				quoteIdent(rel), quoteIdent(fk.ReferredColumns[0])),
		})
	}
	return joins
}

func findFK(schema *types.TableSchemaEntry, referredTable string) *types.FKDef {
	for i := range schema.ForeignKeys {
		if schema.ForeignKeys[i].ReferredTable == referredTable {
			return &schema.ForeignKeys[i]
		}
	}
	return nil
}

// buildSelect renders the SELECT shipped to SQL-over-HTTP vendors.
func buildSelect(table, projection string, joins []types.Join, sortCol, sortDir string, pageSize int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", projection, quoteIdent(table))
	for _, j := range joins {
		fmt.Fprintf(&b, " LEFT JOIN %s ON %s", quoteIdent(j.Table), j.On)
	}
	if sortCol != "" {
		dir := "ASC"
		if strings.EqualFold(sortDir, "desc") {
			dir = "DESC"
		}
		fmt.Fprintf(&b, " ORDER BY %s %s", quoteIdent(sortCol), dir)
	}
	fmt.Fprintf(&b, " LIMIT %d", pageSize)
	return b.String()
}

func splitDotted(col string) (rel, c string, ok bool) {
	i := strings.Index(col, ".")
	if i <= 0 || i == len(col)-1 {
		return "", "", false
	}
	return col[:i], col[i+1:], true
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func bindingColumns(binding map[string]any) []string {
	cols := bindingStrings(binding, "columns")
	if cols == nil {
		cols = bindingStrings(binding, "column_order")
	}
	return cols
}

func bindingStrings(binding map[string]any, key string) []string {
	raw, ok := binding[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s := asString(v); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func bindingSort(binding map[string]any) (col, dir string) {
	col = asString(binding["sort_column"])
	if col == "" {
		col = asString(binding["sortColumn"])
	}
	dir = strings.ToLower(asString(binding["sort_direction"]))
	if dir == "" {
		dir = strings.ToLower(asString(binding["sortDirection"]))
	}
	if dir != "desc" {
		dir = "asc"
	}
	return col, dir
}

func bindingPageSize(binding map[string]any) int {
	p, ok := binding["pagination"].(map[string]any)
	if !ok {
		return defaultPageSize
	}
	if enabled, ok := p["enabled"].(bool); !ok || !enabled {
		return defaultPageSize
	}
	switch n := p["page_size"].(type) {
	case float64:
		if n > 0 {
			return int(n)
		}
	case int:
		if n > 0 {
			return n
		}
	}
	return defaultPageSize
}
