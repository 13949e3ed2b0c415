// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/jmoiron/sqlx"

	"github.com/frontbase/frontbase/internal/types"
)

// sqlVariant supplies the per-backend pieces the shared SQL adapter cannot
// express generically: pool construction, dialect syntax, schema
// introspection and upsert.
type sqlVariant interface {
	dialect

	// open dials the backend and returns a configured pool. Implementations
	// classify failures via ClassifyConnectionError.
	open(ctx context.Context) (*sqlx.DB, error)

	listTablesSQL() (query string, args []any)
	tableSchema(ctx context.Context, db *sqlx.DB, table string) (*types.TableSchema, error)
	allRelationships(ctx context.Context, db *sqlx.DB) ([]types.Relationship, error)
	upsert(ctx context.Context, db *sqlx.DB, table string, record Record, keyCol string) (Record, error)

	// includeTable filters backend-internal tables out of ListTables.
	includeTable(name string) bool

	// rewriteFilters lets a variant materialize backend-specific filters as
	// extra join fragments (e.g. WordPress post-meta filters). Returns the
	// join SQL and the rewritten filter list.
	rewriteFilters(table string, where []types.FilterExpr) ([]string, []types.FilterExpr)

	commandTimeout() time.Duration
}

// sqlBase implements the Adapter capability set over database/sql for every
// SQL-speaking backend. One pool per datasource; pools are never shared
// across datasource instances.
type sqlBase struct {
	ds  *types.Datasource
	log logr.Logger
	v   sqlVariant
	db  *sqlx.DB
}

func (a *sqlBase) Connect(ctx context.Context) error {
	if a.db != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.v.commandTimeout())
	defer cancel()

	db, err := a.v.open(ctx)
	if err != nil {
		return err
	}
	// Pre-ping so a dead pool is caught here, not on first query.
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return ClassifyConnectionError(err)
	}
	a.db = db
	a.log.V(1).Info("adapter connected", "datasource", a.ds.Name, "kind", a.ds.Kind)
	return nil
}

func (a *sqlBase) Close() error {
	if a.db == nil {
		return nil
	}
	err := a.db.Close()
	a.db = nil
	return err
}

func (a *sqlBase) conn() (*sqlx.DB, error) {
	if a.db == nil {
		return nil, ErrNotConnected
	}
	return a.db, nil
}

func (a *sqlBase) ListTables(ctx context.Context) ([]string, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	query, args := a.v.listTablesSQL()
	var names []string
	if err := db.SelectContext(ctx, &names, query, args...); err != nil {
		return nil, opErr("list tables", "", err)
	}
	out := names[:0]
	for _, n := range names {
		if a.v.includeTable(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (a *sqlBase) GetSchema(ctx context.Context, table string) (*types.TableSchema, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	schema, err := a.v.tableSchema(ctx, db, table)
	if err != nil {
		return nil, opErr("get schema", table, err)
	}
	return schema, nil
}

func (a *sqlBase) ListAllRelationships(ctx context.Context) ([]types.Relationship, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	rels, err := a.v.allRelationships(ctx, db)
	if err != nil {
		return nil, opErr("list relationships", "", err)
	}
	return rels, nil
}

// projection renders the SELECT list. Explicit unqualified columns become
// quoted base-table references; dotted columns are quoted per part and
// aliased back to their dotted form so output rows stay flat.
func (a *sqlBase) projection(table string, columns []string) string {
	if len(columns) == 0 {
		return a.v.QuoteIdent(table) + ".*"
	}
	parts := make([]string, 0, len(columns))
	for _, col := range columns {
		if rel, c, ok := strings.Cut(col, "."); ok {
			parts = append(parts, fmt.Sprintf("%s.%s AS %s",
				a.v.QuoteIdent(rel), a.v.QuoteIdent(c), a.v.QuoteIdent(col)))
			continue
		}
		parts = append(parts, a.v.QuoteIdent(table)+"."+a.v.QuoteIdent(col))
	}
	return strings.Join(parts, ", ")
}

func (a *sqlBase) orderClause(table, orderBy, direction string) string {
	if orderBy == "" {
		return ""
	}
	dir := "ASC"
	if strings.EqualFold(direction, "desc") {
		dir = "DESC"
	}
	if rel, c, ok := strings.Cut(orderBy, "."); ok {
		return fmt.Sprintf(" ORDER BY %s.%s %s", a.v.QuoteIdent(rel), a.v.QuoteIdent(c), dir)
	}
	return fmt.Sprintf(" ORDER BY %s.%s %s", a.v.QuoteIdent(table), a.v.QuoteIdent(orderBy), dir)
}

func (a *sqlBase) ReadRecords(ctx context.Context, table string, opts types.ReadOptions) ([]Record, error) {
	return a.readRecords(ctx, table, nil, opts)
}

func (a *sqlBase) ReadRecordsWithRelations(ctx context.Context, table string, related []types.RelatedSpec, opts types.ReadOptions) ([]Record, error) {
	return a.readRecords(ctx, table, related, opts)
}

func (a *sqlBase) readRecords(ctx context.Context, table string, related []types.RelatedSpec, opts types.ReadOptions) ([]Record, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	switch {
	case len(opts.Columns) > 0:
		sb.WriteString("SELECT " + a.projection(table, opts.Columns))
	case len(related) > 0:
		// Base table whole, related columns flat-aliased.
		var relCols []string
		for _, rel := range related {
			for _, c := range rel.Columns {
				relCols = append(relCols, rel.Table+"."+c)
			}
		}
		sb.WriteString("SELECT " + a.v.QuoteIdent(table) + ".*")
		if len(relCols) > 0 {
			sb.WriteString(", " + a.projection(table, relCols))
		}
	default:
		sb.WriteString("SELECT " + a.v.QuoteIdent(table) + ".*")
	}
	sb.WriteString(" FROM " + a.v.QuoteIdent(table))

	for _, rel := range related {
		sb.WriteString(fmt.Sprintf(" LEFT JOIN %s ON %s.%s = %s.%s",
			a.v.QuoteIdent(rel.Table),
			a.v.QuoteIdent(table), a.v.QuoteIdent(rel.FKCol),
			a.v.QuoteIdent(rel.Table), a.v.QuoteIdent(rel.RefCol)))
	}

	joins, where := a.v.rewriteFilters(table, opts.Where)
	for _, j := range joins {
		sb.WriteString(" " + j)
	}

	wb := newWhereBuilder(a.v)
	for _, f := range where {
		wb.Add(f)
	}
	if opts.Search != "" {
		cols := opts.SearchColumns
		if len(cols) == 0 {
			cols, err = a.textColumns(ctx, table)
			if err != nil {
				return nil, opErr("read records", table, err)
			}
		}
		a.addSearchClause(wb, table, cols, opts.Search)
	}
	clause, args := wb.Clause()
	if clause != "" {
		sb.WriteString(" WHERE " + clause)
	}

	sb.WriteString(a.orderClause(table, opts.OrderBy, opts.OrderDirection))

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit, opts.Offset)
	sb.WriteString(fmt.Sprintf(" LIMIT %s OFFSET %s",
		a.v.Placeholder(len(args)-1), a.v.Placeholder(len(args))))

	rows, err := db.QueryxContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, opErr("read records", table, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// addSearchClause ORs a case-insensitive match over the given columns into
// the builder as a single grouped predicate.
func (a *sqlBase) addSearchClause(wb *whereBuilder, table string, cols []string, query string) {
	if len(cols) == 0 {
		return
	}
	like := a.v.LikeOperator()
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		wb.args = append(wb.args, "%"+query+"%")
		expr := a.v.CastText(a.v.QuoteIdent(table) + "." + a.v.QuoteIdent(c))
		parts = append(parts, fmt.Sprintf("%s %s %s", expr, like, a.v.Placeholder(len(wb.args))))
	}
	wb.clauses = append(wb.clauses, "("+strings.Join(parts, " OR ")+")")
}

// textColumns lists the table's columns usable for full-table search.
func (a *sqlBase) textColumns(ctx context.Context, table string) ([]string, error) {
	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	cols := make([]string, 0, len(schema.Columns))
	for _, c := range schema.Columns {
		cols = append(cols, c.Name)
	}
	return cols, nil
}

func (a *sqlBase) ReadRecordByKey(ctx context.Context, table, keyCol string, keyVal any) (Record, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1",
		a.v.QuoteIdent(table),
		a.v.CastText(a.v.QuoteIdent(table)+"."+a.v.QuoteIdent(keyCol)),
		a.v.Placeholder(1))
	rows, err := db.QueryxContext(ctx, query, valueString(keyVal))
	if err != nil {
		return nil, opErr("read record", table, err)
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, opErr("read record", table, err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

func (a *sqlBase) UpsertRecord(ctx context.Context, table string, record Record, keyCol string) (Record, error) {
	db, err := a.conn()
	if err != nil {
		return nil, err
	}
	out, err := a.v.upsert(ctx, db, table, record, keyCol)
	if err != nil {
		return nil, opErr("upsert record", table, err)
	}
	return out, nil
}

func (a *sqlBase) DeleteRecord(ctx context.Context, table, keyCol string, keyVal any) (bool, error) {
	db, err := a.conn()
	if err != nil {
		return false, err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		a.v.QuoteIdent(table),
		a.v.CastText(a.v.QuoteIdent(table)+"."+a.v.QuoteIdent(keyCol)),
		a.v.Placeholder(1))
	res, err := db.ExecContext(ctx, query, valueString(keyVal))
	if err != nil {
		return false, opErr("delete record", table, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (a *sqlBase) CountRecords(ctx context.Context, table string, where []types.FilterExpr) (int, error) {
	db, err := a.conn()
	if err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + a.v.QuoteIdent(table)
	joins, rewritten := a.v.rewriteFilters(table, where)
	for _, j := range joins {
		query += " " + j
	}
	clause, args := buildWhere(a.v, rewritten)
	if clause != "" {
		query += " WHERE " + clause
	}
	var count int
	if err := db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, opErr("count records", table, err)
	}
	return count, nil
}

func (a *sqlBase) SearchRecords(ctx context.Context, table, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return a.readRecords(ctx, table, nil, types.ReadOptions{Search: query, Limit: limit})
}

func (a *sqlBase) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	db, err := a.conn()
	if err != nil {
		return 0, err
	}
	cols, err := a.textColumns(ctx, table)
	if err != nil {
		return 0, opErr("count search", table, err)
	}
	wb := newWhereBuilder(a.v)
	a.addSearchClause(wb, table, cols, query)
	clause, args := wb.Clause()
	stmt := "SELECT COUNT(*) FROM " + a.v.QuoteIdent(table)
	if clause != "" {
		stmt += " WHERE " + clause
	}
	var count int
	if err := db.GetContext(ctx, &count, stmt, args...); err != nil {
		return 0, opErr("count search", table, err)
	}
	return count, nil
}

// scanRecords drains rows into flat records, normalizing driver byte slices
// to strings so JSON encoding stays readable.
func scanRecords(rows *sqlx.Rows) ([]Record, error) {
	records := []Record{}
	for rows.Next() {
		rec := Record{}
		if err := rows.MapScan(rec); err != nil {
			return nil, err
		}
		for k, v := range rec {
			if b, ok := v.([]byte); ok {
				rec[k] = string(b)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
