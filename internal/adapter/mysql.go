// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/go-sql-driver/mysql" // mysql driver
	"github.com/jmoiron/sqlx"

	"github.com/frontbase/frontbase/internal/types"
)

// metaFilterPrefix marks a filter column that addresses a WordPress post-meta
// key rather than a real column of the posts table.
const metaFilterPrefix = "meta."

// MySQL is the SQL adapter for MySQL and for WordPress databases reached
// directly over SQL. The WordPress variant understands the configured table
// prefix and materializes post-meta filters as postmeta joins.
type MySQL struct {
	sqlBase
}

// NewMySQL builds a MySQL adapter for the datasource. Both the mysql and
// wordpress_db kinds are served by this variant.
func NewMySQL(ds *types.Datasource, log logr.Logger) *MySQL {
	m := &MySQL{}
	m.sqlBase = sqlBase{ds: ds, log: log.WithName("mysql"), v: m}
	return m
}

// dialect

func (m *MySQL) QuoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (m *MySQL) Placeholder(int) string { return "?" }

func (m *MySQL) CastText(expr string) string { return "CAST(" + expr + " AS CHAR)" }

// MySQL LIKE is case-insensitive under the default collations.
func (m *MySQL) LikeOperator() string { return "LIKE" }

func (m *MySQL) commandTimeout() time.Duration { return 60 * time.Second }

func (m *MySQL) includeTable(string) bool { return true }

// tablePrefix returns the configured WordPress table prefix, defaulting to
// wp_ for wordpress_db datasources.
func (m *MySQL) tablePrefix() string {
	if m.ds.TablePrefix != "" {
		return m.ds.TablePrefix
	}
	if m.ds.Kind == types.KindWordPressDB {
		return "wp_"
	}
	return ""
}

func (m *MySQL) open(ctx context.Context) (*sqlx.DB, error) {
	ds := m.ds
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=10s",
		ds.Username, ds.Password, ds.Host, portOrDefault(ds.Port, 3306), ds.Database)
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, ClassifyConnectionError(err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ClassifyConnectionError(err)
	}
	return db, nil
}

// rewriteFilters materializes meta.<key> filters on the posts table as joins
// against the postmeta table, aliased uniquely per meta-key filter so the
// same key can appear more than once.
func (m *MySQL) rewriteFilters(table string, where []types.FilterExpr) ([]string, []types.FilterExpr) {
	prefix := m.tablePrefix()
	if prefix == "" || table != prefix+"posts" {
		return nil, where
	}

	var joins []string
	rewritten := make([]types.FilterExpr, 0, len(where))
	metaIdx := 0
	for _, f := range where {
		key, ok := strings.CutPrefix(f.Column, metaFilterPrefix)
		if !ok || key == "" {
			rewritten = append(rewritten, f)
			continue
		}
		alias := fmt.Sprintf("pm%d", metaIdx)
		metaIdx++
		joins = append(joins, fmt.Sprintf(
			"JOIN %s AS %s ON %s.%s = %s.%s AND %s.%s = %s",
			m.QuoteIdent(prefix+"postmeta"), m.QuoteIdent(alias),
			m.QuoteIdent(alias), m.QuoteIdent("post_id"),
			m.QuoteIdent(table), m.QuoteIdent("ID"),
			m.QuoteIdent(alias), m.QuoteIdent("meta_key"),
			quoteMySQLString(key)))
		rewritten = append(rewritten, types.FilterExpr{
			Column:   alias + ".meta_value",
			Operator: f.Operator,
			Value:    f.Value,
		})
	}
	return joins, rewritten
}

// introspection

func (m *MySQL) listTablesSQL() (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name`, nil
}

func (m *MySQL) tableSchema(ctx context.Context, db *sqlx.DB, table string) (*types.TableSchema, error) {
	type colRow struct {
		Name     string  `db:"COLUMN_NAME"`
		Type     string  `db:"DATA_TYPE"`
		Nullable string  `db:"IS_NULLABLE"`
		Key      string  `db:"COLUMN_KEY"`
		Default  *string `db:"COLUMN_DEFAULT"`
	}
	var cols []colRow
	err := db.SelectContext(ctx, &cols, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY, COLUMN_DEFAULT
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("columns query: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}

	fks, err := m.tableForeignKeys(ctx, db, table)
	if err != nil {
		return nil, err
	}
	fkByCol := map[string]types.FKDef{}
	for _, fk := range fks {
		for i, c := range fk.ConstrainedColumns {
			ref := ""
			if i < len(fk.ReferredColumns) {
				ref = fk.ReferredColumns[i]
			}
			fkByCol[c] = types.FKDef{
				ConstrainedColumns: []string{c},
				ReferredTable:      fk.ReferredTable,
				ReferredColumns:    []string{ref},
			}
		}
	}

	schema := &types.TableSchema{ForeignKeys: fks}
	for _, c := range cols {
		def := types.ColumnDef{
			Name:       c.Name,
			Type:       c.Type,
			Nullable:   c.Nullable == "YES",
			PrimaryKey: c.Key == "PRI",
		}
		if c.Default != nil {
			def.Default = *c.Default
		}
		if fk, ok := fkByCol[c.Name]; ok {
			def.IsForeign = true
			def.ForeignTable = fk.ReferredTable
			if len(fk.ReferredColumns) > 0 {
				def.ForeignColumn = fk.ReferredColumns[0]
			}
		}
		schema.Columns = append(schema.Columns, def)
	}
	return schema, nil
}

func (m *MySQL) tableForeignKeys(ctx context.Context, db *sqlx.DB, table string) ([]types.FKDef, error) {
	type fkRow struct {
		Constraint string `db:"CONSTRAINT_NAME"`
		Column     string `db:"COLUMN_NAME"`
		RefTable   string `db:"REFERENCED_TABLE_NAME"`
		RefColumn  string `db:"REFERENCED_COLUMN_NAME"`
	}
	var rows []fkRow
	err := db.SelectContext(ctx, &rows, `
		SELECT CONSTRAINT_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND table_name = ?
		  AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY CONSTRAINT_NAME, ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("foreign keys query: %w", err)
	}

	byConstraint := map[string]*types.FKDef{}
	var order []string
	for _, r := range rows {
		fk, ok := byConstraint[r.Constraint]
		if !ok {
			fk = &types.FKDef{ReferredTable: r.RefTable}
			byConstraint[r.Constraint] = fk
			order = append(order, r.Constraint)
		}
		fk.ConstrainedColumns = append(fk.ConstrainedColumns, r.Column)
		fk.ReferredColumns = append(fk.ReferredColumns, r.RefColumn)
	}
	out := make([]types.FKDef, 0, len(order))
	for _, name := range order {
		out = append(out, *byConstraint[name])
	}
	return out, nil
}

func (m *MySQL) allRelationships(ctx context.Context, db *sqlx.DB) ([]types.Relationship, error) {
	type relRow struct {
		SourceTable  string `db:"source_table"`
		SourceColumn string `db:"source_column"`
		TargetTable  string `db:"target_table"`
		TargetColumn string `db:"target_column"`
	}
	var raw []relRow
	err := db.SelectContext(ctx, &raw, `
		SELECT table_name AS source_table, COLUMN_NAME AS source_column,
		       REFERENCED_TABLE_NAME AS target_table, REFERENCED_COLUMN_NAME AS target_column
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY table_name, COLUMN_NAME`)
	if err != nil {
		return nil, fmt.Errorf("relationships query: %w", err)
	}
	out := make([]types.Relationship, 0, len(raw))
	for _, r := range raw {
		out = append(out, types.Relationship(r))
	}
	return out, nil
}

// upsert uses ON DUPLICATE KEY UPDATE and re-reads the row afterwards since
// MySQL has no RETURNING.
func (m *MySQL) upsert(ctx context.Context, db *sqlx.DB, table string, record Record, keyCol string) (Record, error) {
	cols := make([]string, 0, len(record))
	for c := range record {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	quoted := make([]string, len(cols))
	placeholders := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = m.QuoteIdent(c)
		placeholders[i] = "?"
		args[i] = normalizeArg(record[c])
		if c != keyCol {
			updates = append(updates, fmt.Sprintf("%s = VALUES(%s)", m.QuoteIdent(c), m.QuoteIdent(c)))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		m.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	if len(updates) > 0 {
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	} else {
		query += fmt.Sprintf(" ON DUPLICATE KEY UPDATE %s = %s", m.QuoteIdent(keyCol), m.QuoteIdent(keyCol))
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, err
	}

	read := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1",
		m.QuoteIdent(table), m.CastText(m.QuoteIdent(keyCol)))
	rows, err := db.QueryxContext(ctx, read, valueString(record[keyCol]))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return record, nil
	}
	return records[0], nil
}

// quoteMySQLString renders an escaped SQL string literal. Join fragments
// carry no bind parameters, so the meta key is escaped into the text.
func quoteMySQLString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
