// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"

	"github.com/frontbase/frontbase/internal/types"
)

// Postgres is the SQL adapter for plain PostgreSQL datasources. Supabase and
// Neon build on it.
type Postgres struct {
	sqlBase

	// sslmode overrides the negotiated ssl mode; empty means verify-full with
	// a one-shot downgrade to require on verification failure.
	sslmode string

	// disableStatementCache forces the simple protocol regardless of pooler
	// mode; required by serverless poolers.
	disableStatementCache bool

	maxOpenConns int
	maxIdleConns int
	timeout      time.Duration
}

// NewPostgres builds a Postgres adapter for the datasource.
func NewPostgres(ds *types.Datasource, log logr.Logger) *Postgres {
	p := &Postgres{
		maxOpenConns: 10,
		maxIdleConns: 5,
		timeout:      60 * time.Second,
	}
	p.sqlBase = sqlBase{ds: ds, log: log.WithName("postgres"), v: p}
	return p
}

// dialect

func (p *Postgres) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (p *Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (p *Postgres) CastText(expr string) string { return "CAST(" + expr + " AS TEXT)" }

func (p *Postgres) LikeOperator() string { return "ILIKE" }

func (p *Postgres) commandTimeout() time.Duration { return p.timeout }

func (p *Postgres) includeTable(string) bool { return true }

func (p *Postgres) rewriteFilters(_ string, where []types.FilterExpr) ([]string, []types.FilterExpr) {
	return nil, where
}

// dsn assembles the connection URL. Pooler mode disables the prepared
// statement cache, which transaction-pooling proxies cannot serve.
func (p *Postgres) dsn(sslmode string) string {
	ds := p.ds
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", ds.Host, portOrDefault(ds.Port, 5432)),
		Path:   "/" + ds.Database,
	}
	if ds.Username != "" {
		u.User = url.UserPassword(ds.Username, ds.Password)
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	if ds.PoolerMode || p.disableStatementCache {
		q.Set("default_query_exec_mode", "simple_protocol")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Postgres) open(ctx context.Context) (*sqlx.DB, error) {
	mode := p.sslmode
	if mode == "" {
		mode = "verify-full"
	}
	db, err := p.openWithMode(ctx, mode)
	if err == nil {
		return db, nil
	}
	// On SSL verification failure retry once with verification disabled;
	// the link stays encrypted, only the certificate check is skipped.
	if p.sslmode == "" && IsSSLError(err) {
		p.log.Info("SSL verification failed, retrying without verification", "datasource", p.ds.Name)
		return p.openWithMode(ctx, "require")
	}
	return nil, err
}

func (p *Postgres) openWithMode(ctx context.Context, sslmode string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", p.dsn(sslmode))
	if err != nil {
		return nil, ClassifyConnectionError(err)
	}
	db.SetMaxOpenConns(p.maxOpenConns)
	db.SetMaxIdleConns(p.maxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, ClassifyConnectionError(err)
	}
	return db, nil
}

// introspection

func (p *Postgres) listTablesSQL() (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name`, nil
}

func (p *Postgres) tableSchema(ctx context.Context, db *sqlx.DB, table string) (*types.TableSchema, error) {
	type colRow struct {
		Name     string  `db:"column_name"`
		Type     string  `db:"data_type"`
		Nullable string  `db:"is_nullable"`
		Default  *string `db:"column_default"`
	}
	var cols []colRow
	err := db.SelectContext(ctx, &cols, `
		SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, fmt.Errorf("columns query: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}

	var pks []string
	err = db.SelectContext(ctx, &pks, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema = 'public' AND tc.table_name = $1`, table)
	if err != nil {
		return nil, fmt.Errorf("primary keys query: %w", err)
	}
	pkSet := map[string]bool{}
	for _, pk := range pks {
		pkSet[pk] = true
	}

	fks, err := p.tableForeignKeys(ctx, db, table)
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
			PrimaryKey: pkSet[c.Name],
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

func (p *Postgres) tableForeignKeys(ctx context.Context, db *sqlx.DB, table string) ([]types.FKDef, error) {
	type fkRow struct {
		Constraint string `db:"constraint_name"`
		Column     string `db:"column_name"`
		RefTable   string `db:"referred_table"`
		RefColumn  string `db:"referred_column"`
	}
	var rows []fkRow
	err := db.SelectContext(ctx, &rows, `
		SELECT tc.constraint_name, kcu.column_name,
		       ccu.table_name AS referred_table, ccu.column_name AS referred_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema = 'public' AND tc.table_name = $1`, table)
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

// allRelationships runs a single cross-table introspection query instead of
// one round trip per table.
func (p *Postgres) allRelationships(ctx context.Context, db *sqlx.DB) ([]types.Relationship, error) {
	var rows []types.Relationship
	type relRow struct {
		SourceTable  string `db:"source_table"`
		SourceColumn string `db:"source_column"`
		TargetTable  string `db:"target_table"`
		TargetColumn string `db:"target_column"`
	}
	var raw []relRow
	err := db.SelectContext(ctx, &raw, `
		SELECT tc.table_name AS source_table, kcu.column_name AS source_column,
		       ccu.table_name AS target_table, ccu.column_name AS target_column
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name
		 AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public'
		ORDER BY tc.table_name, kcu.column_name`)
	if err != nil {
		return nil, fmt.Errorf("relationships query: %w", err)
	}
	for _, r := range raw {
		rows = append(rows, types.Relationship(r))
	}
	return rows, nil
}

func (p *Postgres) upsert(ctx context.Context, db *sqlx.DB, table string, record Record, keyCol string) (Record, error) {
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
		quoted[i] = p.QuoteIdent(c)
		placeholders[i] = p.Placeholder(i + 1)
		args[i] = normalizeArg(record[c])
		if c != keyCol {
			updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", p.QuoteIdent(c), p.QuoteIdent(c)))
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s RETURNING *",
		p.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
		p.QuoteIdent(keyCol), strings.Join(updates, ", "))
	if len(updates) == 0 {
		query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO NOTHING RETURNING *",
			p.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "),
			p.QuoteIdent(keyCol))
	}

	rows, err := db.QueryxContext(ctx, query, args...)
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

func portOrDefault(port, def int) int {
	if port == 0 {
		return def
	}
	return port
}

// normalizeArg converts JSON-decoded composite values into driver-friendly
// representations.
func normalizeArg(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	default:
		return v
	}
}
