// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"fmt"
	"strings"

	"github.com/frontbase/frontbase/internal/types"
)

// dialect abstracts the syntax differences between the SQL backends the
// shared WHERE builder has to serve.
type dialect interface {
	// QuoteIdent quotes a single identifier. Dotted identifiers are split and
	// quoted per part by the builder before calling this.
	QuoteIdent(ident string) string
	// Placeholder renders the n-th (1-based) bind placeholder.
	Placeholder(n int) string
	// CastText wraps an already-quoted column expression in a cast to a text
	// type so string operators tolerate non-text columns.
	CastText(expr string) string
	// LikeOperator is the case-insensitive LIKE operator of the backend.
	LikeOperator() string
}

// whereBuilder accumulates predicates and bind arguments for one statement.
// Unknown operators are dropped rather than interpolated; the closed operator
// set is the only thing that ever reaches SQL text.
type whereBuilder struct {
	d       dialect
	clauses []string
	args    []any
}

func newWhereBuilder(d dialect) *whereBuilder {
	return &whereBuilder{d: d}
}

// column renders a possibly-dotted column reference. A dotted reference
// addresses a joined relation and is quoted per part.
func (b *whereBuilder) column(col string) string {
	if table, c, ok := strings.Cut(col, "."); ok {
		return b.d.QuoteIdent(table) + "." + b.d.QuoteIdent(c)
	}
	return b.d.QuoteIdent(col)
}

func (b *whereBuilder) next() string {
	return b.d.Placeholder(len(b.args) + 1)
}

// Add appends one filter predicate. Filters with operators outside the closed
// set are skipped.
func (b *whereBuilder) Add(f types.FilterExpr) {
	if f.Column == "" || !types.KnownOperator(f.Operator) {
		return
	}
	col := b.column(f.Column)
	text := b.d.CastText(col)
	like := b.d.LikeOperator()

	switch f.Operator {
	case types.OpEquals:
		b.args = append(b.args, valueString(f.Value))
		b.clauses = append(b.clauses, fmt.Sprintf("%s = %s", text, b.d.Placeholder(len(b.args))))
	case types.OpNotEquals:
		b.args = append(b.args, valueString(f.Value))
		b.clauses = append(b.clauses, fmt.Sprintf("%s != %s", text, b.d.Placeholder(len(b.args))))
	case types.OpGreaterThan:
		b.args = append(b.args, f.Value)
		b.clauses = append(b.clauses, fmt.Sprintf("%s > %s", col, b.d.Placeholder(len(b.args))))
	case types.OpLessThan:
		b.args = append(b.args, f.Value)
		b.clauses = append(b.clauses, fmt.Sprintf("%s < %s", col, b.d.Placeholder(len(b.args))))
	case types.OpContains:
		b.args = append(b.args, "%"+valueString(f.Value)+"%")
		b.clauses = append(b.clauses, fmt.Sprintf("%s %s %s", text, like, b.d.Placeholder(len(b.args))))
	case types.OpNotContains:
		b.args = append(b.args, "%"+valueString(f.Value)+"%")
		b.clauses = append(b.clauses, fmt.Sprintf("%s NOT %s %s", text, like, b.d.Placeholder(len(b.args))))
	case types.OpStartsWith:
		b.args = append(b.args, valueString(f.Value)+"%")
		b.clauses = append(b.clauses, fmt.Sprintf("%s %s %s", text, like, b.d.Placeholder(len(b.args))))
	case types.OpEndsWith:
		b.args = append(b.args, "%"+valueString(f.Value))
		b.clauses = append(b.clauses, fmt.Sprintf("%s %s %s", text, like, b.d.Placeholder(len(b.args))))
	case types.OpIsEmpty:
		b.clauses = append(b.clauses, fmt.Sprintf("(%s IS NULL OR %s = '')", col, text))
	case types.OpIsNotEmpty:
		b.clauses = append(b.clauses, fmt.Sprintf("(%s IS NOT NULL AND %s != '')", col, text))
	case types.OpIn, types.OpNotIn:
		vals := splitListValue(f.Value)
		if len(vals) == 0 {
			return
		}
		ph := make([]string, len(vals))
		for i, v := range vals {
			b.args = append(b.args, v)
			ph[i] = b.d.Placeholder(len(b.args))
		}
		neg := ""
		if f.Operator == types.OpNotIn {
			neg = "NOT "
		}
		b.clauses = append(b.clauses, fmt.Sprintf("%s %sIN (%s)", text, neg, strings.Join(ph, ", ")))
	}
}

// Clause renders the accumulated predicates as a WHERE fragment (without the
// WHERE keyword) and its bind arguments. Empty when no predicate survived.
func (b *whereBuilder) Clause() (string, []any) {
	if len(b.clauses) == 0 {
		return "", nil
	}
	return strings.Join(b.clauses, " AND "), b.args
}

// buildWhere is the shared entry point for the SQL adapters.
func buildWhere(d dialect, filters []types.FilterExpr) (string, []any) {
	b := newWhereBuilder(d)
	for _, f := range filters {
		b.Add(f)
	}
	return b.Clause()
}

func valueString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// splitListValue accepts a comma-separated string or a slice for in/not_in.
func splitListValue(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
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
