// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/types"
)

// Supabase extends the Postgres adapter with PostgREST-based equivalents of
// the read capabilities, used when only the project REST URL and keys are
// configured or when callers prefer the REST data plane.
type Supabase struct {
	*Postgres

	httpClient *http.Client
}

// NewSupabase builds a Supabase adapter for the datasource.
func NewSupabase(ds *types.Datasource, log logr.Logger) *Supabase {
	p := NewPostgres(ds, log.WithName("supabase"))
	s := &Supabase{
		Postgres:   p,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	p.sqlBase.v = s
	return s
}

// Connect prefers the SQL pool when connection parameters are present and
// falls back to REST-only mode otherwise.
func (s *Supabase) Connect(ctx context.Context) error {
	if s.ds.Host == "" {
		if s.ds.RESTBaseURL == "" {
			return &ConnectionError{
				Kind:       "unknown",
				Suggestion: "configure either database connection parameters or the project REST URL",
				Err:        fmt.Errorf("supabase datasource %s has no connection info", s.ds.Name),
			}
		}
		return nil
	}
	return s.Postgres.Connect(ctx)
}

// postgrestOperator maps a closed-set operator to its PostgREST form.
// Operators without a REST equivalent report ok=false and are skipped.
func postgrestOperator(op types.FilterOperator, value any) (string, bool) {
	v := valueString(value)
	switch op {
	case types.OpEquals:
		return "eq." + v, true
	case types.OpNotEquals:
		return "neq." + v, true
	case types.OpGreaterThan:
		return "gt." + v, true
	case types.OpLessThan:
		return "lt." + v, true
	case types.OpContains:
		return "ilike.*" + v + "*", true
	case types.OpStartsWith:
		return "ilike." + v + "*", true
	case types.OpEndsWith:
		return "ilike.*" + v, true
	case types.OpIsEmpty:
		return "is.null", true
	case types.OpIsNotEmpty:
		return "not.is.null", true
	case types.OpIn:
		parts := splitListValue(value)
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = valueString(p)
		}
		return "in.(" + strings.Join(strs, ",") + ")", true
	case types.OpNotIn:
		parts := splitListValue(value)
		strs := make([]string, len(parts))
		for i, p := range parts {
			strs[i] = valueString(p)
		}
		return "not.in.(" + strings.Join(strs, ",") + ")", true
	default:
		return "", false
	}
}

// RESTQuery renders the PostgREST query string for a filtered read.
func (s *Supabase) RESTQuery(opts types.ReadOptions) url.Values {
	q := url.Values{}
	if len(opts.Columns) > 0 {
		q.Set("select", strings.Join(opts.Columns, ","))
	}
	for _, f := range opts.Where {
		if !types.KnownOperator(f.Operator) {
			continue
		}
		expr, ok := postgrestOperator(f.Operator, f.Value)
		if !ok {
			continue
		}
		q.Add(f.Column, expr)
	}
	if opts.OrderBy != "" {
		dir := "asc"
		if strings.EqualFold(opts.OrderDirection, "desc") {
			dir = "desc"
		}
		q.Set("order", opts.OrderBy+"."+dir)
	}
	if opts.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", opts.Offset))
	}
	return q
}

// ReadRecordsREST reads rows through PostgREST rather than the SQL pool.
func (s *Supabase) ReadRecordsREST(ctx context.Context, table string, opts types.ReadOptions) ([]Record, error) {
	base := strings.TrimRight(s.ds.RESTBaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("supabase datasource %s: %w: no REST base URL", s.ds.Name, ErrNotConnected)
	}
	endpoint := fmt.Sprintf("%s/rest/v1/%s?%s", base, url.PathEscape(table), s.RESTQuery(opts).Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	key := s.ds.ServiceKey
	if key == "" {
		key = s.ds.AnonKey
	}
	req.Header.Set("apikey", key)
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, ClassifyConnectionError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, opErr("rest read", table, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, opErr("rest read", table,
			fmt.Errorf("postgrest status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	var records []Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, opErr("rest read", table, err)
	}
	return records, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
