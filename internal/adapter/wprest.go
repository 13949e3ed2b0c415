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
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/frontbase/frontbase/internal/types"
)

const (
	// wpMaxPerPage is the server-side upper bound WordPress enforces.
	wpMaxPerPage = 100

	// wpMaxClientPages bounds how many pages a client-side filter scan reads.
	wpMaxClientPages = 10
)

// wpNativeParams are query parameters the WordPress REST API filters on
// natively; predicates on these columns are pushed to the server.
var wpNativeParams = map[string]bool{
	"slug": true, "author": true, "categories": true, "tags": true,
	"status": true, "include": true, "search": true,
}

// wpKnownRelations maps well-known WordPress reference fields to the
// resource they point at. The REST API exposes no constraint metadata, so
// relationship listing is built from this table per discovered resource.
var wpKnownRelations = map[string][2]string{
	"author":     {"users", "id"},
	"categories": {"categories", "id"},
	"tags":       {"tags", "id"},
	"parent":     {"posts", "id"},
	"featured_media": {"media", "id"},
}

// WordPressREST implements the adapter capability set against a site's
// /wp-json endpoints. Authentication is HTTP Basic over an application
// password.
type WordPressREST struct {
	ds     *types.Datasource
	log    logr.Logger
	client *http.Client
	base   string
}

// NewWordPressREST builds a WordPress REST adapter for the datasource.
func NewWordPressREST(ds *types.Datasource, log logr.Logger) *WordPressREST {
	return &WordPressREST{
		ds:  ds,
		log: log.WithName("wprest"),
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
			},
		},
		base: strings.TrimRight(ds.RESTBaseURL, "/"),
	}
}

// Connect probes the REST index. The adapter keeps no persistent connection;
// Close is a no-op.
func (w *WordPressREST) Connect(ctx context.Context) error {
	if w.base == "" {
		return &ConnectionError{
			Kind:       "unknown",
			Suggestion: "configure the site's REST base URL (e.g. https://example.com)",
			Err:        fmt.Errorf("wordpress_rest datasource %s has no REST base URL", w.ds.Name),
		}
	}
	_, _, err := w.get(ctx, w.base+"/wp-json/", nil)
	return err
}

func (w *WordPressREST) Close() error { return nil }

// ListTables discovers the site's resources by walking the index, types and
// taxonomies endpoints and deduplicating their rest bases.
func (w *WordPressREST) ListTables(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}

	// Built-in collections every site exposes.
	for _, r := range []string{"posts", "pages", "media", "users", "comments"} {
		seen[r] = true
	}

	type restBased struct {
		RestBase string `json:"rest_base"`
	}

	var typesResp map[string]restBased
	if body, _, err := w.get(ctx, w.base+"/wp-json/wp/v2/types", nil); err == nil {
		if json.Unmarshal(body, &typesResp) == nil {
			for _, t := range typesResp {
				if t.RestBase != "" {
					seen[t.RestBase] = true
				}
			}
		}
	}

	var taxResp map[string]restBased
	if body, _, err := w.get(ctx, w.base+"/wp-json/wp/v2/taxonomies", nil); err == nil {
		if json.Unmarshal(body, &taxResp) == nil {
			for _, t := range taxResp {
				if t.RestBase != "" {
					seen[t.RestBase] = true
				}
			}
		}
	}

	tables := make([]string, 0, len(seen))
	for t := range seen {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	return tables, nil
}

// GetSchema derives a hybrid schema: the OPTIONS-declared properties merged
// with the keys of one sampled record. OPTIONS types win when both describe
// the same field; sample-only fields get types inferred from their values.
func (w *WordPressREST) GetSchema(ctx context.Context, table string) (*types.TableSchema, error) {
	var (
		declared map[string]string
		sample   Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		declared = w.optionsSchema(gctx, table)
		return nil
	})
	g.Go(func() error {
		records, err := w.ReadRecords(gctx, table, types.ReadOptions{Limit: 1})
		if err == nil && len(records) > 0 {
			sample = records[0]
		}
		return nil
	})
	_ = g.Wait()

	if len(declared) == 0 && sample == nil {
		return nil, opErr("get schema", table, ErrNotFound)
	}

	cols := map[string]types.ColumnDef{}
	for name, typ := range declared {
		cols[name] = types.ColumnDef{Name: name, Type: typ, Nullable: true, PrimaryKey: name == "id"}
	}
	for name, val := range sample {
		if _, ok := cols[name]; ok {
			continue
		}
		cols[name] = types.ColumnDef{Name: name, Type: inferJSONType(val), Nullable: true, PrimaryKey: name == "id"}
	}

	schema := &types.TableSchema{}
	names := make([]string, 0, len(cols))
	for n := range cols {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		def := cols[n]
		if rel, ok := wpKnownRelations[n]; ok && rel[0] != table {
			def.IsForeign = true
			def.ForeignTable = rel[0]
			def.ForeignColumn = rel[1]
			schema.ForeignKeys = append(schema.ForeignKeys, types.FKDef{
				ConstrainedColumns: []string{n},
				ReferredTable:      rel[0],
				ReferredColumns:    []string{rel[1]},
			})
		}
		schema.Columns = append(schema.Columns, def)
	}
	return schema, nil
}

// optionsSchema fetches the declared schema properties via OPTIONS.
func (w *WordPressREST) optionsSchema(ctx context.Context, table string) map[string]string {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, w.collectionURL(table), nil)
	if err != nil {
		return nil
	}
	w.auth(req)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil || resp.StatusCode >= 300 {
		return nil
	}

	var opts struct {
		Schema struct {
			Properties map[string]struct {
				Type any `json:"type"`
			} `json:"properties"`
		} `json:"schema"`
	}
	if err := json.Unmarshal(body, &opts); err != nil {
		return nil
	}
	out := map[string]string{}
	for name, prop := range opts.Schema.Properties {
		switch t := prop.Type.(type) {
		case string:
			out[name] = t
		case []any:
			if len(t) > 0 {
				out[name] = fmt.Sprintf("%v", t[0])
			}
		default:
			out[name] = "string"
		}
	}
	return out
}

// ListAllRelationships unions the per-resource schema relations, since the
// REST API exposes no cross-resource constraint metadata.
func (w *WordPressREST) ListAllRelationships(ctx context.Context) ([]types.Relationship, error) {
	tables, err := w.ListTables(ctx)
	if err != nil {
		return nil, err
	}
	var rels []types.Relationship
	for _, t := range tables {
		schema, err := w.GetSchema(ctx, t)
		if err != nil {
			continue
		}
		for _, fk := range schema.ForeignKeys {
			for i, c := range fk.ConstrainedColumns {
				ref := ""
				if i < len(fk.ReferredColumns) {
					ref = fk.ReferredColumns[i]
				}
				rels = append(rels, types.Relationship{
					SourceTable: t, SourceColumn: c,
					TargetTable: fk.ReferredTable, TargetColumn: ref,
				})
			}
		}
	}
	return rels, nil
}

// ReadRecords pages through the collection. Natively-supported predicates
// are pushed into query parameters; the rest are applied client-side over a
// bounded number of pages.
func (w *WordPressREST) ReadRecords(ctx context.Context, table string, opts types.ReadOptions) ([]Record, error) {
	native, clientSide := splitWPFilters(opts.Where)

	limit := opts.Limit
	if limit <= 0 {
		limit = wpMaxPerPage
	}

	if len(clientSide) == 0 {
		return w.fetchWindow(ctx, table, native, opts, limit, opts.Offset)
	}

	// Client-side path: scan up to wpMaxClientPages pages and filter locally.
	matched, _, _, err := w.scanFiltered(ctx, table, native, clientSide, opts, opts.Offset+limit)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= len(matched) {
		return []Record{}, nil
	}
	end := opts.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[opts.Offset:end], nil
}

// fetchWindow reads exactly one limit/offset window using server paging.
func (w *WordPressREST) fetchWindow(ctx context.Context, table string, native []types.FilterExpr, opts types.ReadOptions, limit, offset int) ([]Record, error) {
	out := []Record{}
	perPage := limit
	if perPage > wpMaxPerPage {
		perPage = wpMaxPerPage
	}
	page := offset/perPage + 1
	skip := offset % perPage

	for len(out) < limit {
		q := w.queryParams(native, opts)
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", strconv.Itoa(page))
		body, _, err := w.get(ctx, w.collectionURL(table)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, opErr("read records", table, err)
		}
		if skip > 0 {
			if skip >= len(records) {
				return out, nil
			}
			records = records[skip:]
			skip = 0
		}
		out = append(out, records...)
		if len(records) < perPage {
			break
		}
		page++
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// scanFiltered reads up to wpMaxClientPages pages applying clientSide filters
// locally. Returns matched records, the number of records scanned, the
// server-reported total, and whether the scan reached the end.
func (w *WordPressREST) scanFiltered(ctx context.Context, table string, native, clientSide []types.FilterExpr, opts types.ReadOptions, want int) (matched []Record, scanned, serverTotal int, err error) {
	for page := 1; page <= wpMaxClientPages; page++ {
		q := w.queryParams(native, opts)
		q.Set("per_page", strconv.Itoa(wpMaxPerPage))
		q.Set("page", strconv.Itoa(page))
		body, header, err := w.get(ctx, w.collectionURL(table)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, 0, 0, err
		}
		if t, convErr := strconv.Atoi(header.Get("X-WP-Total")); convErr == nil {
			serverTotal = t
		}
		var records []Record
		if err := json.Unmarshal(body, &records); err != nil {
			return nil, 0, 0, opErr("read records", table, err)
		}
		scanned += len(records)
		for _, rec := range records {
			if matchesAll(rec, clientSide) {
				matched = append(matched, rec)
			}
		}
		if len(records) < wpMaxPerPage {
			return matched, scanned, serverTotal, nil
		}
		if want > 0 && len(matched) >= want {
			return matched, scanned, serverTotal, nil
		}
	}
	return matched, scanned, serverTotal, nil
}

func (w *WordPressREST) ReadRecordsWithRelations(ctx context.Context, table string, related []types.RelatedSpec, opts types.ReadOptions) ([]Record, error) {
	records, err := w.ReadRecords(ctx, table, opts)
	if err != nil {
		return nil, err
	}
	if len(related) == 0 {
		return records, nil
	}
	// Flatten related resources by fetching referenced records per spec.
	for _, rel := range related {
		for _, rec := range records {
			fkVal, ok := rec[rel.FKCol]
			if !ok || fkVal == nil {
				continue
			}
			refRec, err := w.ReadRecordByKey(ctx, rel.Table, rel.RefCol, fkVal)
			if err != nil || refRec == nil {
				continue
			}
			for _, c := range rel.Columns {
				rec[rel.Table+"."+c] = refRec[c]
			}
		}
	}
	return records, nil
}

func (w *WordPressREST) ReadRecordByKey(ctx context.Context, table, keyCol string, keyVal any) (Record, error) {
	if keyCol == "id" || keyCol == "" {
		body, _, err := w.get(ctx, w.itemURL(table, keyVal), nil)
		if err != nil {
			if IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, opErr("read record", table, err)
		}
		return rec, nil
	}
	records, err := w.ReadRecords(ctx, table, types.ReadOptions{
		Where: []types.FilterExpr{{Column: keyCol, Operator: types.OpEquals, Value: keyVal}},
		Limit: 1,
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// UpsertRecord POSTs to the collection to create, or to the item URL to
// update an existing record.
func (w *WordPressREST) UpsertRecord(ctx context.Context, table string, record Record, keyCol string) (Record, error) {
	endpoint := w.collectionURL(table)
	if keyVal, ok := record[keyCol]; ok && keyVal != nil && valueString(keyVal) != "" {
		if existing, err := w.ReadRecordByKey(ctx, table, keyCol, keyVal); err == nil && existing != nil {
			endpoint = w.itemURL(table, existing["id"])
		}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return nil, opErr("upsert record", table, err)
	}
	body, _, err := w.post(ctx, endpoint, payload)
	if err != nil {
		return nil, err
	}
	var out Record
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, opErr("upsert record", table, err)
	}
	return out, nil
}

func (w *WordPressREST) DeleteRecord(ctx context.Context, table, keyCol string, keyVal any) (bool, error) {
	rec, err := w.ReadRecordByKey(ctx, table, keyCol, keyVal)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, w.itemURL(table, rec["id"])+"?force=true", nil)
	if err != nil {
		return false, err
	}
	w.auth(req)
	resp, err := w.client.Do(req)
	if err != nil {
		return false, ClassifyConnectionError(err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

// CountRecords without filters returns exactly X-WP-Total. With client-side
// filters the total is estimated as match_rate x server_total, floored at
// the exact matched count already observed and capped at the server total.
func (w *WordPressREST) CountRecords(ctx context.Context, table string, where []types.FilterExpr) (int, error) {
	native, clientSide := splitWPFilters(where)

	if len(clientSide) == 0 {
		q := w.queryParams(native, types.ReadOptions{})
		q.Set("per_page", "1")
		_, header, err := w.get(ctx, w.collectionURL(table)+"?"+q.Encode(), nil)
		if err != nil {
			return 0, err
		}
		total, convErr := strconv.Atoi(header.Get("X-WP-Total"))
		if convErr != nil {
			return 0, opErr("count records", table, fmt.Errorf("missing X-WP-Total header"))
		}
		return total, nil
	}

	matched, scanned, serverTotal, err := w.scanFiltered(ctx, table, native, clientSide, types.ReadOptions{}, 0)
	if err != nil {
		return 0, err
	}
	if scanned == 0 {
		return 0, nil
	}
	if scanned >= serverTotal {
		return len(matched), nil
	}
	estimate := int(float64(len(matched)) / float64(scanned) * float64(serverTotal))
	if estimate < len(matched) {
		estimate = len(matched)
	}
	if serverTotal > 0 && estimate > serverTotal {
		estimate = serverTotal
	}
	return estimate, nil
}

func (w *WordPressREST) SearchRecords(ctx context.Context, table, query string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	return w.ReadRecords(ctx, table, types.ReadOptions{Search: query, Limit: limit})
}

func (w *WordPressREST) CountSearchMatches(ctx context.Context, table, query string) (int, error) {
	q := url.Values{}
	q.Set("search", query)
	q.Set("per_page", "1")
	_, header, err := w.get(ctx, w.collectionURL(table)+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	total, convErr := strconv.Atoi(header.Get("X-WP-Total"))
	if convErr != nil {
		return 0, nil
	}
	return total, nil
}

// helpers

func (w *WordPressREST) collectionURL(table string) string {
	return fmt.Sprintf("%s/wp-json/wp/v2/%s", w.base, url.PathEscape(table))
}

func (w *WordPressREST) itemURL(table string, id any) string {
	return fmt.Sprintf("%s/wp-json/wp/v2/%s/%s", w.base, url.PathEscape(table), url.PathEscape(valueString(id)))
}

func (w *WordPressREST) queryParams(native []types.FilterExpr, opts types.ReadOptions) url.Values {
	q := url.Values{}
	for _, f := range native {
		q.Set(f.Column, valueString(f.Value))
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.OrderBy != "" {
		q.Set("orderby", opts.OrderBy)
		if strings.EqualFold(opts.OrderDirection, "desc") {
			q.Set("order", "desc")
		} else {
			q.Set("order", "asc")
		}
	}
	return q
}

func (w *WordPressREST) auth(req *http.Request) {
	if w.ds.Username != "" {
		req.SetBasicAuth(w.ds.Username, w.ds.Password)
	}
}

func (w *WordPressREST) get(ctx context.Context, endpoint string, _ url.Values) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	w.auth(req)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, nil, ClassifyConnectionError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, resp.Header, fmt.Errorf("%s: %w", endpoint, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, resp.Header, fmt.Errorf("wordpress status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.Header, nil
}

func (w *WordPressREST) post(ctx context.Context, endpoint string, payload []byte) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	w.auth(req)
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, nil, ClassifyConnectionError(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, resp.Header, fmt.Errorf("wordpress status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return body, resp.Header, nil
}

// splitWPFilters separates filters WordPress can serve natively from those
// that must be applied client-side.
func splitWPFilters(where []types.FilterExpr) (native, clientSide []types.FilterExpr) {
	for _, f := range where {
		if !types.KnownOperator(f.Operator) {
			continue
		}
		if f.Operator == types.OpEquals && wpNativeParams[f.Column] {
			native = append(native, f)
			continue
		}
		clientSide = append(clientSide, f)
	}
	return native, clientSide
}

// matchesAll evaluates client-side filters against one record.
func matchesAll(rec Record, filters []types.FilterExpr) bool {
	for _, f := range filters {
		if !matchFilter(rec, f) {
			return false
		}
	}
	return true
}

func matchFilter(rec Record, f types.FilterExpr) bool {
	raw := lookupField(rec, f.Column)
	val := valueString(raw)
	want := valueString(f.Value)
	switch f.Operator {
	case types.OpEquals:
		return val == want
	case types.OpNotEquals:
		return val != want
	case types.OpGreaterThan:
		return compareLoose(raw, f.Value) > 0
	case types.OpLessThan:
		return compareLoose(raw, f.Value) < 0
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
		for _, item := range splitListValue(f.Value) {
			if valueString(item) == val {
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

// lookupField resolves a possibly-nested field: WordPress renders title and
// content as {rendered: "..."} objects.
func lookupField(rec Record, field string) any {
	v, ok := rec[field]
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok {
		if rendered, ok := m["rendered"]; ok {
			return rendered
		}
	}
	return v
}

func compareLoose(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
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
	return strings.Compare(valueString(a), valueString(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// inferJSONType maps a sampled JSON value to a schema type name.
func inferJSONType(v any) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case float64, json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "string"
	}
}
