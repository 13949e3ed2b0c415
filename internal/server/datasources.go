// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/types"
)

// datasourceRequest is the write shape for datasources. Secrets are accepted
// here but never echoed back; types.Datasource hides them from JSON output.
type datasourceRequest struct {
	Name        string `json:"name" validate:"required"`
	Kind        string `json:"kind" validate:"required"`
	Host        string `json:"host"`
	Port        int    `json:"port" validate:"omitempty,min=0,max=65535"`
	Database    string `json:"database"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	RESTBaseURL string `json:"rest_base_url" validate:"omitempty,url"`
	AnonKey     string `json:"anon_key"`
	ServiceKey  string `json:"service_key"`
	TablePrefix string `json:"table_prefix"`
	PoolerMode  bool   `json:"pooler_mode"`
	Active      *bool  `json:"active"`
}

func (req *datasourceRequest) toDatasource() (*types.Datasource, error) {
	kind := types.DatasourceKind(req.Kind)
	known := false
	for _, k := range types.ValidKinds {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		return nil, badRequestf("unknown datasource kind %q", req.Kind)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &types.Datasource{
		Name:        req.Name,
		Kind:        kind,
		Host:        req.Host,
		Port:        req.Port,
		Database:    req.Database,
		Username:    req.Username,
		Password:    req.Password,
		RESTBaseURL: req.RESTBaseURL,
		AnonKey:     req.AnonKey,
		ServiceKey:  req.ServiceKey,
		TablePrefix: req.TablePrefix,
		PoolerMode:  req.PoolerMode,
		Active:      active,
	}, nil
}

func (s *Server) listDatasources(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListDatasources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, list)
}

func (s *Server) createDatasource(w http.ResponseWriter, r *http.Request) {
	var req datasourceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ds, err := req.toDatasource()
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.store.CreateDatasource(r.Context(), ds); err != nil {
		s.fail(w, err)
		return
	}

	// Prime the schema cache so first reads and publishes hit it warm. A
	// discovery failure does not fail the registration.
	if result, err := s.schemas.DiscoverAll(r.Context(), ds); err != nil {
		s.log.Info("initial schema discovery failed", "datasource", ds.Name, "error", err.Error())
	} else {
		s.log.Info("initial schema discovery done", "datasource", ds.Name, "tables", result.Discovered)
	}

	s.respond(w, http.StatusCreated, ds)
}

func (s *Server) getDatasource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, ds)
}

func (s *Server) updateDatasource(w http.ResponseWriter, r *http.Request) {
	var req datasourceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ds, err := req.toDatasource()
	if err != nil {
		s.fail(w, err)
		return
	}
	ds.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateDatasource(r.Context(), ds); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, ds)
}

func (s *Server) deleteDatasource(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteDatasource(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testResult is the connection-test response payload. Suggestion carries the
// classified hint when the test failed.
type testResult struct {
	Connected  bool   `json:"connected"`
	Tables     int    `json:"tables,omitempty"`
	Error      string `json:"error,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

// testConnection connects and lists tables, returning the classified outcome
// rather than an error so test endpoints always answer 200.
func (s *Server) testConnection(ctx context.Context, ds *types.Datasource) testResult {
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		res := testResult{Error: err.Error()}
		var connErr *adapter.ConnectionError
		if errors.As(err, &connErr) {
			res.Suggestion = connErr.Suggestion
		}
		return res
	}
	defer func() { _ = a.Close() }()

	tables, err := a.ListTables(ctx)
	if err != nil {
		return testResult{Error: err.Error()}
	}
	return testResult{Connected: true, Tables: len(tables)}
}

func (s *Server) testDatasource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	result := s.testConnection(r.Context(), ds)
	if err := s.store.MarkDatasourceTested(r.Context(), ds.ID, result.Connected); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

// testRawDatasource tests connection parameters that have not been saved.
func (s *Server) testRawDatasource(w http.ResponseWriter, r *http.Request) {
	var req datasourceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ds, err := req.toDatasource()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, s.testConnection(r.Context(), ds))
}

// testUpdateDatasource tests a proposed update against the stored datasource
// without persisting it. Empty secrets fall back to the stored values, the
// same rule the update path applies.
func (s *Server) testUpdateDatasource(w http.ResponseWriter, r *http.Request) {
	current, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	var req datasourceRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	ds, err := req.toDatasource()
	if err != nil {
		s.fail(w, err)
		return
	}
	ds.ID = current.ID
	if ds.Password == "" {
		ds.Password = current.Password
	}
	if ds.ServiceKey == "" {
		ds.ServiceKey = current.ServiceKey
	}

	result := s.testConnection(r.Context(), ds)
	if err := s.store.MarkDatasourceTested(r.Context(), ds.ID, result.Connected); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	a, err := s.connect(r.Context(), ds, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = a.Close() }()

	tables, err := a.ListTables(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, tables)
}

func (s *Server) getTableSchema(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	table := chi.URLParam(r, "table")

	var entry *types.TableSchemaEntry
	if queryBool(r, "refresh") {
		entry, err = s.schemas.Refresh(r.Context(), ds, table)
	} else {
		entry, err = s.schemas.Get(r.Context(), ds, table)
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, entry)
}

func (s *Server) listRelationships(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if queryBool(r, "refresh") {
		if _, err := s.schemas.RefreshAll(r.Context(), ds); err != nil {
			s.fail(w, err)
			return
		}
	}
	rels, err := s.schemas.Relationships(r.Context(), ds)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, rels)
}

func (s *Server) readTableData(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	table := chi.URLParam(r, "table")
	opts, err := readOptionsFromQuery(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	kv := s.currentCache()
	key := cache.QueryKey(datasourceAddr(ds), table, opts)
	if raw, ok := kv.Get(r.Context(), key); ok {
		var cached any
		if json.Unmarshal(raw, &cached) == nil {
			s.respond(w, http.StatusOK, cached)
			return
		}
	}

	a, err := s.connect(r.Context(), ds, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = a.Close() }()

	records, err := a.ReadRecords(r.Context(), table, opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	if raw, err := json.Marshal(records); err == nil {
		kv.SetData(r.Context(), key, raw)
	}
	s.respond(w, http.StatusOK, records)
}

// distinctValues reads the column over a bounded window and deduplicates.
// Scalars only; non-scalar cells are skipped.
func (s *Server) distinctValues(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	table := chi.URLParam(r, "table")
	column := chi.URLParam(r, "column")

	a, err := s.connect(r.Context(), ds, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = a.Close() }()

	records, err := a.ReadRecords(r.Context(), table, types.ReadOptions{
		Columns: []string{column},
		Limit:   1000,
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	seen := map[string]any{}
	for _, rec := range records {
		v, ok := rec[column]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		seen[fmt.Sprint(v)] = v
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	values := make([]any, 0, len(keys))
	for _, k := range keys {
		values = append(values, seen[k])
	}
	s.respond(w, http.StatusOK, values)
}

func (s *Server) upsertRecord(w http.ResponseWriter, r *http.Request) {
	s.upsertTableRecord(w, r, "")
}

func (s *Server) upsertRecordByID(w http.ResponseWriter, r *http.Request) {
	s.upsertTableRecord(w, r, chi.URLParam(r, "recordID"))
}

func (s *Server) upsertTableRecord(w http.ResponseWriter, r *http.Request, recordID string) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	table := chi.URLParam(r, "table")

	var record adapter.Record
	if err := s.decode(r, &record); err != nil {
		s.fail(w, err)
		return
	}

	keyCol := r.URL.Query().Get("key_column")
	if keyCol == "" {
		if keyCol, err = s.primaryKey(r.Context(), ds, table); err != nil {
			s.fail(w, err)
			return
		}
	}
	if recordID != "" {
		record[keyCol] = recordID
	}

	a, err := s.connect(r.Context(), ds, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = a.Close() }()

	out, err := a.UpsertRecord(r.Context(), table, record, keyCol)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.currentCache().PurgeTable(r.Context(), table)

	status := http.StatusOK
	if r.Method == http.MethodPost && recordID == "" {
		status = http.StatusCreated
	}
	s.respond(w, status, out)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	table := chi.URLParam(r, "table")

	keyCol := r.URL.Query().Get("key_column")
	if keyCol == "" {
		if keyCol, err = s.primaryKey(r.Context(), ds, table); err != nil {
			s.fail(w, err)
			return
		}
	}

	a, err := s.connect(r.Context(), ds, s.log)
	if err != nil {
		s.fail(w, err)
		return
	}
	defer func() { _ = a.Close() }()

	deleted, err := a.DeleteRecord(r.Context(), table, keyCol, chi.URLParam(r, "recordID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if !deleted {
		s.fail(w, adapter.ErrNotFound)
		return
	}
	s.currentCache().PurgeTable(r.Context(), table)
	w.WriteHeader(http.StatusNoContent)
}

// tableSearchResult is one table's slice of a datasource-wide search.
type tableSearchResult struct {
	Table   string           `json:"table"`
	Matches int              `json:"matches"`
	Records []adapter.Record `json:"records,omitempty"`
}

func (s *Server) searchDatasource(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		s.fail(w, badRequestf("missing query parameter q"))
		return
	}
	results, err := s.searchTables(r.Context(), ds, query, queryBool(r, "detailed"), queryInt(r, "limit", 10))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, results)
}

// searchAllDatasources fans the search out over every active datasource with
// bounded parallelism. Per-datasource failures are skipped, not fatal.
func (s *Server) searchAllDatasources(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.fail(w, badRequestf("missing query parameter q"))
		return
	}
	detailed := queryBool(r, "detailed")
	limit := queryInt(r, "limit", 10)

	list, err := s.store.ListDatasources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}

	type dsResult struct {
		DatasourceID   string              `json:"datasource_id"`
		DatasourceName string              `json:"datasource_name"`
		Tables         []tableSearchResult `json:"tables"`
	}
	var (
		mu  sync.Mutex
		out []dsResult
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(4)
	for _, ds := range list {
		if !ds.Active {
			continue
		}
		g.Go(func() error {
			tables, err := s.searchTables(ctx, ds, query, detailed, limit)
			if err != nil {
				s.log.V(1).Info("search skipped datasource", "datasource", ds.Name, "error", err.Error())
				return nil
			}
			mu.Lock()
			out = append(out, dsResult{DatasourceID: ds.ID, DatasourceName: ds.Name, Tables: tables})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(out, func(i, j int) bool { return out[i].DatasourceName < out[j].DatasourceName })
	s.respond(w, http.StatusOK, out)
}

// searchTables runs the query over every cached table of the datasource and
// keeps the tables that matched.
func (s *Server) searchTables(ctx context.Context, ds *types.Datasource, query string,
	detailed bool, limit int) ([]tableSearchResult, error) {

	entries, err := s.schemas.GetAll(ctx, ds.ID)
	if err != nil {
		return nil, err
	}
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	results := []tableSearchResult{}
	for _, entry := range entries {
		if detailed {
			records, err := a.SearchRecords(ctx, entry.TableName, query, limit)
			if err != nil || len(records) == 0 {
				continue
			}
			results = append(results, tableSearchResult{
				Table: entry.TableName, Matches: len(records), Records: records,
			})
			continue
		}
		n, err := a.CountSearchMatches(ctx, entry.TableName, query)
		if err != nil || n == 0 {
			continue
		}
		results = append(results, tableSearchResult{Table: entry.TableName, Matches: n})
	}
	return results, nil
}

// primaryKey resolves the table's key column from the schema cache, falling
// back to "id".
func (s *Server) primaryKey(ctx context.Context, ds *types.Datasource, table string) (string, error) {
	entry, err := s.schemas.Get(ctx, ds, table)
	if err != nil {
		return "", err
	}
	for _, col := range entry.Columns {
		if col.PrimaryKey {
			return col.Name, nil
		}
	}
	return "id", nil
}

// datasourceAddr is the cache-key component identifying a datasource. The id
// is stable across renames and credential rotations.
func datasourceAddr(ds *types.Datasource) string { return ds.ID }

// readOptionsFromQuery decodes the data endpoint's query parameters.
func readOptionsFromQuery(r *http.Request) (types.ReadOptions, error) {
	q := r.URL.Query()
	opts := types.ReadOptions{
		Limit:          queryInt(r, "limit", 100),
		Offset:         queryInt(r, "offset", 0),
		OrderBy:        q.Get("sort"),
		OrderDirection: q.Get("order"),
		Search:         q.Get("search"),
	}
	if raw := q.Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Where); err != nil {
			return opts, badRequestf("decoding filters: %v", err)
		}
	}
	if raw := q.Get("search_cols"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.SearchColumns); err != nil {
			return opts, badRequestf("decoding search_cols: %v", err)
		}
	}
	if raw := q.Get("select"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Columns); err != nil {
			// A bare comma list is accepted too.
			opts.Columns = splitCSV(raw)
		}
	}
	return opts, nil
}

func queryBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
