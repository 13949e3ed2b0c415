// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/config"
	"github.com/frontbase/frontbase/internal/publish"
	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/schemacache"
	"github.com/frontbase/frontbase/internal/secrets"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/syncexec"
	"github.com/frontbase/frontbase/internal/testutil"
	"github.com/frontbase/frontbase/internal/types"
	"github.com/frontbase/frontbase/internal/view"
)

// stubStrategy fulfils publishes without a backend.
type stubStrategy struct {
	failWith error
	synced   []types.ProjectSettings
}

func (s *stubStrategy) PublishPage(_ context.Context, page *types.CompiledPage, _ bool) (*types.PublishResult, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	return &types.PublishResult{PreviewURL: "http://edge/" + page.Slug, Version: page.Version}, nil
}

func (s *stubStrategy) UnpublishPage(context.Context, string) error { return s.failWith }

func (s *stubStrategy) SyncSettings(_ context.Context, settings types.ProjectSettings) error {
	s.synced = append(s.synced, settings)
	return s.failWith
}

type fixture struct {
	srv   *Server
	st    *store.Store
	fake  *testutil.FakeAdapter
	ds    *types.Datasource
	strat *stubStrategy
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	box, err := secrets.New("test-key", dir)
	require.NoError(t, err)
	st, err := store.Open(context.Background(), "", dir, box, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	fake := testutil.NewFakeAdapter()
	fake.Tables["articles"] = []adapter.Record{
		{"id": 1, "title": "First", "status": "published"},
		{"id": 2, "title": "Second", "status": "draft"},
	}
	fake.Schemas["articles"] = &types.TableSchema{
		Columns: []types.ColumnDef{
			{Name: "id", Type: "integer", PrimaryKey: true},
			{Name: "title", Type: "text"},
			{Name: "status", Type: "text"},
		},
	}

	ds := &types.Datasource{Name: "primary", Kind: types.KindPostgres, Active: true}
	require.NoError(t, st.CreateDatasource(context.Background(), ds))
	require.NoError(t, st.UpsertSchemaEntry(context.Background(), &types.TableSchemaEntry{
		DatasourceID: ds.ID,
		TableName:    "articles",
		Columns:      fake.Schemas["articles"].Columns,
	}))

	mr := miniredis.RunT(t)
	kv := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = kv.Close() })

	schemas := schemacache.New(st, logr.Discard())
	views := view.New(st, schemas, logr.Discard())
	syncer := syncexec.New(st, kv, logr.Discard())
	strat := &stubStrategy{}
	compiler := publish.NewCompiler(st, schemas, nil, "", logr.Discard())
	publisher := publish.NewPublisher(st, compiler, strat, logr.Discard())

	cfg := &config.Config{CORSOrigins: []string{"*"}}
	srv := New(cfg, Deps{
		Store:     st,
		Schemas:   schemas,
		Views:     views,
		Syncer:    syncer,
		Publisher: publisher,
		Strategy:  strat,
		Cache:     cache.New(types.DefaultSettings(), logr.Discard()),
	}, logr.Discard())
	srv.connect = func(context.Context, *types.Datasource, logr.Logger) (adapter.Adapter, error) {
		return fake, nil
	}

	return &fixture{srv: srv, st: st, fake: fake, ds: ds, strat: strat}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), "body: %s", w.Body.String())
	return env
}

func TestDatasourceCRUD(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sync/datasources", map[string]any{
		"name": "blog", "kind": "postgres", "host": "db.internal", "port": 5432,
		"database": "blog", "username": "app", "password": "s3cret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	require.True(t, env.Success)
	created := env.Data.(map[string]any)
	id := created["id"].(string)
	require.NotEmpty(t, id)
	// Secrets never appear in responses.
	assert.NotContains(t, w.Body.String(), "s3cret")

	w = f.do(t, http.MethodGet, "/api/sync/datasources/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Trailing slashes are equivalent.
	w = f.do(t, http.MethodGet, "/api/sync/datasources/"+id+"/", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodDelete, "/api/sync/datasources/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/api/sync/datasources/"+id, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	env = decodeEnvelope(t, w)
	assert.False(t, env.Success)
	assert.NotEmpty(t, env.Error)
}

func TestCreateDatasourceValidation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sync/datasources", map[string]any{"host": "x"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	env := decodeEnvelope(t, w)
	require.NotNil(t, env.Details)

	w = f.do(t, http.MethodPost, "/api/sync/datasources", map[string]any{
		"name": "x", "kind": "oracle",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReadTableData(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/sync/datasources/%s/tables/articles/data?filters=%s", f.ds.ID,
			`[{"column":"status","operator":"==","value":"published"}]`), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	records := env.Data.([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "First", records[0].(map[string]any)["title"])
}

func TestReadTableDataBadFilters(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/sync/datasources/%s/tables/articles/data?filters=notjson", f.ds.ID), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDistinctValues(t *testing.T) {
	f := newFixture(t)
	f.fake.Tables["articles"] = append(f.fake.Tables["articles"],
		adapter.Record{"id": 3, "title": "Third", "status": "published"})

	w := f.do(t, http.MethodGet,
		fmt.Sprintf("/api/sync/datasources/%s/tables/articles/distinct/status", f.ds.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	values := env.Data.([]any)
	assert.ElementsMatch(t, []any{"draft", "published"}, values)
}

func TestUpsertRecordPurgesAndWrites(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost,
		fmt.Sprintf("/api/sync/datasources/%s/tables/articles/records", f.ds.ID),
		map[string]any{"id": 9, "title": "Nine", "status": "draft"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.Len(t, f.fake.Upserts, 1)
	assert.Equal(t, "Nine", f.fake.Upserts[0]["title"])
}

func TestDeleteRecordNotFound(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodDelete,
		fmt.Sprintf("/api/sync/datasources/%s/tables/articles/records/404", f.ds.ID), nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTestEndpointRecordsResult(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sync/datasources/"+f.ds.ID+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	result := env.Data.(map[string]any)
	assert.Equal(t, true, result["connected"])

	ds, err := f.st.GetDatasource(context.Background(), f.ds.ID)
	require.NoError(t, err)
	require.NotNil(t, ds.LastTestSuccess)
	assert.True(t, *ds.LastTestSuccess)
}

func TestTestEndpointClassifiesFailure(t *testing.T) {
	f := newFixture(t)
	f.fake.FailConnect = &adapter.ConnectionError{
		Kind:       "auth",
		Suggestion: "check the username, password and key configured for this datasource",
		Err:        errors.New("password authentication failed"),
	}
	f.srv.connect = func(ctx context.Context, ds *types.Datasource, log logr.Logger) (adapter.Adapter, error) {
		if err := f.fake.Connect(ctx); err != nil {
			return nil, err
		}
		return f.fake, nil
	}

	w := f.do(t, http.MethodPost, "/api/sync/datasources/"+f.ds.ID+"/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	result := env.Data.(map[string]any)
	assert.Equal(t, false, result["connected"])
	assert.Contains(t, result["suggestion"], "username")

	ds, err := f.st.GetDatasource(context.Background(), f.ds.ID)
	require.NoError(t, err)
	require.NotNil(t, ds.LastTestSuccess)
	assert.False(t, *ds.LastTestSuccess)
}

func TestViewCRUDAndRecords(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/sync/datasources/"+f.ds.ID+"/views", map[string]any{
		"name":         "published articles",
		"target_table": "articles",
		"filters":      []map[string]any{{"column": "status", "operator": "==", "value": "published"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	viewID := env.Data.(map[string]any)["id"].(string)

	w = f.do(t, http.MethodPatch, "/api/sync/views/"+viewID, map[string]any{
		"name": "renamed",
	})
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	patched := env.Data.(map[string]any)
	assert.Equal(t, "renamed", patched["name"])
	// Untouched fields survive the patch.
	assert.Equal(t, "articles", patched["target_table"])

	w = f.do(t, http.MethodDelete, "/api/sync/views/"+viewID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestSyncConfigCRUDAndDispatch(t *testing.T) {
	f := newFixture(t)

	slave := &types.Datasource{Name: "replica", Kind: types.KindPostgres, Active: true}
	require.NoError(t, f.st.CreateDatasource(context.Background(), slave))

	w := f.do(t, http.MethodPost, "/api/sync/configs", map[string]any{
		"name":                 "articles to replica",
		"master_datasource_id": f.ds.ID,
		"slave_datasource_id":  slave.ID,
		"master_table":         "articles",
		"slave_table":          "articles",
		"conflict_strategy":    "source_wins",
		"field_mappings": []map[string]any{
			{"master_column": "id", "slave_column": "id", "is_key_field": true},
			{"master_column": "title", "slave_column": "title"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	configID := env.Data.(map[string]any)["id"].(string)

	w = f.do(t, http.MethodPost, "/api/sync/operations/"+configID, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env = decodeEnvelope(t, w)
	job := env.Data.(map[string]any)
	jobID := job["id"].(string)
	assert.Equal(t, "manual", job["triggered_by"])

	w = f.do(t, http.MethodGet, "/api/sync/operations/"+jobID+"/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookDispatch(t *testing.T) {
	f := newFixture(t)

	slave := &types.Datasource{Name: "replica", Kind: types.KindPostgres, Active: true}
	require.NoError(t, f.st.CreateDatasource(context.Background(), slave))
	cfg := &types.SyncConfig{
		Name:             "hooked",
		MasterDatasource: f.ds.ID,
		SlaveDatasource:  slave.ID,
		MasterTable:      "articles",
		SlaveTable:       "articles",
		ConflictStrategy: types.StrategySourceWins,
		Active:           true,
		FieldMappings: []types.FieldMapping{
			{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
		},
	}
	require.NoError(t, f.st.CreateSyncConfig(context.Background(), cfg))

	w := f.do(t, http.MethodPost, "/api/sync/webhooks/n8n/"+cfg.ID, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	assert.Equal(t, "webhook:n8n", env.Data.(map[string]any)["triggered_by"])

	w = f.do(t, http.MethodPost, "/api/sync/webhooks/pigeon/"+cfg.ID, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishSuccessMarksPublic(t *testing.T) {
	f := newFixture(t)
	page := &types.Page{
		ID: "p1", Slug: "home", Name: "Home",
		LayoutData: []map[string]any{{"id": "c1", "type": "Text", "props": map[string]any{"text": "hi"}}},
	}
	require.NoError(t, f.st.SavePage(context.Background(), page))

	w := f.do(t, http.MethodPost, "/api/pages/p1/publish", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	env := decodeEnvelope(t, w)
	result := env.Data.(map[string]any)
	assert.Equal(t, "http://edge/home", result["previewUrl"])
	assert.Equal(t, float64(1), result["version"])

	stored, err := f.st.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)
}

func TestPublishUnreachableEdgeLeavesPagePrivate(t *testing.T) {
	f := newFixture(t)
	f.strat.failWith = strategy.ErrUnavailable
	page := &types.Page{
		ID: "p1", Slug: "home", Name: "Home",
		LayoutData: []map[string]any{{"id": "c1", "type": "Text"}},
	}
	require.NoError(t, f.st.SavePage(context.Background(), page))

	w := f.do(t, http.MethodPost, "/api/pages/p1/publish", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())

	stored, err := f.st.GetPage(context.Background(), "p1")
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)
}

func TestPublicPageHiddenUntilPublished(t *testing.T) {
	f := newFixture(t)
	page := &types.Page{
		ID: "p1", Slug: "home", Name: "Home",
		LayoutData: []map[string]any{{"id": "c1", "type": "Text"}},
	}
	require.NoError(t, f.st.SavePage(context.Background(), page))

	w := f.do(t, http.MethodGet, "/api/pages/public/home", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/pages/p1/publish", nil).Code)

	w = f.do(t, http.MethodGet, "/api/pages/public/home", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decodeEnvelope(t, w)
	assert.Equal(t, "home", env.Data.(map[string]any)["slug"])
}

func TestRedisSettingsRoundTrip(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPut, "/api/sync/settings/redis", map[string]any{
		"redis_url":     "https://kv.example.upstash.io",
		"redis_token":   "tok-123",
		"redis_type":    "upstash",
		"cache_enabled": true,
		"ttl_data":      120,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// The token is write-only.
	assert.NotContains(t, w.Body.String(), "tok-123")
	env := decodeEnvelope(t, w)
	settings := env.Data.(map[string]any)
	assert.Equal(t, true, settings["has_token"])
	assert.Equal(t, float64(120), settings["ttl_data"])

	// The write was pushed to the publish backend.
	require.Len(t, f.strat.synced, 1)
	assert.Equal(t, "https://kv.example.upstash.io", f.strat.synced[0].RedisURL)

	w = f.do(t, http.MethodGet, "/api/sync/settings/redis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "tok-123")

	// An empty token on update keeps the stored one.
	w = f.do(t, http.MethodPut, "/api/sync/settings/redis", map[string]any{
		"redis_url":     "https://kv.example.upstash.io",
		"redis_type":    "upstash",
		"cache_enabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	env = decodeEnvelope(t, w)
	assert.Equal(t, true, env.Data.(map[string]any)["has_token"])
}

func TestStatusMappingForStrategyErrors(t *testing.T) {
	f := newFixture(t)
	page := &types.Page{ID: "p1", Slug: "home", Name: "Home",
		LayoutData: []map[string]any{{"id": "c1", "type": "Text"}}}
	require.NoError(t, f.st.SavePage(context.Background(), page))

	cases := []struct {
		err  error
		want int
	}{
		{strategy.ErrTimeout, http.StatusGatewayTimeout},
		{strategy.ErrUnavailable, http.StatusServiceUnavailable},
		{strategy.ErrRejected, http.StatusBadGateway},
	}
	for _, tc := range cases {
		f.strat.failWith = tc.err
		w := f.do(t, http.MethodPost, "/api/pages/p1/publish", nil)
		assert.Equal(t, tc.want, w.Code, "error %v", tc.err)
	}
}
