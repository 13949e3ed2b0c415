// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/types"
)

func testSettings() types.ProjectSettings {
	s := types.DefaultSettings()
	s.SiteName = "Demo"
	s.RedisURL = "redis://internal:6379"
	s.RedisToken = "redis-secret"
	return s
}

type pipelineRecorder struct {
	requests []pipelineRequest
	fail     bool
}

func (p *pipelineRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/pipeline" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req pipelineRequest
		json.NewDecoder(r.Body).Decode(&req)
		p.requests = append(p.requests, req)
		if p.fail {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"type": "error", "error": map[string]any{"message": "table is locked"}},
				},
			})
			return
		}
		results := make([]map[string]any, len(req.Requests))
		for i := range results {
			results[i] = map[string]any{"type": "ok"}
		}
		json.NewEncoder(w).Encode(map[string]any{"results": results})
	}
}

func (p *pipelineRecorder) statements() []string {
	var out []string
	for _, req := range p.requests {
		for _, step := range req.Requests {
			if step.Stmt != nil {
				out = append(out, step.Stmt.SQL)
			}
		}
	}
	return out
}

func TestHostedSQLPublishUpsertsPage(t *testing.T) {
	rec := &pipelineRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := NewHostedSQL(srv.URL, "tok", nil, logr.Discard())
	result, err := s.PublishPage(context.Background(), compiledPage(), false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Version)

	stmts := rec.statements()
	require.Len(t, stmts, 3)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS published_pages")
	assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS published_settings")
	assert.Contains(t, stmts[2], "INSERT INTO published_pages")
	assert.Contains(t, stmts[2], "ON CONFLICT(slug)")

	// Upsert args: slug, page id, version, compiled payload, timestamp.
	args := rec.requests[1].Requests[0].Stmt.Args
	require.Len(t, args, 5)
	assert.Equal(t, "home", args[0].Value)
	assert.Equal(t, "p1", args[1].Value)
	assert.Equal(t, "3", args[2].Value)
	assert.True(t, strings.Contains(args[3].Value, `"slug":"home"`))
}

func TestHostedSQLSetupFailureIsSticky(t *testing.T) {
	rec := &pipelineRecorder{fail: true}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := NewHostedSQL(srv.URL, "tok", nil, logr.Discard())
	_, err := s.PublishPage(context.Background(), compiledPage(), false)
	require.ErrorIs(t, err, ErrRejected)

	// The failed setup is not retried per call.
	_, err = s.PublishPage(context.Background(), compiledPage(), false)
	require.ErrorIs(t, err, ErrRejected)
	assert.Len(t, rec.requests, 1)
}

func TestHostedSQLUnpublishDeletesRow(t *testing.T) {
	rec := &pipelineRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := NewHostedSQL(srv.URL, "tok", nil, logr.Discard())
	require.NoError(t, s.UnpublishPage(context.Background(), "home"))

	stmts := rec.statements()
	require.NotEmpty(t, stmts)
	last := stmts[len(stmts)-1]
	assert.Contains(t, last, "DELETE FROM published_pages")
}

func TestHostedSQLRequiresURL(t *testing.T) {
	s := NewHostedSQL("", "", nil, logr.Discard())
	_, err := s.PublishPage(context.Background(), compiledPage(), false)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestHostedSQLSyncSettingsStripsSecrets(t *testing.T) {
	rec := &pipelineRecorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	s := NewHostedSQL(srv.URL, "tok", nil, logr.Discard())
	settings := testSettings()
	require.NoError(t, s.SyncSettings(context.Background(), settings))

	last := rec.requests[len(rec.requests)-1].Requests[0].Stmt
	assert.Contains(t, last.SQL, "INSERT INTO published_settings")
	assert.NotContains(t, last.Args[0].Value, "redis-secret")
	assert.Contains(t, last.Args[0].Value, `"site_name":"Demo"`)
}
