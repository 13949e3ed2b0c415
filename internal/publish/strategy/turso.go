// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/types"
)

const hostedSQLTimeout = 30 * time.Second

// published_pages is the strategy's own table on the user's database; it is
// created lazily on first delivery.
const createPublishedPages = `CREATE TABLE IF NOT EXISTS published_pages (
	slug TEXT PRIMARY KEY,
	page_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	compiled TEXT NOT NULL,
	published_at TEXT NOT NULL
)`

const createPublishedSettings = `CREATE TABLE IF NOT EXISTS published_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	data TEXT NOT NULL
)`

// HostedSQL upserts compiled pages into a hosted SQL service over its HTTP
// pipeline API. The edge reads published_pages directly; the KV purge after
// a write is best effort.
type HostedSQL struct {
	baseURL string
	token   string
	client  *http.Client
	kv      *cache.Cache
	log     logr.Logger

	setupOnce sync.Once
	setupErr  error
}

func NewHostedSQL(baseURL, token string, kv *cache.Cache, log logr.Logger) *HostedSQL {
	return &HostedSQL{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: hostedSQLTimeout},
		kv:      kv,
		log:     log.WithName("hosted-sql-strategy"),
	}
}

func (s *HostedSQL) PublishPage(ctx context.Context, page *types.CompiledPage, _ bool) (*types.PublishResult, error) {
	if err := s.ensureTables(ctx); err != nil {
		return nil, err
	}
	compiled, err := json.Marshal(page)
	if err != nil {
		return nil, err
	}
	err = s.execute(ctx, statement{
		SQL: `INSERT INTO published_pages (slug, page_id, version, compiled, published_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET
				page_id = excluded.page_id,
				version = excluded.version,
				compiled = excluded.compiled,
				published_at = excluded.published_at`,
		Args: []arg{
			textArg(page.Slug),
			textArg(page.ID),
			intArg(page.Version),
			textArg(string(compiled)),
			textArg(page.PublishedAt.UTC().Format(time.RFC3339)),
		},
	})
	if err != nil {
		return nil, err
	}
	s.purgeSlug(ctx, page.Slug)
	return &types.PublishResult{Version: page.Version}, nil
}

func (s *HostedSQL) UnpublishPage(ctx context.Context, slug string) error {
	if err := s.ensureTables(ctx); err != nil {
		return err
	}
	err := s.execute(ctx, statement{
		SQL:  `DELETE FROM published_pages WHERE slug = ?`,
		Args: []arg{textArg(slug)},
	})
	if err != nil {
		return err
	}
	s.purgeSlug(ctx, slug)
	return nil
}

func (s *HostedSQL) SyncSettings(ctx context.Context, settings types.ProjectSettings) error {
	if err := s.ensureTables(ctx); err != nil {
		return err
	}
	// Secrets stay in the core; the published copy carries display fields only.
	settings.RedisURL = ""
	settings.RedisToken = ""
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.execute(ctx, statement{
		SQL: `INSERT INTO published_settings (id, data) VALUES (1, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		Args: []arg{textArg(string(data))},
	})
}

// purgeSlug drops the edge's cached copy of a slug. Cache purge failures are
// swallowed, the TTL covers them.
func (s *HostedSQL) purgeSlug(ctx context.Context, slug string) {
	if s.kv == nil {
		return
	}
	s.kv.PurgeTable(ctx, "page:"+slug)
}

func (s *HostedSQL) ensureTables(ctx context.Context) error {
	s.setupOnce.Do(func() {
		s.setupErr = s.execute(ctx, statement{SQL: createPublishedPages}, statement{SQL: createPublishedSettings})
	})
	return s.setupErr
}

type statement struct {
	SQL  string `json:"sql"`
	Args []arg  `json:"args,omitempty"`
}

type arg struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func textArg(v string) arg { return arg{Type: "text", Value: v} }
func intArg(v int) arg     { return arg{Type: "integer", Value: strconv.Itoa(v)} }

type pipelineRequest struct {
	Requests []pipelineStep `json:"requests"`
}

type pipelineStep struct {
	Type string     `json:"type"`
	Stmt *statement `json:"stmt,omitempty"`
}

type pipelineResponse struct {
	Results []struct {
		Type  string `json:"type"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error,omitempty"`
	} `json:"results"`
}

// execute runs statements through the vendor's HTTP pipeline endpoint.
func (s *HostedSQL) execute(ctx context.Context, stmts ...statement) error {
	if s.baseURL == "" {
		return fmt.Errorf("%w: no hosted SQL URL configured", ErrUnavailable)
	}
	steps := make([]pipelineStep, 0, len(stmts)+1)
	for i := range stmts {
		steps = append(steps, pipelineStep{Type: "execute", Stmt: &stmts[i]})
	}
	steps = append(steps, pipelineStep{Type: "close"})

	body, err := json.Marshal(pipelineRequest{Requests: steps})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v2/pipeline", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: hosted SQL returned %d: %s", ErrRejected, resp.StatusCode, truncate(raw, 200))
	}

	var out pipelineResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decoding pipeline response: %w", err)
	}
	var errs []error
	for _, r := range out.Results {
		if r.Error != nil {
			errs = append(errs, fmt.Errorf("%w: %s", ErrRejected, r.Error.Message))
		}
	}
	return errors.Join(errs...)
}
