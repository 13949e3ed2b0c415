// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

type stubStrategy struct {
	published   []*types.CompiledPage
	unpublished []string
	failWith    error
}

func (s *stubStrategy) PublishPage(_ context.Context, page *types.CompiledPage, _ bool) (*types.PublishResult, error) {
	if s.failWith != nil {
		return nil, s.failWith
	}
	s.published = append(s.published, page)
	return &types.PublishResult{PreviewURL: "http://edge/pages/" + page.Slug, Version: page.Version}, nil
}

func (s *stubStrategy) UnpublishPage(_ context.Context, slug string) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.unpublished = append(s.unpublished, slug)
	return nil
}

func (s *stubStrategy) SyncSettings(context.Context, types.ProjectSettings) error { return nil }

func newPublisher(t *testing.T, f *fixture, strat strategy.Strategy) *Publisher {
	t.Helper()
	return NewPublisher(f.st, f.compiler, strat, logr.Discard())
}

func TestPublishDeliversAndMarksPublic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.savePage(t, []map[string]any{{"id": "c1", "type": "text"}})

	stub := &stubStrategy{}
	pub := newPublisher(t, f, stub)

	result, err := pub.Publish(ctx, page.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Version)
	assert.Equal(t, "http://edge/pages/home", result.PreviewURL)
	require.Len(t, stub.published, 1)

	stored, err := f.st.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)

	compiled, version, err := f.st.GetCompiledPage(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	var decoded types.CompiledPage
	require.NoError(t, json.Unmarshal(compiled, &decoded))
	assert.Equal(t, "home", decoded.Slug)
}

func TestPublishFailureLeavesPagePrivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.savePage(t, []map[string]any{{"id": "c1", "type": "text"}})

	stub := &stubStrategy{failWith: strategy.ErrUnavailable}
	pub := newPublisher(t, f, stub)

	_, err := pub.Publish(ctx, page.ID, false)
	require.ErrorIs(t, err, strategy.ErrUnavailable)

	stored, err := f.st.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)
}

func TestUnpublishFlipsFlagEvenWhenBackendFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.savePage(t, []map[string]any{{"id": "c1", "type": "text"}})

	pub := newPublisher(t, f, &stubStrategy{})
	_, err := pub.Publish(ctx, page.ID, false)
	require.NoError(t, err)

	failing := newPublisher(t, f, &stubStrategy{failWith: errors.New("edge down")})
	require.NoError(t, failing.Unpublish(ctx, page.ID))

	stored, err := f.st.GetPage(ctx, page.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)
}

func TestPublicPageServesFreshCompileAtStoredVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := f.savePage(t, []map[string]any{{"id": "c1", "type": "text"}})

	pub := newPublisher(t, f, &stubStrategy{})
	_, err := pub.Publish(ctx, page.ID, false)
	require.NoError(t, err)

	served, err := pub.PublicPage(ctx, "home")
	require.NoError(t, err)
	assert.Equal(t, "home", served.Slug)
	// A public read re-runs enrichment but never bumps the version.
	assert.Equal(t, 1, served.Version)
}

func TestPublicPageHidesPrivatePages(t *testing.T) {
	f := newFixture(t)
	f.savePage(t, []map[string]any{{"id": "c1", "type": "text"}})

	pub := newPublisher(t, f, &stubStrategy{})
	_, err := pub.PublicPage(context.Background(), "home")
	require.ErrorIs(t, err, store.ErrNotFound)
}
