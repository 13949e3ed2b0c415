// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

// Publisher compiles pages and delivers them through the configured
// strategy. is_public flips to true only after a successful delivery.
type Publisher struct {
	store    *store.Store
	compiler *Compiler
	strategy strategy.Strategy
	log      logr.Logger
}

func NewPublisher(st *store.Store, compiler *Compiler, strat strategy.Strategy, log logr.Logger) *Publisher {
	return &Publisher{store: st, compiler: compiler, strategy: strat, log: log.WithName("publisher")}
}

// Publish compiles, persists and delivers a page. A delivery failure leaves
// the stored compiled page in place but the page not public.
func (p *Publisher) Publish(ctx context.Context, pageID string, force bool) (*types.PublishResult, error) {
	compiled, err := p.compiler.Compile(ctx, pageID)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(compiled)
	if err != nil {
		return nil, err
	}
	if err := p.store.SaveCompiledPage(ctx, compiled.ID, compiled.Slug, compiled.Version, payload); err != nil {
		return nil, err
	}

	result, err := p.strategy.PublishPage(ctx, compiled, force)
	if err != nil {
		return nil, err
	}
	if err := p.store.SetPagePublic(ctx, pageID, true); err != nil {
		return nil, fmt.Errorf("page delivered but not marked public: %w", err)
	}
	if result.Version == 0 {
		result.Version = compiled.Version
	}
	p.log.Info("page published", "page", pageID, "slug", compiled.Slug, "version", compiled.Version)
	return result, nil
}

// Unpublish withdraws a page. The local flag flips regardless of backend
// reachability so a dead edge cannot pin a page public.
func (p *Publisher) Unpublish(ctx context.Context, pageID string) error {
	page, err := p.store.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	if err := p.store.SetPagePublic(ctx, pageID, false); err != nil {
		return err
	}
	if err := p.strategy.UnpublishPage(ctx, page.Slug); err != nil {
		p.log.Error(err, "backend unpublish failed", "page", pageID, "slug", page.Slug)
	}
	return nil
}

// PublicPage serves the live compiled page for a slug, re-running the
// enrichment pipeline so server-side renders always get fresh requests. The
// served version is the last published one, a public read never bumps it.
func (p *Publisher) PublicPage(ctx context.Context, slug string) (*types.CompiledPage, error) {
	page, err := p.store.GetPageBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !page.IsPublic {
		return nil, store.ErrNotFound
	}
	compiled, err := p.compiler.Compile(ctx, page.ID)
	if err != nil {
		return nil, err
	}
	if _, version, err := p.store.GetCompiledPage(ctx, slug); err == nil {
		compiled.Version = version
	}
	return compiled, nil
}
