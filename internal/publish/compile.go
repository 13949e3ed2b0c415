// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package publish turns a stored page into a self-contained compiled bundle
// and hands it to a delivery strategy. The compiler never holds a database
// transaction across network I/O: everything it needs is materialized from
// the store first, icon fetches and delivery happen after.
package publish

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/schemacache"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

// Compiler runs the page transformation pipeline.
type Compiler struct {
	store   *store.Store
	schemas *schemacache.Service
	icons   *iconService
	log     logr.Logger
}

func NewCompiler(st *store.Store, schemas *schemacache.Service, kv *cache.Cache, iconCDNURL string, log logr.Logger) *Compiler {
	log = log.WithName("publish")
	return &Compiler{
		store:   st,
		schemas: schemas,
		icons:   newIconService(iconCDNURL, kv, log),
		log:     log,
	}
}

// Compile loads a page and produces its compiled bundle. The emitted version
// is the next monotonic version for the page; persisting it is the caller's
// decision.
func (c *Compiler) Compile(ctx context.Context, pageID string) (*types.CompiledPage, error) {
	page, err := c.store.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	all, err := c.store.ListDatasources(ctx)
	if err != nil {
		return nil, err
	}
	var datasources []*types.Datasource
	for _, ds := range all {
		if ds.Active {
			datasources = append(datasources, ds)
		}
	}
	version, err := c.store.NextPageVersion(ctx, page.ID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*types.Datasource, len(datasources))
	for _, ds := range datasources {
		byID[ds.ID] = ds
	}

	for _, comp := range page.LayoutData {
		c.transform(ctx, comp, datasources, byID)
	}

	c.icons.inject(ctx, page.LayoutData)

	return &types.CompiledPage{
		ID:          page.ID,
		Slug:        page.Slug,
		Name:        page.Name,
		Title:       page.Title,
		Description: page.Description,
		LayoutData:  page.LayoutData,
		SEOData:     page.SEOData,
		Datasources: bundleDatasources(datasources),
		CSSBundle:   buildCSSBundle(page.LayoutData),
		Version:     version,
		PublishedAt: time.Now().UTC(),
		IsPublic:    page.IsPublic,
		IsHomepage:  page.IsHomepage,
	}, nil
}

// transform applies the per-component pipeline steps depth-first. An
// enrichment failure skips that enrichment and keeps publishing.
func (c *Compiler) transform(ctx context.Context, comp map[string]any, datasources []*types.Datasource, byID map[string]*types.Datasource) {
	normalizeBinding(comp, datasources)
	mergeStyles(comp)

	if binding := bindingOf(comp); binding != nil {
		if err := c.enrich(ctx, comp, binding, byID); err != nil {
			c.log.V(1).Info("binding enrichment skipped", "component", asString(comp["id"]), "reason", err.Error())
		}
	}
	scrubNulls(comp)

	for _, child := range childComponents(comp) {
		c.transform(ctx, child, datasources, byID)
	}
}

func (c *Compiler) enrich(ctx context.Context, comp, binding map[string]any, byID map[string]*types.Datasource) error {
	ds, ok := byID[asString(binding["datasource_id"])]
	if !ok {
		return fmt.Errorf("binding references unknown datasource")
	}
	table := bindingTable(binding)
	if table == "" {
		return fmt.Errorf("binding has no table")
	}

	schema, err := c.schemas.Get(ctx, ds, table)
	if err != nil {
		schema = nil
	}

	req, queryCfg, err := buildDataRequest(ds, binding, schema)
	if err != nil {
		return err
	}
	binding["data_request"] = req
	binding["query_config"] = queryCfg
	if cols := bindingColumns(binding); len(cols) > 0 {
		binding["column_order"] = cols
	}

	// Baking replaces the plain column list with full column objects, so it
	// runs after the projection is built.
	if needsSchemaBake(asString(comp["type"])) {
		bakeSchema(comp, binding, schema, ds.ID)
	}

	if raw, ok := binding["frontend_filters"].([]any); ok {
		for _, item := range raw {
			fm, ok := item.(map[string]any)
			if !ok {
				continue
			}
			f := types.FrontendFilter{
				Column:     asString(fm["column"]),
				FilterType: asString(fm["filter_type"]),
			}
			if f.FilterType == "" {
				f.FilterType = asString(fm["type"])
			}
			if f.NeedsOptions() {
				fm["options_data_request"] = buildOptionsRequest(ds, table, f.Column)
			}
		}
	}
	return nil
}

// bundleDatasources reduces datasources to the fields the edge needs. Secret
// keys never ship; the env_key names where the edge finds them.
func bundleDatasources(datasources []*types.Datasource) []types.DatasourceBundle {
	out := make([]types.DatasourceBundle, 0, len(datasources))
	for _, ds := range datasources {
		out = append(out, types.DatasourceBundle{
			ID:      ds.ID,
			Kind:    ds.Kind,
			URL:     ds.RESTBaseURL,
			AnonKey: ds.AnonKey,
			EnvKey:  ds.EnvKeyName(),
		})
	}
	return out
}
