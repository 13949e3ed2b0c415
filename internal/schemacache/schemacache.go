// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package schemacache maintains the persistent per-datasource table schema
// cache. Discovery walks every table of a datasource with bounded
// parallelism; individual table failures are quarantined so one broken view
// or permission gap cannot sink the whole run.
package schemacache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

// discoveryParallelism bounds concurrent per-table schema fetches.
const discoveryParallelism = 10

// Service reads and refreshes cached schemas.
type Service struct {
	store   *store.Store
	log     logr.Logger
	connect func(ctx context.Context, ds *types.Datasource, log logr.Logger) (adapter.Adapter, error)
}

func New(st *store.Store, log logr.Logger) *Service {
	return &Service{store: st, log: log.WithName("schemacache"), connect: adapter.Connected}
}

// DiscoveryResult summarizes one discovery run.
type DiscoveryResult struct {
	Discovered int               `json:"discovered"`
	Failed     map[string]string `json:"failed,omitempty"`
	Duration   time.Duration     `json:"-"`
}

// DiscoverAll fetches and persists the schema of every table the datasource
// exposes. Table-level failures are collected, not fatal; the run only
// errors when the datasource itself is unreachable.
func (s *Service) DiscoverAll(ctx context.Context, ds *types.Datasource) (*DiscoveryResult, error) {
	start := time.Now()

	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	tables, err := a.ListTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tables of %s: %w", ds.Name, err)
	}

	var (
		mu     sync.Mutex
		failed = map[string]string{}
		count  int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(discoveryParallelism)
	for _, table := range tables {
		g.Go(func() error {
			schema, err := a.GetSchema(gctx, table)
			if err != nil {
				mu.Lock()
				failed[table] = err.Error()
				mu.Unlock()
				s.log.V(1).Info("table discovery failed", "datasource", ds.Name, "table", table, "error", err.Error())
				return nil
			}
			entry := &types.TableSchemaEntry{
				DatasourceID: ds.ID,
				TableName:    table,
				Columns:      schema.Columns,
				ForeignKeys:  schema.ForeignKeys,
				FetchedAt:    time.Now().UTC(),
			}
			if err := s.store.UpsertSchemaEntry(gctx, entry); err != nil {
				mu.Lock()
				failed[table] = err.Error()
				mu.Unlock()
				return nil
			}
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &DiscoveryResult{Discovered: count, Duration: time.Since(start)}
	if len(failed) > 0 {
		result.Failed = failed
	}
	s.log.Info("schema discovery finished", "datasource", ds.Name,
		"tables", count, "failed", len(failed), "duration", result.Duration.String())
	return result, nil
}

// RefreshAll drops every cached entry of the datasource and rediscovers from
// scratch, so tables deleted upstream disappear from the cache.
func (s *Service) RefreshAll(ctx context.Context, ds *types.Datasource) (*DiscoveryResult, error) {
	if err := s.store.DeleteSchemaEntries(ctx, ds.ID); err != nil {
		return nil, err
	}
	return s.DiscoverAll(ctx, ds)
}

// Get returns one table's cached schema, discovering and caching it on a
// miss so first reads of a new table work without a full discovery run.
func (s *Service) Get(ctx context.Context, ds *types.Datasource, table string) (*types.TableSchemaEntry, error) {
	entry, err := s.store.GetSchemaEntry(ctx, ds.ID, table)
	if err == nil {
		return entry, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	entry = &types.TableSchemaEntry{
		DatasourceID: ds.ID,
		TableName:    table,
		Columns:      schema.Columns,
		ForeignKeys:  schema.ForeignKeys,
		FetchedAt:    time.Now().UTC(),
	}
	if err := s.store.UpsertSchemaEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Refresh rediscovers a single table from the live backend and overwrites its
// cached entry.
func (s *Service) Refresh(ctx context.Context, ds *types.Datasource, table string) (*types.TableSchemaEntry, error) {
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	schema, err := a.GetSchema(ctx, table)
	if err != nil {
		return nil, err
	}
	entry := &types.TableSchemaEntry{
		DatasourceID: ds.ID,
		TableName:    table,
		Columns:      schema.Columns,
		ForeignKeys:  schema.ForeignKeys,
		FetchedAt:    time.Now().UTC(),
	}
	if err := s.store.UpsertSchemaEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetAll returns every cached entry of the datasource.
func (s *Service) GetAll(ctx context.Context, datasourceID string) ([]*types.TableSchemaEntry, error) {
	return s.store.ListSchemaEntries(ctx, datasourceID)
}

// Relationships returns the datasource's foreign-key edges as normalized
// (source, target) column pairs, read from the cache. When the cache is
// empty it falls back to a live adapter query.
func (s *Service) Relationships(ctx context.Context, ds *types.Datasource) ([]types.Relationship, error) {
	entries, err := s.store.ListSchemaEntries(ctx, ds.ID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		a, err := s.connect(ctx, ds, s.log)
		if err != nil {
			return nil, err
		}
		defer func() { _ = a.Close() }()
		return a.ListAllRelationships(ctx)
	}

	var rels []types.Relationship
	for _, entry := range entries {
		for _, fk := range entry.ForeignKeys {
			for i, col := range fk.ConstrainedColumns {
				ref := ""
				if i < len(fk.ReferredColumns) {
					ref = fk.ReferredColumns[i]
				}
				rels = append(rels, types.Relationship{
					SourceTable:  entry.TableName,
					SourceColumn: col,
					TargetTable:  fk.ReferredTable,
					TargetColumn: ref,
				})
			}
		}
	}
	return rels, nil
}
