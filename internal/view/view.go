// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package view reads external data through saved views: named projections
// that combine filters, computed field mappings, linked views and column
// visibility on top of an adapter table.
package view

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/expr"
	"github.com/frontbase/frontbase/internal/schemacache"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

// Service executes reads and writes through saved views.
type Service struct {
	store   *store.Store
	schemas *schemacache.Service
	log     logr.Logger
	connect func(ctx context.Context, ds *types.Datasource, log logr.Logger) (adapter.Adapter, error)
	client  *http.Client
}

func New(st *store.Store, schemas *schemacache.Service, log logr.Logger) *Service {
	return &Service{
		store:   st,
		schemas: schemas,
		log:     log.WithName("view"),
		connect: adapter.Connected,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Read returns the view's records: the view's own filters are always
// applied, request filters are ANDed on top, mappings computed, linked
// records attached and columns projected down to the visible set.
func (s *Service) Read(ctx context.Context, viewID string, opts types.ReadOptions) ([]adapter.Record, error) {
	v, err := s.store.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}
	ds, err := s.store.GetDatasource(ctx, v.DatasourceID)
	if err != nil {
		return nil, err
	}

	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	opts.Where = append(append([]types.FilterExpr{}, v.Filters...), opts.Where...)
	records, err := a.ReadRecords(ctx, v.TargetTable, opts)
	if err != nil {
		return nil, err
	}

	if len(v.LinkedViews) > 0 {
		if err := s.attachLinked(ctx, v, records); err != nil {
			return nil, err
		}
	}
	applyMappings(v, records)
	projectVisible(v, records)
	return records, nil
}

// Count returns the number of records the view matches, honoring the view's
// filters plus any extra request filters.
func (s *Service) Count(ctx context.Context, viewID string, extra []types.FilterExpr) (int, error) {
	v, err := s.store.GetView(ctx, viewID)
	if err != nil {
		return 0, err
	}
	ds, err := s.store.GetDatasource(ctx, v.DatasourceID)
	if err != nil {
		return 0, err
	}
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return 0, err
	}
	defer func() { _ = a.Close() }()

	where := append(append([]types.FilterExpr{}, v.Filters...), extra...)
	return a.CountRecords(ctx, v.TargetTable, where)
}

// Upsert writes a record through the view's target table and fans the
// result out to the view's webhooks. An empty keyCol resolves the key from
// the table's schema.
func (s *Service) Upsert(ctx context.Context, viewID string, record adapter.Record, keyCol string) (adapter.Record, error) {
	v, err := s.store.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}
	ds, err := s.store.GetDatasource(ctx, v.DatasourceID)
	if err != nil {
		return nil, err
	}
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return nil, err
	}
	defer func() { _ = a.Close() }()

	if keyCol == "" {
		if keyCol, err = s.keyColumn(ctx, ds, v.TargetTable); err != nil {
			return nil, err
		}
	}
	out, err := a.UpsertRecord(ctx, v.TargetTable, record, keyCol)
	if err != nil {
		return nil, err
	}
	s.fanOut(v, "record.upserted", out)
	return out, nil
}

// Delete removes a record through the view and notifies its webhooks.
func (s *Service) Delete(ctx context.Context, viewID string, keyVal any) (bool, error) {
	v, err := s.store.GetView(ctx, viewID)
	if err != nil {
		return false, err
	}
	ds, err := s.store.GetDatasource(ctx, v.DatasourceID)
	if err != nil {
		return false, err
	}
	a, err := s.connect(ctx, ds, s.log)
	if err != nil {
		return false, err
	}
	defer func() { _ = a.Close() }()

	keyCol, err := s.keyColumn(ctx, ds, v.TargetTable)
	if err != nil {
		return false, err
	}
	deleted, err := a.DeleteRecord(ctx, v.TargetTable, keyCol, keyVal)
	if err != nil {
		return false, err
	}
	if deleted {
		s.fanOut(v, "record.deleted", adapter.Record{keyCol: keyVal})
	}
	return deleted, nil
}

// Trigger applies the view's field mappings to an incoming payload and fans
// the result out to the view's webhooks. The response does not wait for
// deliveries.
func (s *Service) Trigger(ctx context.Context, viewID string, payload adapter.Record) (adapter.Record, error) {
	v, err := s.store.GetView(ctx, viewID)
	if err != nil {
		return nil, err
	}
	out := make(adapter.Record, len(payload))
	for k, val := range payload {
		out[k] = val
	}
	for field, template := range v.FieldMappings {
		out[field] = expr.Eval(template, expr.Context{Record: payload})
	}
	s.fanOut(v, "view.triggered", out)
	return out, nil
}

// keyColumn resolves the table's primary key from the schema cache,
// defaulting to id when the table declares none.
func (s *Service) keyColumn(ctx context.Context, ds *types.Datasource, table string) (string, error) {
	entry, err := s.schemas.Get(ctx, ds, table)
	if err != nil {
		return "", fmt.Errorf("resolving key column of %s: %w", table, err)
	}
	for _, c := range entry.Columns {
		if c.PrimaryKey {
			return c.Name, nil
		}
	}
	return "id", nil
}

// attachLinked nests each linked view's matching record under its alias.
// Linked records are fetched in one batched read per alias.
func (s *Service) attachLinked(ctx context.Context, v *types.DatasourceView, records []adapter.Record) error {
	for alias, link := range v.LinkedViews {
		linked, err := s.store.GetView(ctx, link.ViewID)
		if err != nil {
			return fmt.Errorf("linked view %s: %w", alias, err)
		}
		ds, err := s.store.GetDatasource(ctx, linked.DatasourceID)
		if err != nil {
			return err
		}

		var keys []any
		seen := map[string]bool{}
		for _, rec := range records {
			val, ok := rec[link.JoinOn]
			if !ok || val == nil {
				continue
			}
			k := fmt.Sprintf("%v", val)
			if !seen[k] {
				seen[k] = true
				keys = append(keys, val)
			}
		}
		if len(keys) == 0 {
			continue
		}

		a, err := s.connect(ctx, ds, s.log)
		if err != nil {
			return err
		}
		where := append(append([]types.FilterExpr{}, linked.Filters...),
			types.FilterExpr{Column: link.TargetKey, Operator: types.OpIn, Value: keys})
		linkedRecords, err := a.ReadRecords(ctx, linked.TargetTable, types.ReadOptions{
			Where: where,
			Limit: len(keys),
		})
		_ = a.Close()
		if err != nil {
			return fmt.Errorf("reading linked view %s: %w", alias, err)
		}

		byKey := map[string]adapter.Record{}
		for _, lr := range linkedRecords {
			byKey[fmt.Sprintf("%v", lr[link.TargetKey])] = lr
		}
		for _, rec := range records {
			if val, ok := rec[link.JoinOn]; ok && val != nil {
				if match, ok := byKey[fmt.Sprintf("%v", val)]; ok {
					rec[alias] = match
				}
			}
		}
	}
	return nil
}

// applyMappings computes the view's mapped fields into each record.
func applyMappings(v *types.DatasourceView, records []adapter.Record) {
	for field, template := range v.FieldMappings {
		for _, rec := range records {
			rec[field] = expr.Eval(template, expr.Context{Record: rec})
		}
	}
}

// projectVisible narrows records to the visible column set. Mapped fields
// and linked aliases survive only when listed.
func projectVisible(v *types.DatasourceView, records []adapter.Record) {
	if len(v.VisibleColumns) == 0 {
		return
	}
	visible := map[string]bool{}
	for _, c := range v.VisibleColumns {
		visible[c] = true
	}
	for _, rec := range records {
		for k := range rec {
			if !visible[k] {
				delete(rec, k)
			}
		}
	}
}

// fanOut posts the event to every webhook of the view without blocking the
// caller. Failures are logged and dropped.
func (s *Service) fanOut(v *types.DatasourceView, event string, record adapter.Record) {
	if len(v.Webhooks) == 0 {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":   event,
		"view_id": v.ID,
		"table":   v.TargetTable,
		"record":  record,
	})
	if err != nil {
		return
	}
	for _, url := range v.Webhooks {
		go func() {
			req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
			if err != nil {
				return
			}
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.client.Do(req)
			if err != nil {
				s.log.V(1).Info("webhook delivery failed", "url", url, "error", err.Error())
				return
			}
			_ = resp.Body.Close()
		}()
	}
}
