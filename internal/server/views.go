// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/types"
)

// viewRequest is the write shape for datasource views.
type viewRequest struct {
	Name           string                      `json:"name" validate:"required"`
	TargetTable    string                      `json:"target_table" validate:"required"`
	Filters        []types.FilterExpr          `json:"filters"`
	FieldMappings  map[string]string           `json:"field_mappings"`
	LinkedViews    map[string]types.LinkedView `json:"linked_views"`
	VisibleColumns []string                    `json:"visible_columns"`
	PinnedColumns  []string                    `json:"pinned_columns"`
	ColumnOrder    []string                    `json:"column_order"`
	Webhooks       []string                    `json:"webhooks" validate:"omitempty,dive,url"`
}

func (req *viewRequest) toView() *types.DatasourceView {
	return &types.DatasourceView{
		Name:           req.Name,
		TargetTable:    req.TargetTable,
		Filters:        req.Filters,
		FieldMappings:  req.FieldMappings,
		LinkedViews:    req.LinkedViews,
		VisibleColumns: req.VisibleColumns,
		PinnedColumns:  req.PinnedColumns,
		ColumnOrder:    req.ColumnOrder,
		Webhooks:       req.Webhooks,
	}
}

func (s *Server) listViews(w http.ResponseWriter, r *http.Request) {
	// The datasource must exist; an empty list on a bad id would mask typos.
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	views, err := s.store.ListViews(r.Context(), ds.ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, views)
}

func (s *Server) createView(w http.ResponseWriter, r *http.Request) {
	ds, err := s.store.GetDatasource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	var req viewRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	v := req.toView()
	v.DatasourceID = ds.ID
	if err := s.store.CreateView(r.Context(), v); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, v)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetView(r.Context(), chi.URLParam(r, "viewID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}

// updateView patches the stored view with the fields present in the body.
func (s *Server) updateView(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetView(r.Context(), chi.URLParam(r, "viewID"))
	if err != nil {
		s.fail(w, err)
		return
	}

	var patch map[string]json.RawMessage
	if err := s.decode(r, &patch); err != nil {
		s.fail(w, err)
		return
	}
	fields := map[string]any{
		"name":            &v.Name,
		"target_table":    &v.TargetTable,
		"filters":         &v.Filters,
		"field_mappings":  &v.FieldMappings,
		"linked_views":    &v.LinkedViews,
		"visible_columns": &v.VisibleColumns,
		"pinned_columns":  &v.PinnedColumns,
		"column_order":    &v.ColumnOrder,
		"webhooks":        &v.Webhooks,
	}
	for name, dst := range fields {
		raw, ok := patch[name]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			s.fail(w, badRequestf("decoding %s: %v", name, err))
			return
		}
	}

	if err := s.store.UpdateView(r.Context(), v); err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, v)
}

func (s *Server) deleteView(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteView(r.Context(), chi.URLParam(r, "viewID")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) readViewRecords(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", 100)
	opts := types.ReadOptions{Limit: limit, Offset: (page - 1) * limit}
	if raw := r.URL.Query().Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Where); err != nil {
			s.fail(w, badRequestf("decoding filters: %v", err))
			return
		}
	}

	records, err := s.views.Read(r.Context(), chi.URLParam(r, "viewID"), opts)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"records": records,
		"page":    page,
		"limit":   limit,
	})
}

func (s *Server) countViewRecords(w http.ResponseWriter, r *http.Request) {
	var extra []types.FilterExpr
	if raw := r.URL.Query().Get("filters"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &extra); err != nil {
			s.fail(w, badRequestf("decoding filters: %v", err))
			return
		}
	}
	n, err := s.views.Count(r.Context(), chi.URLParam(r, "viewID"), extra)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) upsertViewRecord(w http.ResponseWriter, r *http.Request) {
	var record adapter.Record
	if err := s.decode(r, &record); err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.views.Upsert(r.Context(), chi.URLParam(r, "viewID"), record,
		r.URL.Query().Get("key_column"))
	if err != nil {
		s.fail(w, err)
		return
	}
	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	s.respond(w, status, out)
}

func (s *Server) triggerView(w http.ResponseWriter, r *http.Request) {
	var payload adapter.Record
	if err := s.decode(r, &payload); err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.views.Trigger(r.Context(), chi.URLParam(r, "viewID"), payload)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, out)
}
