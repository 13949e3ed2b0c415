// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/frontbase/frontbase/internal/syncexec"
	"github.com/frontbase/frontbase/internal/types"
)

// syncConfigRequest is the write shape for sync configurations.
type syncConfigRequest struct {
	Name             string               `json:"name" validate:"required"`
	MasterDatasource string               `json:"master_datasource_id" validate:"required"`
	SlaveDatasource  string               `json:"slave_datasource_id" validate:"required"`
	MasterViewID     string               `json:"master_view_id"`
	SlaveViewID      string               `json:"slave_view_id"`
	MasterTable      string               `json:"master_table" validate:"required"`
	SlaveTable       string               `json:"slave_table" validate:"required"`
	MasterPK         string               `json:"master_pk"`
	SlavePK          string               `json:"slave_pk"`
	ConflictStrategy string               `json:"conflict_strategy" validate:"required,oneof=source_wins target_wins manual merge webhook"`
	WebhookURL       string               `json:"webhook_url" validate:"omitempty,url"`
	SyncDeletes      bool                 `json:"sync_deletes"`
	BatchSize        int                  `json:"batch_size" validate:"omitempty,min=1,max=10000"`
	CronSchedule     string               `json:"cron_schedule"`
	Active           *bool                `json:"active"`
	FieldMappings    []types.FieldMapping `json:"field_mappings" validate:"required,min=1"`
}

func (req *syncConfigRequest) toConfig() *types.SyncConfig {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &types.SyncConfig{
		Name:             req.Name,
		MasterDatasource: req.MasterDatasource,
		SlaveDatasource:  req.SlaveDatasource,
		MasterViewID:     req.MasterViewID,
		SlaveViewID:      req.SlaveViewID,
		MasterTable:      req.MasterTable,
		SlaveTable:       req.SlaveTable,
		MasterPK:         req.MasterPK,
		SlavePK:          req.SlavePK,
		ConflictStrategy: types.ConflictStrategy(req.ConflictStrategy),
		WebhookURL:       req.WebhookURL,
		SyncDeletes:      req.SyncDeletes,
		BatchSize:        req.BatchSize,
		CronSchedule:     req.CronSchedule,
		Active:           active,
		FieldMappings:    req.FieldMappings,
	}
}

func (s *Server) listSyncConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.store.ListSyncConfigs(r.Context(), queryBool(r, "active_only"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, configs)
}

func (s *Server) createSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req syncConfigRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	cfg := req.toConfig()
	if err := s.store.CreateSyncConfig(r.Context(), cfg); err != nil {
		s.fail(w, err)
		return
	}
	s.reloadSchedule(r)
	s.respond(w, http.StatusCreated, cfg)
}

func (s *Server) getSyncConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.store.GetSyncConfig(r.Context(), chi.URLParam(r, "configID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, cfg)
}

func (s *Server) updateSyncConfig(w http.ResponseWriter, r *http.Request) {
	var req syncConfigRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	cfg := req.toConfig()
	cfg.ID = chi.URLParam(r, "configID")
	if err := s.store.UpdateSyncConfig(r.Context(), cfg); err != nil {
		s.fail(w, err)
		return
	}
	s.reloadSchedule(r)
	s.respond(w, http.StatusOK, cfg)
}

func (s *Server) deleteSyncConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSyncConfig(r.Context(), chi.URLParam(r, "configID")); err != nil {
		s.fail(w, err)
		return
	}
	s.reloadSchedule(r)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSyncJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.ListSyncJobs(r.Context(), chi.URLParam(r, "configID"), queryInt(r, "limit", 50))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, jobs)
}

// reloadSchedule re-registers cron entries after a config change. Best
// effort; a reload failure never fails the write that triggered it.
func (s *Server) reloadSchedule(r *http.Request) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.Reload(r.Context()); err != nil {
		s.log.Info("schedule reload failed", "error", err.Error())
	}
}

func (s *Server) dispatchSync(w http.ResponseWriter, r *http.Request) {
	job, err := s.syncer.Dispatch(r.Context(), chi.URLParam(r, "configID"), "manual")
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, job)
}

// webhookProviders is the closed set of inbound webhook paths.
var webhookProviders = map[string]bool{
	"n8n": true, "zapier": true, "activepieces": true, "generic": true,
}

func (s *Server) webhookDispatch(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	if !webhookProviders[provider] {
		s.fail(w, badRequestf("unknown webhook provider %q", provider))
		return
	}
	job, err := s.syncer.Dispatch(r.Context(), chi.URLParam(r, "configID"), "webhook:"+provider)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusCreated, job)
}

func (s *Server) syncJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetSyncJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, job)
}

func (s *Server) listSyncConflicts(w http.ResponseWriter, r *http.Request) {
	status := types.ConflictStatus(r.URL.Query().Get("status_filter"))
	conflicts, err := s.store.ListConflicts(r.Context(), chi.URLParam(r, "configID"),
		r.URL.Query().Get("job_id"), status)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, conflicts)
}

// resolveRequest is the conflict-resolution body. MergedData is only
// meaningful with resolution=merge.
type resolveRequest struct {
	Resolution string         `json:"resolution" validate:"required,oneof=master slave merge skip"`
	MergedData map[string]any `json:"merged_data"`
	ResolvedBy string         `json:"resolved_by"`
}

func (s *Server) resolveSyncConflict(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	actor := req.ResolvedBy
	if actor == "" {
		actor = "api"
	}
	c, err := s.syncer.ApplyResolution(r.Context(), chi.URLParam(r, "conflictID"),
		syncexec.Resolution(req.Resolution), req.MergedData, actor)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, c)
}
