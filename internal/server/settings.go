// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package server

import (
	"net/http"

	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/types"
)

// redisSettingsView is the read shape of the Redis settings. The token is
// write-only; clients only learn whether one is stored.
type redisSettingsView struct {
	RedisURL     string                 `json:"redis_url,omitempty"`
	RedisType    types.RedisBackendType `json:"redis_type,omitempty"`
	HasToken     bool                   `json:"has_token"`
	CacheEnabled bool                   `json:"cache_enabled"`
	DataTTL      int                    `json:"ttl_data"`
	CountTTL     int                    `json:"ttl_count"`
}

func settingsView(settings types.ProjectSettings) redisSettingsView {
	return redisSettingsView{
		RedisURL:     settings.RedisURL,
		RedisType:    settings.RedisType,
		HasToken:     settings.RedisToken != "",
		CacheEnabled: settings.CacheEnabled,
		DataTTL:      settings.DataTTL,
		CountTTL:     settings.CountTTL,
	}
}

func (s *Server) getRedisSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.respond(w, http.StatusOK, settingsView(settings))
}

// redisSettingsRequest is the write shape. An empty token keeps the stored
// one so clients can change TTLs without re-entering the secret.
type redisSettingsRequest struct {
	RedisURL     string `json:"redis_url" validate:"omitempty,url"`
	RedisToken   string `json:"redis_token"`
	RedisType    string `json:"redis_type" validate:"omitempty,oneof=upstash self-hosted"`
	CacheEnabled bool   `json:"cache_enabled"`
	DataTTL      int    `json:"ttl_data" validate:"omitempty,min=1"`
	CountTTL     int    `json:"ttl_count" validate:"omitempty,min=1"`
}

func (req *redisSettingsRequest) apply(settings *types.ProjectSettings) {
	settings.RedisURL = req.RedisURL
	if req.RedisToken != "" {
		settings.RedisToken = req.RedisToken
	}
	if req.RedisType != "" {
		settings.RedisType = types.RedisBackendType(req.RedisType)
	}
	settings.CacheEnabled = req.CacheEnabled
	if req.DataTTL > 0 {
		settings.DataTTL = req.DataTTL
	}
	if req.CountTTL > 0 {
		settings.CountTTL = req.CountTTL
	}
}

// putRedisSettings persists the new cache configuration, swaps the live
// cache tier and pushes the settings to the publish backend. The backend
// push is best effort; the local write already succeeded.
func (s *Server) putRedisSettings(w http.ResponseWriter, r *http.Request) {
	var req redisSettingsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	req.apply(&settings)
	if err := s.store.SaveSettings(r.Context(), settings); err != nil {
		s.fail(w, err)
		return
	}

	s.swapCache(cache.New(settings, s.log))

	if s.strategy != nil {
		if err := s.strategy.SyncSettings(r.Context(), settings); err != nil {
			s.log.Info("settings push to publish backend failed", "error", err.Error())
		}
	}
	s.respond(w, http.StatusOK, settingsView(settings))
}

// testRedisSettings pings the KV described by the request body, or the
// stored settings when the body carries no URL.
func (s *Server) testRedisSettings(w http.ResponseWriter, r *http.Request) {
	var req redisSettingsRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, err)
		return
	}
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	candidate := settings
	if req.RedisURL != "" {
		candidate = types.DefaultSettings()
		candidate.RedisURL = req.RedisURL
		candidate.RedisToken = req.RedisToken
		if candidate.RedisToken == "" {
			candidate.RedisToken = settings.RedisToken
		}
		if req.RedisType != "" {
			candidate.RedisType = types.RedisBackendType(req.RedisType)
		}
	}
	candidate.CacheEnabled = true

	probe := cache.New(candidate, s.log)
	defer func() { _ = probe.Close() }()

	if err := probe.Ping(r.Context()); err != nil {
		s.respond(w, http.StatusOK, map[string]any{"connected": false, "error": err.Error()})
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"connected": true})
}
