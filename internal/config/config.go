// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// PublishStrategy names, selected by PUBLISH_STRATEGY.
const (
	StrategyLocal = "local"
	StrategyTurso = "turso"
)

// Config is the process-wide configuration, loaded once in cmd and injected
// into every component that needs it.
type Config struct {
	ListenAddr string

	// Core relational store. When DatabaseURL is empty the core falls back to
	// an embedded SQLite file under DataDir.
	DatabaseURL string
	DataDir     string

	EdgeURL       string
	EdgeEngineURL string

	PublishStrategy string
	TursoDBURL      string
	TursoDBToken    string

	UpstashRedisURL   string
	UpstashRedisToken string

	// EncryptionKey encrypts datasource service keys at rest. When empty a
	// key is generated once and persisted under DataDir.
	EncryptionKey string

	AdminEmail    string
	AdminPassword string

	CORSOrigins []string

	IconCDNURL string

	Debug bool
}

// Load reads configuration from the environment with documented defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LISTEN_ADDR", ":8000")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("EDGE_URL", "http://localhost:3002")
	v.SetDefault("PUBLISH_STRATEGY", StrategyLocal)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("ICON_CDN_URL", "https://cdn.jsdelivr.net/npm/lucide-static@latest/icons")

	cfg := &Config{
		ListenAddr:        v.GetString("LISTEN_ADDR"),
		DatabaseURL:       firstNonEmpty(v.GetString("DATABASE_URL"), v.GetString("DATABASE")),
		DataDir:           v.GetString("DATA_DIR"),
		EdgeURL:           v.GetString("EDGE_URL"),
		EdgeEngineURL:     v.GetString("EDGE_ENGINE_URL"),
		PublishStrategy:   v.GetString("PUBLISH_STRATEGY"),
		TursoDBURL:        v.GetString("TURSO_DB_URL"),
		TursoDBToken:      v.GetString("TURSO_DB_TOKEN"),
		UpstashRedisURL:   v.GetString("UPSTASH_REDIS_URL"),
		UpstashRedisToken: v.GetString("UPSTASH_REDIS_TOKEN"),
		EncryptionKey:     v.GetString("ENCRYPTION_KEY"),
		AdminEmail:        v.GetString("ADMIN_EMAIL"),
		AdminPassword:     v.GetString("ADMIN_PASSWORD"),
		IconCDNURL:        v.GetString("ICON_CDN_URL"),
		Debug:             v.GetBool("DEBUG"),
	}

	// DB_PASSWORD lets deployments keep the password out of the URL.
	if pw := v.GetString("DB_PASSWORD"); pw != "" && cfg.DatabaseURL != "" {
		cfg.DatabaseURL = strings.ReplaceAll(cfg.DatabaseURL, "${DB_PASSWORD}", pw)
	}

	for _, o := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	switch cfg.PublishStrategy {
	case StrategyLocal, StrategyTurso:
	default:
		return nil, fmt.Errorf("invalid PUBLISH_STRATEGY %q: must be %q or %q",
			cfg.PublishStrategy, StrategyLocal, StrategyTurso)
	}
	if cfg.PublishStrategy == StrategyTurso && cfg.TursoDBURL == "" {
		return nil, fmt.Errorf("PUBLISH_STRATEGY=turso requires TURSO_DB_URL")
	}

	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
