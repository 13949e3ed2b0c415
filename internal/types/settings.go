// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

// RedisBackendType selects how the cache layer talks to its external KV.
type RedisBackendType string

const (
	RedisUpstash    RedisBackendType = "upstash"
	RedisSelfHosted RedisBackendType = "self-hosted"
)

// ProjectSettings is the singleton per-process project configuration. The
// cache-related fields drive the external KV tier; DataTTL and CountTTL are
// seconds.
type ProjectSettings struct {
	FaviconURL   string           `json:"favicon_url,omitempty"`
	LogoURL      string           `json:"logo_url,omitempty"`
	SiteName     string           `json:"site_name,omitempty"`
	Description  string           `json:"description,omitempty"`
	AppURL       string           `json:"app_url,omitempty"`
	RedisURL     string           `json:"redis_url,omitempty"`
	RedisToken   string           `json:"redis_token,omitempty"`
	RedisType    RedisBackendType `json:"redis_type,omitempty"`
	CacheEnabled bool             `json:"cache_enabled"`
	DataTTL      int              `json:"ttl_data"`
	CountTTL     int              `json:"ttl_count"`
}

// DefaultSettings returns settings with the documented TTL defaults.
func DefaultSettings() ProjectSettings {
	return ProjectSettings{
		RedisType: RedisSelfHosted,
		DataTTL:   60,
		CountTTL:  300,
	}
}
