// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package strategy delivers compiled pages to their serving backend. A
// strategy is selected once per process from configuration.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/config"
	"github.com/frontbase/frontbase/internal/types"
)

// Delivery failures the REST layer maps onto distinct status codes.
var (
	// ErrUnavailable means the backend could not be reached at all.
	ErrUnavailable = errors.New("publish backend unreachable")
	// ErrTimeout means the backend did not answer within the deadline.
	ErrTimeout = errors.New("publish backend timed out")
	// ErrRejected means the backend answered with a failure status.
	ErrRejected = errors.New("publish backend rejected the page")
)

// Strategy delivers compiled pages. Implementations are safe for concurrent
// use and are invoked only after the page's database reads completed.
type Strategy interface {
	PublishPage(ctx context.Context, page *types.CompiledPage, force bool) (*types.PublishResult, error)
	UnpublishPage(ctx context.Context, slug string) error
	SyncSettings(ctx context.Context, settings types.ProjectSettings) error
}

// New selects the strategy named by PUBLISH_STRATEGY.
func New(cfg *config.Config, kv *cache.Cache, log logr.Logger) (Strategy, error) {
	switch cfg.PublishStrategy {
	case config.StrategyLocal, "":
		return NewEdgeHTTP(cfg.EdgeURL, log), nil
	case config.StrategyTurso:
		return NewHostedSQL(cfg.TursoDBURL, cfg.TursoDBToken, kv, log), nil
	default:
		return nil, fmt.Errorf("unknown publish strategy %q", cfg.PublishStrategy)
	}
}
