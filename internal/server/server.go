// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package server exposes the core's REST surface: datasource management,
// schema discovery, record reads, saved views, sync operations, settings
// and the publish trigger. Responses use one envelope shape throughout.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/config"
	"github.com/frontbase/frontbase/internal/publish"
	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/schemacache"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/syncexec"
	"github.com/frontbase/frontbase/internal/types"
	"github.com/frontbase/frontbase/internal/view"
)

// Server wires the service layer to the HTTP surface.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	schemas   *schemacache.Service
	views     *view.Service
	syncer    *syncexec.Executor
	scheduler *syncexec.Scheduler
	publisher *publish.Publisher
	strategy  strategy.Strategy
	log       logr.Logger
	validate  *validator.Validate
	router    chi.Router

	// The cache tier is rebuilt whenever Redis settings change.
	cacheMu sync.RWMutex
	cache   *cache.Cache

	connect func(ctx context.Context, ds *types.Datasource, log logr.Logger) (adapter.Adapter, error)
}

// Deps carries the constructed service layer into the server.
type Deps struct {
	Store     *store.Store
	Schemas   *schemacache.Service
	Views     *view.Service
	Syncer    *syncexec.Executor
	Scheduler *syncexec.Scheduler
	Publisher *publish.Publisher
	Strategy  strategy.Strategy
	Cache     *cache.Cache
}

func New(cfg *config.Config, deps Deps, log logr.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		schemas:   deps.Schemas,
		views:     deps.Views,
		syncer:    deps.Syncer,
		scheduler: deps.Scheduler,
		publisher: deps.Publisher,
		strategy:  deps.Strategy,
		cache:     deps.Cache,
		log:       log.WithName("server"),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		connect:   adapter.Connected,
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Trailing slashes are equivalent everywhere.
	r.Use(middleware.StripSlashes)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/sync", func(r chi.Router) {
		r.Route("/datasources", func(r chi.Router) {
			r.Get("/", s.listDatasources)
			r.Post("/", s.createDatasource)
			r.Post("/test-raw", s.testRawDatasource)
			r.Get("/search-all", s.searchAllDatasources)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getDatasource)
				r.Put("/", s.updateDatasource)
				r.Delete("/", s.deleteDatasource)
				r.Post("/test", s.testDatasource)
				r.Post("/test-update", s.testUpdateDatasource)
				r.Get("/tables", s.listTables)
				r.Get("/relationships", s.listRelationships)
				r.Get("/search", s.searchDatasource)
				r.Get("/views", s.listViews)
				r.Post("/views", s.createView)

				r.Route("/tables/{table}", func(r chi.Router) {
					r.Get("/schema", s.getTableSchema)
					r.Get("/data", s.readTableData)
					r.Get("/distinct/{column}", s.distinctValues)
					r.Post("/records", s.upsertRecord)
					r.Patch("/records", s.upsertRecord)
					r.Post("/records/{recordID}", s.upsertRecordByID)
					r.Patch("/records/{recordID}", s.upsertRecordByID)
					r.Delete("/records/{recordID}", s.deleteRecord)
				})
			})
		})

		r.Route("/views/{viewID}", func(r chi.Router) {
			r.Get("/", s.getView)
			r.Patch("/", s.updateView)
			r.Delete("/", s.deleteView)
			r.Get("/records", s.readViewRecords)
			r.Get("/count", s.countViewRecords)
			r.Post("/records", s.upsertViewRecord)
			r.Patch("/records", s.upsertViewRecord)
			r.Post("/trigger", s.triggerView)
		})

		r.Route("/configs", func(r chi.Router) {
			r.Get("/", s.listSyncConfigs)
			r.Post("/", s.createSyncConfig)
			r.Route("/{configID}", func(r chi.Router) {
				r.Get("/", s.getSyncConfig)
				r.Put("/", s.updateSyncConfig)
				r.Delete("/", s.deleteSyncConfig)
				r.Get("/jobs", s.listSyncJobs)
			})
		})

		r.Route("/operations", func(r chi.Router) {
			r.Post("/{configID}", s.dispatchSync)
			r.Get("/{jobID}/status", s.syncJobStatus)
			r.Get("/{configID}/conflicts", s.listSyncConflicts)
			r.Post("/{configID}/resolve/{conflictID}", s.resolveSyncConflict)
		})

		r.Post("/webhooks/{provider}/{configID}", s.webhookDispatch)

		r.Route("/settings/redis", func(r chi.Router) {
			r.Get("/", s.getRedisSettings)
			r.Put("/", s.putRedisSettings)
			r.Post("/test", s.testRedisSettings)
		})
	})

	r.Route("/api/pages", func(r chi.Router) {
		r.Post("/{pageID}/publish", s.publishPage)
		r.Post("/{pageID}/unpublish", s.unpublishPage)
		r.Get("/public/{slug}", s.publicPage)
	})

	s.router = r
}

// currentCache returns the live cache tier.
func (s *Server) currentCache() *cache.Cache {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.cache
}

// swapCache replaces the cache tier after a settings write and closes the
// previous one.
func (s *Server) swapCache(c *cache.Cache) {
	s.cacheMu.Lock()
	old := s.cache
	s.cache = c
	s.cacheMu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}
