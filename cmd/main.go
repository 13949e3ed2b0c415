// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/frontbase/frontbase/internal/cache"
	"github.com/frontbase/frontbase/internal/config"
	"github.com/frontbase/frontbase/internal/logging"
	"github.com/frontbase/frontbase/internal/publish"
	"github.com/frontbase/frontbase/internal/publish/strategy"
	"github.com/frontbase/frontbase/internal/schemacache"
	"github.com/frontbase/frontbase/internal/secrets"
	"github.com/frontbase/frontbase/internal/server"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/syncexec"
	"github.com/frontbase/frontbase/internal/types"
	"github.com/frontbase/frontbase/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		os.Stderr.WriteString("logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	box, err := secrets.New(cfg.EncryptionKey, cfg.DataDir)
	if err != nil {
		log.Error(err, "initializing secret box")
		os.Exit(1)
	}
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir, box, log)
	if err != nil {
		log.Error(err, "opening store")
		os.Exit(1)
	}
	defer func() { _ = st.Close() }()

	settings, err := st.GetSettings(ctx)
	if err != nil {
		log.Error(err, "loading project settings")
		os.Exit(1)
	}
	// Environment-provided Upstash credentials take precedence over stored
	// cache settings so hosted deployments work before any settings write.
	if cfg.UpstashRedisURL != "" {
		settings.RedisURL = cfg.UpstashRedisURL
		settings.RedisToken = cfg.UpstashRedisToken
		settings.RedisType = types.RedisUpstash
		settings.CacheEnabled = true
	}

	kv := cache.New(settings, log)
	defer func() { _ = kv.Close() }()

	schemas := schemacache.New(st, log)
	views := view.New(st, schemas, log)

	strat, err := strategy.New(cfg, kv, log)
	if err != nil {
		log.Error(err, "selecting publish strategy")
		os.Exit(1)
	}
	compiler := publish.NewCompiler(st, schemas, kv, cfg.IconCDNURL, log)
	publisher := publish.NewPublisher(st, compiler, strat, log)

	syncer := syncexec.New(st, syncBufferClient(settings, log), log)
	scheduler := syncexec.NewScheduler(syncer, st, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Error(err, "starting sync scheduler")
		os.Exit(1)
	}
	defer scheduler.Stop()

	srv := server.New(cfg, server.Deps{
		Store:     st,
		Schemas:   schemas,
		Views:     views,
		Syncer:    syncer,
		Scheduler: scheduler,
		Publisher: publisher,
		Strategy:  strat,
		Cache:     kv,
	}, log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.ListenAddr, "strategy", cfg.PublishStrategy)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err, "http server")
		os.Exit(1)
	}
	log.Info("shut down cleanly")
}

// syncBufferClient builds the Redis client backing the sync capture buffer.
// Upstash REST URLs cannot speak the Redis protocol, so those deployments
// run without a buffer and sync jobs fail fast until a TCP Redis is
// configured.
func syncBufferClient(settings types.ProjectSettings, log logr.Logger) redis.UniversalClient {
	if settings.RedisURL == "" || settings.RedisType == types.RedisUpstash {
		return nil
	}
	opts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		log.Info("invalid redis url, sync buffer disabled", "error", err.Error())
		return nil
	}
	return redis.NewClient(opts)
}
