// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package store is the core's own persistence: datasource registrations,
// saved views, the schema cache, sync configuration and history, pages and
// project settings. It runs on PostgreSQL when DATABASE_URL points at one,
// and falls back to an embedded SQLite file otherwise.
package store

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver" // sqlite driver
	_ "github.com/ncruces/go-sqlite3/embed"  // sqlite wasm
	"github.com/pressly/goose/v3"

	"github.com/frontbase/frontbase/internal/secrets"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps the core database. Credential fields of datasources are
// encrypted through box before they touch a row and decrypted on the way out.
type Store struct {
	db  *sqlx.DB
	log logr.Logger
	box *secrets.Box
}

// Open connects to the core database and applies pending migrations.
// databaseURL selects PostgreSQL; when empty the store uses an embedded
// SQLite file under dataDir.
func Open(ctx context.Context, databaseURL, dataDir string, box *secrets.Box, log logr.Logger) (*Store, error) {
	driver, dsn, dialect := resolveDriver(databaseURL, dataDir)

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting core database (%s): %w", driver, err)
	}
	if driver == "sqlite3" {
		// The embedded store is single-writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}

	log.Info("core database ready", "driver", driver)
	return &Store{db: db, log: log.WithName("store"), box: box}, nil
}

func resolveDriver(databaseURL, dataDir string) (driver, dsn, dialect string) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx", databaseURL, "postgres"
	}
	path := filepath.Join(dataDir, "frontbase.db")
	return "sqlite3", "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", "sqlite3"
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying pool for migrations-adjacent tooling and tests.
func (s *Store) DB() *sqlx.DB { return s.db }

// q rebinds a ?-placeholder query to the connected backend's bindvar style.
func (s *Store) q(query string) string { return s.db.Rebind(query) }
