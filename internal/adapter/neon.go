// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package adapter

import (
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/frontbase/frontbase/internal/types"
)

// Neon is the Postgres variant tuned for Neon serverless Postgres: smaller
// pool bounds, no statement cache, SSL required, and Neon/system tables
// filtered out of listings.
type Neon struct {
	*Postgres
}

// NewNeon builds a Neon adapter for the datasource.
func NewNeon(ds *types.Datasource, log logr.Logger) *Neon {
	p := NewPostgres(ds, log.WithName("neon"))
	p.maxOpenConns = 3
	p.maxIdleConns = 1
	p.timeout = 30 * time.Second
	p.sslmode = "require"
	// Neon poolers cannot serve the extended-protocol statement cache.
	p.disableStatementCache = true
	n := &Neon{Postgres: p}
	p.sqlBase.v = n
	return n
}

func (n *Neon) includeTable(name string) bool {
	return !strings.HasPrefix(name, "_neon") &&
		!strings.HasPrefix(name, "pg_") &&
		!strings.HasPrefix(name, "information_schema")
}
