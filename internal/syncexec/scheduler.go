// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package syncexec

import (
	"context"
	"sync"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"

	"github.com/frontbase/frontbase/internal/store"
)

// Scheduler dispatches active sync configs on their cron schedules. Reload
// rebuilds the entry table, call it whenever configs change.
type Scheduler struct {
	exec  *Executor
	store *store.Store
	log   logr.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
}

func NewScheduler(exec *Executor, st *store.Store, log logr.Logger) *Scheduler {
	return &Scheduler{
		exec:    exec,
		store:   st,
		log:     log.WithName("sync-scheduler"),
		cron:    cron.New(),
		entries: map[string]cron.EntryID{},
	}
}

// Start registers every active scheduled config and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Reload re-registers schedules from the store. Configs without a
// cron_schedule or flagged inactive are dropped.
func (s *Scheduler) Reload(ctx context.Context) error {
	configs, err := s.store.ListSyncConfigs(ctx, true)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	for _, cfg := range configs {
		if cfg.CronSchedule == "" {
			continue
		}
		configID := cfg.ID
		entry, err := s.cron.AddFunc(cfg.CronSchedule, func() {
			if _, err := s.exec.Dispatch(context.Background(), configID, "schedule"); err != nil {
				s.log.Error(err, "scheduled dispatch failed", "config", configID)
			}
		})
		if err != nil {
			s.log.Error(err, "invalid cron schedule skipped", "config", cfg.ID, "schedule", cfg.CronSchedule)
			continue
		}
		s.entries[cfg.ID] = entry
	}
	s.log.V(1).Info("schedules loaded", "count", len(s.entries))
	return nil
}

// Stop halts the ticker and waits for running dispatch callbacks.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
