// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package syncexec runs master→slave replication jobs. Execution is
// capture-then-flush: master records are staged in a Redis buffer first,
// then flushed to the slave one record at a time with conflict handling.
// The buffer is mandatory; when Redis is unreachable the job fails fast
// instead of degrading to in-memory state.
package syncexec

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/types"
)

const (
	defaultStateTTL  = 4 * time.Hour
	defaultBatchSize = 100
	webhookTimeout   = 30 * time.Second
)

// ErrBufferUnavailable reports that the Redis capture buffer could not be
// reached at job start.
var ErrBufferUnavailable = errors.New("sync buffer unavailable")

// Executor dispatches and runs sync jobs for configured replication pairs.
type Executor struct {
	store   *store.Store
	kv      redis.UniversalClient
	log     logr.Logger
	ttl     time.Duration
	client  *http.Client
	connect func(ctx context.Context, ds *types.Datasource, log logr.Logger) (adapter.Adapter, error)
}

// New builds an executor over the given store and Redis client.
func New(st *store.Store, kv redis.UniversalClient, log logr.Logger) *Executor {
	return &Executor{
		store:   st,
		kv:      kv,
		log:     log.WithName("syncexec"),
		ttl:     defaultStateTTL,
		client:  &http.Client{Timeout: webhookTimeout},
		connect: adapter.Connected,
	}
}

// Dispatch creates a job in pending state and runs it in the background.
// The returned job reflects the state at creation, not completion.
func (e *Executor) Dispatch(ctx context.Context, configID, triggeredBy string) (*types.SyncJob, error) {
	cfg, err := e.store.GetSyncConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	job := &types.SyncJob{
		ID:           uuid.NewString(),
		SyncConfigID: cfg.ID,
		Status:       types.JobPending,
		TriggeredBy:  triggeredBy,
		CreatedAt:    time.Now().UTC(),
	}
	if err := e.store.CreateSyncJob(ctx, job); err != nil {
		return nil, err
	}
	go func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := e.Execute(runCtx, cfg, job); err != nil {
			e.log.Error(err, "sync job failed", "job", job.ID, "config", cfg.ID)
		}
	}()
	return job, nil
}

// Execute runs one job to a terminal status. Per-record failures increment
// the error counter and the job continues; orchestration failures mark the
// job failed and are returned.
func (e *Executor) Execute(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob) error {
	if e.kv == nil {
		return e.fail(ctx, job, ErrBufferUnavailable)
	}
	if err := e.kv.Ping(ctx).Err(); err != nil {
		return e.fail(ctx, job, fmt.Errorf("%w: %v", ErrBufferUnavailable, err))
	}

	master, slave, err := e.connectPair(ctx, cfg)
	if err != nil {
		return e.fail(ctx, job, err)
	}
	defer master.Close()
	defer slave.Close()

	filters, err := e.masterFilters(ctx, cfg)
	if err != nil {
		return e.fail(ctx, job, err)
	}

	now := time.Now().UTC()
	job.Status = types.JobRunning
	job.StartedAt = &now
	total, err := master.CountRecords(ctx, cfg.MasterTable, filters)
	if err != nil {
		return e.fail(ctx, job, fmt.Errorf("counting master records: %w", err))
	}
	job.TotalRecords = total
	if err := e.store.UpdateSyncJob(ctx, job); err != nil {
		return e.fail(ctx, job, err)
	}

	mapper := newFieldMapper(cfg)
	buf := &captureBuffer{kv: e.kv, job: job.ID, ttl: e.ttl}
	defer buf.clear(context.WithoutCancel(ctx))

	if err := e.capture(ctx, cfg, job, master, mapper, buf, filters); err != nil {
		return e.fail(ctx, job, err)
	}
	if err := e.flush(ctx, cfg, job, slave, mapper, buf); err != nil {
		return e.fail(ctx, job, err)
	}
	if cfg.SyncDeletes {
		if err := e.deleteOrphans(ctx, cfg, job, slave, mapper, buf); err != nil {
			return e.fail(ctx, job, err)
		}
	}

	done := time.Now().UTC()
	job.Status = types.JobCompleted
	job.CompletedAt = &done
	if err := e.store.UpdateSyncJob(ctx, job); err != nil {
		return err
	}
	e.log.Info("sync job completed", "job", job.ID, "config", cfg.ID,
		"processed", job.Processed, "inserted", job.Inserted, "updated", job.Updated,
		"deleted", job.Deleted, "conflicts", job.Conflicts, "errors", job.Errors)
	return nil
}

func (e *Executor) connectPair(ctx context.Context, cfg *types.SyncConfig) (adapter.Adapter, adapter.Adapter, error) {
	masterDS, err := e.store.GetDatasource(ctx, cfg.MasterDatasource)
	if err != nil {
		return nil, nil, fmt.Errorf("loading master datasource: %w", err)
	}
	slaveDS, err := e.store.GetDatasource(ctx, cfg.SlaveDatasource)
	if err != nil {
		return nil, nil, fmt.Errorf("loading slave datasource: %w", err)
	}
	master, err := e.connect(ctx, masterDS, e.log)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting master: %w", err)
	}
	slave, err := e.connect(ctx, slaveDS, e.log)
	if err != nil {
		master.Close()
		return nil, nil, fmt.Errorf("connecting slave: %w", err)
	}
	return master, slave, nil
}

// masterFilters resolves the filter set the master read uses. A config bound
// to a view inherits that view's filters.
func (e *Executor) masterFilters(ctx context.Context, cfg *types.SyncConfig) ([]types.FilterExpr, error) {
	if cfg.MasterViewID == "" {
		return nil, nil
	}
	view, err := e.store.GetView(ctx, cfg.MasterViewID)
	if err != nil {
		return nil, fmt.Errorf("loading master view: %w", err)
	}
	return view.Filters, nil
}

// capture pages through the master table and stages every record in the
// buffer keyed by its mapped identity.
func (e *Executor) capture(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	master adapter.Adapter, mapper *fieldMapper, buf *captureBuffer, filters []types.FilterExpr) error {

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for offset := 0; ; offset += batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		recs, err := master.ReadRecords(ctx, cfg.MasterTable, types.ReadOptions{
			Where:          filters,
			Limit:          batch,
			Offset:         offset,
			OrderBy:        mapper.key.MasterColumn,
			OrderDirection: "asc",
		})
		if err != nil {
			return fmt.Errorf("reading master page at offset %d: %w", offset, err)
		}
		for _, rec := range recs {
			key := mapper.masterKey(rec)
			if key == "" {
				job.Errors++
				e.log.V(1).Info("master record without key skipped", "job", job.ID)
				continue
			}
			if err := buf.capture(ctx, key, rec); err != nil {
				return err
			}
		}
		if len(recs) < batch {
			return e.store.UpdateSyncJob(ctx, job)
		}
	}
}

// flush replays the buffer against the slave. Records in agreement are left
// alone; new records are inserted; diverging records go through the conflict
// resolver.
func (e *Executor) flush(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	slave adapter.Adapter, mapper *fieldMapper, buf *captureBuffer) error {

	keys, err := buf.keys(ctx)
	if err != nil {
		return err
	}
	keyCol := mapper.slaveKeyColumn()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry, err := buf.get(ctx, key)
		if err != nil {
			return err
		}
		job.Processed++
		if err := e.flushRecord(ctx, cfg, job, slave, mapper, keyCol, key, entry.Data); err != nil {
			job.Errors++
			e.log.Error(err, "record sync failed", "job", job.ID, "key", key)
		}
	}
	return e.store.UpdateSyncJob(ctx, job)
}

func (e *Executor) flushRecord(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	slave adapter.Adapter, mapper *fieldMapper, keyCol, key string, masterRec adapter.Record) error {

	keyVal := masterRec[mapper.key.MasterColumn]
	existing, err := slave.ReadRecordByKey(ctx, cfg.SlaveTable, keyCol, keyVal)
	if err != nil && !adapter.IsNotFound(err) {
		return fmt.Errorf("reading slave record: %w", err)
	}

	mapped := mapper.apply(masterRec, existing)
	mapped[keyCol] = keyVal

	if existing == nil {
		if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, mapped, keyCol); err != nil {
			return fmt.Errorf("inserting slave record: %w", err)
		}
		job.Inserted++
		return nil
	}

	nonKey := make(adapter.Record, len(mapped))
	for col, v := range mapped {
		if col != keyCol {
			nonKey[col] = v
		}
	}
	conflicting := mapper.diff(nonKey, existing)
	if len(conflicting) == 0 {
		// Records already in agreement are not rewritten, so a sync over
		// identical data reports updated=0 and touches no slave rows.
		return nil
	}
	return e.resolve(ctx, cfg, job, slave, keyCol, key, mapped, existing, conflicting)
}

// deleteOrphans removes slave records whose key is absent from the captured
// master set.
func (e *Executor) deleteOrphans(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	slave adapter.Adapter, mapper *fieldMapper, buf *captureBuffer) error {

	keys, err := buf.keys(ctx)
	if err != nil {
		return err
	}
	captured := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		captured[k] = struct{}{}
	}

	keyCol := mapper.slaveKeyColumn()
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	var orphans []any
	for offset := 0; ; offset += batch {
		recs, err := slave.ReadRecords(ctx, cfg.SlaveTable, types.ReadOptions{
			Columns:        []string{keyCol},
			Limit:          batch,
			Offset:         offset,
			OrderBy:        keyCol,
			OrderDirection: "asc",
		})
		if err != nil {
			return fmt.Errorf("enumerating slave keys: %w", err)
		}
		for _, rec := range recs {
			if _, ok := captured[canonical(rec[keyCol])]; !ok {
				orphans = append(orphans, rec[keyCol])
			}
		}
		if len(recs) < batch {
			break
		}
	}

	for _, keyVal := range orphans {
		deleted, err := slave.DeleteRecord(ctx, cfg.SlaveTable, keyCol, keyVal)
		if err != nil {
			job.Errors++
			e.log.Error(err, "orphan delete failed", "job", job.ID, "key", keyVal)
			continue
		}
		if deleted {
			job.Deleted++
		}
	}
	return e.store.UpdateSyncJob(ctx, job)
}

// fail marks the job terminally failed and returns the cause.
func (e *Executor) fail(ctx context.Context, job *types.SyncJob, cause error) error {
	now := time.Now().UTC()
	job.Status = types.JobFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &now
	if err := e.store.UpdateSyncJob(context.WithoutCancel(ctx), job); err != nil {
		e.log.Error(err, "persisting failed job state", "job", job.ID)
	}
	return cause
}
