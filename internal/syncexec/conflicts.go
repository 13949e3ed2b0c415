// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package syncexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/types"
)

// resolve applies the config's conflict strategy to one diverging record.
// master is the slave-shaped mapped record, slave the record currently stored.
func (e *Executor) resolve(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	slave adapter.Adapter, keyCol, key string, master, current adapter.Record, fields []string) error {

	switch cfg.ConflictStrategy {
	case types.StrategySourceWins:
		if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, master, keyCol); err != nil {
			return fmt.Errorf("applying source_wins: %w", err)
		}
		job.Updated++
		return nil

	case types.StrategyTargetWins:
		return nil

	case types.StrategyMerge:
		merged := mergeRecords(current, master, fields)
		if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, merged, keyCol); err != nil {
			return fmt.Errorf("applying merge: %w", err)
		}
		job.Updated++
		return nil

	case types.StrategyWebhook:
		resolved, err := e.resolveViaWebhook(ctx, cfg, key, master, current, fields)
		if err != nil {
			e.log.V(1).Info("webhook resolution escalated to manual", "job", job.ID, "key", key, "reason", err.Error())
			return e.recordConflict(ctx, cfg, job, key, master, current, fields)
		}
		resolved[keyCol] = master[keyCol]
		if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, resolved, keyCol); err != nil {
			return fmt.Errorf("applying webhook resolution: %w", err)
		}
		job.Updated++
		return e.recordResolvedConflict(ctx, cfg, job, key, master, current, fields, resolved)

	default: // manual
		return e.recordConflict(ctx, cfg, job, key, master, current, fields)
	}
}

// mergeRecords keeps the current record and overwrites only the conflicting
// fields with the master side.
func mergeRecords(current, master adapter.Record, fields []string) adapter.Record {
	merged := make(adapter.Record, len(current))
	for col, v := range current {
		merged[col] = v
	}
	for _, col := range fields {
		merged[col] = master[col]
	}
	return merged
}

// webhookConflict is the payload POSTed to a config's webhook_url.
type webhookConflict struct {
	RecordKey         string         `json:"record_key"`
	MasterData        adapter.Record `json:"master_data"`
	SlaveData         adapter.Record `json:"slave_data"`
	ConflictingFields []string       `json:"conflicting_fields"`
	ConfigID          string         `json:"config_id"`
	ConfigName        string         `json:"config_name"`
}

// resolveViaWebhook asks the configured endpoint to arbitrate. Any transport
// failure, non-2xx status or response without resolved_data is an error, the
// caller escalates those to a manual conflict.
func (e *Executor) resolveViaWebhook(ctx context.Context, cfg *types.SyncConfig,
	key string, master, current adapter.Record, fields []string) (adapter.Record, error) {

	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("no webhook_url configured")
	}
	body, err := json.Marshal(webhookConflict{
		RecordKey:         key,
		MasterData:        master,
		SlaveData:         current,
		ConflictingFields: fields,
		ConfigID:          cfg.ID,
		ConfigName:        cfg.Name,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	var out struct {
		ResolvedData adapter.Record `json:"resolved_data"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding webhook response: %w", err)
	}
	if out.ResolvedData == nil {
		return nil, fmt.Errorf("webhook response missing resolved_data")
	}
	return out.ResolvedData, nil
}

func (e *Executor) recordConflict(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	key string, master, current adapter.Record, fields []string) error {

	c := &types.Conflict{
		ID:                uuid.NewString(),
		SyncConfigID:      cfg.ID,
		JobID:             job.ID,
		RecordKey:         key,
		MasterData:        master,
		SlaveData:         current,
		ConflictingFields: fields,
		Status:            types.ConflictPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.store.CreateConflict(ctx, c); err != nil {
		return fmt.Errorf("recording conflict: %w", err)
	}
	job.Conflicts++
	return nil
}

func (e *Executor) recordResolvedConflict(ctx context.Context, cfg *types.SyncConfig, job *types.SyncJob,
	key string, master, current adapter.Record, fields []string, resolved adapter.Record) error {

	c := &types.Conflict{
		ID:                uuid.NewString(),
		SyncConfigID:      cfg.ID,
		JobID:             job.ID,
		RecordKey:         key,
		MasterData:        master,
		SlaveData:         current,
		ConflictingFields: fields,
		Status:            types.ConflictPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := e.store.CreateConflict(ctx, c); err != nil {
		return fmt.Errorf("recording webhook conflict: %w", err)
	}
	return e.store.ResolveConflict(ctx, c.ID, types.ConflictResolvedWebhook, resolved, "webhook")
}

// Resolution names an admin decision over a pending conflict.
type Resolution string

const (
	ResolveMaster Resolution = "master"
	ResolveSlave  Resolution = "slave"
	ResolveMerge  Resolution = "merge"
	ResolveSkip   Resolution = "skip"
)

// ApplyResolution settles a pending conflict. master and merge write to the
// slave datasource; slave and skip leave it untouched. The sync itself is
// never re-run here.
func (e *Executor) ApplyResolution(ctx context.Context, conflictID string, res Resolution,
	mergedData map[string]any, actor string) (*types.Conflict, error) {

	c, err := e.store.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	if c.Status != types.ConflictPending {
		return nil, fmt.Errorf("conflict %s already %s", conflictID, c.Status)
	}
	cfg, err := e.store.GetSyncConfig(ctx, c.SyncConfigID)
	if err != nil {
		return nil, err
	}

	var (
		status  types.ConflictStatus
		payload map[string]any
	)
	switch res {
	case ResolveMaster:
		status, payload = types.ConflictResolvedMaster, c.MasterData
	case ResolveSlave:
		status = types.ConflictResolvedSlave
	case ResolveMerge:
		merged := mergeRecords(c.SlaveData, c.MasterData, c.ConflictingFields)
		for col, v := range mergedData {
			merged[col] = v
		}
		status, payload = types.ConflictResolvedMerged, merged
	case ResolveSkip:
		status = types.ConflictSkipped
	default:
		return nil, fmt.Errorf("unknown resolution %q", res)
	}

	if payload != nil {
		if err := e.writeResolution(ctx, cfg, payload); err != nil {
			return nil, err
		}
	}
	if err := e.store.ResolveConflict(ctx, conflictID, status, payload, actor); err != nil {
		return nil, err
	}
	return e.store.GetConflict(ctx, conflictID)
}

func (e *Executor) writeResolution(ctx context.Context, cfg *types.SyncConfig, data map[string]any) error {
	ds, err := e.store.GetDatasource(ctx, cfg.SlaveDatasource)
	if err != nil {
		return fmt.Errorf("loading slave datasource: %w", err)
	}
	slave, err := e.connect(ctx, ds, e.log)
	if err != nil {
		return fmt.Errorf("connecting slave: %w", err)
	}
	defer slave.Close()
	keyCol := newFieldMapper(cfg).slaveKeyColumn()
	if _, err := slave.UpsertRecord(ctx, cfg.SlaveTable, data, keyCol); err != nil {
		return fmt.Errorf("writing resolution: %w", err)
	}
	return nil
}
