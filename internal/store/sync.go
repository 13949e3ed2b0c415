// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frontbase/frontbase/internal/types"
)

type syncConfigRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	MasterDatasource string    `db:"master_datasource_id"`
	SlaveDatasource  string    `db:"slave_datasource_id"`
	MasterViewID     string    `db:"master_view_id"`
	SlaveViewID      string    `db:"slave_view_id"`
	MasterTable      string    `db:"master_table"`
	SlaveTable       string    `db:"slave_table"`
	MasterPK         string    `db:"master_pk"`
	SlavePK          string    `db:"slave_pk"`
	ConflictStrategy string    `db:"conflict_strategy"`
	WebhookURL       string    `db:"webhook_url"`
	SyncDeletes      bool      `db:"sync_deletes"`
	BatchSize        int       `db:"batch_size"`
	CronSchedule     string    `db:"cron_schedule"`
	Active           bool      `db:"active"`
	FieldMappings    string    `db:"field_mappings"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

const syncConfigColumns = `id, name, master_datasource_id, slave_datasource_id,
	master_view_id, slave_view_id, master_table, slave_table, master_pk, slave_pk,
	conflict_strategy, webhook_url, sync_deletes, batch_size, cron_schedule,
	active, field_mappings, created_at, updated_at`

func (r *syncConfigRow) toConfig() (*types.SyncConfig, error) {
	c := &types.SyncConfig{
		ID:               r.ID,
		Name:             r.Name,
		MasterDatasource: r.MasterDatasource,
		SlaveDatasource:  r.SlaveDatasource,
		MasterViewID:     r.MasterViewID,
		SlaveViewID:      r.SlaveViewID,
		MasterTable:      r.MasterTable,
		SlaveTable:       r.SlaveTable,
		MasterPK:         r.MasterPK,
		SlavePK:          r.SlavePK,
		ConflictStrategy: types.ConflictStrategy(r.ConflictStrategy),
		WebhookURL:       r.WebhookURL,
		SyncDeletes:      r.SyncDeletes,
		BatchSize:        r.BatchSize,
		CronSchedule:     r.CronSchedule,
		Active:           r.Active,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if err := json.Unmarshal([]byte(r.FieldMappings), &c.FieldMappings); err != nil {
		return nil, fmt.Errorf("decode field mappings: %w", err)
	}
	return c, nil
}

func syncConfigToRow(c *types.SyncConfig) (*syncConfigRow, error) {
	mappings, err := json.Marshal(c.FieldMappings)
	if err != nil {
		return nil, fmt.Errorf("encode field mappings: %w", err)
	}
	return &syncConfigRow{
		ID:               c.ID,
		Name:             c.Name,
		MasterDatasource: c.MasterDatasource,
		SlaveDatasource:  c.SlaveDatasource,
		MasterViewID:     c.MasterViewID,
		SlaveViewID:      c.SlaveViewID,
		MasterTable:      c.MasterTable,
		SlaveTable:       c.SlaveTable,
		MasterPK:         c.MasterPK,
		SlavePK:          c.SlavePK,
		ConflictStrategy: string(c.ConflictStrategy),
		WebhookURL:       c.WebhookURL,
		SyncDeletes:      c.SyncDeletes,
		BatchSize:        c.BatchSize,
		CronSchedule:     c.CronSchedule,
		Active:           c.Active,
		FieldMappings:    string(mappings),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}, nil
}

func (s *Store) CreateSyncConfig(ctx context.Context, c *types.SyncConfig) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	row, err := syncConfigToRow(c)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO sync_configs (`+syncConfigColumns+`)
		VALUES (:id, :name, :master_datasource_id, :slave_datasource_id,
			:master_view_id, :slave_view_id, :master_table, :slave_table,
			:master_pk, :slave_pk, :conflict_strategy, :webhook_url,
			:sync_deletes, :batch_size, :cron_schedule, :active,
			:field_mappings, :created_at, :updated_at)`, row)
	if err != nil {
		return fmt.Errorf("insert sync config: %w", err)
	}
	return nil
}

func (s *Store) UpdateSyncConfig(ctx context.Context, c *types.SyncConfig) error {
	c.UpdatedAt = time.Now().UTC()
	row, err := syncConfigToRow(c)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE sync_configs SET name = :name,
			master_datasource_id = :master_datasource_id,
			slave_datasource_id = :slave_datasource_id,
			master_view_id = :master_view_id, slave_view_id = :slave_view_id,
			master_table = :master_table, slave_table = :slave_table,
			master_pk = :master_pk, slave_pk = :slave_pk,
			conflict_strategy = :conflict_strategy, webhook_url = :webhook_url,
			sync_deletes = :sync_deletes, batch_size = :batch_size,
			cron_schedule = :cron_schedule, active = :active,
			field_mappings = :field_mappings, updated_at = :updated_at
		WHERE id = :id`, row)
	if err != nil {
		return fmt.Errorf("update sync config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSyncConfig(ctx context.Context, id string) (*types.SyncConfig, error) {
	var row syncConfigRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+syncConfigColumns+` FROM sync_configs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync config: %w", err)
	}
	return row.toConfig()
}

// ListSyncConfigs returns every config; activeOnly narrows to schedulable ones.
func (s *Store) ListSyncConfigs(ctx context.Context, activeOnly bool) ([]*types.SyncConfig, error) {
	query := `SELECT ` + syncConfigColumns + ` FROM sync_configs`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	var rows []syncConfigRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list sync configs: %w", err)
	}
	out := make([]*types.SyncConfig, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toConfig()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) DeleteSyncConfig(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM sync_configs WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete sync config: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// jobs

type syncJobRow struct {
	ID           string     `db:"id"`
	SyncConfigID string     `db:"sync_config_id"`
	Status       string     `db:"status"`
	TotalRecords int        `db:"total_records"`
	Processed    int        `db:"processed_records"`
	Inserted     int        `db:"inserted_records"`
	Updated      int        `db:"updated_records"`
	Deleted      int        `db:"deleted_records"`
	Conflicts    int        `db:"conflict_records"`
	Errors       int        `db:"error_records"`
	ErrorMessage string     `db:"error_message"`
	TriggeredBy  string     `db:"triggered_by"`
	StartedAt    *time.Time `db:"started_at"`
	CompletedAt  *time.Time `db:"completed_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

const syncJobColumns = `id, sync_config_id, status, total_records, processed_records,
	inserted_records, updated_records, deleted_records, conflict_records,
	error_records, error_message, triggered_by, started_at, completed_at, created_at`

func (r *syncJobRow) toJob() *types.SyncJob {
	return &types.SyncJob{
		ID:           r.ID,
		SyncConfigID: r.SyncConfigID,
		Status:       types.JobStatus(r.Status),
		TotalRecords: r.TotalRecords,
		Processed:    r.Processed,
		Inserted:     r.Inserted,
		Updated:      r.Updated,
		Deleted:      r.Deleted,
		Conflicts:    r.Conflicts,
		Errors:       r.Errors,
		ErrorMessage: r.ErrorMessage,
		TriggeredBy:  r.TriggeredBy,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
	}
}

func (s *Store) CreateSyncJob(ctx context.Context, job *types.SyncJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = types.JobPending
	}
	job.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sync_jobs (id, sync_config_id, status, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		job.ID, job.SyncConfigID, string(job.Status), job.TriggeredBy, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sync job: %w", err)
	}
	return nil
}

// UpdateSyncJob rewrites the job's status, counters and timestamps.
func (s *Store) UpdateSyncJob(ctx context.Context, job *types.SyncJob) error {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_jobs SET status = ?, total_records = ?, processed_records = ?,
			inserted_records = ?, updated_records = ?, deleted_records = ?,
			conflict_records = ?, error_records = ?, error_message = ?,
			started_at = ?, completed_at = ?
		WHERE id = ?`),
		string(job.Status), job.TotalRecords, job.Processed, job.Inserted,
		job.Updated, job.Deleted, job.Conflicts, job.Errors, job.ErrorMessage,
		job.StartedAt, job.CompletedAt, job.ID)
	if err != nil {
		return fmt.Errorf("update sync job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetSyncJob(ctx context.Context, id string) (*types.SyncJob, error) {
	var row syncJobRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+syncJobColumns+` FROM sync_jobs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get sync job: %w", err)
	}
	return row.toJob(), nil
}

// ListSyncJobs returns a config's jobs newest first, or all jobs when
// configID is empty.
func (s *Store) ListSyncJobs(ctx context.Context, configID string, limit int) ([]*types.SyncJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + syncJobColumns + ` FROM sync_jobs`
	var args []any
	if configID != "" {
		query += ` WHERE sync_config_id = ?`
		args = append(args, configID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	var rows []syncJobRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}
	out := make([]*types.SyncJob, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toJob())
	}
	return out, nil
}

// conflicts

type conflictRow struct {
	ID                string     `db:"id"`
	SyncConfigID      string     `db:"sync_config_id"`
	JobID             string     `db:"job_id"`
	RecordKey         string     `db:"record_key"`
	MasterData        string     `db:"master_data"`
	SlaveData         string     `db:"slave_data"`
	ConflictingFields string     `db:"conflicting_fields"`
	Status            string     `db:"status"`
	ResolvedData      string     `db:"resolved_data"`
	ResolvedBy        string     `db:"resolved_by"`
	ResolvedAt        *time.Time `db:"resolved_at"`
	CreatedAt         time.Time  `db:"created_at"`
}

const conflictColumns = `id, sync_config_id, job_id, record_key, master_data,
	slave_data, conflicting_fields, status, resolved_data, resolved_by,
	resolved_at, created_at`

func (r *conflictRow) toConflict() (*types.Conflict, error) {
	c := &types.Conflict{
		ID:           r.ID,
		SyncConfigID: r.SyncConfigID,
		JobID:        r.JobID,
		RecordKey:    r.RecordKey,
		Status:       types.ConflictStatus(r.Status),
		ResolvedBy:   r.ResolvedBy,
		ResolvedAt:   r.ResolvedAt,
		CreatedAt:    r.CreatedAt,
	}
	if err := decodeJSONField(r.MasterData, &c.MasterData); err != nil {
		return nil, fmt.Errorf("decode master data: %w", err)
	}
	if err := decodeJSONField(r.SlaveData, &c.SlaveData); err != nil {
		return nil, fmt.Errorf("decode slave data: %w", err)
	}
	if err := decodeJSONField(r.ResolvedData, &c.ResolvedData); err != nil {
		return nil, fmt.Errorf("decode resolved data: %w", err)
	}
	if r.ConflictingFields != "" {
		if err := json.Unmarshal([]byte(r.ConflictingFields), &c.ConflictingFields); err != nil {
			return nil, fmt.Errorf("decode conflicting fields: %w", err)
		}
	}
	return c, nil
}

func decodeJSONField(src string, dst *map[string]any) error {
	if src == "" {
		return nil
	}
	return json.Unmarshal([]byte(src), dst)
}

func (s *Store) CreateConflict(ctx context.Context, c *types.Conflict) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = types.ConflictPending
	}
	c.CreatedAt = time.Now().UTC()

	master, _ := json.Marshal(c.MasterData)
	slave, _ := json.Marshal(c.SlaveData)
	fields, _ := json.Marshal(c.ConflictingFields)

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sync_conflicts (id, sync_config_id, job_id, record_key,
			master_data, slave_data, conflicting_fields, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		c.ID, c.SyncConfigID, c.JobID, c.RecordKey,
		string(master), string(slave), string(fields), string(c.Status), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

func (s *Store) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	var row conflictRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+conflictColumns+` FROM sync_conflicts WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	return row.toConflict()
}

// ListConflicts filters by config, job and status; empty filters match all.
func (s *Store) ListConflicts(ctx context.Context, configID, jobID string, status types.ConflictStatus) ([]*types.Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM sync_conflicts WHERE 1=1`
	var args []any
	if configID != "" {
		query += ` AND sync_config_id = ?`
		args = append(args, configID)
	}
	if jobID != "" {
		query += ` AND job_id = ?`
		args = append(args, jobID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	var rows []conflictRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	out := make([]*types.Conflict, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toConflict()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// ResolveConflict transitions a pending conflict to a terminal status. A
// conflict resolves at most once.
func (s *Store) ResolveConflict(ctx context.Context, id string, status types.ConflictStatus, resolvedData map[string]any, resolvedBy string) error {
	data, err := json.Marshal(resolvedData)
	if err != nil {
		return fmt.Errorf("encode resolved data: %w", err)
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_conflicts SET status = ?, resolved_data = ?, resolved_by = ?, resolved_at = ?
		WHERE id = ? AND status = ?`),
		string(status), string(data), resolvedBy, now, id, string(types.ConflictPending))
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
