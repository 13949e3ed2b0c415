// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package types

import "time"

// ConflictStrategy selects how the sync executor resolves a record whose
// mapped fields differ between master and slave.
type ConflictStrategy string

const (
	StrategySourceWins ConflictStrategy = "source_wins"
	StrategyTargetWins ConflictStrategy = "target_wins"
	StrategyManual     ConflictStrategy = "manual"
	StrategyMerge      ConflictStrategy = "merge"
	StrategyWebhook    ConflictStrategy = "webhook"
)

// FieldMapping maps one master column to one slave column, optionally through
// a transform expression. At most one mapping per config is the key field.
type FieldMapping struct {
	ID           string `json:"id,omitempty"`
	MasterColumn string `json:"master_column"`
	SlaveColumn  string `json:"slave_column"`
	Transform    string `json:"transform,omitempty"`
	IsKeyField   bool   `json:"is_key_field,omitempty"`
	SkipSync     bool   `json:"skip_sync,omitempty"`
}

// SyncConfig describes one master→slave replication pair.
type SyncConfig struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	MasterDatasource  string           `json:"master_datasource_id"`
	SlaveDatasource   string           `json:"slave_datasource_id"`
	MasterViewID      string           `json:"master_view_id,omitempty"`
	SlaveViewID       string           `json:"slave_view_id,omitempty"`
	MasterTable       string           `json:"master_table"`
	SlaveTable        string           `json:"slave_table"`
	MasterPK          string           `json:"master_pk,omitempty"`
	SlavePK           string           `json:"slave_pk,omitempty"`
	ConflictStrategy  ConflictStrategy `json:"conflict_strategy"`
	WebhookURL        string           `json:"webhook_url,omitempty"`
	SyncDeletes       bool             `json:"sync_deletes"`
	BatchSize         int              `json:"batch_size"`
	CronSchedule      string           `json:"cron_schedule,omitempty"`
	Active            bool             `json:"active"`
	FieldMappings     []FieldMapping   `json:"field_mappings"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// KeyMapping returns the mapping flagged is_key_field, or a synthetic mapping
// built from the explicit pk columns when none is flagged.
func (c *SyncConfig) KeyMapping() FieldMapping {
	for _, m := range c.FieldMappings {
		if m.IsKeyField {
			return m
		}
	}
	return FieldMapping{MasterColumn: c.MasterPK, SlaveColumn: c.SlavePK, IsKeyField: true}
}

// JobStatus is the lifecycle state of a sync job. Terminal statuses are final.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// SyncJob is one dispatched execution of a SyncConfig. Counters only ever
// increase while the job runs.
type SyncJob struct {
	ID            string     `json:"id"`
	SyncConfigID  string     `json:"sync_config_id"`
	Status        JobStatus  `json:"status"`
	TotalRecords  int        `json:"total_records"`
	Processed     int        `json:"processed_records"`
	Inserted      int        `json:"inserted_records"`
	Updated       int        `json:"updated_records"`
	Deleted       int        `json:"deleted_records"`
	Conflicts     int        `json:"conflict_records"`
	Errors        int        `json:"error_records"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	TriggeredBy   string     `json:"triggered_by"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ConflictStatus is the resolution state of a recorded conflict. A conflict
// transitions from pending to exactly one terminal status.
type ConflictStatus string

const (
	ConflictPending         ConflictStatus = "pending"
	ConflictResolvedMaster  ConflictStatus = "resolved_master"
	ConflictResolvedSlave   ConflictStatus = "resolved_slave"
	ConflictResolvedMerged  ConflictStatus = "resolved_merged"
	ConflictResolvedWebhook ConflictStatus = "resolved_webhook"
	ConflictSkipped         ConflictStatus = "skipped"
)

// Conflict records one record whose master and slave copies disagreed and
// whose strategy required a decision outside the executor.
type Conflict struct {
	ID                string         `json:"id"`
	SyncConfigID      string         `json:"sync_config_id"`
	JobID             string         `json:"job_id"`
	RecordKey         string         `json:"record_key"`
	MasterData        map[string]any `json:"master_data"`
	SlaveData         map[string]any `json:"slave_data"`
	ConflictingFields []string       `json:"conflicting_fields"`
	Status            ConflictStatus `json:"status"`
	ResolvedData      map[string]any `json:"resolved_data,omitempty"`
	ResolvedBy        string         `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time     `json:"resolved_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}
