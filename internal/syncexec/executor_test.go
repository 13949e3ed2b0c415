// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package syncexec

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/adapter"
	"github.com/frontbase/frontbase/internal/secrets"
	"github.com/frontbase/frontbase/internal/store"
	"github.com/frontbase/frontbase/internal/testutil"
	"github.com/frontbase/frontbase/internal/types"
)

type fixture struct {
	exec   *Executor
	st     *store.Store
	mr     *miniredis.Miniredis
	master *testutil.FakeAdapter
	slave  *testutil.FakeAdapter
	cfg    *types.SyncConfig
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	box, err := secrets.New("test-key", dir)
	require.NoError(t, err)
	st, err := store.Open(ctx, "", dir, box, logr.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	kv := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = kv.Close() })

	masterDS := &types.Datasource{Name: "master", Kind: types.KindPostgres, Active: true}
	slaveDS := &types.Datasource{Name: "slave", Kind: types.KindPostgres, Active: true}
	require.NoError(t, st.CreateDatasource(ctx, masterDS))
	require.NoError(t, st.CreateDatasource(ctx, slaveDS))

	master := testutil.NewFakeAdapter()
	slave := testutil.NewFakeAdapter()
	master.Tables["articles"] = nil
	slave.Tables["articles"] = nil

	exec := New(st, kv, logr.Discard())
	exec.connect = func(_ context.Context, ds *types.Datasource, _ logr.Logger) (adapter.Adapter, error) {
		if ds.ID == masterDS.ID {
			return master, nil
		}
		return slave, nil
	}

	cfg := &types.SyncConfig{
		Name:             "articles",
		MasterDatasource: masterDS.ID,
		SlaveDatasource:  slaveDS.ID,
		MasterTable:      "articles",
		SlaveTable:       "articles",
		ConflictStrategy: types.StrategySourceWins,
		BatchSize:        2,
		Active:           true,
		FieldMappings: []types.FieldMapping{
			{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
			{MasterColumn: "title", SlaveColumn: "title"},
			{MasterColumn: "status", SlaveColumn: "status"},
		},
	}
	require.NoError(t, st.CreateSyncConfig(ctx, cfg))

	return &fixture{exec: exec, st: st, mr: mr, master: master, slave: slave, cfg: cfg}
}

func (f *fixture) run(t *testing.T) *types.SyncJob {
	t.Helper()
	ctx := context.Background()
	job := &types.SyncJob{SyncConfigID: f.cfg.ID, Status: types.JobPending, TriggeredBy: "manual"}
	require.NoError(t, f.st.CreateSyncJob(ctx, job))
	require.NoError(t, f.exec.Execute(ctx, f.cfg, job))
	return job
}

func TestExecuteInsertsMissingRecords(t *testing.T) {
	f := newFixture(t)
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 1, "title": "Hello", "status": "draft"},
		{"id": 2, "title": "World", "status": "published"},
		{"id": 3, "title": "Third", "status": "draft"},
	}

	job := f.run(t)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 3, job.TotalRecords)
	assert.Equal(t, 3, job.Processed)
	assert.Equal(t, 3, job.Inserted)
	assert.Zero(t, job.Updated)
	assert.Zero(t, job.Conflicts)
	assert.Len(t, f.slave.Tables["articles"], 3)
}

func TestExecuteSourceWinsUpdatesConflictingRecord(t *testing.T) {
	f := newFixture(t)
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 42, "title": "New", "status": "published"},
	}
	f.slave.Tables["articles"] = []adapter.Record{
		{"id": 42, "title": "Old", "status": "published"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Updated)
	assert.Zero(t, job.Conflicts)
	rec, err := f.slave.ReadRecordByKey(context.Background(), "articles", "id", 42)
	require.NoError(t, err)
	assert.Equal(t, "New", rec["title"])
	assert.Equal(t, "published", rec["status"])
}

func TestExecuteAgreementIsNoop(t *testing.T) {
	f := newFixture(t)
	f.cfg.SyncDeletes = true
	// Numeric cross-typing and trailing whitespace must not read as drift.
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 7, "title": "Same", "status": "1"},
	}
	f.slave.Tables["articles"] = []adapter.Record{
		{"id": "7", "title": "Same ", "status": 1},
	}

	job := f.run(t)

	assert.Equal(t, types.JobCompleted, job.Status)
	assert.Equal(t, 1, job.Processed)
	assert.Zero(t, job.Inserted)
	assert.Zero(t, job.Updated)
	assert.Zero(t, job.Deleted)
	assert.Zero(t, job.Conflicts)
	assert.Empty(t, f.slave.Upserts)
}

func TestExecuteManualConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.ConflictStrategy = types.StrategyManual
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 42, "title": "New", "status": "published"},
	}
	f.slave.Tables["articles"] = []adapter.Record{
		{"id": 42, "title": "Old", "status": "published"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Conflicts)
	assert.Zero(t, job.Updated)

	// Slave untouched.
	rec, err := f.slave.ReadRecordByKey(ctx, "articles", "id", 42)
	require.NoError(t, err)
	assert.Equal(t, "Old", rec["title"])

	conflicts, err := f.st.ListConflicts(ctx, f.cfg.ID, "", types.ConflictPending)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	c := conflicts[0]
	assert.Equal(t, "42", c.RecordKey)
	assert.Equal(t, []string{"title"}, c.ConflictingFields)
	assert.Equal(t, types.ConflictPending, c.Status)
}

func TestApplyResolutionMaster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.cfg.ConflictStrategy = types.StrategyManual
	f.master.Tables["articles"] = []adapter.Record{{"id": 42, "title": "New", "status": "published"}}
	f.slave.Tables["articles"] = []adapter.Record{{"id": 42, "title": "Old", "status": "published"}}
	f.run(t)

	conflicts, err := f.st.ListConflicts(ctx, f.cfg.ID, "", types.ConflictPending)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	resolved, err := f.exec.ApplyResolution(ctx, conflicts[0].ID, ResolveMaster, nil, "admin")
	require.NoError(t, err)
	assert.Equal(t, types.ConflictResolvedMaster, resolved.Status)
	assert.Equal(t, "admin", resolved.ResolvedBy)
	require.NotNil(t, resolved.ResolvedAt)

	rec, err := f.slave.ReadRecordByKey(ctx, "articles", "id", 42)
	require.NoError(t, err)
	assert.Equal(t, "New", rec["title"])

	// Terminal statuses are final.
	_, err = f.exec.ApplyResolution(ctx, conflicts[0].ID, ResolveSkip, nil, "admin")
	assert.Error(t, err)
}

func TestExecuteMergeOverwritesOnlyConflictingFields(t *testing.T) {
	f := newFixture(t)
	f.cfg.ConflictStrategy = types.StrategyMerge
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 5, "title": "Master title", "status": "draft"},
	}
	f.slave.Tables["articles"] = []adapter.Record{
		{"id": 5, "title": "Slave title", "status": "draft", "local_note": "keep me"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Updated)
	rec, err := f.slave.ReadRecordByKey(context.Background(), "articles", "id", 5)
	require.NoError(t, err)
	assert.Equal(t, "Master title", rec["title"])
	assert.Equal(t, "draft", rec["status"])
	assert.Equal(t, "keep me", rec["local_note"])
}

func TestExecuteWebhookResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in webhookConflict
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "42", in.RecordKey)
		assert.Equal(t, []string{"title"}, in.ConflictingFields)
		json.NewEncoder(w).Encode(map[string]any{
			"resolved_data": map[string]any{"id": 42, "title": "Arbitrated", "status": "published"},
		})
	}))
	defer srv.Close()

	f.cfg.ConflictStrategy = types.StrategyWebhook
	f.cfg.WebhookURL = srv.URL
	f.master.Tables["articles"] = []adapter.Record{{"id": 42, "title": "New", "status": "published"}}
	f.slave.Tables["articles"] = []adapter.Record{{"id": 42, "title": "Old", "status": "published"}}

	job := f.run(t)

	assert.Equal(t, 1, job.Updated)
	assert.Zero(t, job.Conflicts)
	rec, err := f.slave.ReadRecordByKey(ctx, "articles", "id", 42)
	require.NoError(t, err)
	assert.Equal(t, "Arbitrated", rec["title"])

	conflicts, err := f.st.ListConflicts(ctx, f.cfg.ID, "", types.ConflictResolvedWebhook)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "webhook", conflicts[0].ResolvedBy)
}

func TestExecuteWebhookFailureEscalatesToManual(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f.cfg.ConflictStrategy = types.StrategyWebhook
	f.cfg.WebhookURL = srv.URL
	f.master.Tables["articles"] = []adapter.Record{{"id": 42, "title": "New", "status": "published"}}
	f.slave.Tables["articles"] = []adapter.Record{{"id": 42, "title": "Old", "status": "published"}}

	job := f.run(t)

	assert.Equal(t, 1, job.Conflicts)
	rec, err := f.slave.ReadRecordByKey(context.Background(), "articles", "id", 42)
	require.NoError(t, err)
	assert.Equal(t, "Old", rec["title"])

	conflicts, err := f.st.ListConflicts(context.Background(), f.cfg.ID, "", types.ConflictPending)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestExecuteSyncDeletesRemovesOrphans(t *testing.T) {
	f := newFixture(t)
	f.cfg.SyncDeletes = true
	f.master.Tables["articles"] = []adapter.Record{{"id": 1, "title": "Keep", "status": "draft"}}
	f.slave.Tables["articles"] = []adapter.Record{
		{"id": 1, "title": "Keep", "status": "draft"},
		{"id": 99, "title": "Orphan", "status": "draft"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Deleted)
	assert.Len(t, f.slave.Tables["articles"], 1)
	assert.Equal(t, []any{99}, f.slave.Deletes)
}

func TestExecuteTransformMapping(t *testing.T) {
	f := newFixture(t)
	f.cfg.FieldMappings = []types.FieldMapping{
		{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
		{MasterColumn: "first", SlaveColumn: "full_name", Transform: `{{master["first"]}} {{master["last"]}}`},
		{MasterColumn: "secret", SlaveColumn: "secret", SkipSync: true},
	}
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 1, "first": "Ada", "last": "Lovelace", "secret": "hidden"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Inserted)
	rec, err := f.slave.ReadRecordByKey(context.Background(), "articles", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", rec["full_name"])
	_, hasSecret := rec["secret"]
	assert.False(t, hasSecret)
}

func TestExecuteBareNameTransformReadsMasterValue(t *testing.T) {
	f := newFixture(t)
	f.cfg.FieldMappings = []types.FieldMapping{
		{MasterColumn: "id", SlaveColumn: "id", IsKeyField: true},
		{MasterColumn: "email", SlaveColumn: "contact", Transform: "email"},
	}
	f.master.Tables["articles"] = []adapter.Record{
		{"id": 1, "email": "ada@example.com"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.Inserted)
	rec, err := f.slave.ReadRecordByKey(context.Background(), "articles", "id", 1)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", rec["contact"])
}

func TestExecuteFailsFastWhenBufferDown(t *testing.T) {
	f := newFixture(t)
	f.master.Tables["articles"] = []adapter.Record{{"id": 1, "title": "x", "status": "draft"}}
	f.mr.Close()

	ctx := context.Background()
	job := &types.SyncJob{SyncConfigID: f.cfg.ID, Status: types.JobPending, TriggeredBy: "manual"}
	require.NoError(t, f.st.CreateSyncJob(ctx, job))

	err := f.exec.Execute(ctx, f.cfg, job)
	require.ErrorIs(t, err, ErrBufferUnavailable)

	stored, err := f.st.GetSyncJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "sync buffer unavailable")
	assert.Empty(t, f.slave.Upserts)
}

func TestDispatchCreatesPendingJob(t *testing.T) {
	f := newFixture(t)
	f.master.Tables["articles"] = []adapter.Record{{"id": 1, "title": "x", "status": "draft"}}

	job, err := f.exec.Dispatch(context.Background(), f.cfg.ID, "webhook:n8n")
	require.NoError(t, err)
	assert.Equal(t, "webhook:n8n", job.TriggeredBy)

	require.Eventually(t, func() bool {
		stored, err := f.st.GetSyncJob(context.Background(), job.ID)
		return err == nil && stored.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMasterViewFiltersScopeTheSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	view := &types.DatasourceView{
		Name:         "published only",
		DatasourceID: f.cfg.MasterDatasource,
		TargetTable:  "articles",
		Filters:      []types.FilterExpr{{Column: "status", Operator: types.OpEquals, Value: "published"}},
	}
	require.NoError(t, f.st.CreateView(ctx, view))
	f.cfg.MasterViewID = view.ID

	f.master.Tables["articles"] = []adapter.Record{
		{"id": 1, "title": "Draft", "status": "draft"},
		{"id": 2, "title": "Live", "status": "published"},
	}

	job := f.run(t)

	assert.Equal(t, 1, job.TotalRecords)
	assert.Equal(t, 1, job.Inserted)
	assert.Len(t, f.slave.Tables["articles"], 1)
	assert.Equal(t, "Live", f.slave.Tables["articles"][0]["title"])
}

func TestCaptureBufferTTLAndCleanup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buf := &captureBuffer{kv: f.exec.kv, job: "job-1", ttl: defaultStateTTL}

	require.NoError(t, buf.capture(ctx, "42", adapter.Record{"id": 42}))
	assert.Equal(t, defaultStateTTL, f.mr.TTL("sync:job:job-1:record:42"))
	assert.Equal(t, defaultStateTTL, f.mr.TTL("sync:job:job-1:keys"))

	keys, err := buf.keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"42"}, keys)

	entry, err := buf.get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "captured", entry.Status)

	buf.clear(ctx)
	assert.False(t, f.mr.Exists("sync:job:job-1:record:42"))
	assert.False(t, f.mr.Exists("sync:job:job-1:keys"))
}

func TestLooseEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b any
		want bool
	}{
		{"int vs string", 42, "42", true},
		{"float vs int", 42.0, 42, true},
		{"nil vs empty string", nil, "", true},
		{"nil vs zero", nil, 0, false},
		{"bool vs int", true, 1, true},
		{"bool vs string", false, "false", true},
		{"trimmed strings", "x ", "x", true},
		{"different strings", "a", "b", false},
		{"different numbers", 1, 2, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, looseEqual(tc.a, tc.b))
		})
	}
}

func TestSchedulerReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sched := NewScheduler(f.exec, f.st, logr.Discard())

	f.cfg.CronSchedule = "*/5 * * * *"
	require.NoError(t, f.st.UpdateSyncConfig(ctx, f.cfg))
	require.NoError(t, sched.Reload(ctx))
	assert.Len(t, sched.entries, 1)

	// An invalid schedule is skipped rather than failing the reload.
	f.cfg.CronSchedule = "not a schedule"
	require.NoError(t, f.st.UpdateSyncConfig(ctx, f.cfg))
	require.NoError(t, sched.Reload(ctx))
	assert.Empty(t, sched.entries)
}
