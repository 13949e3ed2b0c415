// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frontbase/frontbase/internal/types"
)

func redisCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := New(types.ProjectSettings{
		CacheEnabled: true,
		RedisURL:     "redis://" + mr.Addr(),
		RedisType:    types.RedisSelfHosted,
		DataTTL:      60,
		CountTTL:     300,
	}, logr.Discard())
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestQueryKeyDependsOnEveryParameter(t *testing.T) {
	base := types.ReadOptions{Limit: 10, Offset: 0, OrderBy: "id"}
	k1 := QueryKey("db.example.com", "users", base)

	changed := base
	changed.Offset = 10
	assert.NotEqual(t, k1, QueryKey("db.example.com", "users", changed))

	changed = base
	changed.Where = []types.FilterExpr{{Column: "status", Operator: types.OpEquals, Value: "active"}}
	assert.NotEqual(t, k1, QueryKey("db.example.com", "users", changed))

	assert.NotEqual(t, k1, QueryKey("other.example.com", "users", base))

	// Same parameters yield the same key, and embed the table for purging.
	assert.Equal(t, k1, QueryKey("db.example.com", "users", base))
	assert.Contains(t, k1, ":users:")
}

func TestCacheRoundTrip(t *testing.T) {
	c, _ := redisCache(t)
	ctx := context.Background()
	key := QueryKey("db", "users", types.ReadOptions{Limit: 10})

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.SetData(ctx, key, []byte(`[{"id":1}]`))
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.JSONEq(t, `[{"id":1}]`, string(got))
}

func TestCacheSurvivesMemoryEviction(t *testing.T) {
	c, _ := redisCache(t)
	ctx := context.Background()
	key := QueryKey("db", "users", types.ReadOptions{})

	c.SetData(ctx, key, []byte(`"v"`))
	c.mem.clear()

	// KV tier still answers and refills the memory tier.
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, `"v"`, string(got))
	_, ok = c.mem.get(key)
	assert.True(t, ok)
}

func TestPurgeTableIsScoped(t *testing.T) {
	c, _ := redisCache(t)
	ctx := context.Background()

	usersKey := QueryKey("db", "users", types.ReadOptions{})
	ordersKey := QueryKey("db", "orders", types.ReadOptions{})
	c.SetData(ctx, usersKey, []byte("1"))
	c.SetData(ctx, ordersKey, []byte("2"))

	c.PurgeTable(ctx, "users")

	_, ok := c.Get(ctx, usersKey)
	assert.False(t, ok)
	_, ok = c.Get(ctx, ordersKey)
	assert.True(t, ok)
}

func TestCountTTLLongerThanData(t *testing.T) {
	c, mr := redisCache(t)
	ctx := context.Background()

	dataKey := QueryKey("db", "users", types.ReadOptions{})
	countKey := CountKey("db", "users", nil)
	c.SetData(ctx, dataKey, []byte("d"))
	c.SetCount(ctx, countKey, []byte("9"))

	assert.Equal(t, 60*time.Second, mr.TTL(dataKey))
	assert.Equal(t, 300*time.Second, mr.TTL(countKey))
}

func TestFailOpenWhenKVDown(t *testing.T) {
	c, mr := redisCache(t)
	ctx := context.Background()
	key := QueryKey("db", "users", types.ReadOptions{})

	mr.Close()
	c.mem.clear()

	// Reads miss and writes are swallowed, no error surfaces.
	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
	c.SetData(ctx, key, []byte("x"))

	// The memory tier still works on its own.
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "x", string(got))
}

func TestDisabledCacheIsNoop(t *testing.T) {
	c := New(types.ProjectSettings{CacheEnabled: false}, logr.Discard())
	ctx := context.Background()

	c.SetData(ctx, "k", []byte("v"))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.False(t, c.Enabled())
	assert.Error(t, c.Ping(ctx))
}

func TestUpstashKV(t *testing.T) {
	store := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var cmd []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))
		require.NotEmpty(t, cmd)

		switch cmd[0] {
		case "PING":
			_, _ = w.Write([]byte(`{"result":"PONG"}`))
		case "SET":
			store[cmd[1]] = cmd[2]
			_, _ = w.Write([]byte(`{"result":"OK"}`))
		case "GET":
			if v, ok := store[cmd[1]]; ok {
				resp, _ := json.Marshal(map[string]any{"result": v})
				_, _ = w.Write(resp)
			} else {
				_, _ = w.Write([]byte(`{"result":null}`))
			}
		case "DEL":
			for _, k := range cmd[1:] {
				delete(store, k)
			}
			_, _ = w.Write([]byte(`{"result":1}`))
		case "SCAN":
			keys := []string{}
			for k := range store {
				keys = append(keys, k)
			}
			resp, _ := json.Marshal(map[string]any{"result": []any{"0", keys}})
			_, _ = w.Write(resp)
		default:
			_, _ = w.Write([]byte(`{"error":"unknown command"}`))
		}
	}))
	defer srv.Close()

	kv := newUpstashKV(srv.URL, "tok")
	ctx := context.Background()

	require.NoError(t, kv.Ping(ctx))
	require.NoError(t, kv.Set(ctx, "fb:users:abc", "v1", time.Minute))

	v, ok, err := kv.Get(ctx, "fb:users:abc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	_, ok, err = kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := kv.Keys(ctx, "fb:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"fb:users:abc"}, keys)

	require.NoError(t, kv.Del(ctx, "fb:users:abc"))
	_, ok, _ = kv.Get(ctx, "fb:users:abc")
	assert.False(t, ok)
}
