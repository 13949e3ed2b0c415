// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

// Package cache is the two-tier query result cache: an in-process memory
// tier over an external KV (self-hosted Redis or Upstash over REST). Every
// KV failure degrades to a miss; a broken cache never fails a read.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"

	"github.com/frontbase/frontbase/internal/types"
)

const keyPrefix = "fb"

// kvClient is the external tier behind the memory cache.
type kvClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Cache serves query results keyed by their full read shape.
type Cache struct {
	mem      *memoryTier
	kv       kvClient
	enabled  bool
	ttlData  time.Duration
	ttlCount time.Duration
	log      logr.Logger
}

// New builds a cache from project settings. With caching disabled or no KV
// configured, all operations are inexpensive no-ops.
func New(settings types.ProjectSettings, log logr.Logger) *Cache {
	c := &Cache{
		mem:      newMemoryTier(),
		enabled:  settings.CacheEnabled,
		ttlData:  time.Duration(settings.DataTTL) * time.Second,
		ttlCount: time.Duration(settings.CountTTL) * time.Second,
		log:      log.WithName("cache"),
	}
	if c.ttlData <= 0 {
		c.ttlData = 60 * time.Second
	}
	if c.ttlCount <= 0 {
		c.ttlCount = 300 * time.Second
	}
	if !settings.CacheEnabled || settings.RedisURL == "" {
		return c
	}

	if settings.RedisType == types.RedisUpstash || upstashRESTURL(settings.RedisURL) {
		c.kv = newUpstashKV(settings.RedisURL, settings.RedisToken)
		return c
	}
	opts, err := redis.ParseURL(settings.RedisURL)
	if err != nil {
		log.Info("invalid redis url, external cache tier disabled", "error", err.Error())
		return c
	}
	c.kv = &redisKV{client: redis.NewClient(opts)}
	return c
}

// QueryKey derives the cache key for one read: the datasource address, the
// table and every read parameter participate, so any change misses.
func QueryKey(datasourceAddr, table string, opts types.ReadOptions) string {
	where, _ := json.Marshal(opts.Where)
	cols, _ := json.Marshal(opts.Columns)
	raw := fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s:%s",
		datasourceAddr, table, opts.Limit, opts.Offset,
		where, cols, opts.OrderBy, opts.OrderDirection)
	sum := md5.Sum([]byte(raw))
	return fmt.Sprintf("%s:%s:%s", keyPrefix, table, hex.EncodeToString(sum[:]))
}

// CountKey derives the cache key for a count over the same read shape.
func CountKey(datasourceAddr, table string, where []types.FilterExpr) string {
	raw, _ := json.Marshal(where)
	sum := md5.Sum([]byte(datasourceAddr + ":" + table + ":count:" + string(raw)))
	return fmt.Sprintf("%s:%s:count:%s", keyPrefix, table, hex.EncodeToString(sum[:]))
}

// Get checks the memory tier, then the KV. A KV hit refills the memory tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.enabled {
		return nil, false
	}
	if v, ok := c.mem.get(key); ok {
		return v, true
	}
	if c.kv == nil {
		return nil, false
	}
	v, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.log.V(1).Info("kv get failed, treating as miss", "error", err.Error())
		return nil, false
	}
	if !ok {
		return nil, false
	}
	c.mem.set(key, []byte(v), c.ttlData)
	return []byte(v), true
}

// SetData stores a query result under the data TTL.
func (c *Cache) SetData(ctx context.Context, key string, value []byte) {
	c.set(ctx, key, value, c.ttlData)
}

// SetCount stores a count result under the longer count TTL.
func (c *Cache) SetCount(ctx context.Context, key string, value []byte) {
	c.set(ctx, key, value, c.ttlCount)
}

func (c *Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if !c.enabled {
		return
	}
	c.mem.set(key, value, ttl)
	if c.kv == nil {
		return
	}
	if err := c.kv.Set(ctx, key, string(value), ttl); err != nil {
		c.log.V(1).Info("kv set failed", "error", err.Error())
	}
}

// PurgeTable drops every cached entry of one table in both tiers.
func (c *Cache) PurgeTable(ctx context.Context, table string) {
	prefix := fmt.Sprintf("%s:%s:", keyPrefix, table)
	c.mem.purgePrefix(prefix)
	if c.kv == nil {
		return
	}
	keys, err := c.kv.Keys(ctx, prefix+"*")
	if err != nil {
		c.log.V(1).Info("kv scan failed during purge", "table", table, "error", err.Error())
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.kv.Del(ctx, keys...); err != nil {
		c.log.V(1).Info("kv delete failed during purge", "table", table, "error", err.Error())
	}
}

// PurgeAll clears the memory tier and every fb:* key of the KV.
func (c *Cache) PurgeAll(ctx context.Context) {
	c.mem.clear()
	if c.kv == nil {
		return
	}
	keys, err := c.kv.Keys(ctx, keyPrefix+":*")
	if err != nil || len(keys) == 0 {
		return
	}
	_ = c.kv.Del(ctx, keys...)
}

// Ping verifies the external tier end to end.
func (c *Cache) Ping(ctx context.Context) error {
	if c.kv == nil {
		return fmt.Errorf("no external cache tier configured")
	}
	return c.kv.Ping(ctx)
}

// Enabled reports whether caching is on at all.
func (c *Cache) Enabled() bool { return c.enabled }

func (c *Cache) Close() error {
	if c.kv == nil {
		return nil
	}
	return c.kv.Close()
}

// redisKV is the self-hosted tier over the standard Redis protocol.
type redisKV struct {
	client *redis.Client
}

func (r *redisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *redisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *redisKV) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

// Keys iterates with SCAN; KEYS would block a shared server.
func (r *redisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *redisKV) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return err
	}
	// Round-trip a value so auth and key access are proven, not just liveness.
	probe := keyPrefix + ":ping:probe"
	if err := r.client.Set(ctx, probe, "ok", 10*time.Second).Err(); err != nil {
		return err
	}
	return r.client.Del(ctx, probe).Err()
}

func (r *redisKV) Close() error { return r.client.Close() }

// upstashRESTURL reports whether the URL addresses an Upstash REST endpoint
// rather than a Redis socket.
func upstashRESTURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}
