// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package syncexec

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/frontbase/frontbase/internal/adapter"
)

// capturedRecord is the buffer entry for one master record.
type capturedRecord struct {
	ID     string         `json:"id"`
	Data   adapter.Record `json:"data"`
	Status string         `json:"status"`
}

// captureBuffer stages master records in Redis between the capture and flush
// phases of a job. Entries live under sync:job:{job}:record:{key}, the key
// set under sync:job:{job}:keys, both expiring after the state TTL so an
// abandoned job leaves nothing behind.
type captureBuffer struct {
	kv  redis.UniversalClient
	job string
	ttl time.Duration
}

func (b *captureBuffer) recordKey(key string) string {
	return fmt.Sprintf("sync:job:%s:record:%s", b.job, key)
}

func (b *captureBuffer) setKey() string {
	return fmt.Sprintf("sync:job:%s:keys", b.job)
}

func (b *captureBuffer) capture(ctx context.Context, key string, data adapter.Record) error {
	payload, err := json.Marshal(capturedRecord{ID: key, Data: data, Status: "captured"})
	if err != nil {
		return fmt.Errorf("encoding captured record %q: %w", key, err)
	}
	pipe := b.kv.TxPipeline()
	pipe.Set(ctx, b.recordKey(key), payload, b.ttl)
	pipe.SAdd(ctx, b.setKey(), key)
	pipe.Expire(ctx, b.setKey(), b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("writing capture buffer: %w", err)
	}
	return nil
}

func (b *captureBuffer) keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.SMembers(ctx, b.setKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("reading captured key set: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (b *captureBuffer) get(ctx context.Context, key string) (*capturedRecord, error) {
	raw, err := b.kv.Get(ctx, b.recordKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading captured record %q: %w", key, err)
	}
	var rec capturedRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decoding captured record %q: %w", key, err)
	}
	return &rec, nil
}

// clear drops the buffer after a job finishes. Best effort, the TTL covers
// anything a failed delete leaves behind.
func (b *captureBuffer) clear(ctx context.Context) {
	keys, err := b.kv.SMembers(ctx, b.setKey()).Result()
	if err != nil {
		return
	}
	del := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		del = append(del, b.recordKey(k))
	}
	del = append(del, b.setKey())
	b.kv.Del(ctx, del...)
}
