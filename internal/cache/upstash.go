// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// upstashKV speaks the Upstash Redis REST protocol: one POST per command,
// the command encoded as a JSON array of strings.
type upstashKV struct {
	base   string
	token  string
	client *http.Client
}

func newUpstashKV(baseURL, token string) *upstashKV {
	return &upstashKV{
		base:   strings.TrimRight(baseURL, "/"),
		token:  token,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type upstashResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (u *upstashKV) command(ctx context.Context, args ...string) (json.RawMessage, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.base, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstash status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out upstashResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode upstash response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("upstash: %s", out.Error)
	}
	return out.Result, nil
}

func (u *upstashKV) Get(ctx context.Context, key string) (string, bool, error) {
	result, err := u.command(ctx, "GET", key)
	if err != nil {
		return "", false, err
	}
	if string(result) == "null" {
		return "", false, nil
	}
	var v string
	if err := json.Unmarshal(result, &v); err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (u *upstashKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	args := []string{"SET", key, value}
	if ttl > 0 {
		args = append(args, "EX", strconv.Itoa(int(ttl.Seconds())))
	}
	_, err := u.command(ctx, args...)
	return err
}

func (u *upstashKV) Del(ctx context.Context, keys ...string) error {
	_, err := u.command(ctx, append([]string{"DEL"}, keys...)...)
	return err
}

func (u *upstashKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	var out []string
	cursor := "0"
	for {
		result, err := u.command(ctx, "SCAN", cursor, "MATCH", pattern, "COUNT", "100")
		if err != nil {
			return nil, err
		}
		// SCAN returns [cursor, [keys...]].
		var page []json.RawMessage
		if err := json.Unmarshal(result, &page); err != nil || len(page) != 2 {
			return nil, fmt.Errorf("unexpected SCAN reply")
		}
		if err := json.Unmarshal(page[0], &cursor); err != nil {
			return nil, err
		}
		var keys []string
		if err := json.Unmarshal(page[1], &keys); err != nil {
			return nil, err
		}
		out = append(out, keys...)
		if cursor == "0" {
			return out, nil
		}
	}
}

func (u *upstashKV) Ping(ctx context.Context) error {
	result, err := u.command(ctx, "PING")
	if err != nil {
		return err
	}
	var pong string
	if err := json.Unmarshal(result, &pong); err != nil || !strings.EqualFold(pong, "PONG") {
		return fmt.Errorf("unexpected PING reply: %s", result)
	}
	return nil
}

func (u *upstashKV) Close() error {
	u.client.CloseIdleConnections()
	return nil
}
