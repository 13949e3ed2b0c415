// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package strategy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/sony/gobreaker"

	"github.com/frontbase/frontbase/internal/types"
)

const (
	edgePublishTimeout  = 30 * time.Second
	edgeSettingsTimeout = 5 * time.Second
)

// EdgeHTTP posts compiled pages to the edge renderer's import endpoint. A
// circuit breaker keeps publish attempts from piling up on a dead edge.
type EdgeHTTP struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	log     logr.Logger
}

func NewEdgeHTTP(baseURL string, log logr.Logger) *EdgeHTTP {
	if baseURL == "" {
		baseURL = "http://localhost:3002"
	}
	return &EdgeHTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: edgePublishTimeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "edge-publish",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log: log.WithName("edge-strategy"),
	}
}

type edgeImportResponse struct {
	Success    bool   `json:"success"`
	PreviewURL string `json:"previewUrl"`
	Version    int    `json:"version"`
	Message    string `json:"message"`
}

func (s *EdgeHTTP) PublishPage(ctx context.Context, page *types.CompiledPage, force bool) (*types.PublishResult, error) {
	url := fmt.Sprintf("%s/api/import?force=%t", s.baseURL, force)

	out, err := s.breaker.Execute(func() (any, error) {
		return s.post(ctx, url, page)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, err
	}
	resp := out.(*edgeImportResponse)
	result := &types.PublishResult{PreviewURL: resp.PreviewURL, Version: resp.Version}
	if result.Version == 0 {
		result.Version = page.Version
	}
	return result, nil
}

func (s *EdgeHTTP) UnpublishPage(ctx context.Context, slug string) error {
	url := fmt.Sprintf("%s/api/pages/%s", s.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: unpublish returned %d", ErrRejected, resp.StatusCode)
	}
	return nil
}

func (s *EdgeHTTP) SyncSettings(ctx context.Context, settings types.ProjectSettings) error {
	ctx, cancel := context.WithTimeout(ctx, edgeSettingsTimeout)
	defer cancel()
	_, err := s.post(ctx, s.baseURL+"/api/settings", settings)
	return err
}

func (s *EdgeHTTP) post(ctx context.Context, url string, payload any) (*edgeImportResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: edge returned 504", ErrTimeout)
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%w: edge returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: edge returned %d: %s", ErrRejected, resp.StatusCode, truncate(raw, 200))
	}

	var out edgeImportResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			s.log.V(1).Info("edge response not decodable, treating as success", "body", truncate(raw, 200))
		}
	}
	return &out, nil
}

// classifyTransport maps client-side failures onto the delivery sentinels.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
