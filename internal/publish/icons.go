// SPDX-License-Identifier: Apache-2.0
// Copyright 2025-2026 The Frontbase Authors

package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/frontbase/frontbase/internal/cache"
)

const (
	iconFetchTimeout     = 10 * time.Second
	iconFetchParallelism = 8
	iconMaxBody          = 256 << 10
)

// iconService pre-renders referenced icons into the compiled page so the
// edge never fetches SVGs at render time. Bodies are cached in-process and
// in the external KV tier.
type iconService struct {
	cdnURL string
	client *http.Client
	cache  *cache.Cache
	log    logr.Logger

	mu  sync.Mutex
	mem map[string]string
}

func newIconService(cdnURL string, kv *cache.Cache, log logr.Logger) *iconService {
	return &iconService{
		cdnURL: strings.TrimRight(cdnURL, "/"),
		client: &http.Client{Timeout: iconFetchTimeout},
		cache:  kv,
		log:    log,
		mem:    map[string]string{},
	}
}

// inject walks the component tree, resolves every referenced icon name and
// writes the SVG body next to the reference. Fetch failures skip the icon,
// they never fail the publish.
func (s *iconService) inject(ctx context.Context, components []map[string]any) {
	if s.cdnURL == "" {
		return
	}
	names := map[string]struct{}{}
	for _, comp := range components {
		collectIconNames(comp, names)
	}
	if len(names) == 0 {
		return
	}

	svgs := s.fetchAll(ctx, names)
	for _, comp := range components {
		injectIconSVGs(comp, svgs)
	}
}

// collectIconNames gathers icon references anywhere in the tree: icon props,
// text-with-icon entries and filter labels all use an "icon" key.
func collectIconNames(m map[string]any, into map[string]struct{}) {
	for k, v := range m {
		switch val := v.(type) {
		case string:
			if k == "icon" && val != "" {
				into[val] = struct{}{}
			}
		case map[string]any:
			collectIconNames(val, into)
		case []any:
			for _, item := range val {
				if child, ok := item.(map[string]any); ok {
					collectIconNames(child, into)
				}
			}
		}
	}
}

// injectIconSVGs writes iconSvg next to every resolved icon reference.
func injectIconSVGs(m map[string]any, svgs map[string]string) {
	if name, ok := m["icon"].(string); ok {
		if svg, ok := svgs[name]; ok {
			m["iconSvg"] = svg
		}
	}
	for _, v := range m {
		switch val := v.(type) {
		case map[string]any:
			injectIconSVGs(val, svgs)
		case []any:
			for _, item := range val {
				if child, ok := item.(map[string]any); ok {
					injectIconSVGs(child, svgs)
				}
			}
		}
	}
}

// fetchAll resolves names through the memory tier, the KV tier and finally
// the CDN, bounded-parallel.
func (s *iconService) fetchAll(ctx context.Context, names map[string]struct{}) map[string]string {
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	out := make(map[string]string, len(sorted))
	var outMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(iconFetchParallelism)
	for _, name := range sorted {
		g.Go(func() error {
			svg, err := s.fetch(ctx, name)
			if err != nil {
				s.log.V(1).Info("icon fetch skipped", "icon", name, "reason", err.Error())
				return nil
			}
			outMu.Lock()
			out[name] = svg
			outMu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

func (s *iconService) fetch(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	if svg, ok := s.mem[name]; ok {
		s.mu.Unlock()
		return svg, nil
	}
	s.mu.Unlock()

	kvKey := "fb:icons:" + name
	if s.cache != nil {
		if body, ok := s.cache.Get(ctx, kvKey); ok {
			s.remember(name, string(body))
			return string(body), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s.svg", s.cdnURL, name), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cdn returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, iconMaxBody))
	if err != nil {
		return "", err
	}
	svg := string(body)
	if !strings.Contains(svg, "<svg") {
		return "", fmt.Errorf("cdn body is not svg")
	}

	s.remember(name, svg)
	if s.cache != nil {
		s.cache.SetData(ctx, kvKey, body)
	}
	return svg, nil
}

func (s *iconService) remember(name, svg string) {
	s.mu.Lock()
	s.mem[name] = svg
	s.mu.Unlock()
}
