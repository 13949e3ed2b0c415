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

type pageRow struct {
	ID          string    `db:"id"`
	Slug        string    `db:"slug"`
	Name        string    `db:"name"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	LayoutData  string    `db:"layout_data"`
	SEOData     string    `db:"seo_data"`
	IsPublic    bool      `db:"is_public"`
	IsHomepage  bool      `db:"is_homepage"`
	UpdatedAt   time.Time `db:"updated_at"`
}

const pageColumns = `id, slug, name, title, description, layout_data, seo_data,
	is_public, is_homepage, updated_at`

func (r *pageRow) toPage() (*types.Page, error) {
	p := &types.Page{
		ID:          r.ID,
		Slug:        r.Slug,
		Name:        r.Name,
		Title:       r.Title,
		Description: r.Description,
		IsPublic:    r.IsPublic,
		IsHomepage:  r.IsHomepage,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.LayoutData != "" {
		if err := json.Unmarshal([]byte(r.LayoutData), &p.LayoutData); err != nil {
			return nil, fmt.Errorf("decode layout of page %s: %w", r.Slug, err)
		}
	}
	if r.SEOData != "" {
		if err := json.Unmarshal([]byte(r.SEOData), &p.SEOData); err != nil {
			return nil, fmt.Errorf("decode seo data of page %s: %w", r.Slug, err)
		}
	}
	return p, nil
}

// SavePage inserts or rewrites an authored page. The builder owns page
// content; the publish path only ever flips is_public.
func (s *Store) SavePage(ctx context.Context, p *types.Page) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = time.Now().UTC()

	layout, err := json.Marshal(p.LayoutData)
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	seo, err := json.Marshal(p.SEOData)
	if err != nil {
		return fmt.Errorf("encode seo data: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin page save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM pages WHERE id = ?`), p.ID); err != nil {
		return fmt.Errorf("clear page: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO pages (`+pageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.Slug, p.Name, p.Title, p.Description, string(layout), string(seo),
		p.IsPublic, p.IsHomepage, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert page: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetPage(ctx context.Context, id string) (*types.Page, error) {
	return s.getPage(ctx, `id = ?`, id)
}

func (s *Store) GetPageBySlug(ctx context.Context, slug string) (*types.Page, error) {
	return s.getPage(ctx, `slug = ?`, slug)
}

func (s *Store) getPage(ctx context.Context, where string, arg any) (*types.Page, error) {
	var row pageRow
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT `+pageColumns+` FROM pages WHERE `+where), arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}
	return row.toPage()
}

func (s *Store) ListPages(ctx context.Context) ([]*types.Page, error) {
	var rows []pageRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+pageColumns+` FROM pages ORDER BY slug`); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	out := make([]*types.Page, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toPage()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// SetPagePublic flips the only page column the publish path owns.
func (s *Store) SetPagePublic(ctx context.Context, id string, public bool) error {
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE pages SET is_public = ? WHERE id = ?`), public, id)
	if err != nil {
		return fmt.Errorf("set page public: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// NextPageVersion returns the version the next publish of the page must
// carry. Versions only ever increase.
func (s *Store) NextPageVersion(ctx context.Context, pageID string) (int, error) {
	var current sql.NullInt64
	err := s.db.GetContext(ctx, &current,
		s.q(`SELECT version FROM compiled_pages WHERE page_id = ?`), pageID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read page version: %w", err)
	}
	return int(current.Int64) + 1, nil
}

// SaveCompiledPage records the published artifact and its version.
func (s *Store) SaveCompiledPage(ctx context.Context, pageID, slug string, version int, compiled []byte) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin compiled save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		s.q(`DELETE FROM compiled_pages WHERE page_id = ?`), pageID); err != nil {
		return fmt.Errorf("clear compiled page: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO compiled_pages (page_id, slug, version, compiled, published_at)
		VALUES (?, ?, ?, ?, ?)`),
		pageID, slug, version, string(compiled), time.Now().UTC()); err != nil {
		return fmt.Errorf("insert compiled page: %w", err)
	}
	return tx.Commit()
}

// GetCompiledPage returns the latest published artifact for a slug.
func (s *Store) GetCompiledPage(ctx context.Context, slug string) ([]byte, int, error) {
	var row struct {
		Version  int    `db:"version"`
		Compiled string `db:"compiled"`
	}
	err := s.db.GetContext(ctx, &row,
		s.q(`SELECT version, compiled FROM compiled_pages WHERE slug = ?`), slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get compiled page: %w", err)
	}
	return []byte(row.Compiled), row.Version, nil
}
